// Package secrets provides the reversible codec used to keep the access token
// sealed at rest. The rest of the system treats it as an opaque store: decrypt
// happens only inside settings loading.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

const encPrefix = "enc:"

// ErrMalformedCiphertext is returned when a sealed value cannot be decoded.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Codec seals and opens secret values.
type Codec interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// AESCodec implements Codec with AES-256-GCM. The key is derived from
// arbitrary key material by hashing.
type AESCodec struct {
	key [sha256.Size]byte
}

// NewAESCodec derives a codec key from the given key material.
func NewAESCodec(keyMaterial string) *AESCodec {
	return &AESCodec{key: sha256.Sum256([]byte(keyMaterial))}
}

// Seal encrypts a value. Empty input passes through unchanged.
func (c *AESCodec) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed value. Values without the sealed prefix are returned
// as-is, which lets unencrypted legacy values keep working.
func (c *AESCodec) Open(stored string) (string, error) {
	if stored == "" || !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	if len(raw) <= gcm.NonceSize() {
		return "", ErrMalformedCiphertext
	}

	plaintext, err := gcm.Open(nil, raw[:gcm.NonceSize()], raw[gcm.NonceSize():], nil)
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	return string(plaintext), nil
}

func (c *AESCodec) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		return nil, err
	}

	return cipher.NewGCM(block)
}
