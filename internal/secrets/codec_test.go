package secrets

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	codec := NewAESCodec("test-key-material")

	sealed, err := codec.Seal("EAABsbCS1234secret")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sealed, "enc:"))
	require.NotContains(t, sealed, "secret")

	opened, err := codec.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "EAABsbCS1234secret", opened)
}

func TestSealEmptyPassesThrough(t *testing.T) {
	codec := NewAESCodec("test-key-material")

	sealed, err := codec.Seal("")
	require.NoError(t, err)
	require.Empty(t, sealed)
}

func TestOpenUnprefixedPassesThrough(t *testing.T) {
	codec := NewAESCodec("test-key-material")

	// Legacy plaintext values are returned unchanged.
	opened, err := codec.Open("plain-legacy-token")
	require.NoError(t, err)
	require.Equal(t, "plain-legacy-token", opened)

	opened, err = codec.Open("")
	require.NoError(t, err)
	require.Empty(t, opened)
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	codec := NewAESCodec("test-key-material")

	sealed, err := codec.Seal("token")
	require.NoError(t, err)

	tampered := sealed[:len(sealed)-2] + "zz"
	_, err = codec.Open(tampered)
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestOpenRejectsGarbage(t *testing.T) {
	codec := NewAESCodec("test-key-material")

	_, err := codec.Open("enc:not-base64!!!")
	require.ErrorIs(t, err, ErrMalformedCiphertext)

	_, err = codec.Open("enc:YWJj") // too short to carry a nonce
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestOpenWrongKeyFails(t *testing.T) {
	sealed, err := NewAESCodec("key-a").Seal("token")
	require.NoError(t, err)

	_, err = NewAESCodec("key-b").Open(sealed)
	require.ErrorIs(t, err, ErrMalformedCiphertext)
}

func TestSealIsNonDeterministic(t *testing.T) {
	codec := NewAESCodec("test-key-material")

	first, err := codec.Seal("token")
	require.NoError(t, err)

	second, err := codec.Seal("token")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}
