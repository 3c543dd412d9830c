// Package capi builds and delivers Conversions API events.
package capi

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/example/meta-conversions-relay/internal/model"
)

// ActionSourceWebsite is the fixed action_source for relayed purchase events.
const ActionSourceWebsite = "website"

// Event is the wire form of a single Conversions API event.
type Event struct {
	EventName      string            `json:"event_name"`
	EventTime      int64             `json:"event_time"`
	EventID        string            `json:"event_id"`
	ActionSource   string            `json:"action_source"`
	UserData       map[string]string `json:"user_data"`
	CustomData     *CustomData       `json:"custom_data"`
	EventSourceURL string            `json:"event_source_url,omitempty"`
}

// CustomData carries the order value and, outside minimal/EU modes, the
// product content descriptors.
type CustomData struct {
	Value       float64   `json:"value"`
	Currency    string    `json:"currency"`
	ContentType string    `json:"content_type,omitempty"`
	ContentIDs  []string  `json:"content_ids,omitempty"`
	Contents    []Content `json:"contents,omitempty"`
	NumItems    int       `json:"num_items,omitempty"`
}

// Content is a single product entry in CustomData.Contents.
type Content struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// BuildEvent constructs the outbound event for an order. Pure: no I/O, no
// side effects. now is used for the event-time fallback and for fbc
// resynthesis. Returns model.ErrMissingEmail when the order has no billing
// email.
func BuildEvent(order *model.Order, settings *model.Settings, now time.Time) (*Event, error) {
	if strings.TrimSpace(order.BillingEmail) == "" {
		return nil, model.ErrMissingEmail
	}

	userData := map[string]string{
		"em": hashNormalized(order.BillingEmail),
	}

	if digits := digitsOnly(order.BillingPhone); digits != "" {
		userData["ph"] = hashSHA256(digits)
	}

	if order.BillingFirstName != "" {
		userData["fn"] = hashNormalized(order.BillingFirstName)
	}

	if order.BillingLastName != "" {
		userData["ln"] = hashNormalized(order.BillingLastName)
	}

	if order.BillingCity != "" {
		userData["ct"] = hashNormalized(order.BillingCity)
	}

	if order.BillingState != "" {
		userData["st"] = hashNormalized(order.BillingState)
	}

	// Postcode is hashed over trimmed input without lowercasing; country is
	// lowercased without trimming. Both match the upstream wire contract.
	if order.BillingPostcode != "" {
		userData["zp"] = hashSHA256(strings.TrimSpace(order.BillingPostcode))
	}

	if order.BillingCountry != "" {
		userData["country"] = hashSHA256(strings.ToLower(order.BillingCountry))
	}

	if !settings.EUCompliant {
		if order.Tracking.FBP != "" {
			userData["fbp"] = order.Tracking.FBP
		}

		fbc := order.Tracking.FBC
		if fbc == "" && order.Tracking.FBCLID != "" {
			// Resynthesized from the bare click-id parameter. The original
			// capture timestamp is lost; the current time stands in for it.
			fbc = "fb.1." + strconv.FormatInt(now.Unix(), 10) + "." + order.Tracking.FBCLID
		}

		if fbc != "" {
			userData["fbc"] = fbc
		}
	}

	if order.Tracking.ClientIP != "" {
		userData["client_ip_address"] = order.Tracking.ClientIP
	}

	if order.Tracking.ClientUserAgent != "" {
		userData["client_user_agent"] = order.Tracking.ClientUserAgent
	}

	event := &Event{
		EventName:    settings.EventName,
		EventTime:    eventTime(order, now),
		EventID:      strconv.FormatInt(order.ID, 10),
		ActionSource: ActionSourceWebsite,
		UserData:     userData,
		CustomData:   buildCustomData(order, settings),
	}

	if settings.SendSourceURL && !settings.EUCompliant && order.CheckoutURL != "" {
		event.EventSourceURL = order.CheckoutURL
	}

	return event, nil
}

// buildCustomData returns value+currency only in minimal or EU mode, the full
// content descriptors otherwise.
func buildCustomData(order *model.Order, settings *model.Settings) *CustomData {
	data := &CustomData{
		Value:    order.Total,
		Currency: order.Currency,
	}

	if settings.MinimalData || settings.EUCompliant {
		return data
	}

	numItems := 0
	for _, item := range order.Items {
		id := strconv.FormatInt(item.ProductID, 10)
		data.ContentIDs = append(data.ContentIDs, id)
		data.Contents = append(data.Contents, Content{ID: id, Quantity: item.Quantity})
		numItems += item.Quantity
	}

	data.ContentType = "product"
	data.NumItems = numItems

	return data
}

// eventTime prefers the completion timestamp, then creation, then now.
func eventTime(order *model.Order, now time.Time) int64 {
	if order.CompletedAt != nil && !order.CompletedAt.IsZero() {
		return order.CompletedAt.Unix()
	}

	if !order.CreatedAt.IsZero() {
		return order.CreatedAt.Unix()
	}

	return now.Unix()
}

func hashNormalized(value string) string {
	return hashSHA256(strings.ToLower(strings.TrimSpace(value)))
}

func hashSHA256(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
