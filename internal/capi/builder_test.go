package capi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/meta-conversions-relay/internal/model"
)

func sha256Hex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func testOrder() *model.Order {
	completed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	return &model.Order{
		ID:           1001,
		Status:       model.OrderStatusCompleted,
		BillingEmail: "a@b.com",
		Total:        49.99,
		Currency:     "USD",
		CheckoutURL:  "https://shop.example.com/checkout/order-received/1001",
		Items: []model.OrderItem{
			{ProductID: 77, Quantity: 2},
		},
		CompletedAt: &completed,
		CreatedAt:   completed.Add(-time.Hour),
	}
}

func testSettings() *model.Settings {
	settings := model.DefaultSettings()
	settings.PixelID = "1830160027863323"
	settings.AccessToken = "token-abcd"

	return settings
}

func TestBuildEventFullData(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	event, err := BuildEvent(testOrder(), testSettings(), now)
	require.NoError(t, err)

	require.Equal(t, "Purchase", event.EventName)
	require.Equal(t, "1001", event.EventID)
	require.Equal(t, "website", event.ActionSource)
	require.Equal(t, int64(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix()), event.EventTime)
	require.Equal(t, sha256Hex("a@b.com"), event.UserData["em"])
	require.Equal(t, "https://shop.example.com/checkout/order-received/1001", event.EventSourceURL)

	require.InDelta(t, 49.99, event.CustomData.Value, 0.0001)
	require.Equal(t, "USD", event.CustomData.Currency)
	require.Equal(t, "product", event.CustomData.ContentType)
	require.Equal(t, []string{"77"}, event.CustomData.ContentIDs)
	require.Equal(t, []Content{{ID: "77", Quantity: 2}}, event.CustomData.Contents)
	require.Equal(t, 2, event.CustomData.NumItems)
}

func TestBuildEventMissingEmail(t *testing.T) {
	order := testOrder()
	order.BillingEmail = "   "

	_, err := BuildEvent(order, testSettings(), time.Now())
	require.ErrorIs(t, err, model.ErrMissingEmail)
}

func TestBuildEventHashNormalization(t *testing.T) {
	order := testOrder()
	order.BillingEmail = "  User@Example.COM "
	order.BillingPhone = "+1 (555) 010-9999"
	order.BillingFirstName = " Jane "
	order.BillingLastName = "Doe"
	order.BillingCity = "Budapest"
	order.BillingState = "BU"
	order.BillingPostcode = " AB1 2CD "
	order.BillingCountry = "HU"

	event, err := BuildEvent(order, testSettings(), time.Now())
	require.NoError(t, err)

	require.Equal(t, sha256Hex("user@example.com"), event.UserData["em"])
	require.Equal(t, sha256Hex("15550109999"), event.UserData["ph"])
	require.Equal(t, sha256Hex("jane"), event.UserData["fn"])
	require.Equal(t, sha256Hex("doe"), event.UserData["ln"])
	require.Equal(t, sha256Hex("budapest"), event.UserData["ct"])
	require.Equal(t, sha256Hex("bu"), event.UserData["st"])
	// Postcode keeps its case; country keeps surrounding whitespace out of scope.
	require.Equal(t, sha256Hex("AB1 2CD"), event.UserData["zp"])
	require.Equal(t, sha256Hex("hu"), event.UserData["country"])
}

func TestBuildEventOmitsEmptyIdentityFields(t *testing.T) {
	event, err := BuildEvent(testOrder(), testSettings(), time.Now())
	require.NoError(t, err)

	for _, key := range []string{"ph", "fn", "ln", "ct", "st", "zp", "country", "fbp", "fbc", "client_ip_address", "client_user_agent"} {
		require.NotContains(t, event.UserData, key)
	}
}

func TestBuildEventTrackingPassthrough(t *testing.T) {
	order := testOrder()
	order.Tracking = model.Tracking{
		FBP:             "fb.1.1700000000.123456",
		FBC:             "fb.1.1700000001.AbCdEf",
		ClientIP:        "203.0.113.9",
		ClientUserAgent: "Mozilla/5.0",
	}

	event, err := BuildEvent(order, testSettings(), time.Now())
	require.NoError(t, err)

	// Tracking and network fields are passed through unhashed.
	require.Equal(t, "fb.1.1700000000.123456", event.UserData["fbp"])
	require.Equal(t, "fb.1.1700000001.AbCdEf", event.UserData["fbc"])
	require.Equal(t, "203.0.113.9", event.UserData["client_ip_address"])
	require.Equal(t, "Mozilla/5.0", event.UserData["client_user_agent"])
}

func TestBuildEventFBCResynthesis(t *testing.T) {
	now := time.Date(2025, 6, 2, 10, 30, 0, 0, time.UTC)

	order := testOrder()
	order.Tracking.FBCLID = "IwAR123xyz"

	event, err := BuildEvent(order, testSettings(), now)
	require.NoError(t, err)
	require.Equal(t, fmt.Sprintf("fb.1.%d.IwAR123xyz", now.Unix()), event.UserData["fbc"])
}

func TestBuildEventFBCCookieWinsOverClickID(t *testing.T) {
	order := testOrder()
	order.Tracking.FBC = "fb.1.1700000001.stored"
	order.Tracking.FBCLID = "ignored"

	event, err := BuildEvent(order, testSettings(), time.Now())
	require.NoError(t, err)
	require.Equal(t, "fb.1.1700000001.stored", event.UserData["fbc"])
}

func TestBuildEventEUCompliantMode(t *testing.T) {
	order := testOrder()
	order.Tracking = model.Tracking{
		FBP:             "fb.1.1700000000.123456",
		FBC:             "fb.1.1700000001.AbCdEf",
		FBCLID:          "IwAR123xyz",
		ClientIP:        "203.0.113.9",
		ClientUserAgent: "Mozilla/5.0",
	}

	settings := testSettings()
	settings.EUCompliant = true

	event, err := BuildEvent(order, settings, time.Now())
	require.NoError(t, err)

	require.NotContains(t, event.UserData, "fbp")
	require.NotContains(t, event.UserData, "fbc")
	require.Empty(t, event.EventSourceURL)

	// Content identifiers are stripped even though minimal mode is off.
	require.Empty(t, event.CustomData.ContentIDs)
	require.Empty(t, event.CustomData.Contents)
	require.Empty(t, event.CustomData.ContentType)
	require.Zero(t, event.CustomData.NumItems)
	require.InDelta(t, 49.99, event.CustomData.Value, 0.0001)
	require.Equal(t, "USD", event.CustomData.Currency)

	// Network fields survive EU mode.
	require.Equal(t, "203.0.113.9", event.UserData["client_ip_address"])
	require.Equal(t, "Mozilla/5.0", event.UserData["client_user_agent"])
}

func TestBuildEventMinimalDataMode(t *testing.T) {
	order := testOrder()
	order.Tracking.FBP = "fb.1.1700000000.123456"

	settings := testSettings()
	settings.MinimalData = true

	event, err := BuildEvent(order, settings, time.Now())
	require.NoError(t, err)

	require.Empty(t, event.CustomData.ContentIDs)
	require.Empty(t, event.CustomData.Contents)
	require.Empty(t, event.CustomData.ContentType)
	require.Zero(t, event.CustomData.NumItems)

	// Minimal mode does not strip cookies or the source URL; only EU mode does.
	require.Equal(t, "fb.1.1700000000.123456", event.UserData["fbp"])
	require.NotEmpty(t, event.EventSourceURL)
}

func TestBuildEventSourceURLFlag(t *testing.T) {
	settings := testSettings()
	settings.SendSourceURL = false

	event, err := BuildEvent(testOrder(), settings, time.Now())
	require.NoError(t, err)
	require.Empty(t, event.EventSourceURL)
}

func TestBuildEventTimeFallbacks(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	order := testOrder()
	order.CompletedAt = nil

	event, err := BuildEvent(order, testSettings(), now)
	require.NoError(t, err)
	require.Equal(t, order.CreatedAt.Unix(), event.EventTime)

	order.CreatedAt = time.Time{}

	event, err = BuildEvent(order, testSettings(), now)
	require.NoError(t, err)
	require.Equal(t, now.Unix(), event.EventTime)
}

func TestBuildEventCustomEventName(t *testing.T) {
	settings := testSettings()
	settings.EventName = "CompleteRegistration"

	event, err := BuildEvent(testOrder(), settings, time.Now())
	require.NoError(t, err)
	require.Equal(t, "CompleteRegistration", event.EventName)
}
