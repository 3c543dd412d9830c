package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/example/meta-conversions-relay/internal/metrics"
	"github.com/example/meta-conversions-relay/internal/model"
)

const (
	// DefaultBaseURL is the Graph API host.
	DefaultBaseURL = "https://graph.facebook.com"
	// RequestTimeout bounds every delivery call.
	RequestTimeout = 30 * time.Second

	responseBodyLimit = 1 << 20
	auditBodyLimit    = 500
	messageLimit      = 200
)

// AuditSink receives request/response audit entries emitted around delivery
// calls. Writes are best-effort; a failing sink never fails a delivery.
type AuditSink interface {
	Append(ctx context.Context, entry *model.AuditEntry, maxEntries int) error
}

// Outcome classifies a single delivery attempt.
type Outcome struct {
	Status         model.SendStatus
	Message        string
	EventsReceived int
}

// Client sends events to the Conversions API. It never retries; retry is the
// caller's responsibility via the idempotent resend-by-batch path.
type Client struct {
	// BaseURL is overridable for tests.
	BaseURL string

	httpClient *http.Client
	audit      AuditSink
	now        func() time.Time
}

// NewClient creates a delivery client with the default endpoint and timeout.
func NewClient(audit AuditSink) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: RequestTimeout},
		audit:      audit,
		now:        time.Now,
	}
}

type apiRequest struct {
	Data          []*Event `json:"data"`
	AccessToken   string   `json:"access_token"`
	TestEventCode string   `json:"test_event_code,omitempty"`
}

type apiResponse struct {
	EventsReceived int `json:"events_received"`
}

// Send delivers one event and classifies the result. The request carries a
// single-element event list, the access token, and the test event code when
// test mode is enabled.
func (c *Client) Send(ctx context.Context, event *Event, settings *model.Settings) Outcome {
	body := apiRequest{
		Data:        []*Event{event},
		AccessToken: settings.AccessToken,
	}

	if settings.TestEvents && settings.TestEventCode != "" {
		body.TestEventCode = settings.TestEventCode
	}

	if settings.LogPayload {
		c.logRequestPayload(ctx, event, settings, body.TestEventCode)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Outcome{Status: model.StatusError, Message: model.Truncate(err.Error(), messageLimit)}
	}

	endpoint := c.BaseURL + "/" + settings.APIVersion + "/" + url.PathEscape(settings.PixelID) + "/events"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Status: model.StatusError, Message: model.Truncate(err.Error(), messageLimit)}
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.APIRequests.WithLabelValues("transport_error").Inc()
		return Outcome{Status: model.StatusError, Message: model.Truncate(err.Error(), messageLimit)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		metrics.APIRequests.WithLabelValues("transport_error").Inc()
		return Outcome{Status: model.StatusError, Message: model.Truncate(err.Error(), messageLimit)}
	}

	metrics.APIRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode == http.StatusOK {
		var parsed apiResponse
		if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.EventsReceived > 0 {
			c.writeAudit(ctx, settings, slog.LevelDebug, model.EntryResponse,
				fmt.Sprintf("api response 200 OK for event %s: %s", event.EventID, model.Truncate(string(respBody), auditBodyLimit)))

			return Outcome{
				Status:         model.StatusSent,
				Message:        "events_received:" + strconv.Itoa(parsed.EventsReceived),
				EventsReceived: parsed.EventsReceived,
			}
		}
	}

	c.writeAudit(ctx, settings, slog.LevelError, model.EntryResponse,
		fmt.Sprintf("api response for event %s: status %d - %s", event.EventID, resp.StatusCode, model.Truncate(string(respBody), auditBodyLimit)))

	return Outcome{
		Status:  model.StatusError,
		Message: "http_" + strconv.Itoa(resp.StatusCode) + ": " + model.Truncate(string(respBody), messageLimit),
	}
}

// logRequestPayload records the outbound payload with the access token masked
// to its last four characters. Debug-gated like every debug audit entry.
func (c *Client) logRequestPayload(ctx context.Context, event *Event, settings *model.Settings, testEventCode string) {
	masked := apiRequest{
		Data:          []*Event{event},
		AccessToken:   MaskToken(settings.AccessToken),
		TestEventCode: testEventCode,
	}

	encoded, err := json.MarshalIndent(masked, "", "  ")
	if err != nil {
		return
	}

	c.writeAudit(ctx, settings, slog.LevelDebug, model.EntryRequest,
		fmt.Sprintf("request payload for event %s: %s", event.EventID, model.Truncate(string(encoded), 1000)))
}

func (c *Client) writeAudit(ctx context.Context, settings *model.Settings, level slog.Level, entryType, message string) {
	if c.audit == nil {
		return
	}

	if level == slog.LevelDebug && !settings.DebugLog {
		return
	}

	entry := &model.AuditEntry{
		Time:    c.now(),
		Level:   levelName(level),
		Message: message,
		Type:    entryType,
	}

	if err := c.audit.Append(ctx, entry, settings.LogMaxEntries); err != nil {
		slog.Error("failed to append audit entry", slog.String("error", err.Error()))
	}
}

func levelName(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

// MaskToken reduces a credential to "****" plus its last four characters.
func MaskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}

	return "****" + token[len(token)-4:]
}
