package model

const (
	// DefaultEventName is sent when no event name is configured.
	DefaultEventName = "Purchase"
	// DefaultAPIVersion is the Graph API version used unless overridden.
	DefaultAPIVersion = "v21.0"
	// DefaultBatchSize is the backfill batch size when none is configured.
	DefaultBatchSize = 50

	// MinBatchSize and MaxBatchSize bound every backfill invocation.
	MinBatchSize = 1
	MaxBatchSize = 200

	// DefaultLogMaxEntries caps the audit log; MinLogMaxEntries is its floor.
	DefaultLogMaxEntries = 500
	MinLogMaxEntries     = 50
)

// Settings is the run configuration for the relay. It is re-read from storage
// on every operation so that operator changes take effect immediately; nothing
// caches a Settings value across calls.
type Settings struct {
	PixelID           string `json:"pixel_id"`
	AccessToken       string `json:"-"` // decrypted, never serialized
	TokenLast4        string `json:"token_last4"`
	APIVersion        string `json:"api_version"`
	EventName         string `json:"event_name"`
	MinimalData       bool   `json:"minimal_data"`
	EUCompliant       bool   `json:"eu_compliant"`
	SendSourceURL     bool   `json:"send_source_url"`
	TestEvents        bool   `json:"test_events"`
	TestEventCode     string `json:"test_event_code"`
	TestResendMode    bool   `json:"test_resend_mode"`
	TestPaymentMethod string `json:"test_payment_method"`
	LogPayload        bool   `json:"log_payload"`
	DebugLog          bool   `json:"debug_log"`
	CronEnabled       bool   `json:"cron_enabled"`
	CronBatchSize     int    `json:"cron_batch_size"`
	LogMaxEntries     int    `json:"log_max_entries"`
}

// DefaultSettings returns the settings used before an operator has saved any.
func DefaultSettings() *Settings {
	return &Settings{
		APIVersion:    DefaultAPIVersion,
		EventName:     DefaultEventName,
		SendSourceURL: true,
		CronBatchSize: DefaultBatchSize,
		LogMaxEntries: DefaultLogMaxEntries,
	}
}

// Normalize applies defaults and clamps. It runs on every settings write and
// defensively on every read.
func (s *Settings) Normalize() {
	if s.EventName == "" {
		s.EventName = DefaultEventName
	}

	if s.APIVersion == "" {
		s.APIVersion = DefaultAPIVersion
	}

	if s.CronBatchSize == 0 {
		s.CronBatchSize = DefaultBatchSize
	}

	s.CronBatchSize = ClampBatchSize(s.CronBatchSize)

	if s.LogMaxEntries == 0 {
		s.LogMaxEntries = DefaultLogMaxEntries
	}

	if s.LogMaxEntries < MinLogMaxEntries {
		s.LogMaxEntries = MinLogMaxEntries
	}
}

// ClampBatchSize bounds a backfill limit to [MinBatchSize, MaxBatchSize].
func ClampBatchSize(limit int) int {
	if limit < MinBatchSize {
		return MinBatchSize
	}

	if limit > MaxBatchSize {
		return MaxBatchSize
	}

	return limit
}
