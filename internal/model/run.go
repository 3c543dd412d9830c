package model

import "time"

// SendStatus classifies the outcome of relaying a single order.
type SendStatus string

const (
	// StatusSent means the API confirmed receipt (events_received > 0).
	StatusSent SendStatus = "sent"
	// StatusSkipped means the order was not relayed and no call was made.
	StatusSkipped SendStatus = "skipped"
	// StatusError covers config, validation, transport and API failures.
	StatusError SendStatus = "error"
)

// SendResult is the per-order outcome of the relay pipeline.
type SendResult struct {
	Status  SendStatus `json:"status"`
	Message string     `json:"message"`
}

// RunItem is one per-order line in a backfill run summary.
type RunItem struct {
	OrderID int64      `json:"order_id"`
	Status  SendStatus `json:"status"`
	Message string     `json:"message"`
}

// RunSummary describes the most recent backfill run. It is overwritten on
// every run; it is not accumulated history.
type RunSummary struct {
	RunID   string    `json:"run_id"`
	RunAt   time.Time `json:"run_at"`
	Trigger string    `json:"trigger"`
	Locked  bool      `json:"locked"`
	Total   int       `json:"total"`
	Sent    int       `json:"sent"`
	Skipped int       `json:"skipped"`
	Errors  int       `json:"errors"`
	Items   []RunItem `json:"items"`
}

// Audit entry types, used for operator-side filtering.
const (
	EntryRequest  = "request"
	EntryResponse = "response"
	EntryInfo     = "info"
	EntryError    = "error"
)

// AuditEntry is one row of the bounded operator event log.
type AuditEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Context string    `json:"context,omitempty"`
	Type    string    `json:"type"`
}
