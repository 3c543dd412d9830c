// Package service provides business logic layer implementations.
package service

import (
	"context"

	"github.com/example/meta-conversions-relay/internal/capi"
	"github.com/example/meta-conversions-relay/internal/model"
)

// RelayService defines the single-order delivery path. It is lock-free: the
// idempotent sent marker plus receiver-side event-id dedup make concurrent
// invocations safe.
type RelayService interface {
	// SendOrder builds, delivers and marks one order. force bypasses the
	// already-sent check; it is meant for the diagnostic resend path only.
	SendOrder(ctx context.Context, orderID int64, force bool) (*model.SendResult, error)
	// SendTestOrder relays an order paid with the configured test payment
	// method before it reaches completed status. Gated by test_resend_mode.
	SendTestOrder(ctx context.Context, orderID int64) (*model.SendResult, error)
}

// BackfillService defines the batch backfill engine.
type BackfillService interface {
	// Run processes up to limit unsent completed orders under the lease lock.
	// When the lease is held elsewhere it returns immediately with a summary
	// flagged Locked and zero counts.
	Run(ctx context.Context, limit int, trigger string) (*model.RunSummary, error)
}

// Sender delivers one built event. Satisfied by capi.Client.
type Sender interface {
	Send(ctx context.Context, event *capi.Event, settings *model.Settings) capi.Outcome
}
