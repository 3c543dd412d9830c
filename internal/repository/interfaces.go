// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"time"

	"github.com/example/meta-conversions-relay/internal/model"
)

// OrderRepository defines the narrow order-store surface the relay needs:
// lookup, the backfill candidate query, the sent marker, and the tracking
// metadata write-back.
type OrderRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Order, error)
	ListUnsentCompleted(ctx context.Context, limit int) ([]int64, error)
	IsSent(ctx context.Context, id int64) (bool, error)
	MarkSent(ctx context.Context, id int64, at time.Time) error
	SetTracking(ctx context.Context, id int64, tracking *model.Tracking) error
}

// SettingsRepository loads and stores the run configuration. Get must return
// fresh state on every call.
type SettingsRepository interface {
	Get(ctx context.Context) (*model.Settings, error)
	Save(ctx context.Context, settings *model.Settings) error
}

// AuditRepository is the append-only bounded operator event log.
type AuditRepository interface {
	Append(ctx context.Context, entry *model.AuditEntry, maxEntries int) error
	List(ctx context.Context, entryType string, limit int) ([]*model.AuditEntry, error)
	Clear(ctx context.Context) error
}

// RunRepository is the single-slot store for the most recent backfill summary.
type RunRepository interface {
	Save(ctx context.Context, summary *model.RunSummary) error
	Last(ctx context.Context) (*model.RunSummary, error)
}
