package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/meta-conversions-relay/internal/lock"
	"github.com/example/meta-conversions-relay/internal/metrics"
	"github.com/example/meta-conversions-relay/internal/model"
	"github.com/example/meta-conversions-relay/internal/repository"
)

// maxRunItems caps the per-order list stored in a run summary.
const maxRunItems = 200

// BackfillServiceImpl implements BackfillService: fetch candidates under the
// lease lock, relay each through the single-order path, pace between calls,
// record the summary.
type BackfillServiceImpl struct {
	orders   repository.OrderRepository
	settings repository.SettingsRepository
	audit    repository.AuditRepository
	runs     repository.RunRepository
	relay    RelayService
	lease    lock.Lock
	lockTTL  time.Duration
	pace     time.Duration
	now      func() time.Time
}

// NewBackfillServiceImpl creates a new BackfillService implementation. pace is
// the inter-order delay; pass zero to disable pacing.
func NewBackfillServiceImpl(
	orders repository.OrderRepository,
	settings repository.SettingsRepository,
	audit repository.AuditRepository,
	runs repository.RunRepository,
	relay RelayService,
	lease lock.Lock,
	lockTTL time.Duration,
	pace time.Duration,
) *BackfillServiceImpl {
	return &BackfillServiceImpl{
		orders:   orders,
		settings: settings,
		audit:    audit,
		runs:     runs,
		relay:    relay,
		lease:    lease,
		lockTTL:  lockTTL,
		pace:     pace,
		now:      time.Now,
	}
}

// Run executes one backfill batch. Per-order failures never abort the batch;
// they are tallied and the loop continues. The lease is released on every
// exit path.
func (s *BackfillServiceImpl) Run(ctx context.Context, limit int, trigger string) (*model.RunSummary, error) {
	limit = model.ClampBatchSize(limit)

	acquired, err := s.lease.TryAcquire(ctx, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire backfill lease: %w", err)
	}

	if !acquired {
		metrics.LockContention.Inc()
		slog.Info("backfill already running, skipping",
			slog.String("trigger", trigger),
		)

		return &model.RunSummary{
			RunAt:   s.now(),
			Trigger: trigger,
			Locked:  true,
		}, nil
	}

	defer func() {
		// Release must survive caller cancellation.
		if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
			slog.Error("failed to release backfill lease", slog.String("error", err.Error()))
		}
	}()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	runID := uuid.NewString()

	slog.Info("backfill started",
		slog.String("run_id", runID),
		slog.String("trigger", trigger),
		slog.Int("limit", limit),
	)
	s.auditInfo(ctx, settings, fmt.Sprintf("backfill started, trigger=%s limit=%d run_id=%s", trigger, limit, runID))

	orderIDs, err := s.orders.ListUnsentCompleted(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list backfill candidates: %w", err)
	}

	summary := &model.RunSummary{
		RunID:   runID,
		RunAt:   s.now(),
		Trigger: trigger,
		Total:   len(orderIDs),
	}

	for _, orderID := range orderIDs {
		result, err := s.relay.SendOrder(ctx, orderID, false)
		if err != nil {
			result = &model.SendResult{
				Status:  model.StatusError,
				Message: model.Truncate(err.Error(), 200),
			}
		}

		switch result.Status {
		case model.StatusSent:
			summary.Sent++
		case model.StatusSkipped:
			summary.Skipped++
		default:
			summary.Errors++
		}

		if len(summary.Items) < maxRunItems {
			summary.Items = append(summary.Items, model.RunItem{
				OrderID: orderID,
				Status:  result.Status,
				Message: model.Truncate(result.Message, 200),
			})
		}

		if s.pace > 0 {
			time.Sleep(s.pace)
		}
	}

	if err := s.runs.Save(ctx, summary); err != nil {
		// The summary is an operator convenience; the per-order state is
		// already durable in the sent markers.
		slog.Error("failed to save run summary", slog.String("error", err.Error()))
	}

	metrics.BackfillRuns.WithLabelValues(trigger).Inc()

	slog.Info("backfill finished",
		slog.String("run_id", runID),
		slog.String("trigger", trigger),
		slog.Int("total", summary.Total),
		slog.Int("sent", summary.Sent),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors),
	)
	s.auditInfo(ctx, settings, fmt.Sprintf(
		"backfill finished, trigger=%s total=%d sent=%d skipped=%d errors=%d run_id=%s",
		trigger, summary.Total, summary.Sent, summary.Skipped, summary.Errors, runID,
	))

	return summary, nil
}

func (s *BackfillServiceImpl) auditInfo(ctx context.Context, settings *model.Settings, message string) {
	entry := &model.AuditEntry{
		Time:    s.now(),
		Level:   "info",
		Message: message,
		Type:    model.EntryInfo,
	}

	if err := s.audit.Append(ctx, entry, settings.LogMaxEntries); err != nil {
		slog.Error("failed to append audit entry", slog.String("error", err.Error()))
	}
}
