package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/meta-conversions-relay/internal/model"
)

// RunRepositoryImpl implements RunRepository using PostgreSQL. The summary is
// a single-slot overwrite, not history.
type RunRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewRunRepositoryImpl creates a new RunRepository implementation.
func NewRunRepositoryImpl(pool *pgxpool.Pool) RunRepository {
	return &RunRepositoryImpl{pool: pool}
}

// Save overwrites the last-run summary.
func (r *RunRepositoryImpl) Save(ctx context.Context, summary *model.RunSummary) error {
	items, err := json.Marshal(summary.Items)
	if err != nil {
		return fmt.Errorf("marshal run items: %w", err)
	}

	const query = `
		INSERT INTO run_summary (
			id, run_id, run_at, triggered_by, total, sent, skipped, errors, items
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			run_at = EXCLUDED.run_at,
			triggered_by = EXCLUDED.triggered_by,
			total = EXCLUDED.total,
			sent = EXCLUDED.sent,
			skipped = EXCLUDED.skipped,
			errors = EXCLUDED.errors,
			items = EXCLUDED.items`

	_, err = r.pool.Exec(ctx, query,
		summary.RunID, summary.RunAt, summary.Trigger,
		summary.Total, summary.Sent, summary.Skipped, summary.Errors,
		items,
	)
	if err != nil {
		return fmt.Errorf("save run summary: %w", err)
	}

	return nil
}

// Last returns the most recent summary, or nil when no run has happened.
func (r *RunRepositoryImpl) Last(ctx context.Context) (*model.RunSummary, error) {
	const query = `
		SELECT run_id, run_at, triggered_by, total, sent, skipped, errors, items
		FROM run_summary
		WHERE id = 1`

	summary := &model.RunSummary{}

	var items []byte

	err := r.pool.QueryRow(ctx, query).Scan(
		&summary.RunID, &summary.RunAt, &summary.Trigger,
		&summary.Total, &summary.Sent, &summary.Skipped, &summary.Errors,
		&items,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("query run summary: %w", err)
	}

	if len(items) > 0 {
		if err := json.Unmarshal(items, &summary.Items); err != nil {
			return nil, fmt.Errorf("unmarshal run items: %w", err)
		}
	}

	return summary, nil
}
