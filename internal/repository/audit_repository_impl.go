package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/meta-conversions-relay/internal/model"
)

// AuditRepositoryImpl implements AuditRepository using PostgreSQL.
type AuditRepositoryImpl struct {
	pool *pgxpool.Pool
}

// NewAuditRepositoryImpl creates a new AuditRepository implementation.
func NewAuditRepositoryImpl(pool *pgxpool.Pool) AuditRepository {
	return &AuditRepositoryImpl{pool: pool}
}

// Append inserts one entry, then trims the log to maxEntries by dropping the
// oldest rows. Messages and context are truncated before storage.
func (r *AuditRepositoryImpl) Append(ctx context.Context, entry *model.AuditEntry, maxEntries int) error {
	if maxEntries < model.MinLogMaxEntries {
		maxEntries = model.MinLogMaxEntries
	}

	const insert = `
		INSERT INTO audit_log (logged_at, level, message, context, entry_type)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, insert,
		entry.Time, entry.Level,
		model.Truncate(entry.Message, 1000),
		model.Truncate(entry.Context, 1000),
		entry.Type,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}

	// Subquery yields the id of the maxEntries-th newest row; everything
	// older goes. No-op while the log is under the cap.
	const trim = `
		DELETE FROM audit_log
		WHERE id < (
			SELECT id FROM audit_log
			ORDER BY id DESC
			OFFSET $1 - 1 LIMIT 1
		)`

	if _, err := r.pool.Exec(ctx, trim, maxEntries); err != nil {
		return fmt.Errorf("trim audit log: %w", err)
	}

	return nil
}

// List returns the newest entries first, optionally filtered by entry type.
func (r *AuditRepositoryImpl) List(ctx context.Context, entryType string, limit int) ([]*model.AuditEntry, error) {
	const query = `
		SELECT logged_at, level, message, context, entry_type
		FROM audit_log
		WHERE ($1 = '' OR entry_type = $1)
		ORDER BY id DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, entryType, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*model.AuditEntry

	for rows.Next() {
		entry := &model.AuditEntry{}
		if err := rows.Scan(&entry.Time, &entry.Level, &entry.Message, &entry.Context, &entry.Type); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Clear drops the whole log.
func (r *AuditRepositoryImpl) Clear(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM audit_log`); err != nil {
		return fmt.Errorf("clear audit log: %w", err)
	}

	return nil
}
