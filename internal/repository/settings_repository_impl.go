package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/meta-conversions-relay/internal/model"
	"github.com/example/meta-conversions-relay/internal/secrets"
)

// SettingsRepositoryImpl implements SettingsRepository using PostgreSQL. The
// access token is sealed through the codec on write and opened on read; it is
// held in plaintext only inside a loaded Settings value.
type SettingsRepositoryImpl struct {
	pool  *pgxpool.Pool
	codec secrets.Codec
}

// NewSettingsRepositoryImpl creates a new SettingsRepository implementation.
func NewSettingsRepositoryImpl(pool *pgxpool.Pool, codec secrets.Codec) SettingsRepository {
	return &SettingsRepositoryImpl{pool: pool, codec: codec}
}

// Get reads the settings row fresh. When none exists yet, defaults are
// returned so the relay fails with missing_config rather than a query error.
func (r *SettingsRepositoryImpl) Get(ctx context.Context) (*model.Settings, error) {
	const query = `
		SELECT pixel_id, access_token, token_last4, api_version, event_name,
		       minimal_data, eu_compliant, send_source_url, test_events,
		       test_event_code, test_resend_mode, test_payment_method,
		       log_payload, debug_log, cron_enabled, cron_batch_size,
		       log_max_entries
		FROM relay_settings
		WHERE id = 1`

	settings := &model.Settings{}

	var sealedToken string

	err := r.pool.QueryRow(ctx, query).Scan(
		&settings.PixelID, &sealedToken, &settings.TokenLast4,
		&settings.APIVersion, &settings.EventName,
		&settings.MinimalData, &settings.EUCompliant, &settings.SendSourceURL,
		&settings.TestEvents, &settings.TestEventCode,
		&settings.TestResendMode, &settings.TestPaymentMethod,
		&settings.LogPayload, &settings.DebugLog,
		&settings.CronEnabled, &settings.CronBatchSize, &settings.LogMaxEntries,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.DefaultSettings(), nil
		}

		return nil, fmt.Errorf("query settings: %w", err)
	}

	token, err := r.codec.Open(sealedToken)
	if err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}

	settings.AccessToken = token
	settings.Normalize()

	return settings, nil
}

// Save normalizes and upserts the settings row, sealing the token.
func (r *SettingsRepositoryImpl) Save(ctx context.Context, settings *model.Settings) error {
	settings.Normalize()

	sealedToken, err := r.codec.Seal(settings.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}

	const query = `
		INSERT INTO relay_settings (
			id, pixel_id, access_token, token_last4, api_version, event_name,
			minimal_data, eu_compliant, send_source_url, test_events,
			test_event_code, test_resend_mode, test_payment_method,
			log_payload, debug_log, cron_enabled, cron_batch_size,
			log_max_entries, updated_at
		) VALUES (
			1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, now()
		)
		ON CONFLICT (id) DO UPDATE SET
			pixel_id = EXCLUDED.pixel_id,
			access_token = EXCLUDED.access_token,
			token_last4 = EXCLUDED.token_last4,
			api_version = EXCLUDED.api_version,
			event_name = EXCLUDED.event_name,
			minimal_data = EXCLUDED.minimal_data,
			eu_compliant = EXCLUDED.eu_compliant,
			send_source_url = EXCLUDED.send_source_url,
			test_events = EXCLUDED.test_events,
			test_event_code = EXCLUDED.test_event_code,
			test_resend_mode = EXCLUDED.test_resend_mode,
			test_payment_method = EXCLUDED.test_payment_method,
			log_payload = EXCLUDED.log_payload,
			debug_log = EXCLUDED.debug_log,
			cron_enabled = EXCLUDED.cron_enabled,
			cron_batch_size = EXCLUDED.cron_batch_size,
			log_max_entries = EXCLUDED.log_max_entries,
			updated_at = EXCLUDED.updated_at`

	_, err = r.pool.Exec(ctx, query,
		settings.PixelID, sealedToken, settings.TokenLast4,
		settings.APIVersion, settings.EventName,
		settings.MinimalData, settings.EUCompliant, settings.SendSourceURL,
		settings.TestEvents, settings.TestEventCode,
		settings.TestResendMode, settings.TestPaymentMethod,
		settings.LogPayload, settings.DebugLog,
		settings.CronEnabled, settings.CronBatchSize, settings.LogMaxEntries,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	return nil
}
