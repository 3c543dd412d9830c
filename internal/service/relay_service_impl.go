package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/meta-conversions-relay/internal/capi"
	"github.com/example/meta-conversions-relay/internal/metrics"
	"github.com/example/meta-conversions-relay/internal/model"
	"github.com/example/meta-conversions-relay/internal/repository"
)

// RelayServiceImpl implements RelayService. Settings are loaded fresh on
// every call so operator changes apply immediately.
type RelayServiceImpl struct {
	orders   repository.OrderRepository
	settings repository.SettingsRepository
	audit    repository.AuditRepository
	sender   Sender
	now      func() time.Time
}

// NewRelayServiceImpl creates a new RelayService implementation.
func NewRelayServiceImpl(
	orders repository.OrderRepository,
	settings repository.SettingsRepository,
	audit repository.AuditRepository,
	sender Sender,
) *RelayServiceImpl {
	return &RelayServiceImpl{
		orders:   orders,
		settings: settings,
		audit:    audit,
		sender:   sender,
		now:      time.Now,
	}
}

// SendOrder runs the pipeline for one order: skip-if-sent, config check,
// build, deliver, mark. Business failures come back as a SendResult; only
// infrastructure failures return an error.
func (s *RelayServiceImpl) SendOrder(ctx context.Context, orderID int64, force bool) (*model.SendResult, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	return s.sendWithSettings(ctx, orderID, force, settings)
}

// SendTestOrder relays an order that has not reached completed status yet,
// for verifying configuration against a live shop. Only orders paid with the
// configured test payment method qualify, and only while test_resend_mode is
// on.
func (s *RelayServiceImpl) SendTestOrder(ctx context.Context, orderID int64) (*model.SendResult, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if !settings.TestResendMode {
		return &model.SendResult{Status: model.StatusSkipped, Message: "test_resend_disabled"}, nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			s.auditError(ctx, settings, fmt.Sprintf("test resend: order %d not found", orderID))
			return &model.SendResult{Status: model.StatusError, Message: model.MsgOrderNotFound}, nil
		}

		return nil, err
	}

	if order.PaymentMethod != settings.TestPaymentMethod {
		return &model.SendResult{Status: model.StatusSkipped, Message: "payment_method_mismatch"}, nil
	}

	slog.Info("test resend mode: relaying order before completion",
		slog.Int64("order_id", orderID),
		slog.String("status", order.Status),
	)

	return s.sendWithSettings(ctx, orderID, false, settings)
}

func (s *RelayServiceImpl) sendWithSettings(ctx context.Context, orderID int64, force bool, settings *model.Settings) (*model.SendResult, error) {
	if !force {
		sent, err := s.orders.IsSent(ctx, orderID)
		if err != nil {
			if errors.Is(err, model.ErrOrderNotFound) {
				return s.failure(ctx, settings, orderID, model.MsgOrderNotFound,
					fmt.Sprintf("order %d not found", orderID)), nil
			}

			return nil, fmt.Errorf("check sent marker: %w", err)
		}

		if sent {
			slog.Debug("order already sent, skipping", slog.Int64("order_id", orderID))
			metrics.OrdersProcessed.WithLabelValues(string(model.StatusSkipped)).Inc()

			return &model.SendResult{Status: model.StatusSkipped, Message: model.MsgAlreadySent}, nil
		}
	}

	if settings.PixelID == "" || settings.AccessToken == "" {
		return s.failure(ctx, settings, orderID, model.MsgMissingConfig,
			fmt.Sprintf("missing pixel id or access token, order %d skipped", orderID)), nil
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			return s.failure(ctx, settings, orderID, model.MsgOrderNotFound,
				fmt.Sprintf("order %d not found", orderID)), nil
		}

		return nil, fmt.Errorf("load order %d: %w", orderID, err)
	}

	event, err := capi.BuildEvent(order, settings, s.now())
	if err != nil {
		if errors.Is(err, model.ErrMissingEmail) {
			return s.failure(ctx, settings, orderID, model.MsgMissingEmail,
				fmt.Sprintf("order %d has no billing email, skipping", orderID)), nil
		}

		return nil, fmt.Errorf("build event for order %d: %w", orderID, err)
	}

	slog.Debug("sending event",
		slog.String("event_name", event.EventName),
		slog.Int64("order_id", orderID),
	)

	outcome := s.sender.Send(ctx, event, settings)
	if outcome.Status != model.StatusSent {
		metrics.OrdersProcessed.WithLabelValues(string(model.StatusError)).Inc()
		slog.Error("delivery failed",
			slog.Int64("order_id", orderID),
			slog.String("message", outcome.Message),
		)

		return &model.SendResult{Status: model.StatusError, Message: outcome.Message}, nil
	}

	if err := s.orders.MarkSent(ctx, orderID, s.now()); err != nil {
		// The event is already delivered; the unmarked order will be resent
		// and deduped by event id on the receiving side.
		slog.Error("failed to mark order sent",
			slog.Int64("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	metrics.OrdersProcessed.WithLabelValues(string(model.StatusSent)).Inc()

	return &model.SendResult{Status: model.StatusSent, Message: outcome.Message}, nil
}

// failure records an operator-visible error outcome for one order.
func (s *RelayServiceImpl) failure(ctx context.Context, settings *model.Settings, orderID int64, message, detail string) *model.SendResult {
	slog.Error(detail, slog.Int64("order_id", orderID))
	metrics.OrdersProcessed.WithLabelValues(string(model.StatusError)).Inc()
	s.auditError(ctx, settings, detail)

	return &model.SendResult{Status: model.StatusError, Message: message}
}

func (s *RelayServiceImpl) auditError(ctx context.Context, settings *model.Settings, message string) {
	entry := &model.AuditEntry{
		Time:    s.now(),
		Level:   "error",
		Message: message,
		Type:    model.EntryError,
	}

	if err := s.audit.Append(ctx, entry, settings.LogMaxEntries); err != nil {
		slog.Error("failed to append audit entry", slog.String("error", err.Error()))
	}
}
