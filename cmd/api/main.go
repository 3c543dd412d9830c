// Package main provides the HTTP trigger and operator surface for the relay.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/rueidis"

	"github.com/example/meta-conversions-relay/internal/capi"
	"github.com/example/meta-conversions-relay/internal/config"
	"github.com/example/meta-conversions-relay/internal/lock"
	"github.com/example/meta-conversions-relay/internal/logger"
	"github.com/example/meta-conversions-relay/internal/model"
	"github.com/example/meta-conversions-relay/internal/repository"
	"github.com/example/meta-conversions-relay/internal/secrets"
	"github.com/example/meta-conversions-relay/internal/service"
)

const (
	contentTypeJSON        = "Content-Type"
	applicationJSON        = "application/json"
	failedToEncodeResponse = "failed to encode response"
	backfillLockKey        = "relay:backfill:lock"
	defaultAuditListLimit  = 150
	exitCode               = 1
)

// APIServer handles HTTP requests for relay triggers and operator views.
type APIServer struct {
	relay    service.RelayService
	backfill service.BackfillService
	orders   repository.OrderRepository
	settings repository.SettingsRepository
	audit    repository.AuditRepository
	runs     repository.RunRepository
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(
	relay service.RelayService,
	backfill service.BackfillService,
	orders repository.OrderRepository,
	settings repository.SettingsRepository,
	audit repository.AuditRepository,
	runs repository.RunRepository,
) *APIServer {
	return &APIServer{
		relay:    relay,
		backfill: backfill,
		orders:   orders,
		settings: settings,
		audit:    audit,
		runs:     runs,
	}
}

type orderRequest struct {
	OrderID int64 `json:"order_id"`
	Force   bool  `json:"force"`
}

// OrderCompleted handles POST /orders/completed: the order-completion hook
// delivering an order id into the single-order path.
func (s *APIServer) OrderCompleted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.relay.SendOrder(r.Context(), req.OrderID, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// OrderSend handles POST /orders/send: the diagnostic resend path. force=true
// bypasses the already-sent check; delivery still goes through the same
// mark-on-success logic.
func (s *APIServer) OrderSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.relay.SendOrder(r.Context(), req.OrderID, req.Force)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// OrderTestSend handles POST /orders/test-send: relays a test-payment order
// before completion (test_resend_mode only).
func (s *APIServer) OrderTestSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	result, err := s.relay.SendTestOrder(r.Context(), req.OrderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type trackingRequest struct {
	OrderID int64 `json:"order_id"`
	model.Tracking
}

// OrderTracking handles POST /orders/tracking: attaches browser attribution
// metadata captured at checkout to an order.
func (s *APIServer) OrderTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req trackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.orders.SetTracking(r.Context(), req.OrderID, &req.Tracking); err != nil {
		if errors.Is(err, model.ErrOrderNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type backfillRequest struct {
	Limit int `json:"limit"`
}

// Backfill handles POST /backfill: the manual-invocation entry point with an
// operator-supplied limit. Responds 409 when a run already holds the lease.
func (s *APIServer) Backfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	summary, err := s.backfill.Run(r.Context(), req.Limit, "manual")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if summary.Locked {
		status = http.StatusConflict
	}

	writeJSON(w, status, summary)
}

// LastRun handles GET /runs/last.
func (s *APIServer) LastRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	summary, err := s.runs.Last(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if summary == nil {
		http.Error(w, "no backfill run recorded yet", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// AuditLog handles GET /audit?type=&limit=.
func (s *APIServer) AuditLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultAuditListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			http.Error(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}

		limit = parsed
	}

	entries, err := s.audit.List(r.Context(), r.URL.Query().Get("type"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// AuditClear handles POST /audit/clear.
func (s *APIServer) AuditClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.audit.Clear(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type settingsUpdateRequest struct {
	model.Settings
	AccessToken string `json:"access_token"`
	ClearToken  bool   `json:"clear_token"`
}

// Settings handles GET and PUT /settings. GET masks the token to its last
// four characters; PUT keeps the stored token when the field is blank.
func (s *APIServer) Settings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.Get(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut, http.MethodPost:
		s.updateSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *APIServer) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	current, err := s.settings.Get(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	next := req.Settings

	switch {
	case req.ClearToken:
		next.AccessToken = ""
		next.TokenLast4 = ""
	case req.AccessToken != "":
		next.AccessToken = req.AccessToken
		next.TokenLast4 = last4(req.AccessToken)
	default:
		next.AccessToken = current.AccessToken
		next.TokenLast4 = current.TokenLast4
	}

	if err := s.settings.Save(r.Context(), &next); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, &next)
}

// HealthCheck handles GET /health endpoint for service health check.
func (*APIServer) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, failedToEncodeResponse, http.StatusInternalServerError)
		return
	}
}

func last4(token string) string {
	if len(token) < 4 {
		return token
	}

	return token[len(token)-4:]
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel)
	slog.SetDefault(loggerInstance)

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	codec := secrets.NewAESCodec(cfg.TokenKey)

	orderRepo := repository.NewOrderRepositoryImpl(dbPool)
	settingsRepo := repository.NewSettingsRepositoryImpl(dbPool, codec)
	auditRepo := repository.NewAuditRepositoryImpl(dbPool)
	runRepo := repository.NewRunRepositoryImpl(dbPool)

	client := capi.NewClient(auditRepo)
	relayService := service.NewRelayServiceImpl(orderRepo, settingsRepo, auditRepo, client)
	backfillLock := lock.NewRedisLock(redisClient, backfillLockKey)
	backfillService := service.NewBackfillServiceImpl(
		orderRepo, settingsRepo, auditRepo, runRepo,
		relayService, backfillLock, cfg.LockTTL, cfg.PaceDelay,
	)

	server := NewAPIServer(relayService, backfillService, orderRepo, settingsRepo, auditRepo, runRepo)

	http.HandleFunc("/orders/completed", server.OrderCompleted)
	http.HandleFunc("/orders/send", server.OrderSend)
	http.HandleFunc("/orders/test-send", server.OrderTestSend)
	http.HandleFunc("/orders/tracking", server.OrderTracking)
	http.HandleFunc("/backfill", server.Backfill)
	http.HandleFunc("/runs/last", server.LastRun)
	http.HandleFunc("/audit", server.AuditLog)
	http.HandleFunc("/audit/clear", server.AuditClear)
	http.HandleFunc("/settings", server.Settings)
	http.HandleFunc("/health", server.HealthCheck)
	http.Handle("/metrics", promhttp.Handler())

	slog.Info("starting API server", slog.String("service", "api"), slog.String("port", cfg.Port))

	if err := http.ListenAndServe(":"+cfg.Port, nil); err != nil {
		slog.Error("failed to start server", slog.String("error", err.Error()))
		return
	}
}
