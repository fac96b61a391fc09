package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/marine-alerts/internal/domain"
	"github.com/couchcryptid/marine-alerts/internal/scan"
	"github.com/couchcryptid/marine-alerts/internal/store"
)

// notifyTimeout bounds an on-demand notification: weather, bulletins and
// the classifier are fetched before anything is sent.
const notifyTimeout = 75 * time.Second

// Orchestrator is the part of the scan loop the server reports on and triggers.
type Orchestrator interface {
	CheckReadiness(ctx context.Context) error
	Status() scan.Status
	NotifyNow(ctx context.Context, locationID string) error
	SendTest(ctx context.Context, recipient string) error
}

// AlertLog is the durable record of threshold alerts.
type AlertLog interface {
	ListAlerts(ctx context.Context, userID int64, limit int) ([]domain.DispatchedAlert, error)
	MarkRead(ctx context.Context, alertID string) error
}

// Server exposes health, readiness, status and metrics HTTP endpoints, plus
// on-demand notifications and the alert history.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the operational routes and the
// notification and alert history routes.
func NewServer(addr string, orch Orchestrator, alerts AlertLog, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: notifyTimeout + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(orch))
	mux.HandleFunc("GET /status", handleStatus(orch))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /test/{location_id}", s.handleNotifyNow(orch))
	mux.HandleFunc("POST /test-email", s.handleSendTest(orch))
	mux.HandleFunc("GET /users/{user_id}/alerts", s.handleListAlerts(alerts))
	mux.HandleFunc("POST /alerts/{alert_id}/read", s.handleMarkRead(alerts))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func handleStatus(orch Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		sharedobs.WriteJSON(w, http.StatusOK, orch.Status())
	}
}

// handleNotifyNow sends the owner of a saved location a weather update now.
func (s *Server) handleNotifyNow(orch Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), notifyTimeout)
		defer cancel()

		id := r.PathValue("location_id")
		if err := orch.NotifyNow(ctx, id); err != nil {
			s.writeError(w, "notify now failed", err, "location", id)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent", "location_id": id})
	}
}

type testEmailRequest struct {
	Email string `json:"email"`
}

// handleSendTest sends a sample weather update to the given address.
func (s *Server) handleSendTest(orch Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req testEmailRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil || req.Email == "" {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "request body must be {\"email\": \"...\"}"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), notifyTimeout)
		defer cancel()

		if err := orch.SendTest(ctx, req.Email); err != nil {
			s.writeError(w, "test notification failed", err)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"status": "sent", "email": req.Email})
	}
}

// handleListAlerts returns a user's threshold alerts, newest first.
func (s *Server) handleListAlerts(alerts AlertLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
		if err != nil {
			sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id must be an integer"})
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if limit, err = strconv.Atoi(raw); err != nil {
				sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
				return
			}
		}

		list, err := alerts.ListAlerts(r.Context(), userID, limit)
		if err != nil {
			s.writeError(w, "list alerts failed", err, "user_id", userID)
			return
		}
		if list == nil {
			list = []domain.DispatchedAlert{}
		}
		sharedobs.WriteJSON(w, http.StatusOK, list)
	}
}

func (s *Server) handleMarkRead(alerts AlertLog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("alert_id")
		if err := alerts.MarkRead(r.Context(), id); err != nil {
			s.writeError(w, "mark read failed", err, "alert", id)
			return
		}
		sharedobs.WriteJSON(w, http.StatusOK, map[string]string{"status": "read", "alert_id": id})
	}
}

// writeError maps engine errors onto HTTP statuses. Server-side failures are
// logged; client errors are only reported back.
func (s *Server) writeError(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scan.ErrOwnerInactive):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrDataUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrDispatchFailure):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, append(attrs, "error", err)...)
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
