// Package httpserver exposes the admin console API, the doctor portal auth
// endpoints, the live conversation feed, and the ops endpoints.
package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"telemed-admin/internal/auth"
	"telemed-admin/internal/botengine"
	"telemed-admin/internal/chat"
	"telemed-admin/internal/dashboard"
	"telemed-admin/internal/feed"
	"telemed-admin/internal/metrics"
	"telemed-admin/internal/repo"
	"telemed-admin/internal/triage"
)

// BookingPaymentClient triggers invoice delivery after a booking settles.
type BookingPaymentClient interface {
	CompletePayment(ctx context.Context, req botengine.PaymentCompletion) error
}

// BookingNotifier alerts the doctor about a paid booking.
type BookingNotifier interface {
	NotifyBooking(ctx context.Context, bookingID string) error
}

// Dependencies groups the services the handlers dispatch to.
type Dependencies struct {
	Store     repo.Store
	Dashboard *dashboard.Service
	Triage    *triage.Service
	Auth      *auth.Service
	Chat      *chat.Service
	Hub       *feed.Hub
	BotEngine BookingPaymentClient
	Notifier  BookingNotifier
}

// Server wraps an http.Server with the console routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	basePath   string
}

// New creates the HTTP server listening on addr.
func New(addr string, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies, basePath string) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		deps:     deps,
		basePath: normaliseBasePath(basePath),
	}

	handler := mountWithBasePath(server.basePath, server.routes())

	server.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Admin console API
	mux.Handle("GET /api/stats/overview", s.instrument("stats_overview", s.handleStatsOverview))
	mux.Handle("GET /api/stats/series", s.instrument("stats_series", s.handleStatsSeries))
	mux.Handle("GET /api/users", s.instrument("users_list", s.handleListUsers))
	mux.Handle("GET /api/users/{id}", s.instrument("users_get", s.handleGetUser))
	mux.Handle("GET /api/users/{id}/sessions", s.instrument("user_sessions", s.handleUserSessions))
	mux.Handle("POST /api/users/{id}/kyc", s.instrument("user_kyc", s.handleUpsertKYC))
	mux.Handle("GET /api/sessions/{id}/messages", s.instrument("session_messages", s.handleSessionMessages))
	mux.Handle("POST /api/sessions/{id}/end", s.instrument("session_end", s.handleEndSession))
	mux.Handle("POST /api/sessions/{id}/messages", s.instrument("session_send", s.handleSendMessage))
	mux.Handle("GET /api/sessions/{id}/feed", s.instrument("session_feed", s.handleSessionFeed))
	mux.Handle("GET /api/escalations", s.instrument("escalations_list", s.handleListEscalations))
	mux.Handle("POST /api/escalations", s.instrument("escalation_create", s.handleCreateEscalation))
	mux.Handle("PUT /api/escalations/{id}/status", s.instrument("escalation_status", s.handleEscalationStatus))
	mux.Handle("GET /api/doctors", s.instrument("doctors_list", s.handleListDoctors))
	mux.Handle("PUT /api/doctors/{id}/approve", s.instrument("doctor_approve", s.handleApproveDoctor))
	mux.Handle("GET /api/doctors/{id}/availability", s.instrument("doctor_availability", s.handleDoctorAvailability))
	mux.Handle("PUT /api/doctors/{id}/availability", s.instrument("doctor_availability_set", s.handleSetDoctorAvailability))
	mux.Handle("POST /api/doctors/register", s.instrument("doctor_register", s.handleRegisterDoctor))
	mux.Handle("GET /api/bookings", s.instrument("bookings_list", s.handleListBookings))
	mux.Handle("GET /api/bookings/{id}", s.instrument("booking_get", s.handleGetBooking))
	mux.Handle("POST /api/bookings/{id}/paid", s.instrument("booking_paid", s.handleBookingPaid))
	mux.Handle("GET /api/pharmacies", s.instrument("pharmacies_list", s.handleListPharmacies))
	mux.Handle("POST /api/pharmacies", s.instrument("pharmacy_create", s.handleCreatePharmacy))
	mux.Handle("PUT /api/pharmacies/{id}", s.instrument("pharmacy_update", s.handleUpdatePharmacy))

	// Doctor portal
	mux.Handle("POST /auth/doctor/check-phone", s.instrument("auth_check_phone", s.handleCheckPhone))
	mux.Handle("POST /auth/doctor/setup-password", s.instrument("auth_setup_password", s.handleSetupPassword))
	mux.Handle("POST /auth/doctor/login", s.instrument("auth_login", s.handleLogin))
	if s.deps.Auth != nil {
		mux.Handle("GET /doctor/me", s.deps.Auth.Middleware(s.instrument("doctor_me", s.handleDoctorMe)))
	}

	return mux
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument records request counts and latency per route.
func (s *Server) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(route, fmt.Sprintf("%dxx", recorder.status/100)).Inc()
			s.metrics.HTTPLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps store errors to HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeBody(r *http.Request, dest any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
