package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"leadswiper/internal/api"
	"leadswiper/internal/config"
	"leadswiper/internal/logging"
	"leadswiper/internal/metrics"
	"leadswiper/internal/queue"
)

const maxBodyBytes = 1 << 20

type apiServer struct {
	bind            string
	logger          *slog.Logger
	store           queue.LeaseStore
	lease           time.Duration
	teardownTimeout time.Duration
	now             func() time.Time
	registry        *prometheus.Registry
	handler         http.Handler

	background sync.WaitGroup
	mu         sync.Mutex
	listener   net.Listener
	server     *http.Server
}

func newAPIServer(cfg *config.Config, store queue.LeaseStore, logger *slog.Logger, registry *prometheus.Registry, now func() time.Time) *apiServer {
	if now == nil {
		now = time.Now
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	srv := &apiServer{
		bind:            strings.TrimSpace(cfg.API.Bind),
		logger:          logger,
		store:           store,
		lease:           cfg.LeaseDuration(),
		teardownTimeout: cfg.TeardownTimeout(),
		now:             now,
		registry:        registry,
	}
	httpMetrics := metrics.NewHTTP(registry)

	mux := http.NewServeMux()
	route := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, httpMetrics.Instrument(name, authMiddleware(cfg.API.Token, srv.withRequestID(h))))
	}
	route("POST /api/claims/try", "claims_try", srv.handleTryClaim)
	route("POST /api/claims/renew", "claims_renew", srv.handleRenew)
	route("POST /api/claims/release", "claims_release", srv.handleRelease)
	route("POST /api/claims/release-all", "claims_release_all", srv.handleReleaseAll)
	route("GET /api/claims", "claims_list", srv.handleClaims)
	route("POST /api/leads/eligible", "leads_eligible", srv.handleEligible)
	route("GET /api/leads", "leads_list", srv.handleLeads)
	route("POST /api/leads", "leads_upsert", srv.handleUpsert)
	route("GET /api/leads/{id}", "lead_get", srv.handleLead)
	route("POST /api/leads/{id}/status", "lead_status", srv.handleSetStatus)
	route("POST /api/leads/{id}/contact", "lead_contact", srv.handleContact)
	route("POST /api/leads/{id}/notes", "lead_notes", srv.handleNotes)
	route("GET /api/stats", "stats", srv.handleStats)
	mux.Handle("GET /api/health", httpMetrics.Instrument("health", http.HandlerFunc(srv.handleHealth)))
	mux.Handle("GET /metrics", metrics.Handler(registry))

	srv.handler = mux
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
	s.background.Wait()
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	}
}

// window maps a client's (now, cutoff) pair onto the gateway clock, keeping
// the lease length the client asked for. A missing client window falls back
// to the gateway's configured lease.
func (s *apiServer) window(clientNow, clientCutoff string) (time.Time, time.Time, error) {
	now := s.now().UTC()
	cn, err := api.ParseTime(clientNow)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	cc, err := api.ParseTime(clientCutoff)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	lease := s.lease
	if !cn.IsZero() && !cc.IsZero() {
		lease = cn.Sub(cc)
	}
	if lease < 0 {
		return time.Time{}, time.Time{}, errors.New("cutoff is after now")
	}
	return now, now.Add(-lease), nil
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *apiServer) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, api.CodeNotFound, err.Error())
	case errors.Is(err, queue.ErrInvalidStatus):
		s.writeError(w, r, http.StatusBadRequest, api.CodeInvalidStatus, err.Error())
	default:
		logging.WithContext(r.Context(), s.log()).Error("store call failed",
			logging.String("path", r.URL.Path), logging.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "", err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(payload); err != nil {
		s.log().Warn("api response encode failed", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, _ *http.Request, status int, code, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func (s *apiServer) log() *slog.Logger {
	if s == nil || s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
}
