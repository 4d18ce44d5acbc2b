package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daylightd/internal/config"
	"github.com/dokzlo13/daylightd/internal/control"
	"github.com/dokzlo13/daylightd/internal/ledger"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// StatusProvider exposes the control loop's state.
type StatusProvider interface {
	Status() control.Status
}

// EventLog is the read side of the ledger.
type EventLog interface {
	RunID() string
	Recent(limit int) ([]*ledger.Entry, error)
	GetByType(eventType ledger.EventType, limit int) ([]*ledger.Entry, error)
}

// HealthService provides HTTP health check endpoints.
type HealthService struct {
	cfg    *config.Config
	events EventLog
	server *http.Server

	mu     sync.RWMutex
	status StatusProvider
}

// NewHealthService creates a new HealthService. Until SetStatus is called
// /ready reports not ready. events may be nil, then /events answers 404.
func NewHealthService(cfg *config.Config, events EventLog) *HealthService {
	return &HealthService{
		cfg:    cfg,
		events: events,
	}
}

// SetStatus attaches the control loop once it exists.
func (s *HealthService) SetStatus(p StatusProvider) {
	s.mu.Lock()
	s.status = p
	s.mu.Unlock()
}

func (s *HealthService) provider() StatusProvider {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Start begins the health check server if enabled.
func (s *HealthService) Start(ctx context.Context) {
	if !s.cfg.Healthcheck.Enabled {
		return
	}

	go s.run(ctx)
}

// Handler serves /health, /ready, /status and /events.
func (s *HealthService) Handler() http.Handler {
	mux := http.NewServeMux()

	// Liveness: the process is up
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	// Readiness: past INIT with usable sun times
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		p := s.provider()
		if p == nil || !p.Status().Ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		p := s.provider()
		if p == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"state": control.StateInit.String()})
			return
		}
		writeJSON(w, http.StatusOK, p.Status())
	})

	// Ledger history: ?type=<event type>&limit=<n>
	mux.HandleFunc("/events", s.handleEvents)

	return mux
}

func (s *HealthService) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.NotFound(w, r)
		return
	}

	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxEventLimit)
	}

	var (
		entries []*ledger.Entry
		err     error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		entries, err = s.events.GetByType(ledger.EventType(t), limit)
	} else {
		entries, err = s.events.Recent(limit)
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to read ledger")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "ledger unavailable"})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": s.events.RunID(),
		"events": entries,
	})
}

func (s *HealthService) run(ctx context.Context) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Healthcheck.Host, s.cfg.Healthcheck.Port)

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", addr).Msg("Starting health check server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Health check server shutdown error")
		}
	}()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Health check server error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}
