package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookServer accepts presence readings over HTTP:
// POST /presence with a payload ParsePayload understands, GET /presence for
// the current value.
type WebhookServer struct {
	addr       string
	state      *Switch
	httpServer *http.Server
}

// NewWebhookServer creates a webhook presence source.
func NewWebhookServer(host string, port int, initial bool, expireAfter time.Duration) *WebhookServer {
	return &WebhookServer{
		addr:  fmt.Sprintf("%s:%d", host, port),
		state: NewSwitch(initial, expireAfter),
	}
}

// Present implements control.Presence.
func (s *WebhookServer) Present(ctx context.Context) bool {
	return s.state.Present(ctx)
}

// Handler returns the HTTP handler serving /presence.
func (s *WebhookServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/presence", s.handlePresence)
	return mux
}

// Listen binds the server address. Binding separately from Serve lets a
// taken port fail startup instead of a background goroutine.
func (s *WebhookServer) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("presence webhook listen on %s: %w", s.addr, err)
	}
	return ln, nil
}

// Serve handles requests on ln until the context is cancelled.
func (s *WebhookServer) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Handler: s.Handler(),
	}

	log.Info().Str("addr", ln.Addr().String()).Msg("Starting presence webhook server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Presence webhook server shutdown error")
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run binds and serves. It blocks until the context is cancelled.
func (s *WebhookServer) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

func (s *WebhookServer) handlePresence(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeState(r.Context(), w)
	case http.MethodPost, http.MethodPut:
		body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
		defer r.Body.Close()
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		present, err := ParsePayload(body)
		if err != nil {
			log.Warn().Err(err).Msg("Rejected presence webhook")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.state.Set(present)
		log.Debug().Bool("present", present).Msg("Presence updated via webhook")
		s.writeState(r.Context(), w)
	default:
		w.Header().Set("Allow", "GET, POST, PUT")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *WebhookServer) writeState(ctx context.Context, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]interface{}{
		"present":    s.state.Present(ctx),
		"updated_at": s.state.UpdatedAt().Format(time.RFC3339),
	})
	if err != nil {
		log.Debug().Err(err).Msg("Failed to write presence response")
	}
}
