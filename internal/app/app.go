package app

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daylightd/internal/config"
)

// App owns the daemon's services from INIT until shutdown.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc

	mu    sync.Mutex
	fatal error
}

// New wires the services. Nothing outside the process is contacted yet.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		services: services,
	}, nil
}

// Start takes the daemon through INIT: schedules, bridge inventory, presence
// and the first sun-time fetch. Any error here is fatal. Once Start returns
// the control loop is RUNNING or IDLE in the background.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.services.Start(a.ctx, a.fail); err != nil {
		a.cancel()
		return err
	}

	log.Info().
		Stringer("state", a.services.Loop.State()).
		Str("provider", a.cfg.Weather.Provider).
		Str("presence", a.cfg.Presence.Source).
		Msg("daylightd running")
	return nil
}

// fail records the first fatal error from a background service and starts
// shutdown.
func (a *App) fail(err error) {
	a.mu.Lock()
	if a.fatal == nil {
		a.fatal = err
	}
	a.mu.Unlock()

	log.Error().Err(err).Msg("Fatal error, initiating shutdown")
	if a.cancel != nil {
		a.cancel()
	}
}

// Err returns the error that stopped the daemon, or nil after a signal.
func (a *App) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fatal
}

// Wait blocks until a signal or a fatal error stops the daemon.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// Stop cancels the loop and background servers, waits for them up to
// shutdown_timeout and closes the database.
func (a *App) Stop() error {
	log.Info().Msg("Shutting down...")

	if a.cancel != nil {
		a.cancel()
	}
	if a.services == nil {
		return nil
	}
	return a.services.Stop()
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
