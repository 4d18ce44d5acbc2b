// Package control runs the daylight state machine: it keeps every light on
// its schedule while someone is present and switches them off when nobody is.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/daylightd/internal/cycle"
	"github.com/dokzlo13/daylightd/internal/ledger"
	"github.com/dokzlo13/daylightd/internal/schedule"
)

const (
	DefaultTickInterval     = 15 * time.Second
	DefaultIdlePollInterval = 1500 * time.Millisecond
)

// Driver applies a setting to one device.
type Driver interface {
	Push(ctx context.Context, device string, s schedule.LightSetting) error
}

// Presence reports whether anyone is around.
type Presence interface {
	Present(ctx context.Context) bool
}

// Recorder keeps a history of what the loop did. *ledger.Ledger satisfies it.
type Recorder interface {
	Append(eventType ledger.EventType, device string, payload map[string]any) error
}

// Options tunes loop timing.
type Options struct {
	TickInterval     time.Duration
	IdlePollInterval time.Duration
	PushTimeout      time.Duration // 0 = bounded only by the loop context
}

// Status is a snapshot of the loop for the health server.
type Status struct {
	State     State        `json:"state"`
	Anchor    cycle.Anchor `json:"anchor"`
	LastTick  time.Time    `json:"last_tick,omitempty"`
	LastPhase float64      `json:"last_phase"`
	Devices   int          `json:"devices"`
	Failures  int          `json:"last_tick_failures"`
}

// Ready reports whether the loop is past INIT with a usable anchor.
func (s Status) Ready() bool {
	return s.State != StateInit && s.Anchor.Ready()
}

type deviceSetting struct {
	device  string
	setting schedule.LightSetting
}

// Loop owns the cycle clock and the device list. Step and Run must be called
// from a single goroutine; Status may be called from any.
type Loop struct {
	clock    *cycle.Clock
	router   *schedule.Router
	driver   Driver
	presence Presence
	recorder Recorder
	opts     Options
	now      func() time.Time

	mu        sync.RWMutex
	state     State
	lastTick  time.Time
	lastPhase float64
	failures  int
}

// New creates a loop in INIT. recorder may be nil.
func New(clock *cycle.Clock, router *schedule.Router, driver Driver, presence Presence, recorder Recorder, opts Options) *Loop {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.IdlePollInterval <= 0 {
		opts.IdlePollInterval = DefaultIdlePollInterval
	}
	return &Loop{
		clock:    clock,
		router:   router,
		driver:   driver,
		presence: presence,
		recorder: recorder,
		opts:     opts,
		now:      time.Now,
		state:    StateInit,
	}
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Status returns a snapshot of the loop.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{
		State:     l.state,
		Anchor:    l.clock.Anchor(),
		LastTick:  l.lastTick,
		LastPhase: l.lastPhase,
		Devices:   len(l.router.Devices()),
		Failures:  l.failures,
	}
}

// Init performs the first sun-time fetch and moves the loop to RUNNING.
// A failure here is fatal for the process.
func (l *Loop) Init(ctx context.Context) error {
	if l.State() != StateInit {
		return nil
	}

	anchor, err := l.clock.Refresh(ctx, l.now())
	if err != nil {
		return fmt.Errorf("initial sun time fetch: %w", err)
	}
	l.recordAnchor(anchor)

	l.setState(StateRunning)
	return nil
}

// Step runs one iteration of the state machine and returns how long to wait
// before the next one.
func (l *Loop) Step(ctx context.Context) (time.Duration, error) {
	current := l.State()
	if current == StateInit {
		return 0, ErrNotInitialized
	}

	next := Next(current, l.presence.Present(ctx))
	if next != current {
		l.setState(next)
		if next == StateIdle {
			l.switchOff(ctx)
		}
	}

	if next == StateIdle {
		return l.opts.IdlePollInterval, nil
	}
	l.tick(ctx)
	return l.opts.TickInterval, nil
}

// Run calls Step until ctx is cancelled. Waits between steps end early on
// cancellation.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().
		Dur("tick_interval", l.opts.TickInterval).
		Dur("idle_poll_interval", l.opts.IdlePollInterval).
		Int("devices", len(l.router.Devices())).
		Msg("Control loop started")

	for {
		wait, err := l.Step(ctx)
		if err != nil {
			return err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Control loop stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	now := l.now()

	attempted, err := l.clock.RefreshIfNeeded(ctx, now)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("Sun time refresh failed, keeping previous anchor")
		l.record(ledger.EventRefreshFailed, "", map[string]any{"error": err.Error()})
	case attempted:
		l.recordAnchor(l.clock.Anchor())
	}

	anchor := l.clock.Anchor()
	if !anchor.Ready() {
		log.Warn().Msg("Sun times not available yet, skipping tick")
		return
	}

	phase := cycle.PhaseOf(now, anchor)
	settings := l.resolveAll(phase)
	failures := l.pushAll(ctx, settings)

	l.mu.Lock()
	l.lastTick = now
	l.lastPhase = phase
	l.failures = failures
	l.mu.Unlock()

	on := 0
	for _, ds := range settings {
		if ds.setting.On {
			on++
		}
	}
	log.Debug().
		Time("time", now).
		Float64("phase", phase).
		Int("on", on).
		Int("devices", len(settings)).
		Int("failures", failures).
		Msg("Tick")
}

// resolveAll computes every device's setting before anything is pushed.
func (l *Loop) resolveAll(phase float64) []deviceSetting {
	devices := l.router.Devices()
	settings := make([]deviceSetting, 0, len(devices))
	for _, d := range devices {
		t, ok := l.router.TableFor(d)
		if !ok {
			continue
		}
		settings = append(settings, deviceSetting{device: d, setting: schedule.Resolve(phase, t)})
	}
	return settings
}

func (l *Loop) switchOff(ctx context.Context) {
	devices := l.router.Devices()
	settings := make([]deviceSetting, 0, len(devices))
	for _, d := range devices {
		settings = append(settings, deviceSetting{device: d, setting: schedule.Off()})
	}
	failures := l.pushAll(ctx, settings)

	l.mu.Lock()
	l.failures = failures
	l.mu.Unlock()

	log.Info().Int("devices", len(settings)).Int("failures", failures).Msg("Nobody present, lights switched off")
}

// pushAll pushes settings concurrently and waits for all of them. Failures
// are logged and recorded per device; the count is returned.
func (l *Loop) pushAll(ctx context.Context, settings []deviceSetting) int {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures int
	)

	for _, ds := range settings {
		wg.Add(1)
		go func(ds deviceSetting) {
			defer wg.Done()

			pushCtx := ctx
			if l.opts.PushTimeout > 0 {
				var cancel context.CancelFunc
				pushCtx, cancel = context.WithTimeout(ctx, l.opts.PushTimeout)
				defer cancel()
			}

			if err := l.driver.Push(pushCtx, ds.device, ds.setting); err != nil {
				aerr := &ActuationError{Device: ds.device, Err: err}
				log.Error().Err(aerr).Str("device", ds.device).Msg("Failed to push light setting")
				l.record(ledger.EventActuationFailed, ds.device, map[string]any{
					"error":   err.Error(),
					"setting": ds.setting,
				})

				mu.Lock()
				failures++
				mu.Unlock()
			}
		}(ds)
	}

	wg.Wait()
	return failures
}

func (l *Loop) setState(next State) {
	l.mu.Lock()
	prev := l.state
	l.state = next
	l.mu.Unlock()

	if prev == next {
		return
	}
	log.Info().Stringer("from", prev).Stringer("to", next).Msg("Control state changed")
	l.record(ledger.EventStateChanged, "", map[string]any{
		"from": prev.String(),
		"to":   next.String(),
	})
}

func (l *Loop) recordAnchor(a cycle.Anchor) {
	l.record(ledger.EventAnchorRefreshed, "", map[string]any{
		"sunrise":    a.Sunrise,
		"sunset":     a.Sunset,
		"refresh_at": a.RefreshAt,
	})
}

func (l *Loop) record(eventType ledger.EventType, device string, payload map[string]any) {
	if l.recorder == nil {
		return
	}
	if err := l.recorder.Append(eventType, device, payload); err != nil {
		log.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to record ledger event")
	}
}
