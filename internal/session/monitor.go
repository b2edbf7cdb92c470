package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cooksmart/internal/resilience"
	"cooksmart/internal/supa"
)

// State is the monitor's view of the session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "uninitialized"
	}
}

const (
	defaultRevalidateInterval = 10 * time.Minute
	defaultProbeTimeout       = 2 * time.Second
)

// MonitorConfig wires the monitor's dependencies.
type MonitorConfig struct {
	// Interval between background revalidations of the held session.
	Interval time.Duration
	// ProbeTimeout bounds the Wake probe; exceeding it is read as a
	// suspended connection.
	ProbeTimeout time.Duration
	// Validate resolves the held access token to an identity.
	Validate func(ctx context.Context, token string) (Identity, error)
	// Probe is a cheap platform query used to detect a dead transport.
	Probe func(ctx context.Context) error
	// Reinit discards the underlying client handle after a probe timeout.
	Reinit func()
	Logger *slog.Logger
}

// Monitor tracks the held platform session. A background ticker
// revalidates it periodically and Wake probes the connection on demand,
// reinitializing the client when the probe hangs. Session state moves
// uninitialized -> loading -> authenticated or anonymous; a session that
// the platform declares invalid forces a local sign-out.
type Monitor struct {
	interval     time.Duration
	probeTimeout time.Duration
	validate     func(ctx context.Context, token string) (Identity, error)
	probe        func(ctx context.Context) error
	reinit       func()
	logger       *slog.Logger

	mu       sync.RWMutex
	state    State
	token    string
	identity Identity
	subs     []func(State, Identity)

	ready     chan struct{}
	readyOnce sync.Once
}

// NewMonitor creates a monitor in the uninitialized state.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultRevalidateInterval
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{
		interval:     cfg.Interval,
		probeTimeout: cfg.ProbeTimeout,
		validate:     cfg.Validate,
		probe:        cfg.Probe,
		reinit:       cfg.Reinit,
		logger:       cfg.Logger,
		state:        StateUninitialized,
		ready:        make(chan struct{}),
	}
}

// Ready is closed once the monitor has settled into authenticated or
// anonymous. Callers block on the channel instead of polling State.
func (m *Monitor) Ready() <-chan struct{} {
	return m.ready
}

// State returns the current session state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Identity returns the identity behind the held session; the zero Identity
// when anonymous.
func (m *Monitor) Identity() Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// Subscribe registers a callback for state transitions. Callbacks run
// synchronously on the goroutine driving the transition.
func (m *Monitor) Subscribe(fn func(State, Identity)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Run drives the monitor until ctx is cancelled. The initial pass settles
// the state (anonymous when no session is held) and closes Ready; after
// that the held session is revalidated every interval.
func (m *Monitor) Run(ctx context.Context) {
	m.setState(StateLoading)
	m.revalidate(ctx)
	m.markReady()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.revalidate(ctx)
		}
	}
}

// SetSession installs a fresh session, e.g. after login or refresh.
func (m *Monitor) SetSession(token string, identity Identity) {
	m.mu.Lock()
	m.token = token
	m.identity = identity
	m.mu.Unlock()
	m.setState(StateAuthenticated)
	m.markReady()
}

// ClearSession drops the held session, e.g. after logout.
func (m *Monitor) ClearSession() {
	m.mu.Lock()
	m.token = ""
	m.identity = Identity{}
	m.mu.Unlock()
	m.setState(StateAnonymous)
	m.markReady()
}

// Wake probes the platform and reinitializes the client when the probe
// exceeds its timeout. Called when the process resumes activity after a
// quiet stretch, before trusting the existing connection.
func (m *Monitor) Wake(ctx context.Context) error {
	if m.probe == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- m.probe(ctx)
	}()
	timer := time.NewTimer(m.probeTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return err
		}
		m.revalidate(ctx)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		m.logger.Warn("connection probe timed out, reinitializing client",
			"timeout", m.probeTimeout)
		if m.reinit != nil {
			m.reinit()
		}
		return resilience.ErrStaleConnection
	}
}

// revalidate re-checks the held session against the platform. A definitive
// rejection forces a local sign-out; transient failures leave the state
// untouched for the next pass.
func (m *Monitor) revalidate(ctx context.Context) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		m.setState(StateAnonymous)
		return
	}
	if m.validate == nil {
		return
	}

	identity, err := m.validate(ctx, token)
	if err != nil {
		if isDefinitiveRejection(err) {
			m.logger.Info("session no longer valid, signing out locally", "error", err)
			m.ClearSession()
			return
		}
		m.logger.Warn("session revalidation failed transiently", "error", err)
		return
	}

	m.mu.Lock()
	m.identity = identity
	m.mu.Unlock()
	m.setState(StateAuthenticated)
}

func isDefinitiveRejection(err error) bool {
	if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenExpired) {
		return true
	}
	var apiErr *supa.APIError
	return errors.As(err, &apiErr) && (apiErr.Status == 401 || apiErr.Status == 403)
}

func (m *Monitor) setState(next State) {
	m.mu.Lock()
	prev := m.state
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.state = next
	identity := m.identity
	subs := make([]func(State, Identity), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next, identity)
	}
}

func (m *Monitor) markReady() {
	m.readyOnce.Do(func() { close(m.ready) })
}
