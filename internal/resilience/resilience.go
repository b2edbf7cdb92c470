// Package resilience executes remote operations under a per-call timeout
// with bounded retries. Long-lived processes talking to the hosted platform
// occasionally see a transport go stale (requests hang without failing);
// racing each attempt against a timer keeps callers from hanging, and the
// first retry swaps in a fresh client handle.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStaleConnection classifies an attempt that exceeded its timeout.
var ErrStaleConnection = errors.New("stale connection: operation timed out")

const (
	defaultTimeout    = 5 * time.Second
	defaultMaxRetries = 2
	defaultBaseDelay  = 500 * time.Millisecond
	defaultMaxDelay   = 5 * time.Second
)

// Config tunes the executor.
type Config struct {
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt, so the
	// executor makes at most MaxRetries+1 attempts in total.
	MaxRetries int
	// BaseDelay is the first backoff delay; it doubles per retry up to
	// MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Reinit, when set, is invoked once before the first retry to discard
	// and recreate the underlying transport handle.
	Reinit func()
	// Retryable decides whether an error is worth retrying. Defaults to
	// retrying everything except context cancellation; definitive platform
	// answers (4xx) should be marked non-retryable by the caller.
	Retryable func(error) bool

	sleep func(context.Context, time.Duration) error // test hook
}

// Executor runs operations with the configured policy. The zero value is
// not usable; construct with New.
type Executor struct {
	cfg Config
}

// New constructs an executor, applying defaults for unset fields.
func New(cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
	if cfg.sleep == nil {
		cfg.sleep = sleepCtx
	}
	return &Executor{cfg: cfg}
}

// Do runs op until it succeeds, exhausts the attempt budget, or hits a
// non-retryable error. Each attempt is raced against the timeout; a fired
// timer abandons the attempt (the underlying request may still complete
// server-side) and counts as a stale-connection failure. Total attempts
// never exceed MaxRetries+1, so worst-case wall clock is bounded by
// (MaxRetries+1)*Timeout plus the backoff delays.
func (e *Executor) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if attempt == 1 && e.cfg.Reinit != nil {
				e.cfg.Reinit()
			}
			if err := e.cfg.sleep(ctx, e.backoff(attempt)); err != nil {
				return err
			}
		}

		err := e.attempt(ctx, op)
		if err == nil {
			return nil
		}
		lastErr = err
		if !e.cfg.Retryable(err) {
			return err
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", e.cfg.MaxRetries+1, lastErr)
}

// attempt races op against the per-attempt timer. The operation receives
// the caller's context, not a derived one: a timed-out attempt is
// abandoned, not cancelled.
func (e *Executor) attempt(ctx context.Context, op func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		done <- op(ctx)
	}()

	timer := time.NewTimer(e.cfg.Timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrStaleConnection
	}
}

// backoff returns the delay before the given retry (1-based), doubling
// from BaseDelay and capped at MaxDelay.
func (e *Executor) backoff(retry int) time.Duration {
	d := e.cfg.BaseDelay << (retry - 1)
	if d > e.cfg.MaxDelay || d <= 0 {
		d = e.cfg.MaxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
