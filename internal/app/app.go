// Package app implements the domain services on top of the platform
// client: recipes, ingredients, pantry matching, saved recipes, profiles
// and auth. Every remote call goes through the resilience executor, so
// timeout racing, bounded retries and client reinitialization apply
// uniformly instead of per call site.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"cooksmart/internal/cache"
	"cooksmart/internal/cleanup"
	"cooksmart/internal/resilience"
	"cooksmart/internal/supa"
)

// OrphanQueue receives recipe ids left behind by partial create failures.
type OrphanQueue interface {
	Enqueue(ctx context.Context, recipeID, reason string) (cleanup.Task, error)
}

// Config wires the app's dependencies.
type Config struct {
	Client     *supa.Client
	Resilience resilience.Config
	Cache      *cache.Cache
	Orphans    OrphanQueue
	Logger     *slog.Logger
}

// App exposes the domain services. The platform client is held behind an
// atomic pointer: the resilience layer swaps in a fresh handle on the
// first retry and in-flight calls keep the handle they started with.
type App struct {
	client  atomic.Pointer[supa.Client]
	exec    *resilience.Executor
	cache   *cache.Cache
	orphans OrphanQueue
	logger  *slog.Logger
}

// New builds the app. The resilience config's Reinit and Retryable hooks
// are owned by the app and must not be set by the caller.
func New(cfg Config) *App {
	a := &App{
		cache:   cfg.Cache,
		orphans: cfg.Orphans,
		logger:  cfg.Logger,
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.client.Store(cfg.Client)

	rc := cfg.Resilience
	rc.Reinit = a.ReinitClient
	rc.Retryable = retryable
	a.exec = resilience.New(rc)
	return a
}

// Client returns the current platform client handle.
func (a *App) Client() *supa.Client {
	return a.client.Load()
}

// ReinitClient swaps in a fresh client handle. The resilience layer calls
// it on the first retry; the session monitor calls it after a probe
// timeout.
func (a *App) ReinitClient() {
	old := a.client.Load()
	a.client.Store(old.Reinit())
	a.logger.Warn("platform client reinitialized after stale connection")
}

// run executes op under the resilience policy. op receives the client
// handle current at attempt time, so retries after a reinit use the fresh
// transport.
func (a *App) run(ctx context.Context, op func(ctx context.Context, c *supa.Client) error) error {
	return a.exec.Do(ctx, func(ctx context.Context) error {
		return op(ctx, a.Client())
	})
}

// retryable treats any definitive platform answer (4xx) as final; only
// transport failures, timeouts and server-side errors are worth retrying.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *supa.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	return true
}

func (a *App) invalidateListings(ctx context.Context) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Invalidate(ctx); err != nil {
		a.logger.Warn("listing cache invalidation failed", "error", err)
	}
}

func (a *App) cacheGet(ctx context.Context, key string, out any) bool {
	if a.cache == nil {
		return false
	}
	hit, err := a.cache.GetJSON(ctx, key, out)
	if err != nil {
		a.logger.Warn("listing cache read failed", "key", key, "error", err)
		return false
	}
	return hit
}

func (a *App) cacheSet(ctx context.Context, key string, v any) {
	if a.cache == nil {
		return
	}
	if err := a.cache.SetJSON(ctx, key, v); err != nil {
		a.logger.Warn("listing cache write failed", "key", key, "error", err)
	}
}
