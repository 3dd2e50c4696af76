package loom

import (
	"context"
	"runtime"
	"time"
)

// config holds the tunables an Option sets on a freshly-constructed Engine.
// All zero values are replaced with sensible defaults in fillDefaults, the
// way Options.FillDefaults worked for the worker pool this package grew out
// of.
type config struct {
	maxThreads      int
	pinWorkers      bool
	startupTimeout  time.Duration
	logCtx          context.Context
	metrics         MetricsPolicy
	onInternalError func(error)
}

func (c *config) fillDefaults() {
	if c.maxThreads <= 0 {
		c.maxThreads = defaultInventoryMax()
	}
	if c.startupTimeout <= 0 {
		c.startupTimeout = 5 * time.Second
	}
	if c.logCtx == nil {
		c.logCtx = context.Background()
	}
	if c.metrics == nil {
		c.metrics = &NoopMetrics{}
	}
}

func defaultInventoryMax() int {
	n := 2 * runtime.NumCPU()
	if n < 4 {
		n = 4
	}
	return n
}

// Option configures an Engine at construction time, following the
// functional-options pattern this repository's worker-pool ancestor used
// for Options/FillDefaults.
type Option func(*config)

// WithMaxThreads sets the initial inventory cap (default: max(4, 2*NumCPU),
// matching WeaverImpl's m_inventoryMax default).
func WithMaxThreads(n int) Option {
	return func(c *config) { c.maxThreads = n }
}

// WithLogContext attaches the context passed to lg.FromContext at every
// engine/worker log call site that isn't already scoped to a job's own
// context. The default is context.Background().
func WithLogContext(ctx context.Context) Option {
	return func(c *config) { c.logCtx = ctx }
}

// WithPinWorkers enables CPU-affinity pinning for worker OS threads, where
// supported (linux only; see affinity.go). Pinning is best-effort: failures
// are logged, not fatal.
func WithPinWorkers(pin bool) Option {
	return func(c *config) { c.pinWorkers = pin }
}

// WithStartupTimeout bounds how long Shutdown waits, during its first
// phase, for every thread ever created to have signalled "entered run"
// before proceeding to drain (SPEC_FULL.md §4.1, shutdown protocol step 2).
func WithStartupTimeout(d time.Duration) Option {
	return func(c *config) { c.startupTimeout = d }
}

// WithMetrics attaches a MetricsPolicy. The default is a NoopMetrics.
func WithMetrics(m MetricsPolicy) Option {
	return func(c *config) { c.metrics = m }
}

// WithInternalErrorHandler attaches a callback invoked whenever the engine
// itself fails at something that isn't a job's fault (e.g. a worker failed
// to pin to its requested CPU). Job errors are never routed here — they
// reach the caller through the job's own Status and any registered
// Observer. The default is no callback; internal errors are still logged.
func WithInternalErrorHandler(fn func(error)) Option {
	return func(c *config) { c.onInternalError = fn }
}
