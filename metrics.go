package loom

import (
	"sync/atomic"
)

// MetricsPolicy defines hooks the engine uses to report queueing and
// execution activity. Implementations must be safe for concurrent use and
// non-blocking — the engine calls IncQueued, DecQueued and SetActive while
// holding its mutex; workers call IncExecuted without it.
type MetricsPolicy interface {
	// IncExecuted increments the executed-jobs counter.
	IncExecuted()

	// IncQueued increments the queued-jobs counter.
	IncQueued()

	// DecQueued decrements the queued counter by n, used when jobs leave
	// the assignment list via dispatch or dequeue.
	DecQueued(n int64)

	// SetActive reports the current active-worker count.
	SetActive(n int64)
}

// AtomicMetrics is a lock-free MetricsPolicy backed by atomics.
//
// Writes are optimized for hot paths; reads are intended for cold-path
// observation (e.g. an operator calling Executed()/Queued() periodically).
type AtomicMetrics struct {
	// executed is the total number of jobs run to completion.
	executed atomic.Uint64

	_ [56]byte // padding to avoid false sharing

	// queued is the current number of jobs in the assignment list.
	queued atomic.Int64

	_ [56]byte

	// active is the current number of workers executing a job.
	active atomic.Int64
}

// Executed returns the total number of completed jobs.
func (m *AtomicMetrics) Executed() uint64 { return m.executed.Load() }

// Queued returns the current assignment-list length.
func (m *AtomicMetrics) Queued() int64 { return m.queued.Load() }

// Active returns the current active-worker count.
func (m *AtomicMetrics) Active() int64 { return m.active.Load() }

func (m *AtomicMetrics) IncExecuted() { m.executed.Add(1) }

func (m *AtomicMetrics) IncQueued() { m.queued.Add(1) }

func (m *AtomicMetrics) DecQueued(n int64) { m.queued.Add(-n) }

func (m *AtomicMetrics) SetActive(n int64) { m.active.Store(n) }

//------------- NoopMetrics ----------------------------------

// NoopMetrics discards every metric update. Used when metrics collection is
// disabled and zero overhead is desired.
type NoopMetrics struct{}

func (m *NoopMetrics) IncExecuted()        {}
func (m *NoopMetrics) IncQueued()          {}
func (m *NoopMetrics) DecQueued(n int64)   {}
func (m *NoopMetrics) SetActive(n int64)   {}
