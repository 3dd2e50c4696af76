// Package policy collects concrete QueuePolicy implementations: admission
// gates a Job can attach itself to so the engine's dispatch algorithm only
// hands it to a worker once the gate grants permission.
package policy

import (
	"context"

	"github.com/loomrun/loom"
	"golang.org/x/sync/semaphore"
)

// ResourceCountingPolicy bounds how many jobs holding it may run at once,
// the way ThreadWeaver's ResourceRestrictionPolicy gates access to a
// scarce resource (a limited number of open files, GPU contexts, external
// connections). Built on golang.org/x/sync/semaphore.Weighted rather than
// a hand-rolled counter so acquisition composes correctly with whatever
// else in a process already shares that pattern.
type ResourceCountingPolicy struct {
	sem *semaphore.Weighted
}

// NewResourceCountingPolicy returns a policy admitting at most cap
// concurrent holders.
func NewResourceCountingPolicy(cap int64) *ResourceCountingPolicy {
	return &ResourceCountingPolicy{sem: semaphore.NewWeighted(cap)}
}

// CanRun reports whether a slot is currently available and reserves it if
// so. It must not block, so it uses TryAcquire rather than Acquire — a job
// that cannot run right now simply waits for the engine to try it again
// once something else has Released.
func (p *ResourceCountingPolicy) CanRun(job loom.Job) bool {
	return p.sem.TryAcquire(1)
}

// Release returns the slot reserved by a prior successful CanRun.
func (p *ResourceCountingPolicy) Release(job loom.Job) {
	p.sem.Release(1)
}

// Free is a no-op: ResourceCountingPolicy holds no per-job state to clean
// up, only the shared semaphore.
func (p *ResourceCountingPolicy) Free(job loom.Job) {}

// Acquire blocks until a slot is free or ctx is done, for callers that
// want to gate something other than engine dispatch with the same limit
// (e.g. a goroutine outside the engine competing for the same resource).
func (p *ResourceCountingPolicy) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}
