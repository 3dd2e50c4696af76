package loom

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Status is a job's position in the New -> Queued -> Running ->
// {Success|Failed|Aborted} lifecycle (SPEC_FULL.md §1, Data Model).
type Status int32

const (
	StatusNew Status = iota
	StatusQueued
	StatusRunning
	StatusSuccess
	StatusFailed
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusQueued:
		return "Queued"
	case StatusRunning:
		return "Running"
	case StatusSuccess:
		return "Success"
	case StatusFailed:
		return "Failed"
	case StatusAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// JobID identifies a job across its lifetime. Generated with google/uuid,
// the way wilke-GoWe stamps submission and task identifiers.
type JobID string

func newJobID() JobID { return JobID(uuid.New().String()) }

// QueuePolicy is the admission gate consulted by the engine's dispatch
// algorithm before handing a job to a worker. CanRun and Release are called
// under the engine mutex and must not block (SPEC_FULL.md §5).
type QueuePolicy interface {
	// CanRun reports whether job may run now, reserving whatever resource
	// it guards. A true result obligates the caller to eventually call
	// Release for this job (either on rejection of a partial acquisition,
	// or on the job's final cleanup).
	CanRun(job Job) bool

	// Release returns the resource reserved by a prior CanRun.
	Release(job Job)

	// Free performs final cleanup for a job that will never be seen again
	// by this policy, called right after Release by releaseJobPolicies.
	Free(job Job)
}

// Job is the abstract unit of work the engine manipulates. Concrete jobs
// embed BaseJob and implement Run; the engine and worker never depend on
// anything beyond this interface (SPEC_FULL.md §6, Job contract).
type Job interface {
	ID() JobID
	Priority() int
	Status() Status
	SetStatus(Status)

	AboutToBeQueued(e *Engine)
	AboutToBeDequeued(e *Engine)

	QueuePolicies() []QueuePolicy

	Executor() Executor
	SetExecutor(w Executor) Executor

	// Execute runs the job through its wrapper chain. self is the Job
	// value the engine holds (identical to the receiver for ordinary
	// jobs; for a Collection it is also the collection itself).
	Execute(self Job, w *Worker)

	// Run is the job's own business logic, invoked once Execute has
	// walked all the way in through the wrapper chain.
	Run(self Job, w *Worker) error

	// RequestAbort asks a running job to terminate cooperatively. Run
	// implementations are expected to poll Aborted().
	RequestAbort()
	Aborted() bool
}

// BaseJob implements the bookkeeping every Job needs: identity, priority,
// status, the attached policy list, and the installed executor chain.
// Embed it and implement Run; Execute is inherited.
type BaseJob struct {
	id       JobID
	priority int
	policies []QueuePolicy

	mu     sync.Mutex
	status atomic.Int32

	executor Executor
	queuedIn *Engine

	abort   atomic.Bool
	lastErr error
}

// NewBaseJob constructs a BaseJob with the given priority (higher runs
// earlier; signed, unbounded, per SPEC_FULL.md §1) and attached policies,
// evaluated in the order given at dispatch time.
func NewBaseJob(priority int, policies ...QueuePolicy) BaseJob {
	b := BaseJob{
		id:       newJobID(),
		priority: priority,
		policies: policies,
		executor: terminalExecutor{},
	}
	b.status.Store(int32(StatusNew))
	return b
}

func (b *BaseJob) ID() JobID { return b.id }

func (b *BaseJob) Priority() int { return b.priority }

func (b *BaseJob) Status() Status { return Status(b.status.Load()) }

func (b *BaseJob) SetStatus(s Status) { b.status.Store(int32(s)) }

func (b *BaseJob) QueuePolicies() []QueuePolicy { return b.policies }

// AboutToBeQueued is called exactly once before a job transitions to
// Queued. It records the owning engine so a Collection (and dequeue-on-
// destruction logic generally) knows where to dequeue itself from.
func (b *BaseJob) AboutToBeQueued(e *Engine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.queuedIn != nil {
		contractViolation(ErrAlreadyQueued)
	}
	b.queuedIn = e
}

// AboutToBeDequeued is called exactly once when a job is removed from the
// queue without being dispatched (Engine.Dequeue or Engine.DequeueAll). A
// job handed to a worker leaves the queue without this call.
func (b *BaseJob) AboutToBeDequeued(e *Engine) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queuedIn = nil
}

func (b *BaseJob) queuedEngine() *Engine {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queuedIn
}

func (b *BaseJob) Executor() Executor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.executor
}

// SetExecutor installs w as this job's outermost executor and returns the
// one it replaces, so the caller can retain it as w's inner layer.
func (b *BaseJob) SetExecutor(w Executor) Executor {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.executor
	b.executor = w
	return prev
}

// Execute runs self through its wrapper chain: outermost Begin, the job's
// own Run, then outermost End (SPEC_FULL.md §4.4). Status is recorded before
// End fires so an End hook (e.g. a Collection's elementFinished) observes
// the final outcome.
func (b *BaseJob) Execute(self Job, w *Worker) {
	exec := self.Executor()
	self.SetStatus(StatusRunning)
	exec.Begin(self, w)
	err := self.Run(self, w)
	switch {
	case self.Aborted():
		self.SetStatus(StatusAborted)
	case err != nil:
		b.mu.Lock()
		b.lastErr = err
		b.mu.Unlock()
		self.SetStatus(StatusFailed)
	default:
		self.SetStatus(StatusSuccess)
	}
	releaseJobPolicies(self)
	exec.End(self, w)
}

// LastError returns the error returned by this job's most recent Run, or
// nil if it has never failed.
func (b *BaseJob) LastError() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastErr
}

func (b *BaseJob) RequestAbort() { b.abort.Store(true) }

func (b *BaseJob) Aborted() bool { return b.abort.Load() }

// FuncJob adapts a plain function into a Job, the way a caller would wrap
// arbitrary business logic without defining a named type.
type FuncJob struct {
	BaseJob
	Fn func(self Job, w *Worker) error
}

// NewFuncJob builds a ready-to-submit Job from fn.
func NewFuncJob(priority int, fn func(self Job, w *Worker) error, policies ...QueuePolicy) *FuncJob {
	return &FuncJob{BaseJob: NewBaseJob(priority, policies...), Fn: fn}
}

func (j *FuncJob) Run(self Job, w *Worker) error {
	if j.Fn == nil {
		return nil
	}
	return j.Fn(self, w)
}
