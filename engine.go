package loom

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	lg "github.com/Andrej220/go-utils/zlog"
)

const (
	finishInitialWait = 5 * time.Millisecond
	finishMaxWait      = 250 * time.Millisecond
)

// Engine is a priority job scheduler: a mutex-guarded assignment list
// dispatched to a lazily grown inventory of Workers, gated by each job's
// QueuePolicy list and by the engine's own six-state lifecycle.
//
// The zero Engine is not usable; construct one with New.
type Engine struct {
	mu           sync.Mutex
	jobAvailable *sync.Cond
	jobFinished  *sync.Cond

	state atomic.Int32

	assignments  []Job
	inventory    []*Worker
	active       int
	inventoryMax int

	createdThreads atomic.Int32
	startupWG      sync.WaitGroup
	startupTimeout time.Duration

	wg sync.WaitGroup

	observers       observerRegistry
	metrics         MetricsPolicy
	onInternalError func(error)
	logCtx          context.Context
	pinWorkers      bool
}

// New constructs an Engine in the WorkingHard state, ready to accept jobs.
// It mirrors WeaverImpl's constructor: m_active starts at zero, the
// inventory starts empty (threads are created lazily by Enqueue), and the
// state transitions InConstruction -> WorkingHard before New returns.
func New(opts ...Option) *Engine {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	c.fillDefaults()

	e := &Engine{
		inventoryMax:    c.maxThreads,
		startupTimeout:  c.startupTimeout,
		metrics:         c.metrics,
		onInternalError: c.onInternalError,
		logCtx:          c.logCtx,
		pinWorkers:      c.pinWorkers,
	}
	e.jobAvailable = sync.NewCond(&e.mu)
	e.jobFinished = sync.NewCond(&e.mu)
	e.state.Store(int32(stateInConstruction))

	e.mu.Lock()
	e.setStateLocked(stateWorkingHard)
	e.mu.Unlock()

	return e
}

func (e *Engine) setStateLocked(id stateID) {
	prev := stateID(e.state.Swap(int32(id)))
	if prev == id {
		return
	}
	if id == stateSuspended {
		e.observers.emitSuspended()
	}
	e.observers.emitStateChanged(id.String())
}

// Enqueue admits jobs to the assignment list in priority order (higher
// Priority runs earlier; ties preserve arrival order) and grows the worker
// inventory enough to have a chance of running them, bounded by
// MaxThreads. A no-op in any state that doesn't accept new work (see
// state.go); jobs not in StatusNew are a contract violation.
func (e *Engine) Enqueue(jobs ...Job) {
	if len(jobs) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !behaviorOf(stateID(e.state.Load())).acceptsEnqueue {
		return
	}

	e.adjustInventoryLocked(len(jobs))

	for _, job := range jobs {
		if job == nil {
			continue
		}
		if job.Status() != StatusNew {
			contractViolation(errors.New("job is not in New status"))
		}
		job.AboutToBeQueued(e)

		i := len(e.assignments)
		for i > 0 && e.assignments[i-1].Priority() < job.Priority() {
			i--
		}
		e.assignments = append(e.assignments, nil)
		copy(e.assignments[i+1:], e.assignments[i:])
		e.assignments[i] = job

		job.SetStatus(StatusQueued)
		e.metrics.IncQueued()
	}
	e.jobAvailable.Broadcast()
}

// Dequeue removes job from the assignment list before it has been picked
// up by a worker, reporting whether it was found there. A job already
// dispatched to a worker cannot be dequeued this way.
func (e *Engine) Dequeue(job Job) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dequeueLocked(job)
}

// dequeueLocked is Dequeue's body, callable by code that already holds
// e.mu — a Collection removing its own elements from inside its
// AboutToBeDequeued, itself invoked by dequeueLocked/DequeueAll under the
// same lock, must reenter this way rather than through Dequeue.
func (e *Engine) dequeueLocked(job Job) bool {
	for i, j := range e.assignments {
		if j == job {
			job.AboutToBeDequeued(e)
			e.assignments = append(e.assignments[:i:i], e.assignments[i+1:]...)
			job.SetStatus(StatusNew)
			e.metrics.DecQueued(1)
			e.jobFinished.Broadcast()
			return true
		}
	}
	return false
}

// DequeueAll removes every job from the assignment list, resetting each to
// StatusNew. Jobs already dispatched to a worker are unaffected.
func (e *Engine) DequeueAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, job := range e.assignments {
		job.AboutToBeDequeued(e)
		job.SetStatus(StatusNew)
	}
	n := int64(len(e.assignments))
	e.assignments = nil
	e.metrics.DecQueued(n)
	e.jobFinished.Broadcast()
}

// Finish blocks until the assignment list is empty and no worker is
// active. It polls with an escalating backoff rather than a single
// condition wait, rebroadcasting jobAvailable on every timeout so a worker
// parked on a since-satisfied QueuePolicy gets another look.
func (e *Engine) Finish() {
	e.mu.Lock()
	if e.isIdleLocked() {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	bo := boff.New(finishInitialWait, finishMaxWait, time.Now().UnixNano())
	for {
		e.mu.Lock()
		idle := e.isIdleLocked()
		if idle {
			e.mu.Unlock()
			return
		}
		e.jobAvailable.Broadcast()
		e.mu.Unlock()

		lg.FromContext(e.logCtx).Warn("loom: finish waiting for queue to drain",
			lg.Int("queued", e.QueueLength()),
		)
		time.Sleep(bo.Next())
	}
}

// Suspend moves the engine toward Suspended without discarding queued
// work: if no worker is active the transition is immediate, otherwise the
// engine enters Suspending and finishes dispatching already-active jobs
// before a worker observes the transition to Suspended.
func (e *Engine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if stateID(e.state.Load()) != stateWorkingHard {
		return
	}
	if e.active == 0 {
		e.setStateLocked(stateSuspended)
	} else {
		e.setStateLocked(stateSuspending)
	}
}

// Resume returns the engine to WorkingHard from Suspending or Suspended and
// wakes every parked worker so dispatch continues.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch stateID(e.state.Load()) {
	case stateSuspending, stateSuspended:
		e.setStateLocked(stateWorkingHard)
		e.jobAvailable.Broadcast()
	}
}

// Shutdown drains all outstanding work, stops accepting new jobs, and
// waits for every worker goroutine ever created to exit. After Shutdown
// returns, the engine is Destructed and every public operation is a
// silent no-op. Calling Shutdown more than once is safe.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if stateID(e.state.Load()) == stateDestructed {
		e.mu.Unlock()
		return
	}
	created := e.createdThreads.Load()
	e.mu.Unlock()

	if !waitWithTimeout(&e.startupWG, e.startupTimeout) {
		e.reportInternalError(e.logCtx, fmt.Errorf(
			"loom: shutdown proceeding without confirmation that all %d worker(s) entered run", created))
	}

	e.Finish()

	e.mu.Lock()
	e.setStateLocked(stateShuttingDown)
	e.jobAvailable.Broadcast()
	e.jobFinished.Broadcast()
	e.mu.Unlock()

	e.wg.Wait()

	e.mu.Lock()
	e.inventory = nil
	e.setStateLocked(stateDestructed)
	e.mu.Unlock()
}

// SetMaxThreads changes the inventory cap. The inventory only grows, so a
// value smaller than the current cap is accepted but has no immediate
// effect beyond lowering the ceiling for future growth; n must be positive.
func (e *Engine) SetMaxThreads(n int) error {
	if n <= 0 {
		return ErrInvalidThreadCap
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if behaviorOf(stateID(e.state.Load())).terminal {
		return nil
	}
	e.inventoryMax = n
	return nil
}

func (e *Engine) MaxThreads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inventoryMax
}

func (e *Engine) CurrentThreads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inventory)
}

func (e *Engine) QueueLength() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.assignments)
}

func (e *Engine) IsEmpty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.assignments) == 0
}

func (e *Engine) isIdleLocked() bool {
	return len(e.assignments) == 0 && e.active == 0
}

func (e *Engine) IsIdle() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isIdleLocked()
}

// RequestAbort asks every worker's in-flight job, if any, to abort
// cooperatively. Queued-but-not-dispatched jobs are unaffected; dequeue
// them explicitly if they must not run at all.
func (e *Engine) RequestAbort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, w := range e.inventory {
		w.requestAbort()
	}
}

// RegisterObserver adds o to the set of sinks that receive every
// subsequent lifecycle event. Events already delivered are not replayed.
func (e *Engine) RegisterObserver(o Observer) {
	e.observers.register(o)
}

// DebugDump logs the current assignment list's contents through the
// engine's logger: position, job ID, and priority, in dispatch order.
func (e *Engine) DebugDump(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	logger := lg.FromContext(ctx)
	logger.Info("loom: assignment list dump",
		lg.Int("queued", len(e.assignments)),
		lg.Int("active", e.active),
	)
	for i, j := range e.assignments {
		logger.Info("loom: queued job",
			lg.Int("position", i),
			lg.String("job_id", string(j.ID())),
			lg.Int("priority", j.Priority()),
		)
	}
}

// adjustInventoryLocked grows the worker inventory to handle
// numberOfNewJobs more jobs, bounded by how much headroom remains below
// inventoryMax. The inventory never shrinks.
func (e *Engine) adjustInventoryLocked(numberOfNewJobs int) {
	reserve := e.inventoryMax - len(e.inventory)
	if reserve <= 0 {
		return
	}
	n := numberOfNewJobs
	if n > reserve {
		n = reserve
	}
	for i := 0; i < n; i++ {
		id := int(e.createdThreads.Add(1))
		pin := -1
		if e.pinWorkers {
			if cpus := runtime.NumCPU(); cpus > 0 {
				pin = (id - 1) % cpus
			}
		}
		w := newWorker(id, e, pin)
		e.inventory = append(e.inventory, w)
		e.wg.Add(1)
		e.startupWG.Add(1)
		go func() {
			defer e.wg.Done()
			w.run()
		}()
	}
}

// canBeExecutedLocked asks every one of job's QueuePolicies for permission
// to run it. On any refusal, every policy already granted is released
// before reporting failure, so a job that cannot run yet holds nothing.
func (e *Engine) canBeExecutedLocked(job Job) bool {
	policies := job.QueuePolicies()
	if len(policies) == 0 {
		return true
	}
	acquired := make([]QueuePolicy, 0, len(policies))
	for _, p := range policies {
		if p.CanRun(job) {
			acquired = append(acquired, p)
			continue
		}
		for _, a := range acquired {
			a.Release(job)
		}
		return false
	}
	return true
}

// takeFirstRunnableLocked scans the assignment list in priority order and
// removes the first job whose QueuePolicies all grant permission, or
// returns nil if none currently can run.
func (e *Engine) takeFirstRunnableLocked() Job {
	for i, candidate := range e.assignments {
		if e.canBeExecutedLocked(candidate) {
			e.assignments = append(e.assignments[:i:i], e.assignments[i+1:]...)
			e.metrics.DecQueued(1)
			return candidate
		}
	}
	return nil
}

// applyForWork is called by a worker asking for its next job. wasBusy
// reports whether the worker just finished one, so the active count can be
// adjusted before this worker is counted as idle. It blocks until a job is
// available or the engine stops dispatching altogether (ShuttingDown or
// Destructed), in which case it returns nil and the caller's run loop exits.
// While the engine is Suspending or Suspended the worker stays parked.
func (e *Engine) applyForWork(w *Worker, wasBusy bool) Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	if wasBusy {
		e.decActiveThreadCountLocked()
	}

	for {
		switch stateID(e.state.Load()) {
		case stateShuttingDown, stateDestructed:
			// nothing left to wait for: tell the caller to exit.
			return nil

		case stateSuspending:
			if e.active == 0 {
				e.setStateLocked(stateSuspended)
			}
			e.parkLocked(w)

		case stateSuspended:
			// parked, not exited: Resume's broadcast wakes this back up
			// without needing to recreate the worker.
			e.parkLocked(w)

		case stateWorkingHard:
			if job := e.takeFirstRunnableLocked(); job != nil {
				e.incActiveThreadCountLocked()
				return job
			}
			e.parkLocked(w)

		default:
			e.parkLocked(w)
		}
	}
}

// parkLocked waits on jobAvailable, reporting w as suspended first —
// mirroring WeaverImpl::blockThreadUntilJobsAreBeingAssigned_locked, which
// emits threadSuspended immediately before every wait on the same
// condition variable, regardless of which state the caller is waiting
// from. Must be called with e.mu held; sync.Cond.Wait releases it while
// parked and reacquires it before returning.
func (e *Engine) parkLocked(w *Worker) {
	e.observers.emitThreadSuspended(w.id)
	e.jobAvailable.Wait()
}

func (e *Engine) incActiveThreadCountLocked() {
	e.active++
	e.metrics.SetActive(int64(e.active))
}

func (e *Engine) decActiveThreadCountLocked() {
	e.active--
	e.metrics.SetActive(int64(e.active))
	e.jobFinished.Broadcast()
	if len(e.assignments) == 0 && e.active == 0 {
		e.observers.emitFinished()
	}
}

func (e *Engine) threadEnteredRun(w *Worker) {
	e.startupWG.Done()
	e.observers.emitThreadStarted(w.id)
}

// waitWithTimeout reports whether wg reached zero before timeout elapsed.
// A timed-out call leaves its helper goroutine running until wg does
// eventually reach zero; that goroutine's only remaining job is closing an
// already-abandoned channel, so it is harmless.
func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (e *Engine) threadExited(w *Worker) {
	e.mu.Lock()
	for i, inv := range e.inventory {
		if inv == w {
			e.inventory = append(e.inventory[:i:i], e.inventory[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	e.observers.emitThreadExited(w.id)
}
