package loom

import (
	"errors"
	"sync"
	"sync/atomic"
)

// collectionExecuteWrapper is installed on a Collection itself and on
// every one of its elements. It forwards Begin/End to whatever executor
// was already installed on the job it wraps (preserving that job's own
// decoration), then notifies the owning Collection so it can track overall
// progress across self and every element.
type collectionExecuteWrapper struct {
	Layer
	collection *Collection
}

func (w *collectionExecuteWrapper) Begin(job Job, worker *Worker) {
	w.DefaultBegin(job, worker)
	w.collection.elementStarted(job, worker)
}

func (w *collectionExecuteWrapper) End(job Job, worker *Worker) {
	w.collection.elementFinished(job, worker)
	w.DefaultEnd(job, worker)
}

func (w *collectionExecuteWrapper) Cleanup(job Job, worker *Worker) {
	job.SetExecutor(w.Unwrap())
}

// Collection is a composite Job: it runs its own Run first, then enqueues
// its elements into the same engine it was queued in, and reports itself
// finished to whatever executor wrapped it from the outside only once
// every element has also finished (SPEC_FULL.md §1, composite job
// protocol).
//
// The outer executor is captured once, the first time the collection is
// queued — not re-read on every subsequent Begin/End — so a SetExecutor
// call made on an already-queued collection has no effect on which
// executor element bookkeeping notifies.
type Collection struct {
	BaseJob

	mu       sync.Mutex
	elements []Job
	engine   *Engine

	self        Job
	selfRunning bool

	outer Executor

	jobCounter  atomic.Int32
	jobsStarted atomic.Int32
}

// NewCollection constructs an empty Collection with the given priority. Add
// elements with AddJob, and optionally wrap it with SetExecutor exactly the
// way any ordinary Job is wrapped, before enqueuing it.
func NewCollection(priority int) *Collection {
	return &Collection{BaseJob: NewBaseJob(priority)}
}

// AddJob appends job to the collection. Only valid before the collection
// is queued, or from within the collection's own Run while it is
// self-executing — mirroring JobCollection::addJob's precondition.
func (c *Collection) AddJob(job Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil && !c.selfRunning {
		contractViolation(errors.New("cannot add a job to a collection that is already queued and not self-executing"))
	}
	wrapper := &collectionExecuteWrapper{collection: c}
	wrapper.Wrap(job.SetExecutor(wrapper))
	c.elements = append(c.elements, job)
}

// AboutToBeQueued records the engine the collection is about to run in and,
// the first time the collection is ever queued, captures whatever executor
// the caller installed with SetExecutor as the collection's outer — then
// installs its own bookkeeping wrapper on top, the same way AddJob wraps an
// element's existing chain rather than discarding it. The wrapper's own
// inner is a dummy terminalExecutor, not the captured outer, so that the
// collection's Begin/End firing (self's own dispatch) never also triggers
// outer directly; elementStarted/elementFinished call outer explicitly,
// exactly once each, once every element (and self) has actually finished.
func (c *Collection) AboutToBeQueued(e *Engine) {
	c.mu.Lock()
	c.engine = e
	if c.outer == nil {
		c.outer = c.Executor()
		wrapper := &collectionExecuteWrapper{collection: c}
		wrapper.Wrap(terminalExecutor{})
		c.SetExecutor(wrapper)
	}
	c.mu.Unlock()
	c.BaseJob.AboutToBeQueued(e)
}

// AboutToBeDequeued dequeues every element still in e's assignment list
// before clearing the collection's own link to e. Called by the engine
// while its own mutex is held, so element removal goes through
// dequeueLocked rather than Dequeue.
func (c *Collection) AboutToBeDequeued(e *Engine) {
	c.dequeueElements(e, true)
	c.mu.Lock()
	c.engine = nil
	c.mu.Unlock()
	c.BaseJob.AboutToBeDequeued(e)
}

// Stop removes the collection and any of its still-queued elements from
// its engine: from the assignment list if it hasn't started yet, or just
// its elements if the collection itself is already running or done.
func (c *Collection) Stop(self Job) {
	c.mu.Lock()
	e := c.engine
	c.mu.Unlock()
	if e == nil {
		return
	}
	if !e.Dequeue(self) {
		c.dequeueElements(e, false)
	}
}

// dequeueElements removes every element still sitting in e's assignment
// list — the ones that never got dispatched to a worker and so will never
// call elementFinished on their own. An element already dispatched (still
// running or already done) is not found there and is left alone; it will
// decrement jobCounter itself through the ordinary elementFinished path
// when it completes.
//
// Only the elements actually removed here are ones elementFinished will
// never see, so only they are subtracted from jobCounter. If that brings
// jobCounter to exactly zero — every element and self accounted for,
// whether by running to completion or by being cancelled here — this
// performs the same exactly-once finalize-and-notify-outer step
// elementFinished performs when its own decrement lands on zero. A
// subtraction of zero (nothing was actually removed, e.g. Stop raced a
// collection whose self hasn't even started yet) never triggers it.
//
// When engineLocked is true the caller already holds e's mutex (reached
// via AboutToBeDequeued) and dequeueLocked must be used instead of Dequeue
// to avoid relocking it.
func (c *Collection) dequeueElements(e *Engine, engineLocked bool) {
	c.mu.Lock()
	elems := make([]Job, len(c.elements))
	copy(elems, c.elements)
	c.mu.Unlock()

	var removed int32
	for _, el := range elems {
		var ok bool
		if engineLocked {
			ok = e.dequeueLocked(el)
		} else {
			ok = e.Dequeue(el)
		}
		if ok {
			removed++
		}
	}
	if removed == 0 {
		return
	}

	if remaining := c.jobCounter.Add(-removed); remaining == 0 {
		c.mu.Lock()
		c.finalCleanupLocked()
		self := c.self
		c.mu.Unlock()
		c.outer.End(self, nil)
	}
}

// Execute runs the collection itself through its own wrapper chain, the
// same way BaseJob.Execute runs any job — the composite behavior lives in
// Run and in elementStarted/elementFinished, not here.
func (c *Collection) Execute(self Job, w *Worker) {
	c.mu.Lock()
	c.self = self
	c.selfRunning = true
	c.mu.Unlock()
	c.BaseJob.Execute(self, w)
}

// Run is empty: a Collection's own work is entirely in being a container.
// Its elements do the real work, enqueued from elementFinished once this
// Run returns.
func (c *Collection) Run(self Job, w *Worker) error {
	return nil
}

// enqueueElements sets jobCounter to cover every element plus self, then
// hands the elements to the engine the collection itself was queued in.
func (c *Collection) enqueueElements() {
	c.mu.Lock()
	e := c.engine
	elems := make([]Job, len(c.elements))
	copy(elems, c.elements)
	c.jobCounter.Store(int32(len(elems)) + 1)
	c.mu.Unlock()

	if e != nil {
		e.Enqueue(elems...)
	}
}

// elementStarted fires the collection's outer Begin exactly once, on
// whichever of self or an element is first to actually start running.
func (c *Collection) elementStarted(job Job, w *Worker) {
	if c.jobsStarted.Add(1) == 1 {
		c.outer.Begin(c.self, w)
	}
}

// elementFinished enqueues the collection's elements the first time self
// finishes (self always runs before any element is dispatched), then
// fires the collection's outer End exactly once, after self and every
// element have all finished.
func (c *Collection) elementFinished(job Job, w *Worker) {
	c.mu.Lock()
	selfJustFinished := c.selfRunning
	c.selfRunning = false
	c.mu.Unlock()

	if selfJustFinished {
		c.enqueueElements()
	}

	if remaining := c.jobCounter.Add(-1); remaining == 0 {
		c.mu.Lock()
		c.finalCleanupLocked()
		self := c.self
		c.mu.Unlock()
		c.outer.End(self, w)
	}
}

// finalCleanupLocked releases the collection's own QueuePolicies and marks
// it Success. Must be called with c.mu held.
func (c *Collection) finalCleanupLocked() {
	releaseJobPolicies(c)
	c.SetStatus(StatusSuccess)
	c.engine = nil
}

// JobAt returns the i'th element added to the collection.
func (c *Collection) JobAt(i int) Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elements[i]
}

// JobListLength reports how many elements the collection holds.
func (c *Collection) JobListLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.elements)
}
