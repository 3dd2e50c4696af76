package loom

import (
	"runtime"
	"sync"
)

// Worker repeatedly asks its Engine for work and runs whatever it is
// handed to completion, one job at a time. It never queues or prioritizes
// anything itself — all of that lives in Engine.
type Worker struct {
	id     int
	engine *Engine
	pin    int // CPU index to pin to, or -1 for no pinning

	mu  sync.Mutex
	job Job // the job currently executing on this worker, if any
}

func newWorker(id int, e *Engine, pin int) *Worker {
	return &Worker{id: id, engine: e, pin: pin}
}

// run is the worker's main loop, started as its own goroutine by
// Engine.adjustInventoryLocked. It returns once the engine stops
// dispatching work to it.
func (w *Worker) run() {
	if w.pin >= 0 {
		runtime.LockOSThread()
		if err := pinToCPU(w.pin); err != nil {
			w.engine.reportInternalError(w.engine.logCtx, err)
		}
	}

	w.engine.threadEnteredRun(w)

	wasBusy := false
	for {
		job := w.engine.applyForWork(w, wasBusy)
		if job == nil {
			break
		}
		w.setCurrent(job)
		w.engine.observers.emitThreadBusy(w.id, job)

		job.Execute(job, w)

		if err := jobRunError(job); err != nil {
			w.engine.reportJobError(w.engine.logCtx, job, err)
		}
		w.engine.observers.emitJobDone(job)
		w.engine.metrics.IncExecuted()
		w.setCurrent(nil)
		wasBusy = true
	}

	w.engine.threadExited(w)
}

func (w *Worker) setCurrent(j Job) {
	w.mu.Lock()
	w.job = j
	w.mu.Unlock()
}

func (w *Worker) requestAbort() {
	w.mu.Lock()
	j := w.job
	w.mu.Unlock()
	if j != nil {
		j.RequestAbort()
	}
}

// jobRunError reports a non-nil error only for jobs that actually failed,
// distinguishing a cooperative abort (expected, not logged as a failure)
// from a genuine Run error.
func jobRunError(job Job) error {
	if job.Status() != StatusFailed {
		return nil
	}
	type errorer interface{ LastError() error }
	if je, ok := job.(errorer); ok {
		if err := je.LastError(); err != nil {
			return err
		}
	}
	return ErrJobFailed
}
