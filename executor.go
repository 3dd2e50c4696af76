package loom

// Executor is one layer of a job's execute-wrapper chain (SPEC_FULL.md §4.4,
// design note "Wrapper chain"). Begin/End bracket a single execution of the
// job they are installed on; Cleanup retires the layer once it will never be
// invoked again. Every concrete wrapper embeds Layer and overrides Begin/End
// as needed, calling DefaultBegin/DefaultEnd to forward into the layer it
// wraps.
type Executor interface {
	Begin(job Job, w *Worker)
	End(job Job, w *Worker)
	Cleanup(job Job, w *Worker)
}

// terminalExecutor is the layer every job starts with before anything wraps
// it: no behavior, nothing further to forward to.
type terminalExecutor struct{}

func (terminalExecutor) Begin(Job, *Worker)   {}
func (terminalExecutor) End(Job, *Worker)     {}
func (terminalExecutor) Cleanup(Job, *Worker) {}

// Layer is embedded by custom wrappers. It owns a reference to the inner
// executor it wraps and supplies the "forward to inner" behavior a layer's
// own Begin/End call explicitly — the Go equivalent of ThreadWeaver's
// ExecuteWrapper base-class default methods.
type Layer struct {
	inner Executor
}

// Wrap installs inner as this layer's wrapped executor. The usual call
// pattern is layer.Wrap(job.SetExecutor(layer)): SetExecutor returns the
// job's previous outer executor, which becomes this layer's inner, while
// this layer becomes the job's new outer executor.
func (l *Layer) Wrap(inner Executor) { l.inner = inner }

// DefaultBegin forwards Begin to the wrapped inner layer.
func (l *Layer) DefaultBegin(job Job, w *Worker) { l.inner.Begin(job, w) }

// DefaultEnd forwards End to the wrapped inner layer.
func (l *Layer) DefaultEnd(job Job, w *Worker) { l.inner.End(job, w) }

// Unwrap returns the inner executor, dropping this layer's reference to it.
// Cleanup implementations call this before discarding themselves; per
// SPEC_FULL.md's design note, nothing may touch the layer again afterward.
func (l *Layer) Unwrap() Executor {
	inner := l.inner
	l.inner = nil
	return inner
}

// releaseJobPolicies releases and frees every QueuePolicy attached to job.
// Called once a job reaches a terminal status by BaseJob.Execute, for every
// job including a Collection's own run, and again by
// Collection.finalCleanupLocked once every element has finished. A
// Collection is built without policies, so both calls do nothing for it.
func releaseJobPolicies(job Job) {
	for _, p := range job.QueuePolicies() {
		p.Release(job)
		p.Free(job)
	}
}
