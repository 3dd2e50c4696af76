package loom

import (
	"context"

	lg "github.com/Andrej220/go-utils/zlog"
)

// reportInternalError reports a failure in the engine's own machinery —
// worker setup, CPU pinning, and the like — as distinct from a job
// returning an error from Run. If no handler is registered, the error is
// only logged.
func (e *Engine) reportInternalError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	lg.FromContext(ctx).Error("loom: internal error", lg.Any("error", err))
	if e.onInternalError != nil {
		e.onInternalError(err)
	}
}

// reportJobError logs a job's Run error at the point its status is set to
// Failed. Job errors do not stop engine operation and are not surfaced to
// the caller that enqueued the job; callers observe failure through the
// job's own Status() or a registered Observer's JobDone.
func (e *Engine) reportJobError(ctx context.Context, job Job, err error) {
	if err == nil {
		return
	}
	lg.FromContext(ctx).Warn("loom: job failed",
		lg.String("job_id", string(job.ID())),
		lg.Int("priority", job.Priority()),
		lg.Any("error", err),
	)
}
