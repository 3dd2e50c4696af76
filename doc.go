// Package loom provides a concurrent job scheduler built around a priority
// assignment list, a lazily grown pool of worker goroutines, and a six-state
// lifecycle machine that governs when work is accepted and dispatched.
//
// Design goals
//
// The package is designed around the following principles:
//
//   - Priority order, not arrival order, determines who runs next
//   - Dispatch is gated by pluggable QueuePolicy admission checks, not just
//     thread availability
//   - The worker inventory grows on demand and does not shrink until
//     shutdown
//   - Jobs carry their own begin/end decoration via a composable executor
//     chain instead of the engine special-casing job kinds
//
// Architecture overview
//
// An Engine is composed of three cooperating layers:
//
//  1. Lifecycle (state.go)
//     A single atomic stateID gates which operations are meaningful.
//     InConstruction accepts no enqueues; WorkingHard dispatches; Suspending
//     drains in-flight work without starting more; Suspended and
//     ShuttingDown stop dispatch outright; Destructed makes every public
//     operation a silent no-op.
//
//  2. Scheduling and execution (engine.go, worker.go)
//     A single mutex with two condition variables — one signalled when a
//     job becomes available, one when a job finishes — coordinates an
//     assignment list (kept in descending-priority order on insert) against
//     an inventory of workers that pull from it. Workers are not batched:
//     each worker takes exactly one job, runs it to completion, and returns
//     to ask for another.
//
//  3. Job lifecycle (job.go, executor.go, collection.go)
//     Jobs carry their own priority, QueuePolicy list, and execute-wrapper
//     chain. A Collection composes many jobs into one: it runs its own Run
//     first, then enqueues its elements, and reports finished to its own
//     outer wrapper only once every element has completed.
//
// Queue design
//
// The scheduler is a sorted slice, not a concurrent lock-free structure —
// the dispatch algorithm already serializes under the engine mutex, so a
// second layer of lock-free bookkeeping would add complexity without
// shortening the critical section. Insertion is O(n) in assignment-list
// length, which is the same tradeoff WeaverImpl.cpp's std::list-based
// assignment list made, and is appropriate because n tracks outstanding
// (not completed) work.
//
// Error handling
//
// The package distinguishes between two classes of errors:
//
//   - Job errors: returned by a Job's Run method; they set the job's
//     status to Failed and are reported through the registered Observer,
//     never returned synchronously to the caller that enqueued it.
//   - Contract violations: misuse of the API (double-queueing a job,
//     enqueueing a job that is not in New status, adding to a collection
//     that is already queued) panic immediately rather than returning an
//     error, since they indicate a programming mistake rather than a
//     runtime condition.
//
// A worker that fails to pin to its CPU reports the failure through the
// attached logger and the WithInternalErrorHandler callback; it does not
// stop engine operation. Operations that are invalid in the engine's
// current state are silent no-ops.
//
// CPU pinning
//
// On Linux, workers may optionally be pinned to a dedicated CPU core via
// WithPinWorkers. Pinning locks the worker's goroutine to its OS thread
// first, then restricts that thread's scheduling affinity. This can reduce
// cache-line migration for CPU-bound jobs but is not universally
// beneficial and defaults to off.
//
// Intended use cases
//
// loom is well suited for:
//
//   - Background task execution where some queued work must run ahead of
//     other queued work (a running job is never preempted)
//   - Fan-out pipelines whose stages have a natural priority ordering
//   - Composite jobs with an exactly-once "all children finished" signal
//   - Systems that want admission control (rate limits, resource counts)
//     enforced at dispatch time rather than inside each job
//
// It is not intended for distributed scheduling, persistence across
// restarts, or workloads needing strict fairness among equal-priority jobs.
package loom
