package loom

import (
	"errors"
	"fmt"
)

// Error taxonomy. Job execution failures are carried on the job's own
// Status, not returned to engine callers (see DESIGN.md, §7 of SPEC_FULL.md);
// these values exist for job.Run implementations and for the small set of
// engine operations that have a genuine failure mode of their own.
var (
	// ErrJobAborted marks a job that observed a cooperative abort request
	// and terminated early. A Run implementation may return this (or wrap
	// it); the job's Aborted status comes from its abort flag, not from the
	// returned error, so returning it without a prior RequestAbort records
	// the job as Failed.
	ErrJobAborted = errors.New("loom: job aborted")

	// ErrJobFailed is a generic sentinel a Run implementation may wrap to
	// signal ordinary failure, distinct from ErrJobAborted.
	ErrJobFailed = errors.New("loom: job failed")

	// ErrInvalidThreadCap is returned by SetMaxThreads for n <= 0. The
	// original FIXME in WeaverImpl suggested 0 might one day be allowed;
	// SPEC_FULL.md §9 keeps the stricter contract.
	ErrInvalidThreadCap = errors.New("loom: max threads must be > 0")

	// ErrAlreadyQueued is a contract-violation sentinel: a Collection (or
	// any job) may not be queued into two engines, or twice into the same
	// one, at once.
	ErrAlreadyQueued = errors.New("loom: job is already queued")
)

// contractViolation panics with err; it marks the class of error §7 calls
// "fatal — abort the process": programmer errors such as queueing a job
// twice or adding to a collection that is already queued and not
// self-executing.
// Accepting an error rather than a bare string lets a caller of a panicking
// API recover and compare against the originating sentinel with errors.Is.
func contractViolation(err error) {
	panic(fmt.Errorf("loom: contract violation: %w", err))
}
