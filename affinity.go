//go:build linux

package loom

import (
	"golang.org/x/sys/unix"
)

// pinToCPU binds the calling OS thread to a single CPU core. Workers call
// this from their own goroutine after runtime.LockOSThread, so the affinity
// mask applies only to that worker's dedicated thread (SPEC_FULL.md §2,
// WithPinWorkers). Best-effort: callers log failures rather than treating
// them as fatal.
func pinToCPU(cpu int) error {
	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpu)
	return unix.SchedSetaffinity(0, &mask)
}
