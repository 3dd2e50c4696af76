//go:build !linux

package loom

import "errors"

// pinToCPU is a no-op stub on platforms without SchedSetaffinity. Workers
// treat the error as non-fatal and log it once.
func pinToCPU(cpu int) error {
	return errors.New("loom: CPU pinning is not supported on this platform")
}
