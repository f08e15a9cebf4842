//go:build linux

package xstream

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// setAffinity pins the calling OS thread to the CPU derived from the
// stream's rank. The caller must have locked the goroutine to its thread.
func setAffinity(rank uint64) error {
	n := runtime.NumCPU()
	if n <= 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(int(rank % uint64(n)))
	return unix.SchedSetaffinity(0, &set)
}
