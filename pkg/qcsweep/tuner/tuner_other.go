//go:build !linux && !darwin

package tuner

import "runtime"

// Detect reports CPUs only. Memory is unknown on this platform and the
// planner skips its memory clamp.
func Detect() (SystemResources, error) {
	return SystemResources{CPUCores: runtime.NumCPU()}, ErrNoSystemInfo
}
