//go:build darwin

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect reports CPUs and RAM using sysctl. macOS does not expose free
// memory cheaply, so half of the total is assumed available.
func Detect() (SystemResources, error) {
	res := SystemResources{CPUCores: runtime.NumCPU()}

	total, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return res, fmt.Errorf("%w: hw.memsize: %w", ErrNoSystemInfo, err)
	}
	res.TotalRAM = int64(total)
	res.AvailableRAM = int64(total / 2)
	return res, nil
}
