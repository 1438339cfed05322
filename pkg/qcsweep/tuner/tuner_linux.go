//go:build linux

package tuner

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Detect reports CPUs usable by this process and RAM from sysinfo(2).
func Detect() (SystemResources, error) {
	res := SystemResources{CPUCores: runtime.NumCPU()}

	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return res, fmt.Errorf("%w: sysinfo: %w", ErrNoSystemInfo, err)
	}

	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}
	res.TotalRAM = int64(uint64(info.Totalram) * unit)
	res.AvailableRAM = int64((uint64(info.Freeram) + uint64(info.Bufferram)) * unit)
	return res, nil
}
