//go:build unix

package handles

import "golang.org/x/sys/unix"

// softLimit returns the RLIMIT_NOFILE soft limit. An unlimited value is
// clamped later by capacityFor.
func softLimit() (uint64, bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		logger.Warn("reading descriptor limit failed", "error", err)
		return 0, false
	}
	return uint64(rl.Cur), true
}
