//go:build !unix

package handles

func softLimit() (uint64, bool) { return 0, false }
