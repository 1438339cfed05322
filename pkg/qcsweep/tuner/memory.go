package tuner

import "github.com/jamesainslie/qcsweep/pkg/qcsweep/cluster"

// Memory limit bounds in MB.
const (
	DefaultMemoryMB = 4096
	MinMemoryMB     = 1024
	MaxMemoryMB     = 32768
)

// clusterShare scales the memory fraction down on shared cluster nodes.
const clusterShare = 0.7

// OptimalMemoryMB returns a memory ceiling for in-flight file data based
// on host memory and the worker count. More workers justify a larger share.
func OptimalMemoryMB(threads int, systemMB uint64, inCluster bool) uint64 {
	if systemMB == 0 {
		return DefaultMemoryMB
	}

	var fraction float64
	switch {
	case threads <= 4:
		fraction = 0.3
	case threads <= 8:
		fraction = 0.4
	case threads <= 16:
		fraction = 0.5
	default:
		fraction = 0.6
	}
	if inCluster {
		fraction *= clusterShare
	}

	return clampMB(uint64(float64(systemMB)*fraction), MinMemoryMB, MaxMemoryMB)
}

// MemoryLimitMB resolves the memory ceiling for a run. An explicit request
// wins over the computed optimum; either way the result never exceeds 95%
// of a scheduler memory grant and stays within [MinMemoryMB, MaxMemoryMB]
// unless the grant itself is smaller than MinMemoryMB.
func MemoryLimitMB(requestedMB uint64, threads int, systemMB uint64, grant cluster.Grant) uint64 {
	limit := requestedMB
	if limit == 0 {
		limit = OptimalMemoryMB(threads, systemMB, grant.InCluster())
	}

	lower := uint64(MinMemoryMB)
	if grant.HasMemoryLimit() {
		jobCap := max(grant.AllocatedMemoryMB*95/100, 1)
		limit = min(limit, jobCap)
		lower = min(lower, jobCap)
	}

	return clampMB(limit, lower, MaxMemoryMB)
}

func clampMB(v, lo, hi uint64) uint64 {
	return max(lo, min(v, hi))
}
