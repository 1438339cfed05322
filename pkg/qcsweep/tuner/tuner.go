// Package tuner detects host resources and plans how many workers and how
// much memory a batch run may use, honouring any scheduler grant.
package tuner

import (
	"errors"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/cluster"
)

// ErrNoSystemInfo is returned by Detect when the platform cannot report memory.
var ErrNoSystemInfo = errors.New("system memory information unavailable")

// SystemResources contains detected host resources.
type SystemResources struct {
	// CPUCores is the number of logical CPUs usable by this process.
	CPUCores int

	// TotalRAM is the total physical RAM in bytes.
	TotalRAM int64

	// AvailableRAM is an estimate of free RAM in bytes.
	AvailableRAM int64
}

// TotalMB returns TotalRAM in megabytes.
func (r SystemResources) TotalMB() uint64 {
	if r.TotalRAM <= 0 {
		return 0
	}
	return uint64(r.TotalRAM) / (1024 * 1024)
}

// AvailableMB returns AvailableRAM in megabytes.
func (r SystemResources) AvailableMB() uint64 {
	if r.AvailableRAM <= 0 {
		return 0
	}
	return uint64(r.AvailableRAM) / (1024 * 1024)
}

// fallbackConcurrency is used when the runtime cannot report CPUs.
const fallbackConcurrency = 4

// Workload names a kind of per-file work and its memory footprint.
type Workload struct {
	Name              string
	PerWorkerMemoryMB uint64
}

// Per-worker estimates. Parsing whole logs holds far more in memory than
// reading a status tail or writing a small input deck.
var (
	WorkloadExtract = Workload{Name: "extract", PerWorkerMemoryMB: 256}
	WorkloadCheck   = Workload{Name: "check", PerWorkerMemoryMB: 64}
	WorkloadCreate  = Workload{Name: "create", PerWorkerMemoryMB: 32}
)

// PlanInput carries everything Plan considers.
type PlanInput struct {
	// RequestedThreads is a hard user ceiling when positive. Zero means auto.
	RequestedThreads int

	// ItemCount is the number of independent items to process.
	ItemCount int

	// HardwareConcurrency is the CPU count; zero or less means unknown.
	HardwareConcurrency int

	// Grant is the scheduler allocation, if any.
	Grant cluster.Grant

	// AvailableMemoryMB is the memory budget; zero means unknown.
	AvailableMemoryMB uint64

	// Workload selects the per-worker memory estimate.
	Workload Workload
}

// Plan returns the number of workers for a run:
// max(1, min(requested, granted CPUs, hardware, items, memory/per-worker)),
// where unknown constraints are left out.
func Plan(in PlanInput) int {
	if in.ItemCount <= 0 {
		return 1
	}

	hw := in.HardwareConcurrency
	if hw <= 0 {
		hw = fallbackConcurrency
	}

	limit := hw
	if in.RequestedThreads > 0 {
		limit = min(limit, in.RequestedThreads)
	}
	if in.Grant.HasCPULimit() {
		limit = min(limit, in.Grant.AllocatedCPUs)
	}
	limit = min(limit, in.ItemCount)

	if per := in.Workload.PerWorkerMemoryMB; per > 0 && in.AvailableMemoryMB > 0 {
		if byMemory := in.AvailableMemoryMB / per; byMemory < uint64(limit) {
			limit = int(byMemory)
		}
	}

	return max(1, limit)
}
