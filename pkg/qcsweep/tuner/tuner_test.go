package tuner

import (
	"testing"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/cluster"
)

func TestPlan(t *testing.T) {
	tests := []struct {
		name string
		in   PlanInput
		want int
	}{
		{
			name: "hardware bound",
			in:   PlanInput{ItemCount: 100, HardwareConcurrency: 8},
			want: 8,
		},
		{
			name: "request below hardware",
			in:   PlanInput{RequestedThreads: 3, ItemCount: 100, HardwareConcurrency: 8},
			want: 3,
		},
		{
			name: "request above hardware clamps to hardware",
			in:   PlanInput{RequestedThreads: 64, ItemCount: 100, HardwareConcurrency: 8},
			want: 8,
		},
		{
			name: "scheduler grant below hardware",
			in: PlanInput{
				RequestedThreads: 16, ItemCount: 100, HardwareConcurrency: 64,
				Grant: cluster.Grant{Scheduler: cluster.Slurm, AllocatedCPUs: 6},
			},
			want: 6,
		},
		{
			name: "items below everything",
			in:   PlanInput{ItemCount: 2, HardwareConcurrency: 32},
			want: 2,
		},
		{
			name: "unknown hardware falls back to four",
			in:   PlanInput{ItemCount: 100, HardwareConcurrency: 0},
			want: fallbackConcurrency,
		},
		{
			name: "memory ceiling",
			in: PlanInput{
				ItemCount: 100, HardwareConcurrency: 32,
				AvailableMemoryMB: 1024, Workload: WorkloadExtract,
			},
			want: 4,
		},
		{
			name: "check workload fits more workers in the same memory",
			in: PlanInput{
				ItemCount: 100, HardwareConcurrency: 32,
				AvailableMemoryMB: 1024, Workload: WorkloadCheck,
			},
			want: 16,
		},
		{
			name: "memory smaller than one worker still gives one",
			in: PlanInput{
				ItemCount: 100, HardwareConcurrency: 8,
				AvailableMemoryMB: 10, Workload: WorkloadExtract,
			},
			want: 1,
		},
		{
			name: "zero items",
			in:   PlanInput{ItemCount: 0, HardwareConcurrency: 8},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plan(tt.in); got != tt.want {
				t.Errorf("Plan() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPlanNeverExceedsRequest(t *testing.T) {
	for requested := 1; requested <= 40; requested++ {
		for _, hw := range []int{0, 1, 4, 16, 128} {
			for _, items := range []int{0, 1, 7, 1000} {
				for _, cpus := range []int{0, 2, 48} {
					in := PlanInput{
						RequestedThreads:    requested,
						ItemCount:           items,
						HardwareConcurrency: hw,
						Grant:               cluster.Grant{Scheduler: cluster.PBS, AllocatedCPUs: cpus},
						AvailableMemoryMB:   8192,
						Workload:            WorkloadCheck,
					}
					got := Plan(in)
					if got > requested {
						t.Fatalf("Plan(%+v) = %d, exceeds request %d", in, got, requested)
					}
					if got < 1 {
						t.Fatalf("Plan(%+v) = %d, want >= 1", in, got)
					}
				}
			}
		}
	}
}

func TestPlanWithoutSchedulerUsesHardwareAndMemory(t *testing.T) {
	grant := cluster.Probe(cluster.MapEnvironment{})
	if grant.Scheduler != cluster.None || grant.HasCPULimit() || grant.HasMemoryLimit() {
		t.Fatalf("Probe(empty) = %+v, want bare None grant", grant)
	}

	got := Plan(PlanInput{ItemCount: 500, HardwareConcurrency: 12, Grant: grant})
	if got != 12 {
		t.Errorf("Plan() = %d, want hardware concurrency 12", got)
	}

	got = Plan(PlanInput{
		ItemCount: 500, HardwareConcurrency: 12, Grant: grant,
		AvailableMemoryMB: 512, Workload: WorkloadCheck,
	})
	if got != 8 {
		t.Errorf("Plan() = %d, want memory ceiling 8", got)
	}
}

func TestOptimalMemoryMB(t *testing.T) {
	tests := []struct {
		name      string
		threads   int
		systemMB  uint64
		inCluster bool
		want      uint64
	}{
		{"unknown system memory", 4, 0, false, DefaultMemoryMB},
		{"few threads", 4, 16384, false, 4915},
		{"eight threads", 8, 16384, false, 6553},
		{"sixteen threads", 16, 16384, false, 8192},
		{"many threads", 32, 16384, false, 9830},
		{"cluster discount", 4, 16384, true, 3440},
		{"clamped low", 2, 1024, false, MinMemoryMB},
		{"clamped high", 64, 1 << 20, false, MaxMemoryMB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OptimalMemoryMB(tt.threads, tt.systemMB, tt.inCluster); got != tt.want {
				t.Errorf("OptimalMemoryMB(%d, %d, %v) = %d, want %d",
					tt.threads, tt.systemMB, tt.inCluster, got, tt.want)
			}
		})
	}
}

func TestMemoryLimitMB(t *testing.T) {
	slurm := func(mb uint64) cluster.Grant {
		return cluster.Grant{Scheduler: cluster.Slurm, AllocatedMemoryMB: mb}
	}

	tests := []struct {
		name      string
		requested uint64
		threads   int
		systemMB  uint64
		grant     cluster.Grant
		want      uint64
	}{
		{"explicit request", 2048, 4, 65536, cluster.Grant{}, 2048},
		{"explicit request clamped to max", 100000, 4, 65536, cluster.Grant{}, MaxMemoryMB},
		{"explicit request capped by grant", 8000, 4, 65536, slurm(4000), 3800},
		{"auto within grant", 0, 4, 65536, slurm(100000), 13762},
		{"tiny grant lowers the floor", 0, 4, 65536, slurm(800), 760},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MemoryLimitMB(tt.requested, tt.threads, tt.systemMB, tt.grant); got != tt.want {
				t.Errorf("MemoryLimitMB() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDetect(t *testing.T) {
	res, err := Detect()
	if res.CPUCores < 1 {
		t.Errorf("Detect().CPUCores = %d, want >= 1", res.CPUCores)
	}
	if err == nil && res.TotalRAM <= 0 {
		t.Errorf("Detect().TotalRAM = %d with nil error", res.TotalRAM)
	}
	if err == nil && res.AvailableRAM > res.TotalRAM {
		t.Errorf("AvailableRAM %d exceeds TotalRAM %d", res.AvailableRAM, res.TotalRAM)
	}
}

func TestSystemResourcesMB(t *testing.T) {
	r := SystemResources{TotalRAM: 8 << 30, AvailableRAM: 2 << 30}
	if r.TotalMB() != 8192 {
		t.Errorf("TotalMB() = %d, want 8192", r.TotalMB())
	}
	if r.AvailableMB() != 2048 {
		t.Errorf("AvailableMB() = %d, want 2048", r.AvailableMB())
	}
	if (SystemResources{}).AvailableMB() != 0 {
		t.Error("AvailableMB() of zero resources should be 0")
	}
}
