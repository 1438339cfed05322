// Package cluster detects the HPC job scheduler this process runs under and
// the CPU and memory it was granted. Detection is a pure function of the
// environment; malformed values degrade a single field to unknown.
package cluster

import (
	"fmt"
	"os"
	"strings"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
)

var logger = logging.Get("cluster")

// Scheduler identifies a batch scheduler family.
type Scheduler int

const (
	None Scheduler = iota
	Slurm
	PBS
	SGE
	LSF
	Unknown
)

// String returns the display name of the scheduler.
func (s Scheduler) String() string {
	switch s {
	case Slurm:
		return "slurm"
	case PBS:
		return "pbs"
	case SGE:
		return "sge"
	case LSF:
		return "lsf"
	case Unknown:
		return "unknown-cluster"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Scheduler) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Grant is the resource allocation observed for this job step.
// Zero numeric fields mean the scheduler did not report the value.
type Grant struct {
	Scheduler         Scheduler `json:"scheduler" yaml:"scheduler"`
	JobID             string    `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	AllocatedCPUs     int       `json:"allocated_cpus,omitempty" yaml:"allocated_cpus,omitempty"`
	AllocatedMemoryMB uint64    `json:"allocated_memory_mb,omitempty" yaml:"allocated_memory_mb,omitempty"`
	Partition         string    `json:"partition,omitempty" yaml:"partition,omitempty"`
	Account           string    `json:"account,omitempty" yaml:"account,omitempty"`
	Nodes             int       `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// InCluster reports whether any scheduler was detected.
func (g Grant) InCluster() bool { return g.Scheduler != None }

// HasCPULimit reports whether the scheduler granted a CPU count.
func (g Grant) HasCPULimit() bool { return g.AllocatedCPUs > 0 }

// HasMemoryLimit reports whether the scheduler granted a memory size.
func (g Grant) HasMemoryLimit() bool { return g.AllocatedMemoryMB > 0 }

// maxOverheadMB caps the memory held back from the granted total.
const maxOverheadMB = 512

// SafeMemoryMB returns the granted memory minus a runtime overhead of 5%,
// at most 512MB. It returns 0 when no memory limit was granted.
func (g Grant) SafeMemoryMB() uint64 {
	if g.AllocatedMemoryMB == 0 {
		return 0
	}
	overhead := min(g.AllocatedMemoryMB/20, maxOverheadMB)
	return g.AllocatedMemoryMB - overhead
}

// String returns a one-line summary suitable for logs.
func (g Grant) String() string {
	if !g.InCluster() {
		return "no scheduler detected"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s job %s", g.Scheduler, orDash(g.JobID))
	if g.HasCPULimit() {
		fmt.Fprintf(&b, ", %d cpus", g.AllocatedCPUs)
	}
	if g.HasMemoryLimit() {
		fmt.Fprintf(&b, ", %d MB", g.AllocatedMemoryMB)
	}
	if g.Partition != "" {
		fmt.Fprintf(&b, ", partition %s", g.Partition)
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Environment looks up process environment variables.
type Environment interface {
	Lookup(key string) (string, bool)
}

// EnvFunc adapts a lookup function to Environment.
type EnvFunc func(key string) (string, bool)

// Lookup implements Environment.
func (f EnvFunc) Lookup(key string) (string, bool) { return f(key) }

// MapEnvironment is a fixed environment, mainly for tests.
type MapEnvironment map[string]string

// Lookup implements Environment.
func (m MapEnvironment) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// OSEnvironment reads the real process environment.
var OSEnvironment Environment = EnvFunc(os.LookupEnv)

// detector recognises one scheduler family and reads its grant.
type detector struct {
	scheduler Scheduler
	idVars    []string
	read      func(env Environment, g *Grant)
}

// detectors is ordered by precedence; the first match wins.
var detectors = []detector{
	{scheduler: Slurm, idVars: []string{"SLURM_JOB_ID"}, read: readSlurm},
	{scheduler: PBS, idVars: []string{"PBS_JOBID", "PBS_JOB_ID"}, read: readPBS},
	{scheduler: SGE, idVars: []string{"JOB_ID", "SGE_JOB_ID"}, read: readSGE},
	{scheduler: LSF, idVars: []string{"LSB_JOBID", "LSF_JOB_ID"}, read: readLSF},
	{scheduler: Unknown, idVars: []string{"BATCH_JOB_ID", "QUEUE", "CLUSTER_NAME"}, read: readUnknown},
}

// Probe inspects env and returns the scheduler grant. It never fails.
func Probe(env Environment) Grant {
	if env == nil {
		env = OSEnvironment
	}

	for _, d := range detectors {
		id, ok := firstSet(env, d.idVars...)
		if !ok {
			continue
		}
		g := Grant{Scheduler: d.scheduler, JobID: id}
		d.read(env, &g)
		logger.Debug("scheduler detected",
			"scheduler", g.Scheduler, "job", g.JobID,
			"cpus", g.AllocatedCPUs, "memory_mb", g.AllocatedMemoryMB,
			"partition", g.Partition)
		return g
	}

	logger.Debug("no scheduler detected")
	return Grant{Scheduler: None}
}

// firstSet returns the first non-empty value among keys.
func firstSet(env Environment, keys ...string) (string, bool) {
	for _, k := range keys {
		if v, ok := env.Lookup(k); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// firstString is firstSet without the presence flag.
func firstString(env Environment, keys ...string) string {
	v, _ := firstSet(env, keys...)
	return v
}
