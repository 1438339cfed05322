package cluster

import (
	"strconv"
	"strings"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

func readSlurm(env Environment, g *Grant) {
	if perTask := positiveInt(env, "SLURM_CPUS_PER_TASK"); perTask > 0 {
		tasks := positiveInt(env, "SLURM_NTASKS")
		if tasks == 0 {
			tasks = 1
		}
		g.AllocatedCPUs = perTask * tasks
	} else if v, ok := firstSet(env, "SLURM_JOB_CPUS_PER_NODE"); ok {
		g.AllocatedCPUs = parseSlurmCPUList(v)
	}

	if v, ok := firstSet(env, "SLURM_MEM_PER_NODE"); ok {
		g.AllocatedMemoryMB = memoryMB(v, types.MiB)
	} else if v, ok := firstSet(env, "SLURM_MEM_PER_CPU"); ok && g.AllocatedCPUs > 0 {
		if perCPU := memoryMB(v, types.MiB); perCPU > 0 {
			g.AllocatedMemoryMB = perCPU * uint64(g.AllocatedCPUs)
		}
	}

	g.Partition = firstString(env, "SLURM_JOB_PARTITION")
	g.Account = firstString(env, "SLURM_JOB_ACCOUNT")
	g.Nodes = positiveInt(env, "SLURM_JOB_NUM_NODES")
}

func readPBS(env Environment, g *Grant) {
	resources := parseResourceList(firstString(env, "PBS_RESOURCE_LIST"))

	g.AllocatedCPUs = positiveInt(env, "PBS_NUM_PPN", "PBS_NCPUS", "NCPUS")
	if g.AllocatedCPUs == 0 {
		g.AllocatedCPUs = atoiPositive(resources["ncpus"])
	}

	if v, ok := firstSet(env, "PBS_RESOURCE_MEM", "PBS_MEM"); ok {
		g.AllocatedMemoryMB = memoryMB(v, 1)
	} else if v := resources["mem"]; v != "" {
		g.AllocatedMemoryMB = memoryMB(v, 1)
	}

	g.Partition = firstString(env, "PBS_QUEUE")
	g.Account = firstString(env, "PBS_ACCOUNT")
	g.Nodes = positiveInt(env, "PBS_NUM_NODES")
}

func readSGE(env Environment, g *Grant) {
	g.AllocatedCPUs = positiveInt(env, "NSLOTS", "SGE_NSLOTS")
	if v, ok := firstSet(env, "SGE_MEM", "MEMORY"); ok {
		g.AllocatedMemoryMB = memoryMB(v, types.MiB)
	}
	g.Partition = firstString(env, "QUEUE")
	g.Account = firstString(env, "SGE_ACCOUNT")
}

func readLSF(env Environment, g *Grant) {
	g.AllocatedCPUs = positiveInt(env, "LSB_MAX_NUM_PROCESSORS")
	if v, ok := firstSet(env, "LSB_MEM"); ok {
		g.AllocatedMemoryMB = memoryMB(v, types.MiB)
	}
	g.Partition = firstString(env, "LSB_QUEUE")
	g.Account = firstString(env, "LSB_PROJECT_NAME")
}

func readUnknown(env Environment, g *Grant) {
	g.JobID = firstString(env, "BATCH_JOB_ID")
	g.Partition = firstString(env, "QUEUE")
}

// positiveInt returns the first key that parses as a positive integer,
// or 0 when none does.
func positiveInt(env Environment, keys ...string) int {
	for _, k := range keys {
		v, ok := env.Lookup(k)
		if !ok {
			continue
		}
		if n := atoiPositive(v); n > 0 {
			return n
		}
		logger.Debug("ignoring malformed scheduler value", "var", k, "value", v)
	}
	return 0
}

func atoiPositive(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

// memoryMB parses a scheduler memory value. bareUnit is the unit of a
// number without suffix. Unparseable values yield 0.
func memoryMB(s string, bareUnit int64) uint64 {
	bytes, err := types.ParseSizeUnit(s, bareUnit)
	if err != nil || bytes <= 0 {
		logger.Debug("ignoring malformed memory value", "value", s, "error", err)
		return 0
	}
	return uint64(bytes / types.MiB)
}

// parseSlurmCPUList sums a SLURM_JOB_CPUS_PER_NODE value such as
// "16", "8,8" or "36(x2),8". Any malformed entry makes the whole value unknown.
func parseSlurmCPUList(s string) int {
	total := 0
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return 0
		}
		count, repeat := part, "1"
		if open := strings.Index(part, "(x"); open >= 0 {
			if !strings.HasSuffix(part, ")") {
				return 0
			}
			count = part[:open]
			repeat = part[open+2 : len(part)-1]
		}
		c, r := atoiPositive(count), atoiPositive(repeat)
		if c == 0 || r == 0 {
			return 0
		}
		total += c * r
	}
	return total
}

// parseResourceList splits a PBS resource list like
// "nodes=1:ppn=8,mem=16gb,walltime=01:00:00" into key/value pairs.
func parseResourceList(s string) map[string]string {
	out := make(map[string]string)
	for _, field := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ':' }) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}
