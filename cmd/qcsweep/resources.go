package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/config"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/engine"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/output"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/tuner"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

// planItems stands in for an unbounded batch when showing worker plans.
const planItems = 1 << 20

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Show the scheduler grant and planned workers",
	Long: `Show what qcsweep detects before a run: the batch scheduler allocation,
host CPUs and memory, the memory ceiling, the open file capacity and the
number of workers each command would start.`,
	Args: cobra.NoArgs,
	RunE: runResources,
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}

func runResources(cmd *cobra.Command, args []string) error {
	r, err := resourcesReport(cfg)
	if err != nil {
		return err
	}
	return emit(cmd.OutOrStdout(), cfg.Output, r)
}

// resourcesReport describes the environment a run would see.
func resourcesReport(c *config.Config, opts ...engine.Option) (*output.Report, error) {
	ec, err := newEngine(c, tuner.WorkloadCheck, opts...)
	if err != nil {
		return nil, err
	}

	r := &output.Report{Command: "resources", Columns: []string{"Resource", "Value"}}
	add := func(name string, value interface{}) {
		r.Rows = append(r.Rows, []string{name, fmt.Sprint(value)})
	}

	g := ec.Grant
	add("Scheduler", g.Scheduler)
	if g.InCluster() {
		add("Job ID", orNone(g.JobID))
		add("Partition", orNone(g.Partition))
		add("Account", orNone(g.Account))
		add("Nodes", g.Nodes)
		add("Granted CPUs", countOrNone(g.AllocatedCPUs))
		if g.HasMemoryLimit() {
			add("Granted memory", types.FormatMB(g.AllocatedMemoryMB))
			add("Usable memory", types.FormatMB(g.SafeMemoryMB()))
		} else {
			add("Granted memory", "none")
		}
	}

	add("Host CPUs", countOrNone(ec.System.CPUCores))
	if ec.System.TotalMB() > 0 {
		add("Host memory", types.FormatMB(ec.System.TotalMB()))
		add("Available memory", types.FormatMB(ec.System.AvailableMB()))
	}
	add("Memory limit", types.FormatMB(ec.MemoryLimitMB()))
	add("File handles", ec.Handles.Capacity())

	for _, w := range []tuner.Workload{tuner.WorkloadExtract, tuner.WorkloadCheck, tuner.WorkloadCreate} {
		ec.Opts.Workload = w
		add("Workers ("+w.Name+")", ec.PlanWorkers(planItems))
	}

	r.AddParam("Run", ec.RunID)
	r.Warnings = ec.Errors.Warnings()
	return r, nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func countOrNone(n int) string {
	if n <= 0 {
		return "unknown"
	}
	return fmt.Sprint(n)
}
