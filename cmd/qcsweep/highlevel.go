package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/config"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/engine"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/gaussian"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/output"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/shutdown"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/tuner"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

// highTable is one layout of the high-level energy table.
type highTable struct {
	use     string
	short   string
	columns []string
	row     func(gaussian.HighLevel) []string
}

var highTables = []highTable{
	{
		use:     "high-kj",
		short:   "High-level Gibbs free energies in kJ/mol",
		columns: []string{"Output name", "G kJ/mol", "G a.u", "G eV", "LowFQ", "Status", "PhCorr"},
		row:     gibbsRow,
	},
	{
		use:   "high-au",
		short: "High-level energy components in Hartree",
		columns: []string{"Output name", "E high a.u", "E low a.u", "ZPE a.u", "TC a.u", "TS a.u",
			"H a.u", "G a.u", "LowFQ", "PhaseCorr"},
		row: componentsRow,
	},
}

const highLong = `Combine single-point energies of a high-level calculation with the thermal
corrections of the low-level frequency job each was started from.

Run it in the directory holding the high-level logs. The low-level log of
each job is the file of the same name in the parent directory, or the same
job name with a .log or .out extension there.

  H = E(high) + thermal correction to enthalpy
  G = E(high) + thermal correction to Gibbs free energy

Jobs run in solvent (scrf) get the standard-state phase correction at the
low-level temperature. Results are sorted by G, lowest first.`

func init() {
	for _, tbl := range highTables {
		cmd := &cobra.Command{
			Use:   tbl.use + " [dir]",
			Short: tbl.short,
			Long:  highLong,
			Args:  cobra.MaximumNArgs(1),
			RunE:  highRunner(tbl),
		}
		flags := cmd.Flags()
		flags.Float64("temp", 0, "temperature in K (0=read from each low-level log)")
		flags.Float64P("concentration", "c", config.DefaultConcentration, "standard-state concentration in mol/L")
		flags.String("write", "", "also write the results to this file")
		rootCmd.AddCommand(cmd)
	}
}

func highRunner(tbl highTable) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("temp") {
			cfg.Extract.Temperature, _ = flags.GetFloat64("temp")
		}
		if flags.Changed("concentration") {
			cfg.Extract.Concentration, _ = flags.GetFloat64("concentration")
		}
		write, _ := flags.GetString("write")

		dir := dirArg(args)
		return runCommand("combining", func(ctrl *shutdown.Controller, opts ...engine.Option) (*output.Report, error) {
			ctx, cancel := ctrl.Context(cmd.Context())
			defer cancel()

			r, err := highReport(ctx, cfg, dir, tbl, opts...)
			if err != nil {
				return nil, err
			}
			if write != "" {
				if err := writeReport(write, r); err != nil {
					return nil, err
				}
				printVerbose("results written to %s", write)
			}
			return r, nil
		})
	}
}

// highReport combines every high-level log under dir with its parent log.
func highReport(ctx context.Context, c *config.Config, dir string, tbl highTable, opts ...engine.Option) (*output.Report, error) {
	if c.Extract.Temperature < 0 || c.Extract.Concentration < 0 {
		return nil, errors.New("temperature and concentration must not be negative")
	}

	ec, err := newEngine(c, tuner.WorkloadExtract, opts...)
	if err != nil {
		return nil, err
	}

	r := &output.Report{Command: tbl.use}
	paths, err := findInputs(ctx, ec, r, dir, ec.Opts.Extensions, c.Recursive)
	if err != nil {
		return nil, err
	}

	popts := gaussian.ParseOptions{
		Temperature:      c.Extract.Temperature,
		FixedTemperature: c.Extract.Temperature > 0,
		ConcentrationM:   c.Extract.Concentration,
	}

	results := make([]gaussian.HighLevel, len(paths))
	combined := make([]bool, len(paths))
	stats := ec.Run(ctx, paths, func(_ context.Context, it engine.Item) error {
		parent, err := gaussian.ParentLog(it.Path)
		if err != nil {
			return err
		}
		high, err := parseLog(ec, it.Path, popts)
		if err != nil {
			return err
		}
		low, err := parseLog(ec, parent, popts)
		if err != nil {
			return fmt.Errorf("parent log: %w", err)
		}
		results[it.Index] = gaussian.CombineHighLevel(high, low, popts.ConcentrationM)
		combined[it.Index] = true
		return nil
	})

	var rows []gaussian.HighLevel
	for i, ok := range combined {
		if ok {
			rows = append(rows, results[i])
		}
	}
	gaussian.SortHighLevel(rows)

	temp := "from parent log"
	if popts.FixedTemperature {
		temp = fmt.Sprintf("%.2f K", c.Extract.Temperature)
	}
	parentDir := ".."
	if abs, err := filepath.Abs(dir); err == nil {
		parentDir = filepath.Dir(abs)
	}
	r.AddParam("Directory", dir)
	r.AddParam("Parent directory", parentDir)
	r.AddParam("Temperature", temp)
	r.AddParam("Concentration", fmt.Sprintf("%g M", c.Extract.Concentration))
	r.AddParam("Workers", stats.Workers)

	r.Columns = tbl.columns
	for _, h := range rows {
		r.Rows = append(r.Rows, tbl.row(h))
	}

	summary := types.ExtractSummary{
		TotalFiles:    stats.Total,
		Processed:     stats.Processed,
		Extracted:     len(rows),
		Failed:        stats.Failed,
		Skipped:       stats.Skipped,
		ExecutionTime: stats.Elapsed,
	}
	r.AddSummary("Files", summary.TotalFiles)
	r.AddSummary("Combined", summary.Extracted)
	r.AddSummary("Failed", summary.Failed)
	r.AddSummary("Skipped", summary.Skipped)
	r.AddSummary("Time", summary.ExecutionTime.Round(time.Millisecond).String())

	finishReport(r, ec, stats)
	return r, nil
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func gibbsRow(h gaussian.HighLevel) []string {
	return []string{
		truncateName(h.Name, nameWidth),
		strconv.FormatFloat(h.GibbsKJ, 'f', 6, 64),
		strconv.FormatFloat(h.Gibbs, 'f', 6, 64),
		strconv.FormatFloat(h.GibbsEV, 'f', 6, 64),
		strconv.FormatFloat(h.LowestFreq, 'f', 4, 64),
		string(h.Status),
		yesNo(h.PhaseCorrected),
	}
}

func componentsRow(h gaussian.HighLevel) []string {
	return []string{
		truncateName(h.Name, nameWidth),
		strconv.FormatFloat(h.EHigh, 'f', 8, 64),
		strconv.FormatFloat(h.ELow, 'f', 8, 64),
		strconv.FormatFloat(h.ZPE, 'f', 6, 64),
		strconv.FormatFloat(h.ThermalOnly, 'f', 6, 64),
		strconv.FormatFloat(h.TS, 'f', 6, 64),
		strconv.FormatFloat(h.Enthalpy, 'f', 6, 64),
		strconv.FormatFloat(h.Gibbs, 'f', 6, 64),
		strconv.FormatFloat(h.LowestFreq, 'f', 4, 64),
		yesNo(h.PhaseCorrected),
	}
}
