package main

import (
	"context"
	"errors"
	"fmt"
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

// nameWidth is how many trailing characters of a file name are shown.
const nameWidth = 53

var extractWrite string

var extractCmd = &cobra.Command{
	Use:   "extract [dir]",
	Short: "Extract energies from Gaussian logs",
	Long: `Extract SCF, zero-point and Gibbs free energies from every Gaussian log
in a directory, sorted by the chosen column.

Sort columns:
  2  Gibbs free energy (kJ/mol)     5  nuclear repulsion
  3  lowest frequency               6  SCF energy
  4  Gibbs free energy (Hartree)    7  zero-point energy
  10 copyright count (number of linked jobs)

Logs compressed with gzip or zstd are read transparently.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	flags := extractCmd.Flags()
	flags.Float64("temp", 0, "temperature in K (0=read from each log)")
	flags.Float64P("concentration", "c", config.DefaultConcentration, "standard-state concentration in mol/L")
	flags.Int("column", config.DefaultSortColumn, "sort column")
	flags.StringVar(&extractWrite, "write", "", "also write the results to this file")

	_ = vip.BindPFlag("extract.temperature", flags.Lookup("temp"))
	_ = vip.BindPFlag("extract.concentration", flags.Lookup("concentration"))
	_ = vip.BindPFlag("extract.sort_column", flags.Lookup("column"))

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	dir := dirArg(args)
	return runCommand("extracting", func(ctrl *shutdown.Controller, opts ...engine.Option) (*output.Report, error) {
		ctx, cancel := ctrl.Context(cmd.Context())
		defer cancel()

		r, err := extractReport(ctx, cfg, dir, opts...)
		if err != nil {
			return nil, err
		}
		if extractWrite != "" {
			if err := writeReport(extractWrite, r); err != nil {
				return nil, err
			}
			printVerbose("results written to %s", extractWrite)
		}
		return r, nil
	})
}

// extractReport parses every log under dir and tabulates the energies.
func extractReport(ctx context.Context, c *config.Config, dir string, opts ...engine.Option) (*output.Report, error) {
	column := c.Extract.SortColumn
	if !gaussian.ValidColumn(column) {
		return nil, fmt.Errorf("invalid sort column %d (valid: 2-7, 10)", column)
	}
	if c.Extract.Temperature < 0 || c.Extract.Concentration < 0 {
		return nil, errors.New("temperature and concentration must not be negative")
	}

	ec, err := newEngine(c, tuner.WorkloadExtract, opts...)
	if err != nil {
		return nil, err
	}

	r := &output.Report{Command: "extract"}
	paths, err := findInputs(ctx, ec, r, dir, ec.Opts.Extensions, c.Recursive)
	if err != nil {
		return nil, err
	}

	popts := gaussian.ParseOptions{
		Temperature:      c.Extract.Temperature,
		FixedTemperature: c.Extract.Temperature > 0,
		ConcentrationM:   c.Extract.Concentration,
	}

	results := make([]gaussian.Result, len(paths))
	parsed := make([]bool, len(paths))
	stats := ec.Run(ctx, paths, func(_ context.Context, it engine.Item) error {
		res, err := parseLog(ec, it.Path, popts)
		if err != nil {
			return err
		}
		results[it.Index] = res
		parsed[it.Index] = true
		return nil
	})

	var rows []gaussian.Result
	for i, ok := range parsed {
		if ok {
			rows = append(rows, results[i])
		}
	}
	if err := gaussian.SortResults(rows, column); err != nil {
		return nil, err
	}

	temp := "from log"
	if popts.FixedTemperature {
		temp = fmt.Sprintf("%.2f K", c.Extract.Temperature)
	}
	r.AddParam("Directory", dir)
	r.AddParam("Temperature", temp)
	r.AddParam("Concentration", fmt.Sprintf("%g M", popts.ConcentrationM))
	r.AddParam("Sort column", column)
	r.AddParam("Workers", stats.Workers)
	r.AddParam("Memory limit", types.FormatMB(ec.MemoryLimitMB()))

	r.Columns = []string{"Output name", "ETG kJ/mol", "Low FC", "ETG a.u", "Nuclear E au",
		"SCFE", "ZPE", "Status", "PCorr", "Round", "dG kJ/mol"}
	rel := gaussian.RelativeEnergies(rows)
	for i, res := range rows {
		r.Rows = append(r.Rows, extractRow(res, rel[i]))
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
	r.AddSummary("Extracted", summary.Extracted)
	r.AddSummary("Failed", summary.Failed)
	r.AddSummary("Skipped", summary.Skipped)
	r.AddSummary("Peak memory", types.FormatSize(int64(stats.PeakMemory)))
	r.AddSummary("Time", summary.ExecutionTime.Round(time.Millisecond).String())

	finishReport(r, ec, stats)
	return r, nil
}

func extractRow(res gaussian.Result, relKJ float64) []string {
	return []string{
		truncateName(res.Name, nameWidth),
		strconv.FormatFloat(res.GibbsKJ, 'f', 6, 64),
		strconv.FormatFloat(res.LowestFreq, 'f', 2, 64),
		strconv.FormatFloat(res.GibbsHartree, 'f', 6, 64),
		strconv.FormatFloat(res.Nuclear, 'f', 6, 64),
		strconv.FormatFloat(res.SCF, 'f', 6, 64),
		strconv.FormatFloat(res.ZPE, 'f', 6, 64),
		string(res.Status),
		yesNo(res.PhaseCorrected),
		strconv.Itoa(res.Copyrights),
		strconv.FormatFloat(relKJ, 'f', 2, 64),
	}
}

// truncateName keeps the last n characters of name, which carry the
// distinguishing part of long job names.
func truncateName(name string, n int) string {
	runes := []rune(name)
	if len(runes) <= n {
		return name
	}
	return string(runes[len(runes)-n:])
}
