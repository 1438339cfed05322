package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
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

var createCmd = &cobra.Command{
	Use:   "create [xyz files or dirs...]",
	Short: "Generate Gaussian input decks from XYZ files",
	Long: `Generate one Gaussian input deck per XYZ geometry. Directories are
searched for .xyz files; with no arguments the current directory is used.

Calculation types:
  sp        single point
  opt_freq  optimization and frequencies
  ts_freq   transition state search and frequencies`,
	RunE: runCreate,
}

func init() {
	flags := createCmd.Flags()
	flags.String("calc-type", config.DefaultCalcType, "calculation type: sp, opt_freq, ts_freq")
	flags.String("functional", config.DefaultFunctional, "DFT functional")
	flags.String("basis", config.DefaultBasis, "basis set")
	flags.Int("charge", 0, "molecular charge")
	flags.Int("mult", config.DefaultMultiplicity, "spin multiplicity")
	flags.String("solvent", "", "implicit solvent name (empty for gas phase)")
	flags.String("solvent-model", config.DefaultSolventModel, "implicit solvent model")
	flags.String("mem", "", "Gaussian %mem, e.g. 8GB")
	flags.Int("nproc", 0, "Gaussian %nprocshared (0=omit)")
	flags.String("deck-ext", config.DefaultDeckExt, "extension of generated decks")
	flags.Bool("overwrite", false, "replace existing decks")

	_ = vip.BindPFlag("create.calc_type", flags.Lookup("calc-type"))
	_ = vip.BindPFlag("create.functional", flags.Lookup("functional"))
	_ = vip.BindPFlag("create.basis", flags.Lookup("basis"))
	_ = vip.BindPFlag("create.charge", flags.Lookup("charge"))
	_ = vip.BindPFlag("create.multiplicity", flags.Lookup("mult"))
	_ = vip.BindPFlag("create.solvent", flags.Lookup("solvent"))
	_ = vip.BindPFlag("create.solvent_model", flags.Lookup("solvent-model"))
	_ = vip.BindPFlag("create.memory", flags.Lookup("mem"))
	_ = vip.BindPFlag("create.nproc", flags.Lookup("nproc"))
	_ = vip.BindPFlag("create.extension", flags.Lookup("deck-ext"))
	_ = vip.BindPFlag("create.overwrite", flags.Lookup("overwrite"))

	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	return runCommand("creating", func(ctrl *shutdown.Controller, opts ...engine.Option) (*output.Report, error) {
		ctx, cancel := ctrl.Context(cmd.Context())
		defer cancel()
		return createReport(ctx, cfg, args, opts...)
	})
}

// deckFromConfig builds the deck template from the create section.
func deckFromConfig(c *config.Config) (gaussian.Deck, error) {
	calc, err := gaussian.ParseCalcType(c.Create.CalcType)
	if err != nil {
		return gaussian.Deck{}, err
	}
	return gaussian.Deck{
		Calc:         calc,
		Functional:   c.Create.Functional,
		Basis:        c.Create.Basis,
		Charge:       c.Create.Charge,
		Multiplicity: c.Create.Multiplicity,
		Solvent:      c.Create.Solvent,
		SolventModel: c.Create.SolventModel,
		Memory:       c.Create.Memory,
		NProc:        c.Create.NProc,
	}, nil
}

// createReport writes an input deck next to every XYZ file named by args.
func createReport(ctx context.Context, c *config.Config, args []string, opts ...engine.Option) (*output.Report, error) {
	deck, err := deckFromConfig(c)
	if err != nil {
		return nil, err
	}
	ext := c.Create.Extension
	if ext == "" {
		ext = config.DefaultDeckExt
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	ec, err := newEngine(c, tuner.WorkloadCreate, opts...)
	if err != nil {
		return nil, err
	}

	r := &output.Report{Command: "create"}
	if len(args) == 0 {
		args = []string{"."}
	}
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := findInputs(ctx, ec, r, arg, []string{".xyz"}, c.Recursive)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}

	rows := make([][]string, len(paths))
	var created atomic.Int64
	stats := ec.Run(ctx, paths, func(_ context.Context, it engine.Item) error {
		dest := strings.TrimSuffix(it.Path, filepath.Ext(it.Path)) + ext
		if !c.Create.Overwrite {
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("%w: %s exists", engine.ErrSkipped, filepath.Base(dest))
			}
		}

		f, err := os.Open(it.Path)
		if err != nil {
			return err
		}
		geom, err := gaussian.ParseXYZ(f)
		f.Close()
		if err != nil {
			return err
		}

		name := strings.TrimSuffix(filepath.Base(it.Path), filepath.Ext(it.Path))
		text, err := deck.Render(name, geom)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dest, []byte(text), 0o644); err != nil {
			return err
		}
		created.Add(1)
		rows[it.Index] = []string{it.Path, dest, fmt.Sprint(len(geom.Atoms))}
		return nil
	})

	r.AddParam("Calculation", string(deck.Calc))
	r.AddParam("Route", deck.Route())
	r.AddParam("Charge/Multiplicity", fmt.Sprintf("%d %d", deck.Charge, deck.Multiplicity))
	r.AddParam("Workers", stats.Workers)

	r.Columns = []string{"Geometry", "Input deck", "Atoms"}
	for _, row := range rows {
		if row != nil {
			r.Rows = append(r.Rows, row)
		}
	}

	summary := types.CreateSummary{
		TotalFiles:    stats.Total,
		Processed:     stats.Processed,
		Created:       int(created.Load()),
		Failed:        stats.Failed,
		Skipped:       stats.Skipped,
		ExecutionTime: stats.Elapsed,
	}
	r.AddSummary("Files", summary.TotalFiles)
	r.AddSummary("Created", summary.Created)
	r.AddSummary("Failed", summary.Failed)
	r.AddSummary("Skipped", summary.Skipped)
	r.AddSummary("Time", summary.ExecutionTime.Round(time.Millisecond).String())

	finishReport(r, ec, stats)
	return r, nil
}
