package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jamesainslie/qcsweep/pkg/qcsweep/config"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/engine"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/logging"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/output"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/shutdown"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/tuner"
	"github.com/jamesainslie/qcsweep/pkg/qcsweep/types"
)

// errRunFailed is returned when at least one file failed. The errors are
// already part of the report, so Execute does not print it again.
var errRunFailed = errors.New("one or more files failed")

var (
	cfgFile      string
	templateText string
	vip          = config.New()
	cfg     *config.Config

	rootCmd = &cobra.Command{
		Use:   "qcsweep",
		Short: "Batch tools for Gaussian output files",
		Long: `qcsweep processes directories of Gaussian jobs in parallel.

Worker counts follow the CPUs and memory granted by the batch scheduler
(Slurm, PBS, SGE, LSF) or the host when run interactively.

Examples:
  qcsweep extract                 # Energies of every .log in the current directory
  qcsweep extract -c 2 --temp 373 # Phase correction at 2 M and 373 K
  qcsweep check all --dry-run     # Show where finished and failed jobs would go
  qcsweep check imode             # Move jobs with an imaginary lowest frequency
  qcsweep high-kj                 # High-level Gibbs energies with parent thermal data
  qcsweep xyz                     # Last geometry of every log as an XYZ file
  qcsweep create -t 4 xyz/        # Input decks for every .xyz file in xyz/
  qcsweep resources               # Show the grant and planned workers`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Close()
		},
	}
)

func init() {
	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/qcsweep/config.yaml)")
	flags.IntP("threads", "t", 0, "worker threads (0=auto)")
	flags.StringP("ext", "e", config.DefaultExtension, "log file extension")
	flags.String("max-file-size", config.DefaultMaxFileSize, "skip larger files (e.g. 100M, 1G; 0=no limit)")
	flags.Int("memory", 0, "memory limit in MB (0=auto)")
	flags.Int("max-handles", config.DefaultMaxHandles, "maximum concurrently open files")
	flags.Float64("rate-limit", 0, "files opened per second (0=unlimited)")
	flags.BoolP("recursive", "r", false, "search subdirectories")
	flags.StringP("output", "o", config.DefaultOutput, "output format: "+strings.Join(output.Available(), ", "))
	flags.BoolP("quiet", "q", false, "minimal output")
	flags.BoolP("verbose", "v", false, "debug output on stderr")
	flags.StringVar(&templateText, "template", "", "Go template used with --output template (fields: .Rows, .Records, .Summary)")

	// Bind flags to viper
	_ = vip.BindPFlag("threads", flags.Lookup("threads"))
	_ = vip.BindPFlag("extension", flags.Lookup("ext"))
	_ = vip.BindPFlag("max_file_size", flags.Lookup("max-file-size"))
	_ = vip.BindPFlag("memory_limit_mb", flags.Lookup("memory"))
	_ = vip.BindPFlag("engine.max_handles", flags.Lookup("max-handles"))
	_ = vip.BindPFlag("engine.rate_limit", flags.Lookup("rate-limit"))
	_ = vip.BindPFlag("recursive", flags.Lookup("recursive"))
	_ = vip.BindPFlag("output", flags.Lookup("output"))
	_ = vip.BindPFlag("quiet", flags.Lookup("quiet"))
	_ = vip.BindPFlag("verbose", flags.Lookup("verbose"))
}

// setup reads the configuration and starts logging before any command.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Read(vip, cfgFile)
	if err != nil {
		return err
	}
	cfg = c

	logCfg, err := loggingConfig(c)
	if err != nil {
		return err
	}
	return logging.Init(logCfg)
}

// loggingConfig maps the logging section onto the logging package.
func loggingConfig(c *config.Config) (logging.Config, error) {
	lc := logging.DefaultConfig()
	if c.Logging.Level != "" {
		lc.Level = c.Logging.Level
	}
	if c.Logging.Path != "" {
		path, err := config.ExpandPath(c.Logging.Path)
		if err != nil {
			return lc, err
		}
		lc.Path = path
	}
	if c.Logging.Rotation.MaxSize != "" {
		size, err := types.ParseSize(c.Logging.Rotation.MaxSize)
		if err != nil {
			return lc, fmt.Errorf("invalid logging.rotation.max_size %q: %w", c.Logging.Rotation.MaxSize, err)
		}
		lc.Rotation.MaxSize = size
	}
	if c.Logging.Rotation.MaxBackups > 0 {
		lc.Rotation.MaxBackups = c.Logging.Rotation.MaxBackups
	}
	lc.Components = c.Logging.Components
	if c.Verbose {
		lc.ConsoleLevel = "debug"
	}
	return lc, nil
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, errRunFailed) {
		printError("%v", err)
	}
	return err
}

// engineOptions maps the configuration onto engine options.
func engineOptions(c *config.Config, w tuner.Workload) (engine.Options, error) {
	opts := engine.Options{
		RequestedThreads: c.Threads,
		Extensions:       searchExtensions(c.Extension),
		MaxHandles:       c.Engine.MaxHandles,
		HandleMargin:     c.Engine.HandleMargin,
		AcquireRetries:   c.Engine.AcquireRetries,
		RateLimit:        c.Engine.RateLimit,
		Workload:         w,
	}

	if c.MemoryLimitMB < 0 {
		return opts, fmt.Errorf("%w: memory limit must not be negative", engine.ErrInvalidOptions)
	}
	opts.MemoryLimitMB = uint64(c.MemoryLimitMB)

	if s := strings.TrimSpace(c.MaxFileSize); s != "" && s != "0" {
		size, err := types.ParseSize(s)
		if err != nil {
			return opts, fmt.Errorf("invalid max file size %q: %w", c.MaxFileSize, err)
		}
		opts.MaxFileSizeMB = max(size/types.MiB, 1)
	}
	return opts, nil
}

// newEngine builds the processing context for one command.
func newEngine(c *config.Config, w tuner.Workload, extra ...engine.Option) (*engine.Context, error) {
	opts, err := engineOptions(c, w)
	if err != nil {
		return nil, err
	}
	return engine.New(opts, extra...)
}

// searchExtensions returns the extensions matched for ext. The default
// .log also matches .out, the other name Gaussian output commonly gets.
func searchExtensions(ext string) []string {
	var exts []string
	for _, e := range strings.Split(ext, ",") {
		if e = strings.TrimSpace(e); e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, strings.ToLower(e))
	}
	if len(exts) == 0 {
		exts = []string{config.DefaultExtension}
	}
	if len(exts) == 1 && exts[0] == config.DefaultExtension {
		exts = append(exts, ".out")
	}
	return exts
}

// runCommand wires signals, progress and output around a command body.
// The body returns a report; any error it returns is fatal.
func runCommand(desc string, body func(ctrl *shutdown.Controller, opts ...engine.Option) (*output.Report, error)) error {
	ctrl := shutdown.New()
	stop := shutdown.NotifySignals(ctrl)
	defer stop()

	opts := []engine.Option{engine.WithShutdown(ctrl)}
	var bar *progress
	if showProgress(cfg) {
		bar = newProgress(os.Stderr, desc)
		opts = append(opts, engine.WithProgress(bar.update))
	}

	report, err := body(ctrl, opts...)
	bar.finish()
	if err != nil {
		return err
	}
	return emit(os.Stdout, cfg.Output, report)
}

// emit renders a report and maps recorded errors to a failed run.
func emit(w io.Writer, format string, r *output.Report) error {
	var data []byte
	if format == "template" && templateText != "" {
		var buf bytes.Buffer
		if err := output.NewTemplateFormatter(templateText).Format(&buf, r); err != nil {
			return fmt.Errorf("invalid template: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = output.Render(format, r); err != nil {
			return err
		}
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if len(r.Errors) > 0 {
		return errRunFailed
	}
	return nil
}

// writeReport saves a report to path in the format its extension names.
func writeReport(path string, r *output.Report) error {
	format := "plain"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		format = "json"
	case ".yaml", ".yml":
		format = "yaml"
	case ".csv":
		format = "csv"
	case ".tsv":
		format = "tsv"
	case ".md":
		format = "markdown"
	}

	data, err := output.Render(format, r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// showProgress reports whether a progress bar belongs on stderr.
func showProgress(c *config.Config) bool {
	if c.Quiet || output.IsMachineReadable(c.Output) {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// dirArg returns the directory argument or ".".
func dirArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "."
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if cfg != nil && cfg.Verbose && !cfg.Quiet {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if cfg == nil || !cfg.Quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
