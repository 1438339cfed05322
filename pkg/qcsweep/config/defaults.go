// Package config loads qcsweep configuration from config.yaml, QCSWEEP_
// environment variables and built-in defaults using viper.
package config

// Default configuration values.
const (
	// DefaultExtension is the log file extension processed by extract and check.
	DefaultExtension = ".log"

	// DefaultMaxFileSize excludes unusually large logs from a run.
	DefaultMaxFileSize = "100MB"

	// DefaultMaxHandles caps concurrently open files across all workers.
	DefaultMaxHandles = 20

	// DefaultHandleMargin is the number of descriptors left free below the
	// process RLIMIT_NOFILE for stdio, the log file and config reads.
	DefaultHandleMargin = 64

	// DefaultAcquireRetries is how many times a worker retries a handle
	// permit before skipping the file.
	DefaultAcquireRetries = 3

	// DefaultOutput is the report format.
	DefaultOutput = "pretty"

	// DefaultSortColumn orders extract results by Gibbs free energy (kJ/mol).
	DefaultSortColumn = 2

	// DefaultConcentration is the standard-state concentration in mol/L used
	// for the gas-to-solution phase correction.
	DefaultConcentration = 1.0

	// Directory suffixes used by the check command.
	DefaultDoneSuffix  = "done"
	DefaultErrorSuffix = "errorJobs"
	DefaultPCMSuffix   = "PCMMkU"
	DefaultImagSuffix  = "imaginary_freqs"

	// Input deck defaults used by the create command.
	DefaultCalcType     = "opt_freq"
	DefaultFunctional   = "B3LYP"
	DefaultBasis        = "6-31G(d)"
	DefaultMultiplicity = 1
	DefaultSolventModel = "smd"
	DefaultDeckExt      = ".gau"
)
