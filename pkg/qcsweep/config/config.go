package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. QCSWEEP_THREADS.
const EnvPrefix = "QCSWEEP"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// EngineConfig tunes the batch engine's resource governors.
type EngineConfig struct {
	MaxHandles     int     `mapstructure:"max_handles"`
	HandleMargin   int     `mapstructure:"handle_margin"`
	AcquireRetries int     `mapstructure:"acquire_retries"`
	RateLimit      float64 `mapstructure:"rate_limit"`
}

// ExtractConfig configures energy extraction.
type ExtractConfig struct {
	// Temperature in K. Zero reads it from each log.
	Temperature   float64 `mapstructure:"temperature"`
	Concentration float64 `mapstructure:"concentration"`
	SortColumn    int     `mapstructure:"sort_column"`
}

// CheckConfig configures job status checks.
type CheckConfig struct {
	DoneSuffix  string `mapstructure:"done_suffix"`
	ErrorSuffix string `mapstructure:"error_suffix"`
	PCMSuffix   string `mapstructure:"pcm_suffix"`
	ImagSuffix  string `mapstructure:"imaginary_suffix"`
	DryRun      bool   `mapstructure:"dry_run"`
}

// CreateConfig configures input deck generation.
type CreateConfig struct {
	CalcType     string `mapstructure:"calc_type"`
	Functional   string `mapstructure:"functional"`
	Basis        string `mapstructure:"basis"`
	Charge       int    `mapstructure:"charge"`
	Multiplicity int    `mapstructure:"multiplicity"`
	Solvent      string `mapstructure:"solvent"`
	SolventModel string `mapstructure:"solvent_model"`
	Memory       string `mapstructure:"memory"`
	NProc        int    `mapstructure:"nproc"`
	Extension    string `mapstructure:"extension"`
	Overwrite    bool   `mapstructure:"overwrite"`
}

// Config represents the application configuration.
type Config struct {
	Threads       int           `mapstructure:"threads"`
	Extension     string        `mapstructure:"extension"`
	MaxFileSize   string        `mapstructure:"max_file_size"`
	MemoryLimitMB int           `mapstructure:"memory_limit_mb"`
	Recursive     bool          `mapstructure:"recursive"`
	Output        string        `mapstructure:"output"`
	Quiet         bool          `mapstructure:"quiet"`
	Verbose       bool          `mapstructure:"verbose"`
	Engine        EngineConfig  `mapstructure:"engine"`
	Extract       ExtractConfig `mapstructure:"extract"`
	Check         CheckConfig   `mapstructure:"check"`
	Create        CreateConfig  `mapstructure:"create"`
	Logging       LoggingConfig `mapstructure:"logging"`
}

// New returns a viper instance with qcsweep's search paths, environment
// binding and defaults applied. Callers may bind flags before calling Read.
func New() *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if dir, err := ConfigDir(); err == nil {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("threads", 0)
	v.SetDefault("extension", DefaultExtension)
	v.SetDefault("max_file_size", DefaultMaxFileSize)
	v.SetDefault("memory_limit_mb", 0)
	v.SetDefault("recursive", false)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("quiet", false)
	v.SetDefault("verbose", false)

	v.SetDefault("engine.max_handles", DefaultMaxHandles)
	v.SetDefault("engine.handle_margin", DefaultHandleMargin)
	v.SetDefault("engine.acquire_retries", DefaultAcquireRetries)
	v.SetDefault("engine.rate_limit", 0.0)

	v.SetDefault("extract.temperature", 0.0)
	v.SetDefault("extract.concentration", DefaultConcentration)
	v.SetDefault("extract.sort_column", DefaultSortColumn)

	v.SetDefault("check.done_suffix", DefaultDoneSuffix)
	v.SetDefault("check.error_suffix", DefaultErrorSuffix)
	v.SetDefault("check.pcm_suffix", DefaultPCMSuffix)
	v.SetDefault("check.imaginary_suffix", DefaultImagSuffix)
	v.SetDefault("check.dry_run", false)

	v.SetDefault("create.calc_type", DefaultCalcType)
	v.SetDefault("create.functional", DefaultFunctional)
	v.SetDefault("create.basis", DefaultBasis)
	v.SetDefault("create.charge", 0)
	v.SetDefault("create.multiplicity", DefaultMultiplicity)
	v.SetDefault("create.solvent", "")
	v.SetDefault("create.solvent_model", DefaultSolventModel)
	v.SetDefault("create.memory", "")
	v.SetDefault("create.nproc", 0)
	v.SetDefault("create.extension", DefaultDeckExt)
	v.SetDefault("create.overwrite", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.components", map[string]string{})
}

// Read reads the config file into v (an explicit file when path is set)
// and unmarshals the result. A missing default config file is not an error.
func Read(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Load loads configuration from the default locations and environment.
func Load() (*Config, error) {
	return Read(New(), "")
}

// ConfigDir returns the configuration directory:
// $XDG_CONFIG_HOME/qcsweep, falling back to ~/.config/qcsweep.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "qcsweep"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "qcsweep"), nil
}

// ConfigPath returns the path of the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// StateDir returns $XDG_STATE_HOME/qcsweep, where logs are written.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "qcsweep")
}

// WriteDefault writes a commented default config file if none exists and
// returns its path.
func WriteDefault() (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# qcsweep configuration

# Worker threads (0 = plan from CPUs, scheduler grant and memory)
threads: 0

# Log extension processed by extract and check
extension: %s

# Larger files are skipped
max_file_size: %s

# Memory ceiling for in-flight files in MB (0 = auto)
memory_limit_mb: 0

# Report format: pretty, plain, json, yaml, tsv, csv, markdown
output: %s

engine:
  # Concurrently open files, clamped to the descriptor limit
  max_handles: %d
  # Descriptors kept free below RLIMIT_NOFILE
  handle_margin: %d
  acquire_retries: %d
  # Files opened per second (0 = unlimited), useful on network filesystems
  rate_limit: 0

extract:
  # Kelvin; 0 reads the temperature from each log
  temperature: 0
  # mol/L for the phase correction
  concentration: %g
  sort_column: %d

check:
  done_suffix: %s
  error_suffix: %s
  pcm_suffix: %s
  imaginary_suffix: %s

create:
  calc_type: %s
  functional: %s
  basis: "%s"
  charge: 0
  multiplicity: %d
  solvent: ""
  solvent_model: %s
  extension: %s

logging:
  level: info
  # Empty means $XDG_STATE_HOME/qcsweep/qcsweep.log
  path: ""
  rotation:
    max_size: 10MB
    max_backups: 3
  components: {}
`, DefaultExtension, DefaultMaxFileSize, DefaultOutput,
		DefaultMaxHandles, DefaultHandleMargin, DefaultAcquireRetries,
		DefaultConcentration, DefaultSortColumn,
		DefaultDoneSuffix, DefaultErrorSuffix, DefaultPCMSuffix, DefaultImagSuffix,
		DefaultCalcType, DefaultFunctional, DefaultBasis, DefaultMultiplicity,
		DefaultSolventModel, DefaultDeckExt)

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, path[1:]), nil
}
