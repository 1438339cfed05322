// Package logging provides component loggers for qcsweep built on
// charmbracelet/log. Records go to a rotating file and, optionally, to
// stderr at a separate level.
//
//	if err := logging.Init(logging.Config{Level: "info"}); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("pool")
//	logger.Info("pool started", "workers", 4)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default file log level.
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components maps component names to level overrides.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level. Empty disables it.
	ConsoleLevel string

	// Console overrides the console writer. Defaults to os.Stderr.
	Console io.Writer
}

// backend is the pair of charm loggers a component writes through.
type backend struct {
	file    *log.Logger
	console *log.Logger
}

// Logger is a component logger. Loggers obtained before Init are rebound
// when Init runs, so package-level loggers are safe to create early.
type Logger struct {
	component string
	fields    []interface{}
	backend   atomic.Pointer[backend]
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args) }

// Component returns the component name of the logger.
func (l *Logger) Component() string { return l.component }

func (l *Logger) log(level Level, msg string, args []interface{}) {
	b := l.backend.Load()
	if b == nil {
		return
	}
	if len(l.fields) > 0 {
		args = append(append([]interface{}{}, l.fields...), args...)
	}
	logTo(b.file, level, msg, args)
	if b.console != nil {
		logTo(b.console, level, msg, args)
	}
}

func logTo(logger *log.Logger, level Level, msg string, args []interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// With returns a logger carrying extra key/value pairs on every record.
// The derived logger shares the parent's backend.
func (l *Logger) With(args ...interface{}) *Logger {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	child := &Logger{
		component: l.component,
		fields:    append(append([]interface{}{}, l.fields...), args...),
	}
	child.backend.Store(l.backend.Load())
	globalState.derived[l.component] = append(globalState.derived[l.component], child)
	return child
}

type state struct {
	mu          sync.RWMutex
	initialized bool
	writer      *RotatingWriter
	console     io.Writer
	level       Level
	consoleOn   bool
	consoleLvl  Level
	components  map[string]Level
	loggers     map[string]*Logger
	derived     map[string][]*Logger
}

var globalState = &state{
	loggers:    make(map[string]*Logger),
	derived:    make(map[string][]*Logger),
	components: make(map[string]Level),
}

// Init initializes the logging system. Calling it again replaces the
// previous configuration and closes the previous file.
func Init(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	var consoleLvl Level
	consoleOn := cfg.ConsoleLevel != ""
	if consoleOn {
		if consoleLvl, err = ParseLevel(cfg.ConsoleLevel); err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if globalState.writer != nil {
		_ = globalState.writer.Close()
	}

	globalState.writer = writer
	globalState.level = level
	globalState.components = components
	globalState.consoleOn = consoleOn
	globalState.consoleLvl = consoleLvl
	globalState.console = cfg.Console
	if globalState.console == nil {
		globalState.console = os.Stderr
	}
	globalState.initialized = true

	globalState.rebind()
	return nil
}

// Get returns the logger for a component, creating it on first use.
func Get(component string) *Logger {
	globalState.mu.RLock()
	if l, ok := globalState.loggers[component]; ok {
		globalState.mu.RUnlock()
		return l
	}
	globalState.mu.RUnlock()

	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if l, ok := globalState.loggers[component]; ok {
		return l
	}
	l := &Logger{component: component}
	l.backend.Store(globalState.newBackend(component))
	globalState.loggers[component] = l
	return l
}

// Close flushes and closes the log file. Loggers fall back to discarding.
func Close() error {
	globalState.mu.Lock()
	defer globalState.mu.Unlock()

	if !globalState.initialized {
		return nil
	}

	globalState.initialized = false
	globalState.rebind()

	if globalState.writer != nil {
		err := globalState.writer.Close()
		globalState.writer = nil
		if err != nil {
			return fmt.Errorf("closing log writer: %w", err)
		}
	}
	return nil
}

// rebind swaps the backend of every known logger. Must hold s.mu.
func (s *state) rebind() {
	for comp, l := range s.loggers {
		b := s.newBackend(comp)
		l.backend.Store(b)
		for _, child := range s.derived[comp] {
			child.backend.Store(b)
		}
	}
}

// newBackend builds the charm loggers for a component. Must hold s.mu.
func (s *state) newBackend(component string) *backend {
	level := s.level
	if lvl, ok := s.components[component]; ok {
		level = lvl
	}

	if !s.initialized {
		return &backend{file: log.NewWithOptions(io.Discard, log.Options{Prefix: component})}
	}

	b := &backend{
		file: log.NewWithOptions(s.writer, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
	}
	if s.consoleOn {
		b.console = log.NewWithOptions(s.console, log.Options{
			Level:           s.consoleLvl.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	return b
}

// DefaultLogPath returns $XDG_STATE_HOME/qcsweep/qcsweep.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "qcsweep", "qcsweep.log")
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
