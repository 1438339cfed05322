package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Extension != DefaultExtension {
		t.Errorf("Extension = %q, want %q", cfg.Extension, DefaultExtension)
	}
	if cfg.MaxFileSize != DefaultMaxFileSize {
		t.Errorf("MaxFileSize = %q, want %q", cfg.MaxFileSize, DefaultMaxFileSize)
	}
	if cfg.Threads != 0 {
		t.Errorf("Threads = %d, want 0", cfg.Threads)
	}
	if cfg.Engine.MaxHandles != DefaultMaxHandles {
		t.Errorf("Engine.MaxHandles = %d, want %d", cfg.Engine.MaxHandles, DefaultMaxHandles)
	}
	if cfg.Engine.HandleMargin != DefaultHandleMargin {
		t.Errorf("Engine.HandleMargin = %d, want %d", cfg.Engine.HandleMargin, DefaultHandleMargin)
	}
	if cfg.Extract.SortColumn != DefaultSortColumn {
		t.Errorf("Extract.SortColumn = %d, want %d", cfg.Extract.SortColumn, DefaultSortColumn)
	}
	if cfg.Check.DoneSuffix != DefaultDoneSuffix {
		t.Errorf("Check.DoneSuffix = %q, want %q", cfg.Check.DoneSuffix, DefaultDoneSuffix)
	}
	if cfg.Create.Multiplicity != DefaultMultiplicity {
		t.Errorf("Create.Multiplicity = %d, want %d", cfg.Create.Multiplicity, DefaultMultiplicity)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_FromFile(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".config", "qcsweep")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}

	content := `
threads: 6
extension: .out
engine:
  max_handles: 50
extract:
  temperature: 310.15
create:
  functional: M06-2X
`
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Threads != 6 {
		t.Errorf("Threads = %d, want 6", cfg.Threads)
	}
	if cfg.Extension != ".out" {
		t.Errorf("Extension = %q, want .out", cfg.Extension)
	}
	if cfg.Engine.MaxHandles != 50 {
		t.Errorf("Engine.MaxHandles = %d, want 50", cfg.Engine.MaxHandles)
	}
	if cfg.Engine.HandleMargin != DefaultHandleMargin {
		t.Errorf("Engine.HandleMargin = %d, want default %d", cfg.Engine.HandleMargin, DefaultHandleMargin)
	}
	if cfg.Extract.Temperature != 310.15 {
		t.Errorf("Extract.Temperature = %v, want 310.15", cfg.Extract.Temperature)
	}
	if cfg.Create.Functional != "M06-2X" {
		t.Errorf("Create.Functional = %q, want M06-2X", cfg.Create.Functional)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("QCSWEEP_THREADS", "3")
	t.Setenv("QCSWEEP_ENGINE_MAX_HANDLES", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Threads != 3 {
		t.Errorf("Threads = %d, want 3", cfg.Threads)
	}
	if cfg.Engine.MaxHandles != 7 {
		t.Errorf("Engine.MaxHandles = %d, want 7", cfg.Engine.MaxHandles)
	}
}

func TestRead_ExplicitMissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := Read(New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Read() with a missing explicit file should fail")
	}
}

func TestWriteDefault(t *testing.T) {
	xdgHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdgHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if want := filepath.Join(xdgHome, "qcsweep", "config.yaml"); path != want {
		t.Errorf("WriteDefault() path = %q, want %q", path, want)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() after WriteDefault error = %v", err)
	}
	if cfg.Create.Basis != DefaultBasis {
		t.Errorf("Create.Basis = %q, want %q", cfg.Create.Basis, DefaultBasis)
	}

	if err := os.WriteFile(path, []byte("threads: 9\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	if _, err := WriteDefault(); err != nil {
		t.Fatalf("second WriteDefault() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "threads: 9\n" {
		t.Error("WriteDefault() must not overwrite an existing config")
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~/runs")
	if err != nil {
		t.Fatalf("ExpandPath() error = %v", err)
	}
	if want := filepath.Join(home, "runs"); got != want {
		t.Errorf("ExpandPath() = %q, want %q", got, want)
	}

	got, _ = ExpandPath("/abs/path")
	if got != "/abs/path" {
		t.Errorf("ExpandPath(/abs/path) = %q", got)
	}
}
