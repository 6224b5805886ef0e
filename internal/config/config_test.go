package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered and parses args.
func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}

	return &fakeBinder{fs: fs}
}

// chdirTemp runs the test from an empty directory so a stray simscore.yaml
// in the package directory cannot leak into Load.
func chdirTemp(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Chdir(dir)

	return dir
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.Checkpoint != "simscore.safetensors" {
		t.Errorf("Paths.Checkpoint = %q; want %q", cfg.Paths.Checkpoint, "simscore.safetensors")
	}

	if cfg.Runtime.Threads != 4 {
		t.Errorf("Runtime.Threads = %d; want 4", cfg.Runtime.Threads)
	}

	if cfg.Runtime.Seed != 0 {
		t.Errorf("Runtime.Seed = %d; want 0", cfg.Runtime.Seed)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":8080")
	}

	if cfg.Server.Workers != 2 {
		t.Errorf("Server.Workers = %d; want 2", cfg.Server.Workers)
	}

	if cfg.Server.RequestTimeout != 30 {
		t.Errorf("Server.RequestTimeout = %d; want 30", cfg.Server.RequestTimeout)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}

	if cfg.Similarity != nil {
		t.Errorf("Similarity = %v; want nil", cfg.Similarity)
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	checks := []struct {
		flag string
		want string
	}{
		{"paths-checkpoint", "simscore.safetensors"},
		{"runtime-threads", "4"},
		{"runtime-seed", "0"},
		{"server-listen-addr", ":8080"},
		{"server-workers", "2"},
		{"server-request-timeout", "30"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.Checkpoint != defaults.Paths.Checkpoint {
		t.Errorf("Paths.Checkpoint = %q; want %q", cfg.Paths.Checkpoint, defaults.Paths.Checkpoint)
	}

	if cfg.Runtime.Threads != defaults.Runtime.Threads {
		t.Errorf("Runtime.Threads = %d; want %d", cfg.Runtime.Threads, defaults.Runtime.Threads)
	}

	if cfg.LogLevel != defaults.LogLevel {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, defaults.LogLevel)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	chdirTemp(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd: newFlagBinder(t, defaults,
			"--paths-checkpoint=/tmp/x.safetensors",
			"--runtime-threads=8",
			"--runtime-seed=42",
			"--log-level=debug",
		),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Paths.Checkpoint != "/tmp/x.safetensors" {
		t.Errorf("Paths.Checkpoint = %q; want %q", cfg.Paths.Checkpoint, "/tmp/x.safetensors")
	}

	if cfg.Runtime.Threads != 8 {
		t.Errorf("Runtime.Threads = %d; want 8", cfg.Runtime.Threads)
	}

	if cfg.Runtime.Seed != 42 {
		t.Errorf("Runtime.Seed = %d; want 42", cfg.Runtime.Seed)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SIMSCORE_LOG_LEVEL", "warn")
	t.Setenv("SIMSCORE_RUNTIME_THREADS", "2")
	t.Setenv("SIMSCORE_SERVER_LISTEN_ADDR", ":9999")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Runtime.Threads != 2 {
		t.Errorf("Runtime.Threads = %d; want 2", cfg.Runtime.Threads)
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":9999")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	cfgFile := filepath.Join(dir, "custom.yaml")

	content := `
log_level: error
paths:
  checkpoint: scorer.safetensors
runtime:
  threads: 16
similarity:
  type: mylinear
  tensor_1_dim: 8
  tensor_2_dim: 8
  combination: "x,y,x*y"
`

	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "error")
	}

	if cfg.Paths.Checkpoint != "scorer.safetensors" {
		t.Errorf("Paths.Checkpoint = %q; want %q", cfg.Paths.Checkpoint, "scorer.safetensors")
	}

	if cfg.Runtime.Threads != 16 {
		t.Errorf("Runtime.Threads = %d; want 16", cfg.Runtime.Threads)
	}

	sim := cfg.SimilarityParams()
	if sim["type"] != "mylinear" || sim["combination"] != "x,y,x*y" {
		t.Errorf("Similarity = %v", sim)
	}

	if sim["tensor_1_dim"] != 8 {
		t.Errorf("Similarity[tensor_1_dim] = %#v; want 8", sim["tensor_1_dim"])
	}
}

func TestLoad_FlagBeatsConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	cfgFile := filepath.Join(dir, "simscore.yaml")

	if err := os.WriteFile(cfgFile, []byte("runtime:\n  threads: 16\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	defaults := DefaultConfig()

	// No ConfigFile: simscore.yaml is discovered in the working directory.
	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults, "--runtime-threads=3"),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.Threads != 3 {
		t.Errorf("Runtime.Threads = %d; want 3", cfg.Runtime.Threads)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	dir := chdirTemp(t)
	cfgFile := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/simscore.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	chdirTemp(t)

	defaults := DefaultConfig()

	for _, args := range [][]string{
		{"--runtime-threads=-1"},
		{"--log-level=verbose"},
		{"--server-workers=-2"},
		{"--server-request-timeout=0"},
	} {
		_, err := Load(LoadOptions{
			Cmd:      newFlagBinder(t, defaults, args...),
			Defaults: defaults,
		})
		if err == nil {
			t.Errorf("Load(%v) = nil; want error", args)
		}
	}
}

func TestSimilarityParamsIsCopy(t *testing.T) {
	cfg := Config{Similarity: map[string]any{"type": "cosine"}}

	p := cfg.SimilarityParams()
	delete(p, "type")

	if _, ok := cfg.Similarity["type"]; !ok {
		t.Fatal("SimilarityParams shares the underlying map")
	}
}

// --- ParseLogLevel ---

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v; wantErr %v", tt.input, err, tt.wantErr)
			continue
		}

		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v; want %v", tt.input, got, tt.want)
		}
	}
}
