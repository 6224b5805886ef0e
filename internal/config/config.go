package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
	Server  ServerConfig  `mapstructure:"server"`
	// Similarity is the configuration object handed to
	// similarity.FromParams; its keys depend on "type".
	Similarity map[string]any `mapstructure:"similarity"`
	LogLevel   string         `mapstructure:"log_level"`
}

type PathsConfig struct {
	Checkpoint string `mapstructure:"checkpoint"`
}

type RuntimeConfig struct {
	Threads int    `mapstructure:"threads"`
	Seed    uint64 `mapstructure:"seed"`
}

type ServerConfig struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	Workers        int    `mapstructure:"workers"`
	MaxElements    int    `mapstructure:"max_elements"`
	RequestTimeout int    `mapstructure:"request_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

// flagKeys maps command-line flags to their viper keys.
var flagKeys = map[string]string{
	"paths-checkpoint":       "paths.checkpoint",
	"runtime-threads":        "runtime.threads",
	"runtime-seed":           "runtime.seed",
	"server-listen-addr":     "server.listen_addr",
	"server-workers":         "server.workers",
	"server-max-elements":    "server.max_elements",
	"server-request-timeout": "server.request_timeout",
	"log-level":              "log_level",
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			Checkpoint: "simscore.safetensors",
		},
		Runtime: RuntimeConfig{
			Threads: 4,
			Seed:    0,
		},
		Server: ServerConfig{
			ListenAddr:     ":8080",
			Workers:        2,
			MaxElements:    1 << 22,
			RequestTimeout: 30,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-checkpoint", defaults.Paths.Checkpoint, "Path to the similarity checkpoint (.safetensors)")
	fs.Int("runtime-threads", defaults.Runtime.Threads, "Worker count for tensor kernels")
	fs.Uint64("runtime-seed", defaults.Runtime.Seed, "Seed for parameter initialization (0 picks a random seed)")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent scoring requests (0 disables throttling)")
	fs.Int("server-max-elements", defaults.Server.MaxElements, "Max elements per input tensor and per score matrix")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request scoring timeout in seconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		fs := opts.Cmd.Flags()
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}

			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	v.SetEnvPrefix("SIMSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("simscore")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Runtime.Threads < 0 {
		return Config{}, fmt.Errorf("runtime.threads must be >= 0, got %d", cfg.Runtime.Threads)
	}

	if cfg.Server.Workers < 0 || cfg.Server.MaxElements < 1 || cfg.Server.RequestTimeout < 1 {
		return Config{}, fmt.Errorf("server: workers must be >= 0, max_elements and request_timeout >= 1 (got %d, %d, %d)",
			cfg.Server.Workers, cfg.Server.MaxElements, cfg.Server.RequestTimeout)
	}

	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}

	if used := v.ConfigFileUsed(); used != "" {
		slog.Debug("config file loaded", "path", used)
	}

	return cfg, nil
}

// SimilarityParams returns a copy of the similarity section so that
// consuming it does not modify cfg.
func (c Config) SimilarityParams() map[string]any {
	out := make(map[string]any, len(c.Similarity))
	maps.Copy(out, c.Similarity)

	return out
}

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.checkpoint", c.Paths.Checkpoint)
	v.SetDefault("runtime.threads", c.Runtime.Threads)
	v.SetDefault("runtime.seed", c.Runtime.Seed)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_elements", c.Server.MaxElements)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("log_level", c.LogLevel)

	if len(c.Similarity) > 0 {
		v.SetDefault("similarity", c.Similarity)
	}
}
