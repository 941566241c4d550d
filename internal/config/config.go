package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sethvargo/go-envconfig"
)

// GitLabConfig holds connection settings for GitLab.
type GitLabConfig struct {
	Token string `toml:"token" env:"GITLAB_TOKEN, overwrite"`
	URL   string `toml:"url" env:"GITLAB_URL, overwrite"`
}

// Config holds all pipegraph configuration.
type Config struct {
	GitLab        GitLabConfig `toml:"gitlab"`
	PipelineLimit int          `toml:"pipeline_limit"`
	// PollInterval is a Go duration ("10s"). The server's Poll-Interval header
	// takes precedence once received.
	PollInterval string `toml:"poll_interval"`
	LogFile      string `toml:"log_file" env:"PIPEGRAPH_LOG_FILE, overwrite"`
	LogLevel     string `toml:"log_level" env:"PIPEGRAPH_LOG_LEVEL, overwrite"`
	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `toml:"metrics_addr" env:"PIPEGRAPH_METRICS_ADDR, overwrite"`
}

const (
	defaultPipelineLimit = 10
	defaultPollInterval  = 10 * time.Second
	defaultLogLevel      = "info"
)

// PipelineLimitOrDefault returns PipelineLimit if set, otherwise defaultPipelineLimit.
func (c Config) PipelineLimitOrDefault() int {
	if c.PipelineLimit > 0 {
		return c.PipelineLimit
	}
	return defaultPipelineLimit
}

// PollIntervalOrDefault returns PollInterval if set and valid, otherwise 10s.
func (c Config) PollIntervalOrDefault() time.Duration {
	if d, err := time.ParseDuration(c.PollInterval); err == nil && d > 0 {
		return d
	}
	return defaultPollInterval
}

// LogLevelOrDefault returns LogLevel if set, otherwise "info".
func (c Config) LogLevelOrDefault() string {
	if c.LogLevel != "" {
		return c.LogLevel
	}
	return defaultLogLevel
}

// LogFileOrDefault returns LogFile if set, otherwise the default log path.
func (c Config) LogFileOrDefault() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return DefaultLogPath()
}

// LoadFrom reads configuration from the given TOML file path.
// If the file does not exist, it returns an empty config without error.
// Environment variables always take precedence over file values:
//   - GITLAB_TOKEN           overrides gitlab.token
//   - GITLAB_URL             overrides gitlab.url
//   - PIPEGRAPH_LOG_FILE     overrides log_file
//   - PIPEGRAPH_LOG_LEVEL    overrides log_level
//   - PIPEGRAPH_METRICS_ADDR overrides metrics_addr
func LoadFrom(ctx context.Context, path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}
	if cfg.PollInterval != "" {
		if _, err := time.ParseDuration(cfg.PollInterval); err != nil {
			return Config{}, fmt.Errorf("invalid poll_interval %q: %w", cfg.PollInterval, err)
		}
	}
	return cfg, nil
}

// DefaultConfigPath returns the default path for the pipegraph config file.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.toml")
}

// DefaultLogPath returns the default path for the TUI log file.
func DefaultLogPath() string {
	return filepath.Join(configDir(), "pipegraph.log")
}

// configDir is ~/.config/pipegraph, or .config/pipegraph under the working
// directory when no home directory is known.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "pipegraph")
}
