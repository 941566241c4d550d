package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/waabox/pipegraph/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath
}

func TestLoad_FromFile(t *testing.T) {
	configPath := writeConfig(t, `
pipeline_limit = 5
poll_interval = "3s"
log_level = "debug"

[gitlab]
token = "glpat_testtoken"
url = "https://gitlab.example.com"
`)

	cfg, err := config.LoadFrom(context.Background(), configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitLab.Token != "glpat_testtoken" {
		t.Errorf("expected GitLab token 'glpat_testtoken', got '%s'", cfg.GitLab.Token)
	}
	if cfg.GitLab.URL != "https://gitlab.example.com" {
		t.Errorf("expected GitLab URL 'https://gitlab.example.com', got '%s'", cfg.GitLab.URL)
	}
	if cfg.PipelineLimitOrDefault() != 5 {
		t.Errorf("expected pipeline limit 5, got %d", cfg.PipelineLimitOrDefault())
	}
	if cfg.PollIntervalOrDefault() != 3*time.Second {
		t.Errorf("expected poll interval 3s, got %s", cfg.PollIntervalOrDefault())
	}
	if cfg.LogLevelOrDefault() != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.LogLevelOrDefault())
	}
}

func TestLoad_EnvVarsTakePrecedence(t *testing.T) {
	configPath := writeConfig(t, `
[gitlab]
token = "glpat_fromfile"
url = "https://gitlab.fromfile.com"
`)

	t.Setenv("GITLAB_TOKEN", "glpat_fromenv")
	t.Setenv("GITLAB_URL", "https://gitlab.myco.com")
	t.Setenv("PIPEGRAPH_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := config.LoadFrom(context.Background(), configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitLab.Token != "glpat_fromenv" {
		t.Errorf("expected env token 'glpat_fromenv', got '%s'", cfg.GitLab.Token)
	}
	if cfg.GitLab.URL != "https://gitlab.myco.com" {
		t.Errorf("expected env URL 'https://gitlab.myco.com', got '%s'", cfg.GitLab.URL)
	}
	if cfg.MetricsAddr != "127.0.0.1:9100" {
		t.Errorf("expected metrics addr from env, got '%s'", cfg.MetricsAddr)
	}
}

func TestLoad_FileValueKeptWhenEnvUnset(t *testing.T) {
	configPath := writeConfig(t, `
[gitlab]
token = "glpat_fromfile"
`)
	t.Setenv("GITLAB_TOKEN", "")

	cfg, err := config.LoadFrom(context.Background(), configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.GitLab.Token != "glpat_fromfile" {
		t.Errorf("expected file token 'glpat_fromfile', got '%s'", cfg.GitLab.Token)
	}
}

func TestLoad_MissingFileIsNotError(t *testing.T) {
	t.Setenv("GITLAB_TOKEN", "glpat_onlyenv")
	cfg, err := config.LoadFrom(context.Background(), "/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("missing file should not be an error, got: %v", err)
	}
	if cfg.GitLab.Token != "glpat_onlyenv" {
		t.Errorf("expected token from env, got '%s'", cfg.GitLab.Token)
	}
}

func TestLoad_InvalidPollIntervalIsError(t *testing.T) {
	configPath := writeConfig(t, `poll_interval = "often"`)
	if _, err := config.LoadFrom(context.Background(), configPath); err == nil {
		t.Error("expected error for invalid poll_interval, got nil")
	}
}

func TestDefaults(t *testing.T) {
	var cfg config.Config
	if cfg.PipelineLimitOrDefault() != 10 {
		t.Errorf("expected default pipeline limit 10, got %d", cfg.PipelineLimitOrDefault())
	}
	if cfg.PollIntervalOrDefault() != 10*time.Second {
		t.Errorf("expected default poll interval 10s, got %s", cfg.PollIntervalOrDefault())
	}
	if cfg.LogLevelOrDefault() != "info" {
		t.Errorf("expected default log level 'info', got '%s'", cfg.LogLevelOrDefault())
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("HOME", "/home/ada")
	if got, want := config.DefaultConfigPath(), filepath.Join("/home/ada", ".config", "pipegraph", "config.toml"); got != want {
		t.Errorf("expected '%s', got '%s'", want, got)
	}
	if got, want := config.DefaultLogPath(), filepath.Join("/home/ada", ".config", "pipegraph", "pipegraph.log"); got != want {
		t.Errorf("expected '%s', got '%s'", want, got)
	}

	t.Setenv("HOME", "")
	if got, want := config.DefaultConfigPath(), filepath.Join(".config", "pipegraph", "config.toml"); got != want {
		t.Errorf("expected '%s' without a home directory, got '%s'", want, got)
	}
}
