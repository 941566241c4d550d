package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waabox/pipegraph/internal/config"
	"github.com/waabox/pipegraph/internal/git"
	"github.com/waabox/pipegraph/internal/logging"
	"github.com/waabox/pipegraph/internal/metrics"
	"github.com/waabox/pipegraph/internal/prefs"
	"github.com/waabox/pipegraph/internal/provider"
	gitlabprovider "github.com/waabox/pipegraph/internal/provider/gitlab"
	"github.com/waabox/pipegraph/internal/tui"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipegraph",
		Short: "Browse GitLab CI pipelines as stage or job-dependency graphs",
		Long: `pipegraph shows the pipelines of the GitLab project in the current
directory. Open a pipeline to see its jobs grouped by stage, or, when the
pipeline uses needs, grouped into dependency layers.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runTUI,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "path to the config file")
	root.AddCommand(newLayoutCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "pipegraph", version)
		},
	}
}

func runTUI(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadFrom(ctx, configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The TUI owns the terminal, so logs go to a file.
	logger, closer, err := logging.OpenFile(cfg.LogFileOrDefault(), "pipegraph", cfg.LogLevelOrDefault())
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer closer.Close()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}
	repo, err := git.DetectRepository(cwd)
	if err != nil {
		return fmt.Errorf("detecting git remote: %w", err)
	}
	if cfg.GitLab.Token == "" {
		return fmt.Errorf("no GitLab token: set GITLAB_TOKEN or gitlab.token in %s", configPath)
	}

	gitlab := gitlabprovider.NewAdapter(cfg.GitLab.Token, cfg.GitLab.URL, cfg.PipelineLimitOrDefault())
	registry := provider.NewRegistry()
	registry.Register(gitlab.Host(), gitlab)

	ciProvider, err := registry.Detect(repo)
	if err != nil {
		return fmt.Errorf("detecting CI provider: %w", err)
	}
	ciProvider = provider.NewRetryingProvider(ciProvider, provider.DefaultRetryOptions, logging.SubLogger(logger, "retry"))

	store, err := prefs.Open(prefs.DefaultStatePath())
	if err != nil {
		return fmt.Errorf("opening state file: %w", err)
	}

	recorder := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := recorder.Serve(ctx, cfg.MetricsAddr, logging.SubLogger(logger, "metrics")); err != nil {
				logger.Error("metrics server stopped", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
	}

	logger.Info("starting", "version", version, "project", repo.ProjectPath, "host", repo.Host)
	model := tui.NewAppModel(repo, ciProvider, tui.Options{
		Advisor:      gitlab,
		Callouts:     gitlab,
		Prefs:        store,
		Recorder:     recorder,
		Logger:       logging.SubLogger(logger, "tui"),
		PollInterval: cfg.PollIntervalOrDefault(),
	})
	return tui.Run(model)
}
