package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentworkforce/slackarchive/internal/archivestore"
	"github.com/agentworkforce/slackarchive/internal/config"
	"github.com/agentworkforce/slackarchive/internal/legacy"
	"github.com/agentworkforce/slackarchive/internal/logging"
	"github.com/agentworkforce/slackarchive/internal/slackapi"
)

var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitOK = iota
	exitFailure
	exitAuth
	exitChannelNotFound
	exitMissingInput
	exitInvalidConfig
)

var rootCmd = &cobra.Command{
	Use:   "slackarchive",
	Short: "Incrementally archive workspace channels to a JSON file",
	Long: `slackarchive downloads channel history and thread replies into a single
deterministic JSON archive, adding only what the archive does not hold yet,
and renders the archive as static HTML.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().String("config", "", "config file path (yaml, json or toml)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity (repeatable)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format: console or json")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	})
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrInvalidConfig):
		return exitInvalidConfig
	case errors.Is(err, slackapi.ErrAuthFailed):
		return exitAuth
	case errors.Is(err, slackapi.ErrChannelNotFound):
		return exitChannelNotFound
	case errors.Is(err, archivestore.ErrArchiveNotFound), errors.Is(err, legacy.ErrNoInput):
		return exitMissingInput
	default:
		return exitFailure
	}
}

// loadConfig resolves configuration for cmd, letting -v override the level.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if verbosity, _ := cmd.Flags().GetCount("verbose"); verbosity > 0 {
		cfg.Log.Level = logging.LevelForVerbosity(verbosity)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return logger, nil
}

func openStore(dsn string, logger *zap.Logger, opts archivestore.Options) (*archivestore.Store, error) {
	opts.Logger = logger
	store, err := archivestore.Open(dsn, opts)
	if err != nil {
		if errors.Is(err, archivestore.ErrInvalidInput) || errors.Is(err, archivestore.ErrNotImplemented) {
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		return nil, err
	}
	return store, nil
}
