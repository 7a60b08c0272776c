package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agentworkforce/slackarchive/internal/archive"
	"github.com/agentworkforce/slackarchive/internal/archivestore"
	"github.com/agentworkforce/slackarchive/internal/config"
	"github.com/agentworkforce/slackarchive/internal/metrics"
	"github.com/agentworkforce/slackarchive/internal/slackapi"
	"github.com/agentworkforce/slackarchive/internal/textfmt"
)

func init() {
	rootCmd.AddCommand(syncCmd)

	flags := syncCmd.Flags()
	addRemoteFlags(flags)
	flags.String("input", "", "archive to read before syncing (default: --output)")
	flags.String("output", config.DefaultOutput, "archive to write")
	flags.Bool("all", false, "sync every reachable channel")
	flags.StringSlice("channel", nil, "channel name to sync (repeatable)")
	flags.String("emoji-table", "", "emoji table JSON (default: built-in)")
	flags.Int("page-size", config.DefaultPageSize, "items requested per page")
	flags.Int("requests-per-minute", 0, "client-side request pacing, 0 disables")
	flags.String("schedule", "", "cron expression; keep running and sync on every tick")
	flags.Float64("jitter", 0, "schedule jitter ratio (0.0-1.0)")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile after each run")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch new messages and replies into the archive",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateSync(); err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		runner, err := newSyncRunner(cfg, logger, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer runner.Close()

		if cfg.Schedule == "" {
			return runner.once(cmd.Context())
		}
		return runner.scheduled(cmd.Context(), cfg.Schedule, cfg.Jitter)
	},
}

type syncRunner struct {
	client      slackapi.Client
	exec        *archive.Executor
	emoji       *textfmt.EmojiTable
	input       *archivestore.Store
	output      *archivestore.Store
	selection   archive.Selection
	metrics     *metrics.Recorder
	metricsFile string
	logger      *zap.Logger
	out         io.Writer

	// archive is loaded from input on the first run and carried across
	// scheduled runs, so later ticks build on what earlier ticks fetched.
	archive *archive.Archive
}

func newSyncRunner(cfg *config.Config, logger *zap.Logger, out io.Writer) (*syncRunner, error) {
	emoji, err := loadEmoji(cfg.EmojiTable)
	if err != nil {
		return nil, err
	}
	recorder := metrics.NewRecorder()
	storeOpts := archivestore.Options{Metrics: recorder}
	output, err := openStore(cfg.Output, logger, storeOpts)
	if err != nil {
		return nil, err
	}
	input := output
	if cfg.Input != cfg.Output {
		input, err = openStore(cfg.Input, logger, storeOpts)
		if err != nil {
			_ = output.Close()
			return nil, err
		}
	}
	return &syncRunner{
		client: newRemoteClient(cfg),
		exec: archive.NewExecutor(archive.ExecutorOptions{
			Limiter: archive.NewLimiter(cfg.RequestsPerMinute),
			Logger:  logger,
			Metrics: recorder,
		}),
		emoji:       emoji,
		input:       input,
		output:      output,
		selection:   archive.Selection{All: cfg.All, Channels: cfg.Channels},
		metrics:     recorder,
		metricsFile: cfg.MetricsFile,
		logger:      logger,
		out:         out,
	}, nil
}

func (r *syncRunner) Close() {
	if r.input != r.output {
		_ = r.input.Close()
	}
	_ = r.output.Close()
}

func (r *syncRunner) once(ctx context.Context) error {
	logger := r.logger.With(zap.String("run_id", uuid.NewString()))
	defer func() {
		if err := r.metrics.WriteTextfile(r.metricsFile); err != nil {
			logger.Warn("failed to write metrics textfile", zap.String("path", r.metricsFile), zap.Error(err))
		}
	}()

	a, err := r.current(ctx)
	if err != nil {
		return err
	}
	syncer, err := archive.NewSyncer(r.client, archive.SyncerOptions{
		Executor:  r.exec,
		Emoji:     r.emoji,
		Persister: r.output,
		Logger:    logger,
		Metrics:   r.metrics,
		OnPhase: func(channel string, phase archive.Phase) {
			logger.Debug("channel phase", zap.String("channel", channel), zap.String("phase", string(phase)))
		},
	})
	if err != nil {
		return err
	}
	report, err := syncer.Sync(ctx, a, r.selection)
	if err != nil {
		return err
	}
	if err := r.output.Save(ctx, a); err != nil {
		return err
	}
	r.metrics.RunSucceeded(float64(time.Now().Unix()))
	fmt.Fprintf(r.out, "synced %s channels (%s skipped), %s new threads in %s\n",
		humanize.Comma(int64(len(report.Channels))),
		humanize.Comma(int64(report.Skipped())),
		humanize.Comma(int64(report.NewThreads())),
		report.Duration.Round(time.Millisecond),
	)
	return nil
}

func (r *syncRunner) current(ctx context.Context) (*archive.Archive, error) {
	if r.archive != nil {
		return r.archive, nil
	}
	a, err := r.input.LoadOrEmpty(ctx)
	if err != nil {
		return nil, err
	}
	r.archive = a
	return a, nil
}

// scheduled syncs immediately and then on every cron tick until ctx is done.
// Failures that a retry cannot fix end the loop; others are logged.
func (r *syncRunner) scheduled(ctx context.Context, expr string, jitter float64) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		if err := r.once(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isFatalRunError(err) {
				return err
			}
			r.logger.Error("scheduled sync failed", zap.Error(err))
		}

		delay, err := nextRunDelay(expr, time.Now(), jitter, rng.Float64())
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		r.logger.Info("next sync scheduled", zap.Duration("in", delay))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("schedule stopping", zap.Error(ctx.Err()))
			return nil
		case <-timer.C:
		}
	}
}

func isFatalRunError(err error) bool {
	return errors.Is(err, slackapi.ErrAuthFailed) ||
		errors.Is(err, slackapi.ErrChannelNotFound) ||
		errors.Is(err, config.ErrInvalidConfig)
}

func nextRunDelay(expr string, now time.Time, jitter, sample float64) (time.Duration, error) {
	next, err := gronx.NextTickAfter(expr, now, false)
	if err != nil {
		return 0, err
	}
	return jitteredIntervalWithSample(next.Sub(now), jitter, sample), nil
}

func clampJitterRatio(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jitteredIntervalWithSample(base time.Duration, jitterRatio, sample float64) time.Duration {
	if base <= 0 {
		return 0
	}
	jitterRatio = clampJitterRatio(jitterRatio)
	if jitterRatio == 0 {
		return base
	}
	if sample < 0 {
		sample = 0
	} else if sample > 1 {
		sample = 1
	}
	factor := 1 + ((sample*2)-1)*jitterRatio
	if factor < 0 {
		factor = 0
	}
	delay := time.Duration(float64(base) * factor)
	if delay < time.Millisecond {
		return time.Millisecond
	}
	return delay
}

func newRemoteClient(cfg *config.Config) *slackapi.HTTPClient {
	return slackapi.NewHTTPClient(slackapi.HTTPClientOptions{
		BaseURL:    cfg.BaseURL,
		Token:      cfg.Token,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		PageSize:   cfg.PageSize,
		UserAgent:  "slackarchive/" + version,
	})
}

func loadEmoji(path string) (*textfmt.EmojiTable, error) {
	if path == "" {
		return textfmt.DefaultEmojiTable()
	}
	table, err := textfmt.LoadEmojiTable(path)
	if err != nil {
		return nil, fmt.Errorf("%w: emoji table: %v", config.ErrInvalidConfig, err)
	}
	return table, nil
}
