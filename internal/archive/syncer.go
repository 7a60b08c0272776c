package archive

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentworkforce/slackarchive/internal/logging"
	"github.com/agentworkforce/slackarchive/internal/metrics"
	"github.com/agentworkforce/slackarchive/internal/slackapi"
	"github.com/agentworkforce/slackarchive/internal/textfmt"
)

const (
	methodAuthTest = "auth.test"
	methodChannels = "conversations.list"
	methodUsers    = "users.list"
	methodHistory  = "conversations.history"
	methodReplies  = "conversations.replies"
)

type Phase string

const (
	PhaseResolvingChannel Phase = "resolving_channel"
	PhaseFetchingHistory  Phase = "fetching_history"
	PhaseFetchingReplies  Phase = "fetching_replies"
	PhaseMerging          Phase = "merging"
	PhaseDone             Phase = "done"
)

// ChannelNotFoundError means a requested channel name is not among the
// channels the credential can see.
type ChannelNotFoundError struct {
	Name      string
	Available []string
}

func (e *ChannelNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("channel %q not found", e.Name)
	}
	return fmt.Sprintf("channel %q not found; available: %s", e.Name, strings.Join(e.Available, ", "))
}

func (e *ChannelNotFoundError) Is(target error) bool {
	return target == slackapi.ErrChannelNotFound
}

// Persister stores a checkpoint of the archive.
type Persister interface {
	Save(ctx context.Context, a *Archive) error
}

type SyncerOptions struct {
	Executor  *Executor
	Emoji     *textfmt.EmojiTable
	Persister Persister
	Logger    *zap.Logger
	Metrics   *metrics.Recorder
	// OnPhase observes each channel's state transitions.
	OnPhase func(channel string, phase Phase)
}

type Syncer struct {
	client    slackapi.Client
	exec      *Executor
	emoji     *textfmt.EmojiTable
	persister Persister
	logger    *zap.Logger
	metrics   *metrics.Recorder
	onPhase   func(string, Phase)
}

// Selection names the channels to sync. All wins over Channels.
type Selection struct {
	All      bool
	Channels []string
}

type ChannelReport struct {
	Name       string
	ID         string
	NewThreads int
	NewReplies int
	Pages      int
	Skipped    bool
}

type Report struct {
	Channels []ChannelReport
	Duration time.Duration
}

func (r Report) NewThreads() int {
	total := 0
	for _, c := range r.Channels {
		total += c.NewThreads
	}
	return total
}

func (r Report) Skipped() int {
	total := 0
	for _, c := range r.Channels {
		if c.Skipped {
			total++
		}
	}
	return total
}

func NewSyncer(client slackapi.Client, opts SyncerOptions) (*Syncer, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	emoji := opts.Emoji
	if emoji == nil {
		table, err := textfmt.DefaultEmojiTable()
		if err != nil {
			return nil, fmt.Errorf("load emoji table: %w", err)
		}
		emoji = table
	}
	logger := logging.OrNop(opts.Logger)
	exec := opts.Executor
	if exec == nil {
		exec = NewExecutor(ExecutorOptions{Logger: logger, Metrics: opts.Metrics})
	}
	onPhase := opts.OnPhase
	if onPhase == nil {
		onPhase = func(string, Phase) {}
	}
	return &Syncer{
		client:    client,
		exec:      exec,
		emoji:     emoji,
		persister: opts.Persister,
		logger:    logger,
		metrics:   opts.Metrics,
		onPhase:   onPhase,
	}, nil
}

// ListChannels returns every channel the credential can see, sorted by name.
func (s *Syncer) ListChannels(ctx context.Context) ([]slackapi.Channel, error) {
	pages := Paginate(s.exec, methodChannels, func(ctx context.Context, cursor string) (Page[slackapi.Channel], error) {
		page, err := s.client.ListChannels(ctx, cursor)
		return Page[slackapi.Channel]{
			Items:      page.Channels,
			HasMore:    page.HasMore(),
			NextCursor: page.ResponseMetadata.NextCursor,
		}, err
	})
	channels, err := pages.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })
	return channels, nil
}

func (s *Syncer) listUsers(ctx context.Context) (map[string]string, error) {
	pages := Paginate(s.exec, methodUsers, func(ctx context.Context, cursor string) (Page[slackapi.User], error) {
		page, err := s.client.ListUsers(ctx, cursor)
		return Page[slackapi.User]{
			Items:      page.Members,
			HasMore:    page.HasMore(),
			NextCursor: page.ResponseMetadata.NextCursor,
		}, err
	})
	users, err := pages.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	return names, nil
}

// Sync grows a with every message in the selected channels that it does not
// hold yet. Every requested name is resolved before any channel is fetched,
// so an unknown name fails the run before a is modified. Cancellation is checked
// between channels only; a started channel always runs to completion.
func (s *Syncer) Sync(ctx context.Context, a *Archive, sel Selection) (Report, error) {
	started := time.Now()
	var report Report
	if a == nil {
		return report, fmt.Errorf("archive is required")
	}

	if _, err := Execute(ctx, s.exec, methodAuthTest, s.client.AuthTest); err != nil {
		return report, fmt.Errorf("authenticate: %w", err)
	}
	users, err := s.listUsers(ctx)
	if err != nil {
		return report, err
	}
	channels, err := s.ListChannels(ctx)
	if err != nil {
		return report, err
	}
	targets, err := resolveChannels(channels, sel)
	if err != nil {
		return report, err
	}

	channelNames := make(map[string]string, len(channels))
	for _, ch := range channels {
		channelNames[ch.ID] = ch.Name
	}
	normalizer := textfmt.NewNormalizer(textfmt.Directory{Users: users, Channels: channelNames}, s.emoji)

	for _, ch := range targets {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
		channelCtx := context.WithoutCancel(ctx)
		result, err := s.syncChannel(channelCtx, a, normalizer, ch)
		switch {
		case errors.Is(err, slackapi.ErrNotInChannel):
			s.logger.Warn("not authorized for channel, recording it empty",
				zap.String("channel", ch.Name),
				zap.Error(err),
			)
			a.Ensure(ch.Name)
			result.Skipped = true
			s.metrics.ChannelSkipped()
		case err != nil:
			report.Channels = append(report.Channels, result)
			report.Duration = time.Since(started)
			return report, fmt.Errorf("sync channel %s: %w", ch.Name, err)
		default:
			s.metrics.ChannelSynced(ch.Name, result.NewThreads, result.NewReplies)
		}
		report.Channels = append(report.Channels, result)
		s.onPhase(ch.Name, PhaseDone)

		if s.persister != nil {
			if err := s.persister.Save(channelCtx, a); err != nil {
				report.Duration = time.Since(started)
				return report, fmt.Errorf("checkpoint after %s: %w", ch.Name, err)
			}
		}
		s.logger.Info("channel synced",
			zap.String("channel", ch.Name),
			zap.Int("new_threads", result.NewThreads),
			zap.Int("new_replies", result.NewReplies),
			zap.Bool("skipped", result.Skipped),
		)
	}
	report.Duration = time.Since(started)
	return report, nil
}

func resolveChannels(channels []slackapi.Channel, sel Selection) ([]slackapi.Channel, error) {
	if sel.All {
		return channels, nil
	}
	byName := make(map[string]slackapi.Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name] = ch
	}
	seen := map[string]struct{}{}
	var targets []slackapi.Channel
	for _, raw := range sel.Channels {
		name := strings.TrimPrefix(strings.TrimSpace(raw), "#")
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		ch, ok := byName[name]
		if !ok {
			available := make([]string, 0, len(channels))
			for _, c := range channels {
				available = append(available, c.Name)
			}
			return nil, &ChannelNotFoundError{Name: name, Available: available}
		}
		targets = append(targets, ch)
	}
	return targets, nil
}

func (s *Syncer) syncChannel(ctx context.Context, a *Archive, n *textfmt.Normalizer, ch slackapi.Channel) (ChannelReport, error) {
	result := ChannelReport{Name: ch.Name, ID: ch.ID}
	s.onPhase(ch.Name, PhaseResolvingChannel)
	known := a.KnownTimestamps(ch.Name)

	history := Paginate(s.exec, methodHistory, func(ctx context.Context, cursor string) (Page[slackapi.Message], error) {
		page, err := s.client.History(ctx, ch.ID, cursor)
		return messagePage(page), err
	})
	for !history.Done() {
		s.onPhase(ch.Name, PhaseFetchingHistory)
		messages, err := history.Next(ctx)
		if err != nil {
			return result, err
		}
		result.Pages++

		var threads []Thread
		for _, m := range messages {
			if !ValidTS(m.TS) {
				s.logger.Warn("skipping message with invalid timestamp",
					zap.String("channel", ch.Name),
					zap.String("ts", m.TS),
				)
				continue
			}
			canonical := CanonicalTS(m.TS)
			if _, ok := known[canonical]; ok {
				continue
			}
			known[canonical] = struct{}{}

			s.onPhase(ch.Name, PhaseFetchingReplies)
			replies, err := s.fetchReplies(ctx, ch.ID, m.TS)
			if err != nil {
				return result, err
			}
			thread := BuildThread(n, m, replies)
			result.NewReplies += len(thread.Replies)
			threads = append(threads, thread)
		}

		s.onPhase(ch.Name, PhaseMerging)
		result.NewThreads += a.Merge(ch.Name, threads...)
	}
	a.Ensure(ch.Name)
	return result, nil
}

func (s *Syncer) fetchReplies(ctx context.Context, channelID, ts string) ([]slackapi.Message, error) {
	pages := Paginate(s.exec, methodReplies, func(ctx context.Context, cursor string) (Page[slackapi.Message], error) {
		page, err := s.client.Replies(ctx, channelID, ts, cursor)
		return messagePage(page), err
	})
	return pages.Collect(ctx)
}

func messagePage(page slackapi.MessagePage) Page[slackapi.Message] {
	return Page[slackapi.Message]{
		Items:      page.Messages,
		HasMore:    page.HasMore,
		NextCursor: page.ResponseMetadata.NextCursor,
	}
}
