package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentworkforce/slackarchive/internal/metrics"
	"github.com/agentworkforce/slackarchive/internal/slackapi"
)

type recordingSleeper struct {
	waits []time.Duration
	err   error
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return s.err
}

func TestExecuteWaitsForServerDelay(t *testing.T) {
	sleeper := &recordingSleeper{}
	exec := NewExecutor(ExecutorOptions{Sleep: sleeper.sleep, Metrics: metrics.NewRecorder()})
	outcomes := []time.Duration{3 * time.Second, time.Second}
	calls := 0
	got, err := Execute(context.Background(), exec, "conversations.history", func(ctx context.Context) (string, error) {
		calls++
		if len(outcomes) > 0 {
			d := outcomes[0]
			outcomes = outcomes[1:]
			return "", &slackapi.RateLimitedError{Method: "conversations.history", RetryAfter: d}
		}
		return "page", nil
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if got != "page" || calls != 3 {
		t.Fatalf("expected page after 3 calls, got %q after %d", got, calls)
	}
	if len(sleeper.waits) != 2 || sleeper.waits[0] != 3*time.Second || sleeper.waits[1] != time.Second {
		t.Fatalf("expected waits [3s 1s], got %v", sleeper.waits)
	}
}

func TestExecuteFloorsZeroDelay(t *testing.T) {
	sleeper := &recordingSleeper{}
	exec := NewExecutor(ExecutorOptions{Sleep: sleeper.sleep})
	calls := 0
	_, err := Execute(context.Background(), exec, "users.list", func(ctx context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, &slackapi.RateLimitedError{Method: "users.list"}
		}
		return 1, nil
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(sleeper.waits) != 1 || sleeper.waits[0] != time.Second {
		t.Fatalf("expected a single 1s wait, got %v", sleeper.waits)
	}
}

func TestExecutePropagatesOtherErrors(t *testing.T) {
	sleeper := &recordingSleeper{}
	exec := NewExecutor(ExecutorOptions{Sleep: sleeper.sleep})
	want := &slackapi.APIError{Method: "conversations.history", Code: "not_in_channel"}
	calls := 0
	_, err := Execute(context.Background(), exec, "conversations.history", func(ctx context.Context) (int, error) {
		calls++
		return 0, want
	})
	if err != want {
		t.Fatalf("expected error to propagate unchanged, got %v", err)
	}
	if calls != 1 || len(sleeper.waits) != 0 {
		t.Fatalf("expected one call and no waits, got %d calls %v", calls, sleeper.waits)
	}
}

func TestExecuteReturnsSleepError(t *testing.T) {
	sleeper := &recordingSleeper{err: context.Canceled}
	exec := NewExecutor(ExecutorOptions{Sleep: sleeper.sleep})
	_, err := Execute(context.Background(), exec, "auth.test", func(ctx context.Context) (int, error) {
		return 0, &slackapi.RateLimitedError{RetryAfter: 2 * time.Second}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestWaitWithContextHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitWithContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if err := waitWithContext(context.Background(), 0); err != nil {
		t.Fatalf("expected zero wait to return immediately, got %v", err)
	}
}

func TestNewLimiter(t *testing.T) {
	if NewLimiter(0) != nil {
		t.Fatalf("expected pacing disabled for zero budget")
	}
	limiter := NewLimiter(60)
	if limiter == nil || limiter.Limit() != 1 {
		t.Fatalf("expected one request per second, got %v", limiter)
	}
}
