package archive

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agentworkforce/slackarchive/internal/logging"
	"github.com/agentworkforce/slackarchive/internal/metrics"
	"github.com/agentworkforce/slackarchive/internal/slackapi"
)

// minRetryDelay keeps a zero Retry-After from turning into a hot loop.
const minRetryDelay = time.Second

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type ExecutorOptions struct {
	// Limiter paces calls on the client side. Nil disables pacing.
	Limiter *rate.Limiter
	Sleep   Sleeper
	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// Executor runs remote calls, retrying throttled ones after the delay the
// server asked for. It is the only place a remote call is ever delayed.
type Executor struct {
	limiter *rate.Limiter
	sleep   Sleeper
	logger  *zap.Logger
	metrics *metrics.Recorder
}

func NewExecutor(opts ExecutorOptions) *Executor {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = waitWithContext
	}
	return &Executor{
		limiter: opts.Limiter,
		sleep:   sleep,
		logger:  logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}
}

// NewLimiter builds a pacing limiter from a requests-per-minute budget.
// Zero or negative disables pacing.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Execute invokes call until it returns something other than a
// *slackapi.RateLimitedError. Every other outcome, success or failure, is
// returned unchanged.
func Execute[T any](ctx context.Context, e *Executor, method string, call func(context.Context) (T, error)) (T, error) {
	if e == nil {
		e = NewExecutor(ExecutorOptions{})
	}
	for attempt := 1; ; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				var zero T
				return zero, err
			}
		}
		e.metrics.Request(method)
		result, err := call(ctx)
		var limited *slackapi.RateLimitedError
		if !errors.As(err, &limited) {
			return result, err
		}
		delay := limited.RetryAfter
		if delay < minRetryDelay {
			delay = minRetryDelay
		}
		e.metrics.Throttled(method, delay.Seconds())
		e.logger.Debug("throttled, waiting before retry",
			zap.String("phase", "retrying"),
			zap.String("method", method),
			zap.Duration("retry_after", delay),
			zap.Int("attempt", attempt),
		)
		if err := e.sleep(ctx, delay); err != nil {
			var zero T
			return zero, err
		}
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
