package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds attempts at a flaky call. Backoff maps the 1-based
// attempt that just failed to the wait before the next one; Sleep performs
// the wait and is swapped out in tests.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(ctx context.Context, d time.Duration) error
}

// LinearBackoff waits step, 2*step, 3*step, ...
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return time.Duration(attempt) * step }
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DefaultRetryPolicy is three attempts with 5s, 10s between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: LinearBackoff(5 * time.Second), Sleep: SleepContext}
}

// Do runs fn until it succeeds or attempts run out. Intermediate failures are
// logged and swallowed; only the last one is returned.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, fn func(ctx context.Context, attempt int) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		logger.Warn("attempt failed, retrying",
			slog.Int("attempt", attempt), slog.Int("max_attempts", maxAttempts),
			slog.Duration("wait", wait), slog.String("class", ClassifyError(err).String()), slog.Any("err", err))
		if serr := sleep(ctx, wait); serr != nil {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, serr)
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", maxAttempts, err)
}
