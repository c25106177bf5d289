package gateway

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy wraps a gateway call with bounded exponential backoff.
// Transient failures wait initialBackoff * 2^(attempt-1) between attempts;
// terminal failures surface immediately. Backoff sleeps inside the calling
// goroutine only, never on the scheduler's timer.
type RetryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
}

// NewRetryPolicy builds a policy; attempts below 1 are clamped to 1.
func NewRetryPolicy(maxAttempts int, initialBackoff time.Duration) *RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initialBackoff <= 0 {
		initialBackoff = 500 * time.Millisecond
	}
	return &RetryPolicy{maxAttempts: maxAttempts, initialBackoff: initialBackoff}
}

// Execute runs op until it succeeds, fails terminally, exhausts the
// attempt budget, or the context is canceled. The returned error keeps its
// gateway.Error type, so callers can still distinguish transient from
// terminal outcomes after exhaustion.
func (p *RetryPolicy) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(uint64(p.maxAttempts-1), retry.NewExponential(p.initialBackoff))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
