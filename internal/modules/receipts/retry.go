package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/yungbote/stockscan-backend/internal/platform/httpx"
	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

type RetryPolicy struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
	// Sleep defaults to a context-aware timer; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		MinDelay: 2 * time.Second,
		MaxDelay: 30 * time.Second,
	}
}

// Delay is the wait before attempt+1. Rate limits back off twice as long
// unless the provider sent an explicit hint.
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	d := httpx.ExpBackoff(attempt, p.MinDelay, p.MaxDelay)
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimited {
		if e.RetryAfter > 0 {
			return e.RetryAfter
		}
		d = httpx.ExpBackoff(attempt+1, p.MinDelay, 2*p.MaxDelay)
	}
	return d
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, log *logger.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	var (
		zero T
		err  error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		var out T
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if !IsRetryable(err) || attempt == attempts-1 {
			break
		}
		d := p.Delay(attempt, err)
		if log != nil {
			log.Warn("adapter call failed; retrying", "op", op, "attempt", attempt+1, "kind", KindOf(err), "sleep", d.String(), "error", err)
		}
		if sErr := sleep(ctx, d); sErr != nil {
			return zero, err
		}
	}
	return zero, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
