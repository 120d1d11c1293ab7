package receipts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/stockscan-backend/internal/platform/logger"
)

func recordingPolicy(sleeps *[]time.Duration) RetryPolicy {
	p := DefaultRetryPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return ctx.Err()
	}
	return p
}

func TestRetryTransientThenSuccess(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	out, err := Retry(context.Background(), recordingPolicy(&sleeps), logger.Nop(), "extract", func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewError(KindTransport, "extract", "", errors.New("503"))
		}
		return "ok", nil
	})
	if err != nil || out != "ok" {
		t.Fatalf("Retry: out=%q err=%v", out, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 4*time.Second {
		t.Fatalf("sleeps = %v", sleeps)
	}
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	_, err := Retry(context.Background(), recordingPolicy(&sleeps), nil, "validate", func(ctx context.Context) (int, error) {
		calls++
		return 0, NewError(KindTransport, "validate", "timeout", nil)
	})
	if !IsKind(err, KindTransport) {
		t.Fatalf("expected last transport error, got %v", err)
	}
	if calls != 3 || len(sleeps) != 2 {
		t.Fatalf("calls=%d sleeps=%v", calls, sleeps)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	_, err := Retry(context.Background(), recordingPolicy(&sleeps), nil, "extract", func(ctx context.Context) (int, error) {
		calls++
		return 0, NewError(KindMalformedResponse, "extract", "not json", nil)
	})
	if !IsKind(err, KindMalformedResponse) || calls != 1 || len(sleeps) != 0 {
		t.Fatalf("err=%v calls=%d sleeps=%v", err, calls, sleeps)
	}
}

func TestRetryRateLimitedBacksOffLonger(t *testing.T) {
	p := DefaultRetryPolicy()
	transport := p.Delay(0, NewError(KindTransport, "", "", nil))
	limited := p.Delay(0, NewError(KindRateLimited, "", "", nil))
	if limited <= transport {
		t.Fatalf("rate limited delay %v should exceed transport delay %v", limited, transport)
	}
	hinted := &Error{Kind: KindRateLimited, RetryAfter: 7 * time.Second}
	if got := p.Delay(2, hinted); got != 7*time.Second {
		t.Fatalf("Retry-After hint ignored: %v", got)
	}
	if got := p.Delay(10, NewError(KindTransport, "", "", nil)); got != 30*time.Second {
		t.Fatalf("delay should cap at max: %v", got)
	}
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultRetryPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	calls := 0
	_, err := Retry(ctx, p, nil, "embed", func(ctx context.Context) (int, error) {
		calls++
		return 0, NewError(KindTransport, "embed", "", nil)
	})
	if err == nil || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}
