package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "vkdump/pkg/errors"
)

func noDelay() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: 0},
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, noDelay())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return errs.New(errs.KindUnavailable, 500, "server error")
		}
		return nil
	}, noDelay())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoStopsOnRejected(t *testing.T) {
	calls := 0
	rejected := errs.New(errs.KindRejected, errs.CodeAccessDenied, "access denied")
	err := Do(func() error {
		calls++
		return rejected
	}, noDelay())

	if !errors.Is(err, rejected) {
		t.Fatalf("expected the rejection to surface, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call for a permanent error, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(func() error {
		calls++
		return errs.New(errs.KindRateLimited, errs.CodeTooManyRequests, "too many requests")
	}, noDelay())

	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if !errs.IsKind(err, errs.KindRateLimited) {
		t.Errorf("expected the typed rate-limit error to survive wrapping, got %v", err)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := noDelay()
	cfg.Context = ctx
	cfg.Backoff = &ConstantBackoff{Delay: time.Second}

	err := Do(func() error {
		return errs.New(errs.KindUnavailable, 0, "network error")
	}, cfg)

	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	result, err := DoWithResult(func() (int, error) {
		calls++
		if calls < 2 {
			return 0, errs.New(errs.KindUnavailable, 503, "unavailable")
		}
		return 42, nil
	}, noDelay())

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 {
		t.Errorf("expected 42, got %d", result)
	}
}

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	eb := &ExponentialBackoff{
		BaseDelay:  time.Second,
		MaxDelay:   4 * time.Second,
		Multiplier: 2.0,
	}

	if d := eb.NextDelay(1); d != time.Second {
		t.Errorf("attempt 1: expected 1s, got %v", d)
	}
	if d := eb.NextDelay(2); d != 2*time.Second {
		t.Errorf("attempt 2: expected 2s, got %v", d)
	}
	if d := eb.NextDelay(10); d != 4*time.Second {
		t.Errorf("attempt 10: expected cap at 4s, got %v", d)
	}
	if d := eb.NextDelay(0); d != 0 {
		t.Errorf("attempt 0: expected 0, got %v", d)
	}
}
