package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), RetryConfig{Sleep: noSleep}, func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: noSleep}, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: noSleep}, func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"), 500)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NotFoundIsTerminal(t *testing.T) {
	var calls int
	err := Do(context.Background(), RetryConfig{MaxAttempts: 3, Sleep: noSleep}, func(_ context.Context) error {
		calls++
		return ErrNotFound
	})
	if !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Errorf("not-found must not retry, got %d calls", calls)
	}
}

func TestDo_ContextCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, RetryConfig{MaxAttempts: 5, Sleep: noSleep}, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("flaky"), 502)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call after cancellation, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	got, err := DoVal(context.Background(), RetryConfig{MaxAttempts: 2, Sleep: noSleep}, func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("blip"), 429)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestBackoffDelay_CapAndJitterRange(t *testing.T) {
	cfg := applyDefaults(RetryConfig{})
	for attempt := 0; attempt < 6; attempt++ {
		for i := 0; i < 50; i++ {
			d := backoffDelay(attempt, cfg)
			// Cap is 5s; jitter may stretch it to at most 1.5x.
			if d > time.Duration(1.5*float64(cfg.MaxDelay)) {
				t.Fatalf("attempt %d: delay %v above jittered cap", attempt, d)
			}
			if d < 0 {
				t.Fatalf("negative delay %v", d)
			}
		}
	}
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	marker := errors.New("retry me anyway")
	err := Do(context.Background(), RetryConfig{
		MaxAttempts: 2,
		Sleep:       noSleep,
		ShouldRetry: func(err error) bool { return errors.Is(err, marker) },
	}, func(_ context.Context) error {
		calls++
		return marker
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}
