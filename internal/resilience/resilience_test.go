package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kodackx/echo-forge-ai/internal/resilience"
)

func TestRetryer_SucceedsAfterTransientFailures(t *testing.T) {
	r := resilience.NewRetryer(resilience.RetryConfig{
		Attempts: 3,
		Backoff:  time.Millisecond,
	})

	calls := 0
	err := r.Do(context.Background(), "test-op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryer_ExhaustsBudget(t *testing.T) {
	r := resilience.NewRetryer(resilience.RetryConfig{
		Attempts: 2,
		Backoff:  time.Millisecond,
	})

	boom := errors.New("still down")
	calls := 0
	err := r.Do(context.Background(), "test-op", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want wrapped %v", err, boom)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryer_ContextCancelStopsWaiting(t *testing.T) {
	r := resilience.NewRetryer(resilience.RetryConfig{
		Attempts: 5,
		Backoff:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, "test-op", func(context.Context) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
}

func TestDoValue_ReturnsResult(t *testing.T) {
	r := resilience.NewRetryer(resilience.RetryConfig{Attempts: 2, Backoff: time.Millisecond})

	calls := 0
	got, err := resilience.DoValue(context.Background(), r, "test-op", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "payload", nil
	})
	if err != nil {
		t.Fatalf("DoValue() error = %v", err)
	}
	if got != "payload" {
		t.Errorf("DoValue() = %q, want payload", got)
	}
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:     "test",
		Trip:     2,
		Cooldown: time.Hour,
	})

	boom := errors.New("down")
	fail := func() error { return boom }

	for i := 0; i < 2; i++ {
		if err := b.Run(fail); !errors.Is(err, boom) {
			t.Fatalf("Run() #%d error = %v", i, err)
		}
	}
	if got := b.State(); got != resilience.BreakerOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	calls := 0
	err := b.Run(func() error { calls++; return nil })
	if !errors.Is(err, resilience.ErrBreakerOpen) {
		t.Fatalf("Run() while open error = %v, want ErrBreakerOpen", err)
	}
	if calls != 0 {
		t.Error("fn called while breaker open")
	}
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	b := resilience.NewBreaker(resilience.BreakerConfig{
		Name:     "test",
		Trip:     1,
		Cooldown: 5 * time.Millisecond,
	})

	if err := b.Run(func() error { return errors.New("down") }); err == nil {
		t.Fatal("expected failure")
	}
	if got := b.State(); got != resilience.BreakerOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	time.Sleep(10 * time.Millisecond)
	if err := b.Run(func() error { return nil }); err != nil {
		t.Fatalf("probe Run() error = %v", err)
	}
	if got := b.State(); got != resilience.BreakerClosed {
		t.Errorf("State() after successful probe = %v, want closed", got)
	}
}

func TestFallbackGroup_UsesNextBackend(t *testing.T) {
	fg := resilience.NewFallbackGroup("primary", "p", resilience.BreakerConfig{Trip: 1, Cooldown: time.Hour})
	fg.Add("backup", "b")

	got, err := resilience.RunValue(fg, func(backend string) (string, error) {
		if backend == "p" {
			return "", errors.New("primary down")
		}
		return "from " + backend, nil
	})
	if err != nil {
		t.Fatalf("RunValue() error = %v", err)
	}
	if got != "from b" {
		t.Errorf("RunValue() = %q, want from b", got)
	}

	// The primary's breaker tripped above; it is skipped outright now.
	primaryCalls := 0
	_, err = resilience.RunValue(fg, func(backend string) (string, error) {
		if backend == "p" {
			primaryCalls++
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("RunValue() second pass error = %v", err)
	}
	if primaryCalls != 0 {
		t.Error("primary called while its breaker was open")
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	fg := resilience.NewFallbackGroup("only", 1, resilience.BreakerConfig{Trip: 3, Cooldown: time.Hour})

	_, err := resilience.RunValue(fg, func(int) (int, error) {
		return 0, errors.New("down")
	})
	if !errors.Is(err, resilience.ErrAllBackendsFailed) {
		t.Fatalf("RunValue() error = %v, want ErrAllBackendsFailed", err)
	}
}
