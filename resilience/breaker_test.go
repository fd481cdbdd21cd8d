package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 3, Cooldown: time.Hour, SuccessThreshold: 1})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}

	if b.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", b.State())
	}

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while the circuit is open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 2, Cooldown: time.Hour, SuccessThreshold: 1})
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return boom })

	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after interleaved success, got %s", b.State())
	}
}

func TestBreaker_RecoversAfterCooldown(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, Cooldown: 10 * time.Millisecond, SuccessThreshold: 2})
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	if b.State() != StateOpen {
		t.Fatalf("expected OPEN, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Two probe successes close the circuit.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe 1: %v", err)
	}
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe 2: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected CLOSED after probes, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxFailures: 1, Cooldown: 5 * time.Millisecond, SuccessThreshold: 2})
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	time.Sleep(10 * time.Millisecond)
	_ = b.Execute(func() error { return boom })

	if b.State() != StateOpen {
		t.Fatalf("expected OPEN after failed probe, got %s", b.State())
	}
}
