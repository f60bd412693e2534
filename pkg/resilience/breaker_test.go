package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(_ context.Context) error    { return errors.New("boom") }
func succeeding(_ context.Context) error { return nil }

func newTestBreaker(opts BreakerOpts) (*Breaker, *time.Time) {
	b := NewBreaker(opts)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerOpensAfterTripAfter(t *testing.T) {
	b, _ := newTestBreaker(BreakerOpts{TripAfter: 3, CoolDown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Call(ctx, failing); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open", b.State())
	}
	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b, now := newTestBreaker(BreakerOpts{TripAfter: 1, CoolDown: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	*now = now.Add(2 * time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatal("breaker should be half-open after cool-down")
	}
	if err := b.Call(ctx, succeeding); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed after successful probe", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(BreakerOpts{TripAfter: 1, CoolDown: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	*now = now.Add(2 * time.Minute)
	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("state = %s, want open after failed probe", b.State())
	}
}

func TestBreakerCloseAfterStreak(t *testing.T) {
	b, now := newTestBreaker(BreakerOpts{TripAfter: 1, CoolDown: time.Minute, CloseAfter: 2})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	*now = now.Add(2 * time.Minute)

	if err := b.Call(ctx, succeeding); err != nil {
		t.Fatalf("first probe failed: %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open after one of two probes", b.State())
	}
	if err := b.Call(ctx, succeeding); err != nil {
		t.Fatalf("second probe failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %s, want closed after probe streak", b.State())
	}
}

func TestBreakerProbeQuota(t *testing.T) {
	b, now := newTestBreaker(BreakerOpts{TripAfter: 1, CoolDown: time.Minute, ProbeQuota: 1, CloseAfter: 2})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	*now = now.Add(2 * time.Minute)

	// Hold a probe slot open and verify a second concurrent call is refused.
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Call(ctx, func(_ context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen while probe in flight, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe failed: %v", err)
	}
}

func TestBreakerIgnoresCanceled(t *testing.T) {
	b, _ := newTestBreaker(BreakerOpts{TripAfter: 1, CoolDown: time.Minute})
	ctx := context.Background()

	canceled := func(_ context.Context) error {
		return context.Canceled
	}
	for i := 0; i < 5; i++ {
		if err := b.Call(ctx, canceled); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Fatal("caller cancellation must not count against the backend")
	}
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(BreakerOpts{TripAfter: 2, CoolDown: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	_ = b.Call(ctx, succeeding)
	_ = b.Call(ctx, failing)
	if b.State() != StateClosed {
		t.Fatal("non-consecutive failures should not trip the breaker")
	}
}
