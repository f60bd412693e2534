// Package resilience provides a circuit breaker for calls to flaky backends.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Circuit breaker states.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // tripping, reject calls
	StateHalfOpen              // allowing probe calls
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures the circuit breaker.
type BreakerOpts struct {
	// TripAfter is how many consecutive counted failures open the circuit.
	TripAfter int
	// CoolDown is how long the circuit stays open before probing resumes.
	CoolDown time.Duration
	// ProbeQuota limits in-flight probe calls while half-open.
	ProbeQuota int
	// CloseAfter is how many consecutive probe successes close the circuit.
	CloseAfter int
	// Ignore marks failures that never count against the backend, such as
	// the caller abandoning the request. A nil Ignore counts everything
	// except context.Canceled.
	Ignore func(error) bool
}

// DefaultBreakerOpts provides sensible defaults.
var DefaultBreakerOpts = BreakerOpts{
	TripAfter:  5,
	CoolDown:   30 * time.Second,
	ProbeQuota: 1,
	CloseAfter: 1,
}

func ignoreCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Breaker implements a circuit breaker with closed/open/half-open states.
type Breaker struct {
	mu             sync.Mutex
	opts           BreakerOpts
	state          State
	failures       int
	openedAt       time.Time
	probesInFlight int
	probeStreak    int
	now            func() time.Time // for testing
}

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.TripAfter <= 0 {
		opts.TripAfter = DefaultBreakerOpts.TripAfter
	}
	if opts.CoolDown <= 0 {
		opts.CoolDown = DefaultBreakerOpts.CoolDown
	}
	if opts.ProbeQuota <= 0 {
		opts.ProbeQuota = DefaultBreakerOpts.ProbeQuota
	}
	if opts.CloseAfter <= 0 {
		opts.CloseAfter = DefaultBreakerOpts.CloseAfter
	}
	if opts.Ignore == nil {
		opts.Ignore = ignoreCanceled
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState returns state, transitioning open→half-open once the cool-down
// has elapsed. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.CoolDown {
		b.state = StateHalfOpen
		b.probesInFlight = 0
		b.probeStreak = 0
	}
	return b.state
}

// allow reserves the right to make a call, or returns false while the
// breaker rejects. Must hold mu.
func (b *Breaker) allow() bool {
	switch b.currentState() {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.probesInFlight >= b.opts.ProbeQuota {
			return false
		}
		b.probesInFlight++
	}
	return true
}

// record folds a call outcome into the breaker state. Must hold mu.
func (b *Breaker) record(err error, probe bool) {
	// A trip while this probe was in flight already reset the count.
	if probe && b.probesInFlight > 0 {
		b.probesInFlight--
	}

	if err != nil {
		if b.opts.Ignore(err) {
			return
		}
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.TripAfter {
			b.trip()
		}
		return
	}

	b.failures = 0
	if b.state == StateHalfOpen {
		b.probeStreak++
		if b.probeStreak >= b.opts.CloseAfter {
			b.state = StateClosed
			b.probeStreak = 0
		}
	}
}

// trip opens the circuit. Must hold mu.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.probesInFlight = 0
	b.probeStreak = 0
}

// Call executes f through the circuit breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	b.mu.Lock()
	if !b.allow() {
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	probe := b.state == StateHalfOpen
	b.mu.Unlock()

	err := f(ctx)

	b.mu.Lock()
	b.record(err, probe)
	b.mu.Unlock()
	return err
}
