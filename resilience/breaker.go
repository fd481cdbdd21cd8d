package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is open and calls are being
// short-circuited.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// BreakerState represents the state of a circuit breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig defines the failure and recovery thresholds for a Breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int

	// Cooldown is how long the circuit stays open before allowing a probe.
	Cooldown time.Duration

	// SuccessThreshold is the number of consecutive probe successes required
	// to close the circuit again.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the breaker policy used for the durable cache
// tier: open after 5 consecutive failures, probe again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxFailures:      5,
		Cooldown:         30 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is a synchronous circuit breaker. The guarded operations are
// already bounded (single SQLite statements with a busy timeout), so Execute
// runs fn inline rather than racing it against a timer.
type Breaker struct {
	config BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewBreaker creates a circuit breaker with the given configuration.
func NewBreaker(config BreakerConfig) *Breaker {
	return &Breaker{config: config, state: StateClosed}
}

// Execute runs fn under circuit-breaker protection. When the circuit is open
// it returns ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Since(b.lastFailure) < b.config.Cooldown {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
	}
	return nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.MaxFailures {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
	}
}
