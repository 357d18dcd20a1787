// Package circuitbreaker guards the tool handlers against a persistently
// failing backend. Failures only trip the breaker while they are
// consecutive and fall inside a rolling window; a cooldown later the
// breaker admits a small probe batch before closing again.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds circuit breaker configuration.
type Config struct {
	// FailureThreshold is the number of consecutive failures inside
	// FailureWindow that opens the circuit.
	FailureThreshold int
	// FailureWindow bounds how long a consecutive-failure run may span.
	// A failure arriving after the window restarts the count at one.
	FailureWindow time.Duration
	// Cooldown is how long the circuit stays open before admitting probes.
	Cooldown time.Duration
	// ProbeSuccesses is the number of consecutive half-open successes
	// that closes the circuit. One probe failure reopens it.
	ProbeSuccesses int
	// MaxProbes caps concurrent half-open requests.
	MaxProbes int
	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		Cooldown:         30 * time.Second,
		ProbeSuccesses:   3,
		MaxProbes:        3,
	}
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config *Config

	state            int32 // atomic State
	openedAt         int64 // atomic, unix nano of the last open transition
	firstFailureTime int64 // atomic, unix nano of the start of the failure run

	consecutiveFailures  int32
	consecutiveSuccesses int32
	probeRequests        int32

	totalRequests   int64
	totalFailures   int64
	totalSuccesses  int64
	totalRejections int64
}

// New creates a circuit breaker.
func New(config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = config.ProbeSuccesses
	}
	return &CircuitBreaker{
		config: config,
		state:  int32(StateClosed),
	}
}

// Errors
var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
	ErrProbeLimit  = errors.New("half-open probe limit reached")
)

// Allow reports whether a request may proceed. The paired Record call must
// follow every allowed request.
func (cb *CircuitBreaker) Allow() error {
	switch cb.getState() {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.cooldownElapsed() {
			cb.transitionTo(StateHalfOpen)
			atomic.AddInt32(&cb.probeRequests, 1)
			return nil
		}
		atomic.AddInt64(&cb.totalRejections, 1)
		return ErrCircuitOpen

	case StateHalfOpen:
		current := atomic.AddInt32(&cb.probeRequests, 1)
		if current > int32(cb.config.MaxProbes) {
			atomic.AddInt32(&cb.probeRequests, -1)
			atomic.AddInt64(&cb.totalRejections, 1)
			return ErrProbeLimit
		}
		return nil

	default:
		return fmt.Errorf("unknown circuit breaker state: %v", cb.getState())
	}
}

// Record reports the outcome of an allowed request.
func (cb *CircuitBreaker) Record(err error) {
	state := cb.getState()
	atomic.AddInt64(&cb.totalRequests, 1)

	if err != nil {
		cb.recordFailure(state)
	} else {
		cb.recordSuccess(state)
	}

	if state == StateHalfOpen {
		atomic.AddInt32(&cb.probeRequests, -1)
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.Record(err)
	return err
}

func (cb *CircuitBreaker) recordSuccess(state State) {
	atomic.AddInt64(&cb.totalSuccesses, 1)

	switch state {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt64(&cb.firstFailureTime, 0)

	case StateHalfOpen:
		successes := atomic.AddInt32(&cb.consecutiveSuccesses, 1)
		if successes >= int32(cb.config.ProbeSuccesses) {
			cb.transitionTo(StateClosed)
		}

	case StateOpen:
		// A success recorded while open (request raced the transition)
		// does not move the state; the cooldown clock decides.
	}
}

func (cb *CircuitBreaker) recordFailure(state State) {
	atomic.AddInt64(&cb.totalFailures, 1)

	switch state {
	case StateClosed:
		now := time.Now().UnixNano()
		first := atomic.LoadInt64(&cb.firstFailureTime)
		if first == 0 || time.Duration(now-first) > cb.config.FailureWindow {
			// the run aged out of the window; this failure starts a new one
			atomic.StoreInt64(&cb.firstFailureTime, now)
			atomic.StoreInt32(&cb.consecutiveFailures, 1)
			return
		}
		failures := atomic.AddInt32(&cb.consecutiveFailures, 1)
		if failures >= int32(cb.config.FailureThreshold) {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		// one probe failure reopens the circuit
		cb.transitionTo(StateOpen)

	case StateOpen:
	}
}

func (cb *CircuitBreaker) cooldownElapsed() bool {
	openedAt := atomic.LoadInt64(&cb.openedAt)
	if openedAt == 0 {
		return true
	}
	return time.Since(time.Unix(0, openedAt)) >= cb.config.Cooldown
}

// RetryAfter returns the time remaining until the open circuit admits
// probes, rounded up to a whole second. Zero when the circuit is not open.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	if cb.getState() != StateOpen {
		return 0
	}
	openedAt := atomic.LoadInt64(&cb.openedAt)
	remaining := cb.config.Cooldown - time.Since(time.Unix(0, openedAt))
	if remaining <= 0 {
		return time.Second
	}
	return remaining.Round(time.Second) + time.Second
}

func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(atomic.SwapInt32(&cb.state, int32(newState)))
	if oldState == newState {
		return
	}

	switch newState {
	case StateClosed:
		atomic.StoreInt32(&cb.consecutiveFailures, 0)
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		atomic.StoreInt64(&cb.firstFailureTime, 0)

	case StateOpen:
		atomic.StoreInt64(&cb.openedAt, time.Now().UnixNano())
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)

	case StateHalfOpen:
		atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
		atomic.StoreInt32(&cb.probeRequests, 0)
	}

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(oldState, newState)
	}
}

func (cb *CircuitBreaker) getState() State {
	return State(atomic.LoadInt32(&cb.state))
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	return cb.getState()
}

// Stats holds circuit breaker statistics.
type Stats struct {
	State               State   `json:"state"`
	TotalRequests       int64   `json:"total_requests"`
	TotalFailures       int64   `json:"total_failures"`
	TotalSuccesses      int64   `json:"total_successes"`
	TotalRejections     int64   `json:"total_rejections"`
	FailureRate         float64 `json:"failure_rate"`
	ConsecutiveFailures int32   `json:"consecutive_failures"`
}

// GetStats returns current statistics.
func (cb *CircuitBreaker) GetStats() Stats {
	requests := atomic.LoadInt64(&cb.totalRequests)
	failures := atomic.LoadInt64(&cb.totalFailures)

	var failureRate float64
	if requests > 0 {
		failureRate = float64(failures) / float64(requests)
	}

	return Stats{
		State:               cb.getState(),
		TotalRequests:       requests,
		TotalFailures:       failures,
		TotalSuccesses:      atomic.LoadInt64(&cb.totalSuccesses),
		TotalRejections:     atomic.LoadInt64(&cb.totalRejections),
		FailureRate:         failureRate,
		ConsecutiveFailures: atomic.LoadInt32(&cb.consecutiveFailures),
	}
}

// Reset returns the breaker to the closed state with cleared counters.
func (cb *CircuitBreaker) Reset() {
	atomic.StoreInt32(&cb.state, int32(StateClosed))
	atomic.StoreInt32(&cb.consecutiveFailures, 0)
	atomic.StoreInt32(&cb.consecutiveSuccesses, 0)
	atomic.StoreInt32(&cb.probeRequests, 0)
	atomic.StoreInt64(&cb.openedAt, 0)
	atomic.StoreInt64(&cb.firstFailureTime, 0)
}
