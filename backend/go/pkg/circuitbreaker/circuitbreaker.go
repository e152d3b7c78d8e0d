package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen allows trial requests through to test whether the dependency recovered.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs the given request if the circuit breaker is closed or half-open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
}

// Option configures a breaker created by New.
type Option func(*breaker)

// WithStateChange registers a callback invoked after every state transition.
// The callback runs without the breaker lock held.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *breaker) { b.onStateChange = fn }
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) { b.now = now }
}

type breaker struct {
	failureThreshold     uint32        // Number of failures to trip the circuit.
	successThreshold     uint32        // Number of successes in HalfOpen state to close the circuit.
	timeout              time.Duration // Duration to wait in Open state before transitioning to HalfOpen.
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
	state                State
	onStateChange        func(from, to State)
	now                  func() time.Time
	mutex                sync.Mutex
}

// New creates a new circuit breaker.
// failureThreshold: consecutive failures required to open the circuit.
// successThreshold: consecutive half-open successes required to close it again.
// timeout: how long the circuit stays open before letting a trial request through.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	if failureThreshold == 0 {
		failureThreshold = 1
	}
	if successThreshold == 0 {
		successThreshold = 1
	}
	b := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state of the circuit breaker.
func (b *breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) > b.timeout {
		return HalfOpen
	}
	return b.state
}

// Execute wraps the execution of a function with the circuit breaker logic.
func (b *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	b.mutex.Lock()
	var changed *[2]State
	if b.state == Open && b.now().Sub(b.openedAt) > b.timeout {
		changed = b.setState(HalfOpen)
	}
	if b.state == Open {
		b.mutex.Unlock()
		b.notify(changed)
		return nil, ErrCircuitOpen
	}
	b.mutex.Unlock()
	b.notify(changed)

	res, err := req()
	if err != nil {
		b.notify(b.onFailure())
		return nil, err
	}
	b.notify(b.onSuccess())
	return res, nil
}

func (b *breaker) onSuccess() *[2]State {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case HalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.successThreshold {
			return b.setState(Closed)
		}
	case Closed:
		b.consecutiveFailures = 0
	}
	return nil
}

func (b *breaker) onFailure() *[2]State {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case HalfOpen:
		return b.setState(Open)
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			return b.setState(Open)
		}
	}
	return nil
}

// setState must be called with the lock held.
func (b *breaker) setState(to State) *[2]State {
	from := b.state
	b.state = to
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	if to == Open {
		b.openedAt = b.now()
	}
	if from == to {
		return nil
	}
	return &[2]State{from, to}
}

func (b *breaker) notify(change *[2]State) {
	if change != nil && b.onStateChange != nil {
		b.onStateChange(change[0], change[1])
	}
}
