package errors

import (
	"errors"
	"sync"
	"time"
)

// Breaker defaults.
const (
	ErrorThreshold      = 0.5
	MinRequests         = 10
	TimeoutDuration     = 30 * time.Second
	HalfOpenMaxRequests = 3
)

// State is the position of a CircuitBreaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var (
	ErrCircuitOpen  = errors.New("circuit breaker is open")
	errProbeLimited = errors.New("circuit breaker is probing, call rejected")
)

// BreakerOption customises a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithThreshold trips the breaker once at least minRequests calls were seen
// and the failure ratio reaches ratio.
func WithThreshold(ratio float64, minRequests int) BreakerOption {
	return func(cb *CircuitBreaker) {
		if ratio > 0 {
			cb.threshold = ratio
		}
		if minRequests > 0 {
			cb.minRequests = minRequests
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) BreakerOption {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.openTimeout = d
		}
	}
}

// WithStateChange registers fn to be called after every transition.
// fn runs under the breaker lock and must not call back into it.
func WithStateChange(fn func(name string, from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onChange = fn
	}
}

type counts struct {
	requests  int
	failures  int
	successes int
}

func (c counts) failureRatio() float64 {
	if c.requests == 0 {
		return 0
	}
	return float64(c.failures) / float64(c.requests)
}

// CircuitBreaker fails fast after an upstream keeps erroring. It never retries.
type CircuitBreaker struct {
	name        string
	threshold   float64
	minRequests int
	openTimeout time.Duration
	probes      int
	onChange    func(name string, from, to State)
	now         func() time.Time

	mu       sync.Mutex
	state    State
	counts   counts
	openedAt time.Time
}

// NewCircuitBreaker builds a closed breaker. name is reported to the state
// change hook.
func NewCircuitBreaker(name string, opts ...BreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:        name,
		threshold:   ErrorThreshold,
		minRequests: MinRequests,
		openTimeout: TimeoutDuration,
		probes:      HalfOpenMaxRequests,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Call runs fn unless the breaker is open. While half-open only a few probe
// calls go through; the first failure reopens the breaker.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if fn == nil {
		return nil
	}
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err == nil)
	return err
}

// State reports the current state, moving an expired open breaker to half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expireLocked()
	return cb.state
}

// IsOpen reports whether err was produced by a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, errProbeLimited)
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.expireLocked()
	switch cb.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.counts.requests >= cb.probes {
			return errProbeLimited
		}
	}
	cb.counts.requests++
	return nil
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if ok {
		cb.counts.successes++
		if cb.state == StateHalfOpen && cb.counts.successes >= cb.probes {
			cb.setStateLocked(StateClosed)
		}
		return
	}

	cb.counts.failures++
	switch cb.state {
	case StateHalfOpen:
		cb.setStateLocked(StateOpen)
	case StateClosed:
		if cb.counts.requests >= cb.minRequests && cb.counts.failureRatio() >= cb.threshold {
			cb.setStateLocked(StateOpen)
		}
	}
}

func (cb *CircuitBreaker) expireLocked() {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.openTimeout {
		cb.setStateLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) setStateLocked(to State) {
	from := cb.state
	cb.state = to
	cb.counts = counts{}
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	if cb.onChange != nil && from != to {
		cb.onChange(cb.name, from, to)
	}
}
