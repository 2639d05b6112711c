// Package breaker implements per-service circuit breakers. Each backend has
// an independent three-state machine; a failing service never affects the
// breakers of the others.
package breaker

import (
	"sync"
	"time"

	"harbormaster/pkg/logging"
)

// State is the circuit breaker state.
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
		return "half_open"
	default:
		return "closed"
	}
}

// Config configures breaker thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	SuccessThreshold int           // successes needed to close from half-open
	RecoveryTimeout  time.Duration // time to wait before trying half-open
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// Breaker is the state machine for one backend service.
type Breaker struct {
	mu                  sync.Mutex
	cfg                 Config
	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	lastFailureTime     time.Time
}

func newBreaker(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// State returns the current state. The Open→HalfOpen transition happens
// lazily here once the recovery timeout has elapsed; there is no timer.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether a request may be attempted against the backend.
func (b *Breaker) Allow() bool {
	return b.State() != StateOpen
}

// maybeHalfOpen must be called with the lock held.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && time.Since(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
		b.state = StateHalfOpen
		b.halfOpenSuccesses = 0
	}
}

// RecordSuccess feeds a successful call outcome into the state machine.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.halfOpenSuccesses = 0
		}
	case StateOpen:
		// Success while open is ignored; recovery goes through half-open.
	}
}

// RecordFailure feeds a failed call outcome into the state machine.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()

	b.consecutiveFailures++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	case StateHalfOpen:
		b.state = StateOpen
	}
}

// Reset forces the breaker back to closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.halfOpenSuccesses = 0
	b.lastFailureTime = time.Time{}
}

// Stats returns the current state and counters.
func (b *Breaker) Stats() (State, int, time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state, b.consecutiveFailures, b.lastFailureTime
}

// Set manages one breaker per service name, created lazily.
type Set struct {
	mu       sync.RWMutex
	cfg      Config
	breakers map[string]*Breaker
	logger   logging.Logger
}

// NewSet creates a breaker set with shared thresholds.
func NewSet(cfg Config, logger logging.Logger) *Set {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultConfig().RecoveryTimeout
	}
	return &Set{
		cfg:      cfg,
		breakers: make(map[string]*Breaker),
		logger:   logger,
	}
}

// Get returns the breaker for a service, creating it closed if needed.
func (s *Set) Get(service string) *Breaker {
	s.mu.RLock()
	b, ok := s.breakers[service]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.breakers[service]; ok {
		return b
	}
	b = newBreaker(s.cfg)
	s.breakers[service] = b
	return b
}

// States returns the current state per known service.
func (s *Set) States() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]State, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State()
	}
	return out
}

// Reset forces a service's breaker back to closed.
func (s *Set) Reset(service string) {
	b := s.Get(service)
	b.Reset()
	if s.logger != nil {
		s.logger.WithFields(logging.Fields{
			"service":       service,
			"circuit_state": StateClosed.String(),
		}).Info("Circuit breaker reset")
	}
}
