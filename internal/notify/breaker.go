package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"secretsportal/pkg/platform/sentinel"
)

// CircuitBreaker prevents thundering herd on a dead notification sink. When
// the sink is unhealthy the circuit opens and sends fail fast without hitting
// the network.
type CircuitBreaker struct {
	mu sync.RWMutex

	threshold int           // failures to trigger open
	cooldown  time.Duration // how long to stay open

	failures  int       // consecutive failures
	openUntil time.Time // when to transition from open to half-open
	isOpen    bool
}

// NewCircuitBreaker creates a circuit breaker.
// threshold: number of consecutive failures to open the circuit
// cooldown: how long to stay open before trying again
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown}
}

// Allow returns true if the circuit is closed (healthy) or half-open (testing).
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.RLock()
	if !cb.isOpen {
		cb.mu.RUnlock()
		return true
	}
	expired := time.Now().After(cb.openUntil)
	cb.mu.RUnlock()

	if expired {
		cb.mu.Lock()
		defer cb.mu.Unlock()
		// Double-check after acquiring write lock
		if cb.isOpen && time.Now().After(cb.openUntil) {
			cb.isOpen = false
			cb.failures = 0
		}
		return !cb.isOpen
	}
	return false
}

// RecordSuccess records a successful send, closing the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.isOpen = false
}

// RecordFailure records a failed send, potentially opening the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	if cb.failures >= cb.threshold {
		cb.isOpen = true
		cb.openUntil = time.Now().Add(cb.cooldown)
	}
}

// IsOpen returns true if the circuit is currently open.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.isOpen
}

// BreakerDispatcher wraps a Dispatcher with a circuit breaker.
type BreakerDispatcher struct {
	next    Dispatcher
	breaker *CircuitBreaker
}

func NewBreakerDispatcher(next Dispatcher, breaker *CircuitBreaker) *BreakerDispatcher {
	return &BreakerDispatcher{next: next, breaker: breaker}
}

func (d *BreakerDispatcher) Send(ctx context.Context, n Notification) error {
	if !d.breaker.Allow() {
		return fmt.Errorf("notification sink circuit open: %w", sentinel.ErrUnavailable)
	}
	if err := d.next.Send(ctx, n); err != nil {
		d.breaker.RecordFailure()
		return err
	}
	d.breaker.RecordSuccess()
	return nil
}
