// Package breaker implements the Circuit Breaker per dependency, wrapping
// sony/gobreaker behind the framework's Execute/ExecuteWithTimeout/GetState
// contract and adding the Health-Monitor cascade-to-open rule.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned by Execute when the circuit is open.
var ErrOpen = errors.New("circuit_open")

// Breaker is implemented by this package's gobreaker-backed type; callers
// depend on this interface rather than the concrete type.
type Breaker interface {
	Execute(ctx context.Context, fn func() error) error
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error
	GetState() string
	GetMetrics() map[string]interface{}
	Reset()
	CanExecute() bool
}

// Params configures a CircuitBreaker.
type Params struct {
	Name             string
	Threshold        uint32
	ResetTimeout     time.Duration
	HalfOpenRequests uint32
}

// DefaultParams mirrors the spec's stated defaults: threshold 5, reset
// timeout 30s, one half-open trial.
func DefaultParams(name string) Params {
	return Params{Name: name, Threshold: 5, ResetTimeout: 30 * time.Second, HalfOpenRequests: 1}
}

// CircuitBreaker wraps a gobreaker.CircuitBreaker with a forced-open latch
// driven by the Health Monitor's unhealthy transitions.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker

	mu         sync.Mutex
	forcedOpen bool
}

// New builds a breaker closed-to-open on Threshold consecutive classified
// failures, open-to-half-open after ResetTimeout, half-open-to-closed on the
// first success.
func New(p Params) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        p.Name,
		MaxRequests: p.HalfOpenRequests,
		Timeout:     p.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.Threshold
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if b.forced() {
		return ErrOpen
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

func (b *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	return b.Execute(ctx, func() error {
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (b *CircuitBreaker) GetState() string {
	if b.forced() {
		return "open"
	}
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

func (b *CircuitBreaker) GetMetrics() map[string]interface{} {
	counts := b.cb.Counts()
	return map[string]interface{}{
		"requests":             counts.Requests,
		"total_successes":      counts.TotalSuccesses,
		"total_failures":       counts.TotalFailures,
		"consecutive_successes": counts.ConsecutiveSuccesses,
		"consecutive_failures":  counts.ConsecutiveFailures,
		"state":                b.GetState(),
	}
}

func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	b.forcedOpen = false
	b.mu.Unlock()
}

func (b *CircuitBreaker) CanExecute() bool {
	return b.GetState() != "open"
}

// ForceOpen latches the breaker open regardless of in-flight call outcomes,
// driven by a Health Monitor `unhealthy` transition. Reset clears the latch.
func (b *CircuitBreaker) ForceOpen() {
	b.mu.Lock()
	b.forcedOpen = true
	b.mu.Unlock()
}

func (b *CircuitBreaker) forced() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.forcedOpen
}
