package provider

import (
	"sync"
	"time"
)

// CircuitBreaker tracks per-provider failure streaks: after
// FailureThreshold consecutive failures the circuit opens for Cooldown; a
// single success closes it. The map is interior-mutable and safe for
// concurrent use.
type CircuitBreaker struct {
	FailureThreshold int
	Cooldown         time.Duration

	mu    sync.Mutex
	state map[string]*breakerState
}

type breakerState struct {
	consecutiveFailures int
	openedAt            time.Time
	open                bool
}

// NewCircuitBreaker builds a breaker with the default policy: 5 consecutive
// failures opens the circuit for a 5 minute cooldown.
func NewCircuitBreaker() *CircuitBreaker {
	return &CircuitBreaker{
		FailureThreshold: 5,
		Cooldown:         5 * time.Minute,
		state:            make(map[string]*breakerState),
	}
}

// IsAllowed reports whether providerID may currently be called. An open
// circuit whose cooldown has elapsed transitions to half-open (allowed, but
// still counted as open until the next success or failure resolves it).
func (b *CircuitBreaker) IsAllowed(providerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.state[providerID]
	if !ok || !st.open {
		return true
	}
	if time.Since(st.openedAt) >= b.Cooldown {
		return true // half-open: let one call through
	}
	return false
}

// RecordSuccess closes the circuit and resets the failure streak.
func (b *CircuitBreaker) RecordSuccess(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stateFor(providerID)
	st.consecutiveFailures = 0
	st.open = false
}

// RecordFailure increments the failure streak, opening the circuit once it
// reaches FailureThreshold.
func (b *CircuitBreaker) RecordFailure(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.stateFor(providerID)
	st.consecutiveFailures++
	if st.consecutiveFailures >= b.FailureThreshold {
		st.open = true
		st.openedAt = time.Now()
	}
}

// IsOpen reports the circuit's current open/closed state without the
// half-open grace IsAllowed grants.
func (b *CircuitBreaker) IsOpen(providerID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.state[providerID]
	return ok && st.open
}

// Reset clears a provider's breaker state entirely.
func (b *CircuitBreaker) Reset(providerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state, providerID)
}

func (b *CircuitBreaker) stateFor(providerID string) *breakerState {
	st, ok := b.state[providerID]
	if !ok {
		st = &breakerState{}
		b.state[providerID] = st
	}
	return st
}
