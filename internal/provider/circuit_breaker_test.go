package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerAllowsUntilThreshold(t *testing.T) {
	b := NewCircuitBreaker()
	b.FailureThreshold = 3

	for i := 0; i < 2; i++ {
		b.RecordFailure("p1")
		assert.True(t, b.IsAllowed("p1"))
	}
	b.RecordFailure("p1")
	assert.False(t, b.IsAllowed("p1"), "circuit must open on reaching the threshold")
}

func TestCircuitBreakerSingleSuccessCloses(t *testing.T) {
	b := NewCircuitBreaker()
	b.FailureThreshold = 2

	b.RecordFailure("p1")
	b.RecordFailure("p1")
	assert.True(t, b.IsOpen("p1"))

	b.RecordSuccess("p1")
	assert.False(t, b.IsOpen("p1"))
	assert.True(t, b.IsAllowed("p1"))
}

func TestCircuitBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := NewCircuitBreaker()
	b.FailureThreshold = 1
	b.Cooldown = 10 * time.Millisecond

	b.RecordFailure("p1")
	assert.False(t, b.IsAllowed("p1"))

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.IsAllowed("p1"), "cooldown elapsed must allow a half-open retry")
}

func TestCircuitBreakerResetClearsState(t *testing.T) {
	b := NewCircuitBreaker()
	b.FailureThreshold = 1
	b.RecordFailure("p1")
	assert.True(t, b.IsOpen("p1"))

	b.Reset("p1")
	assert.False(t, b.IsOpen("p1"))
	assert.True(t, b.IsAllowed("p1"))
}

func TestCircuitBreakerProvidersAreIndependent(t *testing.T) {
	b := NewCircuitBreaker()
	b.FailureThreshold = 1
	b.RecordFailure("p1")
	assert.True(t, b.IsOpen("p1"))
	assert.False(t, b.IsOpen("p2"))
}
