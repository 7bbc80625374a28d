package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("kafka-intents", WithFailureThreshold(3))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "kafka-intents", b.Name())

	for range 2 {
		degraded, change := b.RecordFailure()
		assert.False(t, degraded)
		assert.False(t, change.Opened)
	}
	degraded, change := b.RecordFailure()
	assert.True(t, degraded)
	assert.True(t, change.Opened)
	assert.Equal(t, "open", b.State().String())

	degraded, change = b.RecordFailure()
	assert.True(t, degraded)
	assert.False(t, change.Opened, "already open")
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b := New("kafka-intents", WithFailureThreshold(2))
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreakerClosesAfterConsecutiveSuccesses(t *testing.T) {
	b := New("kafka-intents", WithFailureThreshold(1), WithSuccessThreshold(2))
	b.RecordFailure()

	healthy, change := b.RecordSuccess()
	assert.False(t, healthy)
	assert.False(t, change.Closed)

	b.RecordFailure()
	healthy, _ = b.RecordSuccess()
	assert.False(t, healthy, "a failure restarts the success count")

	healthy, change = b.RecordSuccess()
	assert.True(t, healthy)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreakerReset(t *testing.T) {
	b := New("kafka-intents", WithFailureThreshold(1))
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}
