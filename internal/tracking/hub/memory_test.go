package hub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saferide/internal/tracking/models"
)

func snapshot(version int64) *models.TrackingSession {
	return &models.TrackingSession{ID: "session-1", Version: version, IsActive: true}
}

func TestMemoryLatestWins(t *testing.T) {
	ctx := context.Background()
	h := NewMemory()
	ch, cancel, err := h.Subscribe(ctx, "session-1")
	require.NoError(t, err)
	defer cancel()

	for v := int64(1); v <= 5; v++ {
		require.NoError(t, h.Publish(ctx, snapshot(v)))
	}

	got := <-ch
	assert.Equal(t, int64(5), got.Version, "a slow consumer sees only the newest snapshot")
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %d", extra.Version)
	default:
	}
}

func TestMemoryCancelClosesChannel(t *testing.T) {
	ctx := context.Background()
	h := NewMemory()
	ch, cancel, err := h.Subscribe(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 1, h.Subscribers("session-1"))

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers("session-1"))
	require.NoError(t, h.Publish(ctx, snapshot(1)), "publishing with no subscribers is fine")
}

func TestMemoryIsolatesSessions(t *testing.T) {
	ctx := context.Background()
	h := NewMemory()
	ch, cancel, err := h.Subscribe(ctx, "session-2")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, h.Publish(ctx, snapshot(1)))
	select {
	case <-ch:
		t.Fatal("snapshot for another session delivered")
	default:
	}
}
