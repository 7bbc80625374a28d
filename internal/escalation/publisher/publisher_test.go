package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saferide/internal/escalation/models"
	"saferide/internal/platform/config"
	id "saferide/pkg/domain"
)

func TestIntentEncoding(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	call, err := models.NewEscalationCall("alert-1", "driver-1", "op-1",
		id.Coordinates{Latitude: 9.9281, Longitude: -84.0907}, true,
		models.DriverInfo{Name: "Ana", Vehicle: "Toyota Yaris", Plate: "BCD-123"}, now)
	require.NoError(t, err)

	raw, err := NewIntent(IntentCallRecorded, call).Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "call_recorded", decoded["type"])
	assert.Equal(t, "alert-1", decoded["alert_id"])
	assert.Equal(t, "pending", decoded["status"])
	assert.Equal(t, true, decoded["location_is_fallback"])
	assert.NotContains(t, decoded, "dispatch_number")
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(1)
	require.NoError(t, r.Publish(context.Background(), Intent{Type: IntentStatusUpdated}))
	assert.Equal(t, IntentStatusUpdated, (<-r.Intents()).Type)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Publish(context.Background(), Intent{}))
	assert.ErrorIs(t, r.Publish(ctx, Intent{}), context.Canceled, "full buffer respects cancellation")
}

func TestNewKafkaDisabledWithoutBrokers(t *testing.T) {
	k, err := NewKafka(config.KafkaConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, k)
}
