//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"saferide/internal/escalation/models"
	"saferide/internal/platform/config"
	id "saferide/pkg/domain"
	"saferide/pkg/testutil/containers"
)

func TestKafkaPublish(t *testing.T) {
	broker := containers.NewRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.KafkaConfig{Brokers: []string{broker}, EscalationTopic: "saferide.test.intents", ClientID: "saferide-test"}
	producer, err := NewKafka(cfg, nil)
	require.NoError(t, err)
	defer producer.Close()
	require.NoError(t, producer.EnsureTopic(ctx, 1, 1))
	require.NoError(t, producer.EnsureTopic(ctx, 1, 1), "existing topic is not an error")

	call, err := models.NewEscalationCall("alert-1", "driver-1", "dispatcher-7",
		id.Coordinates{Latitude: 9.9281, Longitude: -84.0907}, false, models.DriverInfo{Name: "Ana Mora"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, producer.Publish(ctx, NewIntent(IntentCallRecorded, call)))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker),
		kgo.ConsumeTopics(cfg.EscalationTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	records := fetches.Records()
	require.Len(t, records, 1)

	record := records[0]
	assert.Equal(t, "alert-1", string(record.Key))
	require.Len(t, record.Headers, 1)
	assert.Equal(t, string(IntentCallRecorded), string(record.Headers[0].Value))

	var got Intent
	require.NoError(t, json.Unmarshal(record.Value, &got))
	assert.Equal(t, call.ID, got.CallID)
	assert.Equal(t, models.CallStatusPending, got.Status)
}
