package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"saferide/internal/platform/config"
	"saferide/pkg/platform/circuit"
)

// Kafka publishes intents keyed by alert so all changes for one alert land
// on the same partition in order.
type Kafka struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	breaker *circuit.Breaker
}

// NewKafka connects a producer. Returns nil when no brokers are configured.
func NewKafka(cfg config.KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.EscalationTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Kafka{
		client:  client,
		topic:   cfg.EscalationTopic,
		logger:  logger,
		breaker: circuit.New("kafka-intents"),
	}, nil
}

// EnsureTopic creates the intent topic if the cluster does not have it yet.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	resp, err := kadm.NewClient(k.client).CreateTopics(ctx, partitions, replicationFactor, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

func (k *Kafka) Publish(ctx context.Context, intent Intent) error {
	payload, err := intent.Encode()
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(intent.AlertID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "intent_type", Value: []byte(intent.Type)},
		},
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		k.logger.ErrorContext(ctx, "failed to publish escalation intent",
			"call_id", intent.CallID,
			"alert_id", intent.AlertID,
			"type", intent.Type,
			"error", err,
		)
		if _, change := k.breaker.RecordFailure(); change.Opened {
			k.logger.ErrorContext(ctx, "escalation intent publishing degraded", "topic", k.topic)
		}
		return fmt.Errorf("produce intent: %w", err)
	}
	if _, change := k.breaker.RecordSuccess(); change.Closed {
		k.logger.InfoContext(ctx, "escalation intent publishing recovered", "topic", k.topic)
	}
	return nil
}

// Health fails while recent publishes keep failing.
func (k *Kafka) Health(context.Context) error {
	if k.breaker.IsOpen() {
		return errors.New("escalation intent publishing is failing")
	}
	return nil
}

func (k *Kafka) Close() {
	k.client.Close()
}
