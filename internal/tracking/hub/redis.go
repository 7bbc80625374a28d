package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"saferide/internal/tracking/models"
	id "saferide/pkg/domain"
)

const channelPrefix = "saferide:tracking:"

// Redis fans snapshots out across instances with Redis pub/sub. Snapshots are
// not persisted in Redis; the session store remains the source of truth and
// subscribers load the initial snapshot from it.
type Redis struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func NewRedis(client redis.UniversalClient, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, logger: logger}
}

func channelFor(sessionID id.SessionID) string {
	return channelPrefix + sessionID.String()
}

func (r *Redis) Publish(ctx context.Context, snapshot *models.TrackingSession) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode tracking snapshot: %w", err)
	}
	if err := r.client.Publish(ctx, channelFor(snapshot.ID), payload).Err(); err != nil {
		return fmt.Errorf("publish tracking snapshot: %w", err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning, so
// snapshots published after Subscribe returns are not missed.
func (r *Redis) Subscribe(ctx context.Context, sessionID id.SessionID) (<-chan *models.TrackingSession, func(), error) {
	pubsub := r.client.Subscribe(ctx, channelFor(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe tracking snapshots: %w", err)
	}

	out := make(chan *models.TrackingSession, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap models.TrackingSession
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					r.logger.Warn("dropping malformed tracking snapshot",
						"session_id", sessionID,
						"error", err,
					)
					continue
				}
				OfferLatest(out, &snap)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
			wg.Wait()
		})
	}
	return out, cancel, nil
}
