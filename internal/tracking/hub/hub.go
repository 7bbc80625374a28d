// Package hub fans tracking snapshots out to live subscribers.
//
// Delivery is latest-wins: a subscriber that falls behind skips intermediate
// snapshots and always receives the newest one. Each snapshot carries the
// full location history, so nothing is lost by skipping.
package hub

import (
	"context"

	"saferide/internal/tracking/models"
	id "saferide/pkg/domain"
)

// Hub publishes session snapshots and delivers them to subscribers.
type Hub interface {
	Publish(ctx context.Context, snapshot *models.TrackingSession) error
	// Subscribe returns a channel of snapshots for sessionID and a cancel
	// func that releases the subscription and closes the channel.
	Subscribe(ctx context.Context, sessionID id.SessionID) (<-chan *models.TrackingSession, func(), error)
}

// OfferLatest delivers v on a buffered channel of size one, replacing any
// undelivered older value. Only one goroutine may send on out.
func OfferLatest[T any](out chan T, v T) {
	for {
		select {
		case out <- v:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
