package audit

import (
	"context"
	"log/slog"

	id "saferide/pkg/domain"
	"saferide/pkg/requestcontext"
)

// Store is the append-only persistence for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAlert(ctx context.Context, alertID id.AlertID) ([]Event, error)
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store  Store
	inbox  chan<- Event
	logger *slog.Logger
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithInbox makes Emit hand events to a Worker instead of writing inline.
// A full inbox falls back to an inline write.
func WithInbox(inbox chan<- Event) Option {
	return func(p *Publisher) {
		p.inbox = inbox
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit stamps request-scoped fields onto base and records it.
func (p *Publisher) Emit(ctx context.Context, base Event) error {
	if base.Timestamp.IsZero() {
		base.Timestamp = requestcontext.Now(ctx)
	}
	if base.RequestID == "" {
		base.RequestID = requestcontext.RequestID(ctx)
	}
	if base.Actor == "" {
		base.Actor = requestcontext.Operator(ctx)
	}
	if base.Client == "" {
		base.Client = requestcontext.Client(ctx)
	}
	if p.inbox != nil {
		select {
		case p.inbox <- base:
			return nil
		default:
			p.logger.WarnContext(ctx, "audit inbox full, writing inline",
				"action", base.Action,
				"alert_id", base.AlertID,
			)
		}
	}
	return p.store.Append(ctx, base)
}

func (p *Publisher) List(ctx context.Context, alertID id.AlertID) ([]Event, error) {
	return p.store.ListByAlert(ctx, alertID)
}
