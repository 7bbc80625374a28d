package audit

import (
	"context"
	"database/sql"

	"saferide/internal/platform/postgres"
	id "saferide/pkg/domain"
)

// PostgresStore appends events to the audit_events table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (occurred_at, alert_id, driver_id, actor, action, outcome, detail, request_id, client)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.Timestamp, event.AlertID, event.DriverID, event.Actor, event.Action,
		event.Outcome, event.Detail, event.RequestID, event.Client)
	return postgres.Wrap("append audit event", err)
}

func (s *PostgresStore) ListByAlert(ctx context.Context, alertID id.AlertID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, alert_id, driver_id, actor, action, outcome, detail, request_id, client
		FROM audit_events
		WHERE alert_id = $1
		ORDER BY occurred_at, id
	`, alertID)
	if err != nil {
		return nil, postgres.Wrap("list audit events", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Timestamp, &e.AlertID, &e.DriverID, &e.Actor, &e.Action,
			&e.Outcome, &e.Detail, &e.RequestID, &e.Client); err != nil {
			return nil, postgres.Wrap("scan audit event", err)
		}
		events = append(events, e)
	}
	return events, postgres.Wrap("iterate audit events", rows.Err())
}
