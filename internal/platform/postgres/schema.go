package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is idempotent so Migrate can run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS drivers (
    id                  TEXT PRIMARY KEY,
    full_name           TEXT NOT NULL DEFAULT '',
    vehicle_description TEXT NOT NULL DEFAULT '',
    plate               TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS alerts (
    id               TEXT PRIMARY KEY,
    driver_id        TEXT NOT NULL,
    status           TEXT NOT NULL CHECK (status IN ('active', 'awaiting_verification', 'investigating', 'resolved')),
    current_location JSONB,
    resolution_note  TEXT NOT NULL DEFAULT '',
    call_911_id      TEXT NOT NULL DEFAULT '',
    resolved_at      TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS driver_challenge_profiles (
    driver_id             TEXT PRIMARY KEY,
    primary_question      TEXT NOT NULL,
    primary_answer_hash   TEXT NOT NULL,
    secondary_question    TEXT NOT NULL,
    secondary_answer_hash TEXT NOT NULL,
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS alert_verifications (
    alert_id                 TEXT PRIMARY KEY REFERENCES alerts(id),
    driver_id                TEXT NOT NULL,
    current_step             TEXT NOT NULL CHECK (current_step IN ('first_question', 'second_question', 'completed', 'failed')),
    first_question_asked_at  TIMESTAMPTZ NOT NULL,
    first_question_answer    TEXT NOT NULL DEFAULT '',
    first_question_correct   BOOLEAN,
    second_question_asked_at TIMESTAMPTZ,
    second_question_answer   TEXT NOT NULL DEFAULT '',
    second_question_correct  BOOLEAN,
    completed_at             TIMESTAMPTZ,
    action_taken             TEXT NOT NULL DEFAULT '',
    verified_by              TEXT NOT NULL DEFAULT '',
    tracking_session_id      TEXT NOT NULL DEFAULT '',
    call_id                  TEXT NOT NULL DEFAULT '',
    version                  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tracking_sessions (
    id         UUID PRIMARY KEY,
    driver_id  TEXT NOT NULL,
    alert_id   TEXT NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at   TIMESTAMPTZ,
    is_active  BOOLEAN NOT NULL,
    version    BIGINT NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS tracking_sessions_one_active_per_alert
    ON tracking_sessions (alert_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS tracking_locations (
    seq         BIGSERIAL PRIMARY KEY,
    session_id  UUID NOT NULL REFERENCES tracking_sessions(id),
    latitude    DOUBLE PRECISION NOT NULL,
    longitude   DOUBLE PRECISION NOT NULL,
    accuracy    DOUBLE PRECISION,
    heading     DOUBLE PRECISION,
    speed       DOUBLE PRECISION,
    recorded_at TIMESTAMPTZ NOT NULL,
    UNIQUE (session_id, recorded_at, latitude, longitude)
);

CREATE TABLE IF NOT EXISTS escalation_calls (
    id                   UUID PRIMARY KEY,
    alert_id             TEXT NOT NULL,
    driver_id            TEXT NOT NULL,
    called_at            TIMESTAMPTZ NOT NULL,
    called_by            TEXT NOT NULL DEFAULT '',
    latitude             DOUBLE PRECISION NOT NULL,
    longitude            DOUBLE PRECISION NOT NULL,
    location_is_fallback BOOLEAN NOT NULL DEFAULT FALSE,
    driver_name          TEXT NOT NULL DEFAULT '',
    driver_vehicle       TEXT NOT NULL DEFAULT '',
    driver_plate         TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL,
    dispatch_number      TEXT NOT NULL DEFAULT '',
    notes                TEXT NOT NULL DEFAULT '',
    updated_at           TIMESTAMPTZ NOT NULL
);

ALTER TABLE escalation_calls DROP CONSTRAINT IF EXISTS escalation_calls_alert_id_key;

CREATE UNIQUE INDEX IF NOT EXISTS escalation_calls_live_alert_idx
    ON escalation_calls (alert_id)
    WHERE status NOT IN ('resolved', 'cancelled');

CREATE INDEX IF NOT EXISTS escalation_calls_alert_idx
    ON escalation_calls (alert_id, called_at DESC);

CREATE TABLE IF NOT EXISTS audit_events (
    id          BIGSERIAL PRIMARY KEY,
    occurred_at TIMESTAMPTZ NOT NULL,
    alert_id    TEXT NOT NULL DEFAULT '',
    driver_id   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT '',
    action      TEXT NOT NULL,
    outcome     TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    request_id  TEXT NOT NULL DEFAULT '',
    client      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS audit_events_alert ON audit_events (alert_id, occurred_at);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
