package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"saferide/internal/platform/postgres"
	"saferide/internal/tracking/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// PostgresStore keeps sessions in tracking_sessions and samples in
// tracking_locations. A partial unique index on (alert_id) WHERE is_active
// enforces one active session per alert; the samples primary key
// (session_id, recorded_at, latitude, longitude) drops redeliveries.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, driver_id, alert_id, started_at, ended_at, is_active, version`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) Create(ctx context.Context, session *models.TrackingSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracking_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.ID, session.DriverID, session.AlertID, session.StartedAt,
		session.EndedAt, session.IsActive, session.Version)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return postgres.Wrap("create tracking session", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.TrackingSession, error) {
	return loadSession(ctx, s.db, `SELECT `+sessionColumns+` FROM tracking_sessions WHERE id = $1`, sessionID)
}

func (s *PostgresStore) FindActiveByAlert(ctx context.Context, alertID id.AlertID) (*models.TrackingSession, error) {
	return loadSession(ctx, s.db, `SELECT `+sessionColumns+` FROM tracking_sessions WHERE alert_id = $1 AND is_active`, alertID)
}

func (s *PostgresStore) AppendLocation(ctx context.Context, sessionID id.SessionID, sample id.LocationSample) (*models.TrackingSession, models.AppendResult, error) {
	var res models.AppendResult
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, res, postgres.Wrap("begin tracking tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var active bool
	err = tx.QueryRowContext(ctx, `SELECT is_active FROM tracking_sessions WHERE id = $1 FOR UPDATE`, sessionID).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, res, sentinel.ErrNotFound
		}
		return nil, res, postgres.Wrap("lock tracking session", err)
	}
	if !active {
		return nil, res, sentinel.ErrClosed
	}

	inserted, err := tx.ExecContext(ctx, `
		INSERT INTO tracking_locations (session_id, latitude, longitude, accuracy, heading, speed, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, recorded_at, latitude, longitude) DO NOTHING
	`, sessionID, sample.Latitude, sample.Longitude, sample.Accuracy, sample.Heading, sample.Speed, sample.Timestamp)
	if err != nil {
		return nil, res, postgres.Wrap("insert tracking location", err)
	}
	n, err := inserted.RowsAffected()
	if err != nil {
		return nil, res, postgres.Wrap("insert tracking location", err)
	}
	if n == 1 {
		res.Inserted = true
		err = tx.QueryRowContext(ctx, `
			SELECT NOT EXISTS (
				SELECT 1 FROM tracking_locations WHERE session_id = $1 AND recorded_at > $2
			)
		`, sessionID, sample.Timestamp).Scan(&res.Newest)
		if err != nil {
			return nil, res, postgres.Wrap("check newest location", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE tracking_sessions SET version = version + 1 WHERE id = $1`, sessionID); err != nil {
			return nil, res, postgres.Wrap("bump tracking version", err)
		}
	}

	session, err := loadSession(ctx, tx, `SELECT `+sessionColumns+` FROM tracking_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return nil, res, err
	}
	if err := tx.Commit(); err != nil {
		return nil, res, postgres.Wrap("commit tracking location", err)
	}
	return session, res, nil
}

func (s *PostgresStore) Close(ctx context.Context, sessionID id.SessionID, now time.Time) (*models.TrackingSession, bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tracking_sessions
		SET is_active = FALSE, ended_at = $2, version = version + 1
		WHERE id = $1 AND is_active
	`, sessionID, now)
	if err != nil {
		return nil, false, postgres.Wrap("close tracking session", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, postgres.Wrap("close tracking session", err)
	}
	session, err := s.FindByID(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return session, n == 1, nil
}

func loadSession(ctx context.Context, q queryer, query string, arg any) (*models.TrackingSession, error) {
	var session models.TrackingSession
	err := q.QueryRowContext(ctx, query, arg).Scan(&session.ID, &session.DriverID, &session.AlertID,
		&session.StartedAt, &session.EndedAt, &session.IsActive, &session.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Wrap("find tracking session", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT latitude, longitude, accuracy, heading, speed, recorded_at
		FROM tracking_locations
		WHERE session_id = $1
		ORDER BY recorded_at, seq
	`, session.ID)
	if err != nil {
		return nil, postgres.Wrap("list tracking locations", err)
	}
	defer rows.Close()

	session.Locations = []id.LocationSample{}
	for rows.Next() {
		var l id.LocationSample
		if err := rows.Scan(&l.Latitude, &l.Longitude, &l.Accuracy, &l.Heading, &l.Speed, &l.Timestamp); err != nil {
			return nil, postgres.Wrap("scan tracking location", err)
		}
		session.Locations = append(session.Locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, postgres.Wrap("iterate tracking locations", err)
	}
	return &session, nil
}
