package store

import (
	"context"
	"database/sql"
	"errors"

	"saferide/internal/escalation/models"
	"saferide/internal/platform/postgres"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// PostgresStore persists escalation calls. A partial unique index allows one
// live call per alert, which makes CreateIfAbsent idempotent across replicas.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callColumns = `id, alert_id, driver_id, called_at, called_by, latitude, longitude,
	location_is_fallback, driver_name, driver_vehicle, driver_plate, status,
	dispatch_number, notes, updated_at`

// liveCall must match the predicate of escalation_calls_live_alert_idx.
const liveCall = `status NOT IN ('resolved', 'cancelled')`

// createAttempts bounds the insert/lookup loop when the live call turns
// terminal between the conflicting insert and the lookup.
const createAttempts = 3

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, call *models.EscalationCall) (*models.EscalationCall, bool, error) {
	for range createAttempts {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO escalation_calls (`+callColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (alert_id) WHERE `+liveCall+` DO NOTHING
		`, call.ID, call.AlertID, call.DriverID, call.CalledAt, call.CalledBy,
			call.Location.Latitude, call.Location.Longitude, call.LocationIsFallback,
			call.DriverInfo.Name, call.DriverInfo.Vehicle, call.DriverInfo.Plate,
			call.Status, call.DispatchNumber, call.Notes, call.UpdatedAt)
		if err != nil {
			return nil, false, postgres.Wrap("insert escalation call", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, false, postgres.Wrap("insert escalation call", err)
		}
		if affected == 1 {
			return call.Clone(), true, nil
		}
		row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM escalation_calls WHERE alert_id = $1 AND `+liveCall, call.AlertID)
		existing, err := findOne(row, "find live escalation call")
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	return nil, false, sentinel.ErrConflict
}

func (s *PostgresStore) FindByID(ctx context.Context, callID id.CallID) (*models.EscalationCall, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM escalation_calls WHERE id = $1`, callID)
	return findOne(row, "find escalation call")
}

func (s *PostgresStore) FindByAlert(ctx context.Context, alertID id.AlertID) (*models.EscalationCall, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+callColumns+` FROM escalation_calls
		WHERE alert_id = $1
		ORDER BY called_at DESC, updated_at DESC
		LIMIT 1
	`, alertID)
	return findOne(row, "find escalation call by alert")
}

func (s *PostgresStore) Execute(ctx context.Context, callID id.CallID, mutate func(*models.EscalationCall) error) (*models.EscalationCall, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, postgres.Wrap("begin escalation tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+callColumns+` FROM escalation_calls WHERE id = $1 FOR UPDATE`, callID)
	call, err := findOne(row, "lock escalation call")
	if err != nil {
		return nil, err
	}
	if err := mutate(call); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE escalation_calls
		SET status = $2, dispatch_number = $3, notes = $4, updated_at = $5
		WHERE id = $1
	`, call.ID, call.Status, call.DispatchNumber, call.Notes, call.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, postgres.Wrap("update escalation call", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, postgres.Wrap("commit escalation call", err)
	}
	return call, nil
}

func findOne(row rowScanner, op string) (*models.EscalationCall, error) {
	var c models.EscalationCall
	err := row.Scan(&c.ID, &c.AlertID, &c.DriverID, &c.CalledAt, &c.CalledBy,
		&c.Location.Latitude, &c.Location.Longitude, &c.LocationIsFallback,
		&c.DriverInfo.Name, &c.DriverInfo.Vehicle, &c.DriverInfo.Plate,
		&c.Status, &c.DispatchNumber, &c.Notes, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Wrap(op, err)
	}
	return &c, nil
}
