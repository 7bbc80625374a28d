package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"saferide/internal/alert/models"
	"saferide/internal/platform/postgres"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// PostgresStore persists alerts. Pure I/O; transition rules live in the models.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const alertColumns = `id, driver_id, status, current_location, resolution_note, call_911_id, resolved_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) Create(ctx context.Context, alert *models.Alert) error {
	loc, err := encodeLocation(alert.CurrentLocation)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, alert.ID, alert.DriverID, alert.Status, loc,
		alert.Resolution.Note, alert.Resolution.Call911ID, alert.Resolution.ResolvedAt,
		alert.CreatedAt, alert.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return postgres.Wrap("create alert", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, alertID id.AlertID) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, alertID)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Wrap("find alert", err)
	}
	return alert, nil
}

// Execute locks the row for the duration of validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, alertID id.AlertID, validate func(*models.Alert) error, mutate func(*models.Alert)) (*models.Alert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, postgres.Wrap("begin alert tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1 FOR UPDATE`, alertID)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Wrap("lock alert", err)
	}
	if err := validate(alert); err != nil {
		return nil, err
	}
	mutate(alert)

	loc, err := encodeLocation(alert.CurrentLocation)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE alerts
		SET status = $2, current_location = $3, resolution_note = $4,
		    call_911_id = $5, resolved_at = $6, updated_at = $7
		WHERE id = $1
	`, alert.ID, alert.Status, loc, alert.Resolution.Note,
		alert.Resolution.Call911ID, alert.Resolution.ResolvedAt, alert.UpdatedAt)
	if err != nil {
		return nil, postgres.Wrap("update alert", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, postgres.Wrap("commit alert", err)
	}
	return alert, nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		alert models.Alert
		loc   []byte
	)
	if err := row.Scan(&alert.ID, &alert.DriverID, &alert.Status, &loc,
		&alert.Resolution.Note, &alert.Resolution.Call911ID, &alert.Resolution.ResolvedAt,
		&alert.CreatedAt, &alert.UpdatedAt); err != nil {
		return nil, err
	}
	if len(loc) > 0 {
		var sample id.LocationSample
		if err := json.Unmarshal(loc, &sample); err != nil {
			return nil, err
		}
		alert.CurrentLocation = &sample
	}
	return &alert, nil
}

func encodeLocation(loc *id.LocationSample) ([]byte, error) {
	if loc == nil {
		return nil, nil
	}
	return json.Marshal(loc)
}
