package store

import (
	"context"
	"database/sql"
	"errors"

	"saferide/internal/platform/postgres"
	"saferide/internal/verification/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// PostgresStore keeps one row per alert in alert_verifications.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const verificationColumns = `alert_id, driver_id, current_step, first_question_asked_at,
	first_question_answer, first_question_correct, second_question_asked_at,
	second_question_answer, second_question_correct, completed_at, action_taken,
	verified_by, tracking_session_id, call_id, version`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateIfNoneActive inserts v, or replaces a terminal verification in the
// same statement. A non-terminal row makes the upsert match nothing.
func (s *PostgresStore) CreateIfNoneActive(ctx context.Context, v *models.AlertVerification) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_verifications (`+verificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (alert_id) DO UPDATE SET
			driver_id = EXCLUDED.driver_id,
			current_step = EXCLUDED.current_step,
			first_question_asked_at = EXCLUDED.first_question_asked_at,
			first_question_answer = EXCLUDED.first_question_answer,
			first_question_correct = EXCLUDED.first_question_correct,
			second_question_asked_at = EXCLUDED.second_question_asked_at,
			second_question_answer = EXCLUDED.second_question_answer,
			second_question_correct = EXCLUDED.second_question_correct,
			completed_at = EXCLUDED.completed_at,
			action_taken = EXCLUDED.action_taken,
			verified_by = EXCLUDED.verified_by,
			tracking_session_id = EXCLUDED.tracking_session_id,
			call_id = EXCLUDED.call_id,
			version = EXCLUDED.version
		WHERE alert_verifications.current_step IN ('completed', 'failed')
	`, args(v)...)
	if err != nil {
		return postgres.Wrap("create verification", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return postgres.Wrap("create verification", err)
	}
	if n == 0 {
		return sentinel.ErrConflict
	}
	return nil
}

func (s *PostgresStore) FindByAlert(ctx context.Context, alertID id.AlertID) (*models.AlertVerification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+verificationColumns+` FROM alert_verifications WHERE alert_id = $1`, alertID)
	v, err := scanVerification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Wrap("find verification", err)
	}
	return v, nil
}

// Execute locks the row for the duration of validate and mutate.
func (s *PostgresStore) Execute(ctx context.Context, alertID id.AlertID, validate func(*models.AlertVerification) error, mutate func(*models.AlertVerification)) (*models.AlertVerification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, postgres.Wrap("begin verification tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+verificationColumns+` FROM alert_verifications WHERE alert_id = $1 FOR UPDATE`, alertID)
	v, err := scanVerification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Wrap("lock verification", err)
	}
	if err := validate(v); err != nil {
		return nil, err
	}
	mutate(v)

	_, err = tx.ExecContext(ctx, `
		UPDATE alert_verifications SET
			driver_id = $2, current_step = $3, first_question_asked_at = $4,
			first_question_answer = $5, first_question_correct = $6,
			second_question_asked_at = $7, second_question_answer = $8,
			second_question_correct = $9, completed_at = $10, action_taken = $11,
			verified_by = $12, tracking_session_id = $13, call_id = $14, version = $15
		WHERE alert_id = $1
	`, args(v)...)
	if err != nil {
		return nil, postgres.Wrap("update verification", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, postgres.Wrap("commit verification", err)
	}
	return v, nil
}

func args(v *models.AlertVerification) []any {
	return []any{
		v.AlertID, v.DriverID, v.CurrentStep, v.FirstQuestionAskedAt,
		v.FirstQuestionAnswer, v.FirstQuestionCorrect, v.SecondQuestionAskedAt,
		v.SecondQuestionAnswer, v.SecondQuestionCorrect, v.CompletedAt, v.ActionTaken,
		v.VerifiedBy, v.TrackingSessionID, v.CallID, v.Version,
	}
}

func scanVerification(row rowScanner) (*models.AlertVerification, error) {
	var v models.AlertVerification
	err := row.Scan(&v.AlertID, &v.DriverID, &v.CurrentStep, &v.FirstQuestionAskedAt,
		&v.FirstQuestionAnswer, &v.FirstQuestionCorrect, &v.SecondQuestionAskedAt,
		&v.SecondQuestionAnswer, &v.SecondQuestionCorrect, &v.CompletedAt, &v.ActionTaken,
		&v.VerifiedBy, &v.TrackingSessionID, &v.CallID, &v.Version)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
