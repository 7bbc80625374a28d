package profile

import (
	"context"
	"database/sql"
	"errors"

	"saferide/internal/challenge/models"
	"saferide/internal/platform/postgres"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/sentinel"
)

// PostgresStore persists driver challenge profiles keyed by driver.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, p *models.DriverChallengeProfile) error {
	query := `
		INSERT INTO driver_challenge_profiles (
			driver_id, primary_question, primary_answer_hash,
			secondary_question, secondary_answer_hash, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (driver_id) DO UPDATE SET
			primary_question = EXCLUDED.primary_question,
			primary_answer_hash = EXCLUDED.primary_answer_hash,
			secondary_question = EXCLUDED.secondary_question,
			secondary_answer_hash = EXCLUDED.secondary_answer_hash,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		p.DriverID,
		p.PrimaryQuestion.Text,
		p.PrimaryQuestion.ExpectedAnswerHash,
		p.SecondaryQuestion.Text,
		p.SecondaryQuestion.ExpectedAnswerHash,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return postgres.Wrap("upsert challenge profile", err)
}

func (s *PostgresStore) FindByDriver(ctx context.Context, driverID id.DriverID) (*models.DriverChallengeProfile, error) {
	query := `
		SELECT driver_id, primary_question, primary_answer_hash,
		       secondary_question, secondary_answer_hash, created_at, updated_at
		FROM driver_challenge_profiles
		WHERE driver_id = $1
	`
	var p models.DriverChallengeProfile
	err := s.db.QueryRowContext(ctx, query, driverID).Scan(
		&p.DriverID,
		&p.PrimaryQuestion.Text,
		&p.PrimaryQuestion.ExpectedAnswerHash,
		&p.SecondaryQuestion.Text,
		&p.SecondaryQuestion.ExpectedAnswerHash,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, postgres.Wrap("find challenge profile", err)
	}
	return &p, nil
}
