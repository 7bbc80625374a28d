package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"saferide/internal/audit"
	"saferide/internal/challenge/answer"
	"saferide/internal/challenge/models"
	"saferide/internal/challenge/registry"
	"saferide/internal/storage"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/sentinel"
	"saferide/pkg/requestcontext"
)

const maxQuestionLength = 256

// ProfileStore persists one challenge profile per driver.
type ProfileStore interface {
	Upsert(ctx context.Context, profile *models.DriverChallengeProfile) error
	FindByDriver(ctx context.Context, driverID id.DriverID) (*models.DriverChallengeProfile, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service manages driver challenge profiles and answer checks.
type Service struct {
	profiles ProfileStore
	hasher   *answer.Hasher
	guard    storage.Guard
	auditor  AuditPublisher
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithGuard(g storage.Guard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// WithHashCost overrides the bcrypt cost used for answers.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.hasher = answer.NewHasher(cost)
	}
}

func New(profiles ProfileStore, opts ...Option) *Service {
	s := &Service{
		profiles: profiles,
		hasher:   answer.NewHasher(0),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListCandidates exposes the static phrase catalog.
func (s *Service) ListCandidates(category models.Category) []models.ChallengeQuestion {
	return registry.ListCandidates(category)
}

// SaveProfile validates, hashes and stores a driver's challenge pair,
// replacing any previous profile.
func (s *Service) SaveProfile(ctx context.Context, driverID id.DriverID, primary, secondary models.QuestionAnswer) (*models.DriverChallengeProfile, error) {
	if driverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "driver ID is required")
	}
	primaryQ, err := s.prepare("primary", primary)
	if err != nil {
		return nil, err
	}
	secondaryQ, err := s.prepare("secondary", secondary)
	if err != nil {
		return nil, err
	}

	profile, err := models.NewDriverChallengeProfile(driverID, primaryQ, secondaryQ, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid challenge profile")
	}

	err = s.guard.Retrying(ctx, "upsert challenge profile", func(ctx context.Context) error {
		return s.profiles.Upsert(ctx, profile)
	})
	if err != nil {
		return nil, wrapProfileErr(err, "failed to save challenge profile")
	}

	if s.auditor != nil {
		if err := s.auditor.Emit(ctx, audit.Event{DriverID: driverID, Action: audit.ActionProfileSaved}); err != nil {
			s.logger.WarnContext(ctx, "failed to emit audit event",
				"action", audit.ActionProfileSaved,
				"error", err,
			)
		}
	}
	s.logger.InfoContext(ctx, "challenge profile saved",
		"driver_id", driverID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return profile, nil
}

// GetProfile returns the driver's profile or not_found.
func (s *Service) GetProfile(ctx context.Context, driverID id.DriverID) (*models.DriverChallengeProfile, error) {
	var profile *models.DriverChallengeProfile
	err := s.guard.Retrying(ctx, "find challenge profile", func(ctx context.Context) error {
		var err error
		profile, err = s.profiles.FindByDriver(ctx, driverID)
		return err
	})
	if err != nil {
		return nil, wrapProfileErr(err, "failed to load challenge profile")
	}
	return profile, nil
}

// CheckAnswer compares a submitted answer against the profile's expected
// answer for category.
func (s *Service) CheckAnswer(profile *models.DriverChallengeProfile, category models.Category, submitted string) bool {
	return s.hasher.Matches(profile.ExpectedAnswerHash(category), submitted)
}

func (s *Service) prepare(label string, qa models.QuestionAnswer) (models.ProfileQuestion, error) {
	question := strings.TrimSpace(qa.Question)
	if question == "" {
		return models.ProfileQuestion{}, dErrors.New(dErrors.CodeInvalidInput, label+" question is required")
	}
	if utf8.RuneCountInString(question) > maxQuestionLength {
		return models.ProfileQuestion{}, dErrors.New(dErrors.CodeInvalidInput, label+" question is too long")
	}
	if strings.TrimSpace(qa.Answer) == "" {
		return models.ProfileQuestion{}, dErrors.New(dErrors.CodeInvalidInput, label+" answer is required")
	}
	hash, err := s.hasher.Hash(qa.Answer)
	if err != nil {
		if de, ok := dErrors.From(err); ok && de.Code == dErrors.CodeInvalidInput {
			return models.ProfileQuestion{}, dErrors.New(dErrors.CodeInvalidInput, label+" "+de.Message)
		}
		return models.ProfileQuestion{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to secure answer")
	}
	return models.ProfileQuestion{Text: question, ExpectedAnswerHash: hash}, nil
}

func wrapProfileErr(err error, msg string) error {
	if _, coded := dErrors.From(err); coded {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "challenge profile not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
