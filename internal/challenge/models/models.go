package models

import (
	"strings"
	"time"

	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
)

// Category separates first-tier phrases from culturally shared ones.
type Category string

const (
	// CategoryPrimary is an arbitrary, memorable phrase answered first.
	CategoryPrimary Category = "primary"
	// CategorySecondary is drawn from shared cultural context and gates escalation.
	CategorySecondary Category = "secondary"
)

func (c Category) IsValid() bool {
	return c == CategoryPrimary || c == CategorySecondary
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "category must be primary or secondary")
	}
	return c, nil
}

// ChallengeQuestion is an immutable phrase shown to the driver.
type ChallengeQuestion struct {
	Text            string   `json:"text"`
	Category        Category `json:"category"`
	CulturalContext bool     `json:"cultural_context"`
}

// NewChallengeQuestion derives CulturalContext from the category so the two
// can never disagree.
func NewChallengeQuestion(text string, category Category) ChallengeQuestion {
	return ChallengeQuestion{
		Text:            text,
		Category:        category,
		CulturalContext: category == CategorySecondary,
	}
}

// QuestionAnswer is the plaintext pair submitted during safety setup. It only
// lives long enough to be validated and hashed.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ProfileQuestion is a stored question with the hash of its expected answer.
type ProfileQuestion struct {
	Text               string `json:"text"`
	ExpectedAnswerHash string `json:"-"`
}

// DriverChallengeProfile is the per-driver pair of challenge phrases.
//
// Invariants:
//   - both questions and both answer hashes are non-empty
//   - replaced wholesale on reconfiguration; CreatedAt survives replacement
//   - read-only during verification
type DriverChallengeProfile struct {
	DriverID          id.DriverID     `json:"driver_id"`
	PrimaryQuestion   ProfileQuestion `json:"primary_question"`
	SecondaryQuestion ProfileQuestion `json:"secondary_question"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func NewDriverChallengeProfile(driverID id.DriverID, primary, secondary ProfileQuestion, now time.Time) (*DriverChallengeProfile, error) {
	if driverID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "driver ID is required")
	}
	if primary.Text == "" || secondary.Text == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "both challenge questions are required")
	}
	if primary.ExpectedAnswerHash == "" || secondary.ExpectedAnswerHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "both challenge answers are required")
	}
	return &DriverChallengeProfile{
		DriverID:          driverID,
		PrimaryQuestion:   primary,
		SecondaryQuestion: secondary,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Question returns the presentable question for a category.
func (p *DriverChallengeProfile) Question(category Category) ChallengeQuestion {
	if category == CategorySecondary {
		return NewChallengeQuestion(p.SecondaryQuestion.Text, CategorySecondary)
	}
	return NewChallengeQuestion(p.PrimaryQuestion.Text, CategoryPrimary)
}

// ExpectedAnswerHash returns the stored hash for a category.
func (p *DriverChallengeProfile) ExpectedAnswerHash(category Category) string {
	if category == CategorySecondary {
		return p.SecondaryQuestion.ExpectedAnswerHash
	}
	return p.PrimaryQuestion.ExpectedAnswerHash
}
