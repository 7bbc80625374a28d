// Package answer normalizes and verifies challenge answers.
//
// Comparison is case- and whitespace-insensitive but otherwise exact: the
// phrases are memorized verbatim, so there is no fuzzy matching. Answers are
// stored as bcrypt hashes of their normalized form, which keeps the simple
// "Sí"/"No" model while never persisting the plaintext.
package answer

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	dErrors "saferide/pkg/domain-errors"
)

// maxNormalizedBytes is bcrypt's input limit.
const maxNormalizedBytes = 72

// Normalize composes to NFC, trims, collapses interior whitespace runs, and
// applies full Unicode case folding, so " SÍ ", "sí" and "Sí" are equal.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// Hasher hashes and verifies normalized answers.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost. Zero selects the
// library default; out-of-range values are clamped.
func NewHasher(cost int) *Hasher {
	switch {
	case cost == 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Hash validates and hashes an answer.
func (h *Hasher) Hash(answer string) (string, error) {
	normalized := Normalize(answer)
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "answer cannot be empty")
	}
	if len(normalized) > maxNormalizedBytes {
		return "", dErrors.New(dErrors.CodeInvalidInput, "answer is too long")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(normalized), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "answer is too long")
		}
		return "", fmt.Errorf("hash answer: %w", err)
	}
	return string(hashed), nil
}

// Matches reports whether candidate is the answer behind hash. The comparison
// runs in constant time with respect to the candidate.
func (h *Hasher) Matches(hash, candidate string) bool {
	normalized := Normalize(candidate)
	if normalized == "" || len(normalized) > maxNormalizedBytes || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalized)) == nil
}
