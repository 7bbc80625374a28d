package handler

import (
	"strings"
	"unicode/utf8"

	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
)

const maxAnswerLength = 256

// StartRequest is the optional body of POST /v1/alerts/{alertID}/verification.
type StartRequest struct {
	VerifiedBy string `json:"verified_by,omitempty"`

	parsedVerifiedBy id.OperatorID
}

// Validate implements httputil.Validatable.
func (r *StartRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.VerifiedBy = strings.TrimSpace(r.VerifiedBy)
	if r.VerifiedBy == "" {
		return nil
	}
	operator, err := id.ParseOperatorID(r.VerifiedBy)
	if err != nil {
		return err
	}
	r.parsedVerifiedBy = operator
	return nil
}

func (r *StartRequest) ParsedVerifiedBy() id.OperatorID {
	return r.parsedVerifiedBy
}

// AnswerRequest is the body of both answer endpoints. The answer is passed to
// the service untouched; normalization happens there.
type AnswerRequest struct {
	Answer string `json:"answer"`
}

// Validate implements httputil.Validatable.
func (r *AnswerRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if !utf8.ValidString(r.Answer) {
		return dErrors.New(dErrors.CodeInvalidInput, "answer must be valid UTF-8")
	}
	if len(r.Answer) > maxAnswerLength {
		return dErrors.New(dErrors.CodeInvalidInput, "answer is too long")
	}
	return nil
}
