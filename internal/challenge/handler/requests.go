package handler

import (
	"saferide/internal/challenge/models"
	dErrors "saferide/pkg/domain-errors"
)

// SaveProfileRequest is the body of PUT /drivers/{driverID}/challenge-profile.
// Answers are validated and hashed by the service.
type SaveProfileRequest struct {
	Primary   models.QuestionAnswer `json:"primary"`
	Secondary models.QuestionAnswer `json:"secondary"`
}

func (r *SaveProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Primary.Question == "" || r.Secondary.Question == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "primary and secondary questions are required")
	}
	return nil
}
