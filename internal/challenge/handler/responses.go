package handler

import (
	"time"

	"saferide/internal/challenge/models"
	id "saferide/pkg/domain"
)

type QuestionsResponse struct {
	Questions []models.ChallengeQuestion `json:"questions"`
}

type ProfileResponse struct {
	DriverID          id.DriverID `json:"driver_id"`
	PrimaryQuestion   string      `json:"primary_question"`
	SecondaryQuestion string      `json:"secondary_question"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func FromProfile(p *models.DriverChallengeProfile) ProfileResponse {
	return ProfileResponse{
		DriverID:          p.DriverID,
		PrimaryQuestion:   p.PrimaryQuestion.Text,
		SecondaryQuestion: p.SecondaryQuestion.Text,
		UpdatedAt:         p.UpdatedAt,
	}
}
