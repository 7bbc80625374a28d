package handler

import (
	"time"

	challengemodels "saferide/internal/challenge/models"
	"saferide/internal/verification/models"
	id "saferide/pkg/domain"
)

type QuestionResponse struct {
	Text            string `json:"text"`
	Category        string `json:"category"`
	CulturalContext bool   `json:"cultural_context"`
}

func FromQuestion(q challengemodels.ChallengeQuestion) QuestionResponse {
	return QuestionResponse{
		Text:            q.Text,
		Category:        string(q.Category),
		CulturalContext: q.CulturalContext,
	}
}

// AnswerResponse is shared by both answer endpoints. A mismatch at either
// step serializes to exactly {"correct":false}.
type AnswerResponse struct {
	Correct      bool              `json:"correct"`
	NextQuestion *QuestionResponse `json:"next_question,omitempty"`
	Action       string            `json:"action,omitempty"`
}

func mismatchResponse() AnswerResponse {
	return AnswerResponse{Correct: false}
}

func FromFirstAnswer(res *models.FirstAnswerResult) AnswerResponse {
	if !res.Correct {
		return mismatchResponse()
	}
	resp := AnswerResponse{Correct: true}
	if res.NextQuestion != nil {
		q := FromQuestion(*res.NextQuestion)
		resp.NextQuestion = &q
	}
	return resp
}

func FromSecondAnswer(res *models.SecondAnswerResult) AnswerResponse {
	if !res.Correct {
		return mismatchResponse()
	}
	return AnswerResponse{Correct: true, Action: string(res.Action)}
}

// StatusResponse omits the submitted answers.
type StatusResponse struct {
	AlertID               id.AlertID    `json:"alert_id"`
	DriverID              id.DriverID   `json:"driver_id"`
	CurrentStep           string        `json:"current_step"`
	FirstQuestionAskedAt  time.Time     `json:"first_question_asked_at"`
	FirstQuestionCorrect  *bool         `json:"first_question_correct,omitempty"`
	SecondQuestionAskedAt *time.Time    `json:"second_question_asked_at,omitempty"`
	SecondQuestionCorrect *bool         `json:"second_question_correct,omitempty"`
	ActionTaken           string        `json:"action_taken"`
	VerifiedBy            id.OperatorID `json:"verified_by,omitempty"`
	TrackingSessionID     id.SessionID  `json:"tracking_session_id,omitempty"`
	CallID                id.CallID     `json:"call_id,omitempty"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"`
}

func FromVerification(v *models.AlertVerification) StatusResponse {
	return StatusResponse{
		AlertID:               v.AlertID,
		DriverID:              v.DriverID,
		CurrentStep:           string(v.CurrentStep),
		FirstQuestionAskedAt:  v.FirstQuestionAskedAt,
		FirstQuestionCorrect:  v.FirstQuestionCorrect,
		SecondQuestionAskedAt: v.SecondQuestionAskedAt,
		SecondQuestionCorrect: v.SecondQuestionCorrect,
		ActionTaken:           string(v.ActionTaken),
		VerifiedBy:            v.VerifiedBy,
		TrackingSessionID:     v.TrackingSessionID,
		CallID:                v.CallID,
		CompletedAt:           v.CompletedAt,
	}
}
