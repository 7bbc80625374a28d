// Package handler exposes the verification state machine over HTTP. The two
// answer endpoints return byte-identical bodies for a mismatch so the caller
// cannot tell which step failed.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	challengemodels "saferide/internal/challenge/models"
	"saferide/internal/verification/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/httputil"
	"saferide/pkg/requestcontext"
)

// Service defines the verification operations the handler needs.
type Service interface {
	Start(ctx context.Context, alertID id.AlertID, verifiedBy id.OperatorID) (challengemodels.ChallengeQuestion, error)
	SubmitFirstAnswer(ctx context.Context, alertID id.AlertID, answer string) (*models.FirstAnswerResult, error)
	SubmitSecondAnswer(ctx context.Context, alertID id.AlertID, answer string) (*models.SecondAnswerResult, error)
	GetStatus(ctx context.Context, alertID id.AlertID) (*models.AlertVerification, error)
}

// Handler wires verification endpoints to the verification service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts verification endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/alerts/{alertID}/verification", func(r chi.Router) {
		r.Post("/", h.HandleStart)
		r.Get("/", h.HandleStatus)
		r.Post("/first-answer", h.HandleFirstAnswer)
		r.Post("/second-answer", h.HandleSecondAnswer)
	})
}

// HandleStart handles POST /alerts/{alertID}/verification.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	alertID, ok := h.alertID(w, r)
	if !ok {
		return
	}
	var verifiedBy id.OperatorID
	if r.ContentLength != 0 {
		req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
		if !ok {
			return
		}
		verifiedBy = req.ParsedVerifiedBy()
	}

	question, err := h.service.Start(ctx, alertID, verifiedBy)
	if err != nil {
		h.logger.WarnContext(ctx, "verification start rejected",
			"request_id", requestID,
			"alert_id", alertID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, struct {
		Question QuestionResponse `json:"question"`
	}{FromQuestion(question)})
}

// HandleFirstAnswer handles POST /alerts/{alertID}/verification/first-answer.
func (h *Handler) HandleFirstAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	alertID, ok := h.alertID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AnswerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.SubmitFirstAnswer(ctx, alertID, req.Answer)
	if err != nil {
		h.answerFailed(ctx, w, alertID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFirstAnswer(res))
}

// HandleSecondAnswer handles POST /alerts/{alertID}/verification/second-answer.
func (h *Handler) HandleSecondAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	alertID, ok := h.alertID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AnswerRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.SubmitSecondAnswer(ctx, alertID, req.Answer)
	if err != nil {
		h.answerFailed(ctx, w, alertID, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSecondAnswer(res))
}

// HandleStatus handles GET /alerts/{alertID}/verification.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	alertID, ok := h.alertID(w, r)
	if !ok {
		return
	}
	v, err := h.service.GetStatus(r.Context(), alertID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromVerification(v))
}

func (h *Handler) alertID(w http.ResponseWriter, r *http.Request) (id.AlertID, bool) {
	alertID, err := id.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return alertID, true
}

func (h *Handler) answerFailed(ctx context.Context, w http.ResponseWriter, alertID id.AlertID, err error) {
	h.logger.ErrorContext(ctx, "challenge answer failed",
		"request_id", requestcontext.RequestID(ctx),
		"alert_id", alertID,
		"error", err,
	)
	httputil.WriteError(w, err)
}
