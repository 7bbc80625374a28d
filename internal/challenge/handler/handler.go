// Package handler serves the challenge catalog and the driver safety setup.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"saferide/internal/challenge/models"
	id "saferide/pkg/domain"
	"saferide/pkg/platform/httputil"
	"saferide/pkg/requestcontext"
)

type Service interface {
	ListCandidates(category models.Category) []models.ChallengeQuestion
	SaveProfile(ctx context.Context, driverID id.DriverID, primary, secondary models.QuestionAnswer) (*models.DriverChallengeProfile, error)
	GetProfile(ctx context.Context, driverID id.DriverID) (*models.DriverChallengeProfile, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts challenge endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/challenges/questions", h.HandleListQuestions)
	r.Put("/drivers/{driverID}/challenge-profile", h.HandleSaveProfile)
	r.Get("/drivers/{driverID}/challenge-profile", h.HandleGetProfile)
}

// HandleListQuestions handles GET /challenges/questions?category=primary.
func (h *Handler) HandleListQuestions(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, QuestionsResponse{Questions: h.service.ListCandidates(category)})
}

// HandleSaveProfile handles PUT /drivers/{driverID}/challenge-profile.
func (h *Handler) HandleSaveProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	driverID, err := id.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[SaveProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	profile, err := h.service.SaveProfile(ctx, driverID, req.Primary, req.Secondary)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to save challenge profile",
			"request_id", requestID,
			"driver_id", driverID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(profile))
}

// HandleGetProfile handles GET /drivers/{driverID}/challenge-profile. Only
// the question texts are returned.
func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	driverID, err := id.ParseDriverID(chi.URLParam(r, "driverID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	profile, err := h.service.GetProfile(r.Context(), driverID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromProfile(profile))
}
