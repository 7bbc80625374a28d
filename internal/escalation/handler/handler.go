// Package handler lets the telephony collaborator and dispatch console read
// emergency calls and report their progress.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"saferide/internal/escalation/models"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/httputil"
	"saferide/pkg/requestcontext"
)

type Service interface {
	GetCall(ctx context.Context, callID id.CallID) (*models.EscalationCall, error)
	FindByAlert(ctx context.Context, alertID id.AlertID) (*models.EscalationCall, error)
	UpdateStatus(ctx context.Context, callID id.CallID, update models.StatusUpdate) (*models.EscalationCall, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts escalation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/escalations/{callID}", h.HandleGet)
	r.Patch("/escalations/{callID}", h.HandleUpdateStatus)
	r.Get("/alerts/{alertID}/escalation", h.HandleFindByAlert)
}

// HandleGet handles GET /escalations/{callID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	call, err := h.service.GetCall(r.Context(), callID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, call)
}

// HandleUpdateStatus handles PATCH /escalations/{callID}.
func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	callID, err := id.ParseCallID(chi.URLParam(r, "callID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	call, err := h.service.UpdateStatus(ctx, callID, req.ToUpdate())
	if err != nil {
		h.logger.WarnContext(ctx, "failed to update escalation call",
			"request_id", requestID,
			"call_id", callID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, call)
}

// HandleFindByAlert handles GET /alerts/{alertID}/escalation.
func (h *Handler) HandleFindByAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := id.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	call, err := h.service.FindByAlert(r.Context(), alertID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, call)
}

// UpdateStatusRequest is the body of PATCH /escalations/{callID}.
type UpdateStatusRequest struct {
	Status         string  `json:"status"`
	DispatchNumber *string `json:"dispatch_number,omitempty"`
	Notes          string  `json:"notes,omitempty"`

	parsedStatus models.CallStatus
}

func (r *UpdateStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	status, err := models.ParseCallStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsedStatus = status
	if len(r.Notes) > 2000 {
		return dErrors.New(dErrors.CodeInvalidInput, "notes are too long")
	}
	return nil
}

func (r *UpdateStatusRequest) ToUpdate() models.StatusUpdate {
	return models.StatusUpdate{
		Status:         r.parsedStatus,
		DispatchNumber: r.DispatchNumber,
		Notes:          r.Notes,
	}
}
