// Package handler exposes alerts to operators and lets the ride platform
// raise and reopen them.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"saferide/internal/alert/models"
	"saferide/internal/audit"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/httputil"
	"saferide/pkg/requestcontext"
)

type Service interface {
	Raise(ctx context.Context, alertID id.AlertID, driverID id.DriverID) (*models.Alert, error)
	Get(ctx context.Context, alertID id.AlertID) (*models.Alert, error)
	Reactivate(ctx context.Context, alertID id.AlertID) error
	Conclude(ctx context.Context, alertID id.AlertID, note string) error
}

// AuditTrail lists the audit events recorded for an alert.
type AuditTrail interface {
	List(ctx context.Context, alertID id.AlertID) ([]audit.Event, error)
}

type Handler struct {
	service Service
	trail   AuditTrail
	logger  *slog.Logger
}

func New(service Service, trail AuditTrail, logger *slog.Logger) *Handler {
	return &Handler{service: service, trail: trail, logger: logger}
}

// Register mounts the operator-facing alert endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Get("/alerts/{alertID}", h.HandleGet)
	r.Get("/alerts/{alertID}/audit", h.HandleAuditTrail)
}

// RegisterPlatform mounts the endpoints the ride platform calls. The caller
// guards them.
func (h *Handler) RegisterPlatform(r chi.Router) {
	r.Post("/alerts", h.HandleRaise)
	r.Post("/alerts/{alertID}/reactivate", h.HandleReactivate)
	r.Post("/alerts/{alertID}/resolve", h.HandleResolve)
}

// HandleRaise handles POST /platform/alerts.
func (h *Handler) HandleRaise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RaiseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	alert, err := h.service.Raise(ctx, req.parsedAlertID, req.parsedDriverID)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to raise alert",
			"request_id", requestID,
			"alert_id", req.AlertID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "alert raised",
		"request_id", requestID,
		"alert_id", alert.ID,
		"driver_id", alert.DriverID,
	)
	httputil.WriteJSON(w, http.StatusCreated, alert)
}

// HandleReactivate handles POST /platform/alerts/{alertID}/reactivate.
func (h *Handler) HandleReactivate(w http.ResponseWriter, r *http.Request) {
	alertID, ok := alertIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Reactivate(r.Context(), alertID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResolve handles POST /platform/alerts/{alertID}/resolve. It ends the
// alert and its tracking session.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alertID, ok := alertIDParam(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if r.ContentLength != 0 {
		decoded, ok := httputil.DecodeAndPrepare[ResolveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		req = *decoded
	}
	if err := h.service.Conclude(ctx, alertID, req.note()); err != nil {
		h.logger.WarnContext(ctx, "failed to resolve alert",
			"request_id", requestcontext.RequestID(ctx),
			"alert_id", alertID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet handles GET /alerts/{alertID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	alertID, ok := alertIDParam(w, r)
	if !ok {
		return
	}
	alert, err := h.service.Get(r.Context(), alertID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, alert)
}

// HandleAuditTrail handles GET /alerts/{alertID}/audit.
func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	alertID, ok := alertIDParam(w, r)
	if !ok {
		return
	}
	events, err := h.trail.List(r.Context(), alertID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit trail"))
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, struct {
		Events []audit.Event `json:"events"`
	}{events})
}

func alertIDParam(w http.ResponseWriter, r *http.Request) (id.AlertID, bool) {
	alertID, err := id.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return alertID, true
}

// RaiseRequest is the body of POST /platform/alerts.
type RaiseRequest struct {
	AlertID  string `json:"alert_id"`
	DriverID string `json:"driver_id"`

	parsedAlertID  id.AlertID
	parsedDriverID id.DriverID
}

func (r *RaiseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	alertID, err := id.ParseAlertID(r.AlertID)
	if err != nil {
		return err
	}
	driverID, err := id.ParseDriverID(r.DriverID)
	if err != nil {
		return err
	}
	r.parsedAlertID, r.parsedDriverID = alertID, driverID
	return nil
}

// ResolveRequest is the optional body of POST /platform/alerts/{alertID}/resolve.
type ResolveRequest struct {
	Note string `json:"note"`
}

func (r *ResolveRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Note = strings.TrimSpace(r.Note)
	return nil
}

func (r *ResolveRequest) note() string {
	if r.Note == "" {
		return "resolved by platform"
	}
	return r.Note
}
