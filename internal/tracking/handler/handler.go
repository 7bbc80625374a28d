// Package handler ingests location samples and serves tracking sessions,
// including a live websocket stream of session snapshots.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"saferide/internal/tracking/models"
	id "saferide/pkg/domain"
	dErrors "saferide/pkg/domain-errors"
	"saferide/pkg/platform/httputil"
	"saferide/pkg/requestcontext"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type Service interface {
	AppendLocation(ctx context.Context, sessionID id.SessionID, sample id.LocationSample) error
	Close(ctx context.Context, sessionID id.SessionID) error
	Get(ctx context.Context, sessionID id.SessionID) (*models.TrackingSession, error)
	ActiveForAlert(ctx context.Context, alertID id.AlertID) (*models.TrackingSession, error)
	Subscribe(ctx context.Context, sessionID id.SessionID) (<-chan models.TrackingSession, error)
}

type Handler struct {
	service  Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New builds the handler. allowedOrigins restricts websocket upgrades; an
// empty list accepts same-origin requests only.
func New(service Service, logger *slog.Logger, allowedOrigins ...string) *Handler {
	h := &Handler{service: service, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[strings.ToLower(o)] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return allowed[strings.ToLower(r.Header.Get("Origin"))]
		}
	}
	return h
}

// Register mounts tracking endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/tracking/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Post("/locations", h.HandleAppendLocation)
		r.Post("/close", h.HandleClose)
		r.Get("/stream", h.HandleStream)
	})
	r.Get("/alerts/{alertID}/tracking", h.HandleActiveForAlert)
}

// HandleAppendLocation handles POST /tracking/sessions/{sessionID}/locations.
func (h *Handler) HandleAppendLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[LocationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.AppendLocation(ctx, sessionID, req.Sample()); err != nil {
		if !dErrors.HasCode(err, dErrors.CodeSessionClosed) {
			h.logger.ErrorContext(ctx, "failed to append location",
				"request_id", requestID,
				"session_id", sessionID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleClose handles POST /tracking/sessions/{sessionID}/close.
func (h *Handler) HandleClose(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.service.Close(r.Context(), sessionID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGet handles GET /tracking/sessions/{sessionID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

// HandleActiveForAlert handles GET /alerts/{alertID}/tracking.
func (h *Handler) HandleActiveForAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := id.ParseAlertID(chi.URLParam(r, "alertID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	session, err := h.service.ActiveForAlert(r.Context(), alertID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, session)
}

// HandleStream handles GET /tracking/sessions/{sessionID}/stream. Each
// websocket text message is a full session snapshot. The server closes the
// socket normally after the closing snapshot.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Subscribe before upgrading so unknown sessions get a plain 404.
	snapshots, err := h.service.Subscribe(ctx, sessionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			"session_id", sessionID,
			"error", err,
		)
		return
	}
	defer conn.Close()

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, sessionID, snapshots)
}

// readPump discards client messages and cancels the stream when the client
// goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sessionID id.SessionID, snapshots <-chan models.TrackingSession) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapshots:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.WarnContext(ctx, "failed to write tracking snapshot",
					"session_id", sessionID,
					"error", err,
				)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (id.SessionID, bool) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return sessionID, true
}
