package control

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"screen-recorder/internal/capture"
	"screen-recorder/internal/domain"
	"screen-recorder/internal/session"
)

// Controller is the session surface the control API drives.
type Controller interface {
	ListSources(ctx context.Context) ([]domain.CaptureSource, error)
	SelectSource(ctx context.Context, source domain.CaptureSource) error
	SetWebcamEnabled(enabled bool) error
	Start(ctx context.Context) error
	Stop() error
	View() domain.ViewState
	Preview(modality domain.Modality) []byte
	Events() *session.EventBus
}

// Handler exposes recorder control endpoints using go-chi.
type Handler struct {
	ctrl Controller
	log  *slog.Logger
}

// NewHandler returns a Handler driving ctrl.
func NewHandler(ctrl Controller, log *slog.Logger) *Handler {
	return &Handler{ctrl: ctrl, log: log.With("component", "control")}
}

type selectRequest struct {
	ID string `json:"id"`
}

type webcamRequest struct {
	Enabled *bool `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// State handles GET /api/state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

// Sources handles GET /api/sources.
func (h *Handler) Sources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.ctrl.ListSources(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if sources == nil {
		sources = []domain.CaptureSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// SelectSource handles POST /api/source.
// Body: { "id": "x11:screen:0" }.
func (h *Handler) SelectSource(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		h.log.Debug("invalid select body", slog.Any("error", err))
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"id\": \"<source id>\"}"})
		return
	}

	sources, err := h.ctrl.ListSources(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	source, ok := lo.Find(sources, func(s domain.CaptureSource) bool { return s.ID == req.ID })
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown source " + strconv.Quote(req.ID)})
		return
	}

	if err := h.ctrl.SelectSource(r.Context(), source); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

// SetWebcam handles PUT /api/webcam.
// Body: { "enabled": true }.
func (h *Handler) SetWebcam(w http.ResponseWriter, r *http.Request) {
	var req webcamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "body must be {\"enabled\": true|false}"})
		return
	}
	if err := h.ctrl.SetWebcamEnabled(*req.Enabled); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

// Start handles POST /api/start. Device probes are detached from the
// request so a client disconnect cannot abort a half-armed start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Start(context.WithoutCancel(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

// Stop handles POST /api/stop. Saving finishes asynchronously; clients
// follow the completed event.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Stop(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.ctrl.View())
}

// Events handles GET /api/events?since=N.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "since must be an integer"})
		return
	}
	events := h.ctrl.Events().Since(since)
	if events == nil {
		events = []session.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Preview handles GET /api/preview/{modality}.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	modality := domain.Modality(chi.URLParam(r, "modality"))
	if modality != domain.ModalityScreen && modality != domain.ModalityWebcam {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	frame := h.ctrl.Preview(modality)
	if len(frame) == 0 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(frame)
}

func parseSince(r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, true
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || since < 0 {
		return 0, false
	}
	return since, true
}

// statusFor maps workflow and capture errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case session.IsSessionError(err):
		return http.StatusConflict
	case errors.Is(err, capture.ErrCaptureUnavailable), errors.Is(err, capture.ErrCaptureFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("error", err.Error()))
	} else {
		h.log.Info("request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
