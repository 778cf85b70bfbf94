package events

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/joao-fontenele/parashop/internal/auth"
	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/telemetry"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /events", telemetry.WithHTTPRoute(h.HandleCurrent))
	mux.HandleFunc("GET /events/{id}", telemetry.WithHTTPRoute(h.HandleGet))
	mux.HandleFunc("GET /admin/events", telemetry.WithHTTPRoute(auth.Require(h.HandleList, domain.RoleAdmin)))
	mux.HandleFunc("POST /admin/events", telemetry.WithHTTPRoute(auth.Require(h.HandleCreate, domain.RoleAdmin)))
	mux.HandleFunc("PUT /admin/events/{id}", telemetry.WithHTTPRoute(auth.Require(h.HandleUpdate, domain.RoleAdmin)))
	mux.HandleFunc("DELETE /admin/events/{id}", telemetry.WithHTTPRoute(auth.Require(h.HandleDelete, domain.RoleAdmin)))
}

func (h *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.Current(r.Context())
	if err != nil {
		h.logger.Error("failed to fetch current event", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch events")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.ListActive(r.Context())
	if err != nil {
		h.logger.Error("failed to list events", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch events")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	event, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, "failed to fetch event", "event_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"event": event})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "failed to create event")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"event": event})
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		h.writeServiceError(w, err, "failed to update event", "event_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"event": event})
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, "failed to delete event", "event_id", id)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "event deleted successfully"})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusNotFound, "event not found")
		return "", false
	}
	return id, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error, message string, attrs ...any) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrEventOverlap):
		h.writeError(w, http.StatusBadRequest, domain.ErrEventOverlap.Error())
	case errors.Is(err, domain.ErrEventNotFound):
		h.writeError(w, http.StatusNotFound, "event not found")
	default:
		h.logger.Error(message, append([]any{"error", err}, attrs...)...)
		h.writeError(w, http.StatusInternalServerError, message)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
