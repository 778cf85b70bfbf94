package fidelity

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

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
	mux.HandleFunc("GET /fidelity-points", telemetry.WithHTTPRoute(auth.Require(h.HandleListBalances, domain.RoleAdmin)))
	mux.HandleFunc("POST /fidelity-points", telemetry.WithHTTPRoute(auth.Require(h.HandleAdjust, domain.RoleAdmin)))
	mux.HandleFunc("GET /fidelity-points/{userId}", telemetry.WithHTTPRoute(auth.Require(h.HandleHistory)))
}

func (h *Handler) HandleListBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	balances, err := h.service.Balances(r.Context(), q.Get("search"), queryInt(q.Get("page"), 1), queryInt(q.Get("limit"), 20))
	if err != nil {
		h.logger.Error("failed to list fidelity balances", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to fetch fidelity points")
		return
	}

	h.writeJSON(w, http.StatusOK, balances)
}

func (h *Handler) HandleAdjust(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req Adjustment
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID != "" {
		if _, err := uuid.Parse(req.UserID); err != nil {
			h.writeError(w, http.StatusNotFound, "user not found")
			return
		}
	}

	result, err := h.service.Adjust(r.Context(), req, actor)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, domain.ErrInsufficientPoints):
			h.writeError(w, http.StatusBadRequest, "insufficient points: balance would become negative")
		default:
			h.logger.Error("failed to adjust fidelity points", "error", err, "user_id", req.UserID, "points", req.Points)
			h.writeError(w, http.StatusInternalServerError, "failed to update fidelity points")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":        "points updated successfully",
		"history":        result.Entry,
		"fidelityPoints": result.Balance,
	})
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	userID := r.PathValue("userId")

	q := r.URL.Query()
	statement, err := h.service.Statement(r.Context(), userID, queryInt(q.Get("page"), 1), queryInt(q.Get("limit"), 20), actor)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrForbidden):
			h.writeError(w, http.StatusForbidden, "you can only view your own points")
		case errors.Is(err, domain.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "user not found")
		default:
			h.logger.Error("failed to fetch fidelity history", "error", err, "user_id", userID)
			h.writeError(w, http.StatusInternalServerError, "failed to fetch fidelity point history")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, statement)
}

func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
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
