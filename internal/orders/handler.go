package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/joao-fontenele/parashop/internal/auth"
	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/fidelity"
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
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(auth.Require(h.HandleCreate)))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(auth.Require(h.HandleGet)))
	mux.HandleFunc("GET /user/orders", telemetry.WithHTTPRoute(auth.Require(h.HandleListMine)))
	mux.HandleFunc("GET /admin/orders", telemetry.WithHTTPRoute(auth.Require(h.HandleList, domain.RoleAdmin, domain.RoleEmployee)))
	mux.HandleFunc("GET /admin/orders/{id}", telemetry.WithHTTPRoute(auth.Require(h.HandleGet, domain.RoleAdmin)))
	mux.HandleFunc("PATCH /admin/orders/{id}", telemetry.WithHTTPRoute(auth.Require(h.HandleUpdateStatus, domain.RoleAdmin)))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.Create(r.Context(), actor.UserID, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "user not found")
		default:
			h.logger.Error("failed to create order", "error", err, "user_id", actor.UserID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("failed to get order", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order.UserID != actor.UserID && !actor.HasRole(domain.RoleAdmin, domain.RoleEmployee) {
		// Same answer as a missing order so other customers' ids stay hidden.
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())

	orders, err := h.service.ListForUser(r.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("failed to list user orders", "error", err, "user_id", actor.UserID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AdminFilter{
		Search:        q.Get("search"),
		Status:        domain.OrderStatus(q.Get("status")),
		PaymentStatus: domain.PaymentStatus(q.Get("paymentStatus")),
		Page:          queryInt(q.Get("page"), 1),
		Limit:         queryInt(q.Get("limit"), 20),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown order status")
		return
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown payment status")
		return
	}

	page, err := h.service.ListAdmin(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, page)
}

type updateStatusResponse struct {
	Message        string        `json:"message"`
	Order          *domain.Order `json:"order"`
	PointsAwarded  *int64        `json:"pointsAwarded,omitempty"`
	PointsRefunded *int64        `json:"pointsRefunded,omitempty"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.UpdateStatus(r.Context(), id, req, actor)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrOrderNotFound):
			h.writeError(w, http.StatusNotFound, "order not found")
		default:
			h.writeError(w, http.StatusInternalServerError, "failed to update order")
		}
		return
	}

	resp := updateStatusResponse{Message: "order updated successfully", Order: result.Order}
	// A delivery always reports its award, zero included.
	if result.Posting.Effect == fidelity.EffectAward {
		awarded := result.Posting.Awarded()
		resp.PointsAwarded = &awarded
		if awarded > 0 {
			resp.Message = "order updated and fidelity points awarded successfully"
		}
	}
	if refunded := result.Posting.Refunded(); refunded > 0 {
		resp.Message = "order updated and fidelity points refunded successfully"
		resp.PointsRefunded = &refunded
	}

	h.writeJSON(w, http.StatusOK, resp)
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
