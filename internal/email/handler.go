package email

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Handler is a stand-in mail relay: it accepts messages, simulates delivery
// latency and logs them.
type Handler struct {
	logger   *slog.Logger
	maxDelay time.Duration
}

func NewHandler(logger *slog.Logger, maxDelay time.Duration) *Handler {
	return &Handler{
		logger:   logger,
		maxDelay: maxDelay,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !strings.Contains(req.To, "@") {
		h.writeError(w, http.StatusUnprocessableEntity, "invalid recipient")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		h.writeError(w, http.StatusUnprocessableEntity, "subject is required")
		return
	}

	if h.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(h.maxDelay))))
	}

	id := uuid.New().String()
	h.logger.Info("email sent", "id", id, "to", req.To, "subject", req.Subject)

	h.writeJSON(w, http.StatusOK, sendResponse{ID: id, Status: "sent"})
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
