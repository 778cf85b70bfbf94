package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/parashop/internal/domain"
)

// NotificationHandler emails customers about shipping, delivery and the
// fidelity points those status changes moved.
type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order status changed event: %w", err)
	}

	msg, ok := compose(event)
	if !ok {
		h.logger.Debug("no notification for status change", "order_id", event.OrderID, "status", event.Status)
		return nil
	}
	if event.Email == "" {
		h.logger.Warn("status change without customer email", "order_id", event.OrderID)
		return nil
	}

	if err := h.sendEmail(ctx, msg); err != nil {
		h.logger.Error("failed to send notification email", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send notification email: %w", err)
	}

	h.logger.Info("notification sent", "order_id", event.OrderID, "status", event.Status)
	return nil
}

func compose(event domain.OrderStatusChangedEvent) (email, bool) {
	msg := email{To: event.Email}
	number := event.OrderNumber

	switch {
	case event.PointsAwarded > 0:
		msg.Subject = "Commande livrée : " + number
		msg.Body = fmt.Sprintf("Votre commande #%s a été livrée. Vous avez gagné %d points de fidélité.",
			number, event.PointsAwarded)
	case event.PointsRefunded > 0:
		msg.Subject = "Commande annulée : " + number
		msg.Body = fmt.Sprintf("Votre commande #%s a été annulée. %d points de fidélité ont été retirés de votre solde.",
			number, event.PointsRefunded)
	case event.Status == domain.OrderStatusShipped && event.PreviousStatus != domain.OrderStatusShipped:
		msg.Subject = "Commande expédiée : " + number
		msg.Body = fmt.Sprintf("Votre commande #%s a été expédiée.", number)
	case event.Status == domain.OrderStatusDelivered && event.PreviousStatus != domain.OrderStatusDelivered:
		msg.Subject = "Commande livrée : " + number
		msg.Body = fmt.Sprintf("Votre commande #%s a été livrée.", number)
	default:
		return email{}, false
	}
	return msg, true
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg email) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
