package domain

import "time"

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
)

type OrderCreatedEvent struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	UserID      string      `json:"user_id"`
	Items       []OrderItem `json:"items"`
	Timestamp   time.Time   `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	UserID         string      `json:"user_id"`
	Email          string      `json:"email"`
	PreviousStatus OrderStatus `json:"previous_status"`
	Status         OrderStatus `json:"status"`
	PointsAwarded  int64       `json:"points_awarded,omitempty"`
	PointsRefunded int64       `json:"points_refunded,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
