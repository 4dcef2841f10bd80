package domain

import "fmt"

// Типы событий пайплайна; значения совпадают с routing key брокера.
const (
	EventTypeOrderCreated   = "order.created"
	EventTypeOrderProcessed = "order.processed"
)

// EventKey строит детерминированный ключ дедупликации события
// в формате "<event_type>:<order_id>:<version>".
func EventKey(eventType, orderID string, version int) string {
	return fmt.Sprintf("%s:%s:%d", eventType, orderID, version)
}

// OrderCreatedEvent — wire-формат события order.created.
type OrderCreatedEvent struct {
	OrderID    string     `json:"order_id"`
	CustomerID string     `json:"customer_id"`
	Items      []ItemLine `json:"items"`
	Amount     float64    `json:"amount"`
	Version    int        `json:"version"`
}

// OrderProcessedEvent — wire-формат события order.processed.
type OrderProcessedEvent struct {
	OrderID string       `json:"order_id"`
	Status  ResultStatus `json:"status"`
	Reason  *string      `json:"reason"`
	Version int          `json:"version"`
}
