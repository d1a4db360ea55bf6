package domain

import "time"

type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventOrderCancelled EventType = "order.cancelled"
	EventOrderReturned  EventType = "order.returned"
)

// OrderEvent is published to the order lifecycle topic after a successful
// order mutation. It is a notification side channel; the order record and the
// adjustment outbox remain the source of truth.
type OrderEvent struct {
	Type              EventType `json:"type"`
	OrderID           string    `json:"order_id"`
	BuyerID           string    `json:"buyer_id"`
	BuyerEmail        string    `json:"buyer_email"`
	TotalAmount       float64   `json:"total_amount"`
	TotalCarbonPoints float64   `json:"total_carbon_points"`
	ItemCount         int       `json:"item_count"`
	Timestamp         time.Time `json:"timestamp"`
}
