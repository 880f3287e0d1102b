// Package events publishes order lifecycle events for operators and
// downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	OrderCreated      = "order.created"
	OrderItemsFailed  = "order.items_failed"
	OrderStockWarning = "order.stock_warning"
)

type Event struct {
	ID         string      `json:"event_id"`
	Type       string      `json:"type"`
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func NewEvent(eventType, orderID, userID string, data interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		OrderID:    orderID,
		UserID:     userID,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// Key is the message key: "order.created.<order id>".
func (e Event) Key() string {
	return e.Type + "." + e.OrderID
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event. Used when EVENT_BUS=none.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
