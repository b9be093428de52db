// Package notify broadcasts post-commit events to subscribed dashboard
// sessions. Delivery is best-effort: a failed publish is logged and never
// affects the transaction that produced the event.
package notify

import (
	"context"
	"time"
)

const (
	EventOrderCreated    = "order.created"
	EventOrderValidated  = "order.validated"
	EventVisitorMovement = "visitor.movement"
)

type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any)
}

// NopPublisher discards events. Used in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType string, payload any) {}
