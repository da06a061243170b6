package notifications

import (
	"context"
	"time"
)

// Envelope types on the reviewer feed.
const (
	EventSignupRequested = "signup_requested"
	EventLifecycle       = "lifecycle"
)

// Envelope wraps every payload published to the reviewer feed.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// LifecycleEvent describes one committed state move.
type LifecycleEvent struct {
	Operation string    `json:"operation"`
	RecordID  string    `json:"record_id"`
	Email     string    `json:"email"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ActorID   string    `json:"actor_id,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher publishes lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, evt LifecycleEvent) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishEvent implements EventPublisher.
func (NopPublisher) PublishEvent(context.Context, LifecycleEvent) error { return nil }
