// Package notifications delivers reviewer notifications and the live lifecycle feed.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"appleverse/internal/middleware"
	"appleverse/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	// AdminChannel carries reviewer notifications such as new signup requests.
	AdminChannel = "notifications:admin"
	// LifecycleChannel carries committed lifecycle transitions.
	LifecycleChannel = "lifecycle:events"
)

// Message is one outbound reviewer notification.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier delivers a message to a reviewer. Failures wrap a DELIVERY_FAILED AppError.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NopNotifier discards every message.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(context.Context, Message) error { return nil }

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

// Notify implements Notifier.
func (f Fanout) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return models.NewDeliveryFailedError(errors.Join(errs...))
}

// RedisNotifier publishes notifications and lifecycle events into Redis channels.
type RedisNotifier struct {
	rdb *redis.Client
}

// NewRedisNotifier creates a RedisNotifier. A nil client makes every call a no-op.
func NewRedisNotifier(rdb *redis.Client) *RedisNotifier {
	return &RedisNotifier{rdb: rdb}
}

// Notify publishes msg as JSON on AdminChannel.
func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(Envelope{Type: EventSignupRequested, Payload: msg})
	if err != nil {
		return models.NewDeliveryFailedError(fmt.Errorf("marshal message: %w", err))
	}
	if err := n.rdb.Publish(ctx, AdminChannel, payload).Err(); err != nil {
		return models.NewDeliveryFailedError(err)
	}
	return nil
}

// PublishEvent publishes a committed lifecycle transition on LifecycleChannel.
func (n *RedisNotifier) PublishEvent(ctx context.Context, evt LifecycleEvent) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := json.Marshal(Envelope{Type: EventLifecycle, Payload: evt})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.rdb.Publish(ctx, LifecycleChannel, payload).Err()
}

// StartSubscriber subscribes to the admin and lifecycle channels and calls onMessage
// for each payload until ctx is canceled.
func (n *RedisNotifier) StartSubscriber(ctx context.Context, onMessage func(channel string, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.Subscribe(ctx, AdminChannel, LifecycleChannel)
	// Wait for the subscription to be confirmed so publishes right after start are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in notification subscriber",
								slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
