package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"appleverse/internal/middleware"

	"github.com/gofiber/websocket/v2"
)

const (
	// Max connections per admin
	maxConnsPerAdmin = 8
	// Max total connections
	maxTotalConns = 1000
)

// ReviewerHub fans reviewer feed messages out to connected admin websockets.
type ReviewerHub struct {
	mu         sync.RWMutex
	conns      map[string]map[*Client]struct{}
	totalConns int
	closed     bool
}

// NewReviewerHub creates an empty hub.
func NewReviewerHub() *ReviewerHub {
	return &ReviewerHub{
		conns: make(map[string]map[*Client]struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *ReviewerHub) Name() string { return "reviewer hub" }

// Register a connection for an admin. Returns the Client or error if limits are exceeded.
func (h *ReviewerHub) Register(adminID string, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errors.New("hub is shut down")
	}
	if h.totalConns >= maxTotalConns {
		return nil, errors.New("server connection limit reached")
	}

	m, ok := h.conns[adminID]
	if !ok {
		m = make(map[*Client]struct{})
		h.conns[adminID] = m
	}
	if len(m) >= maxConnsPerAdmin {
		return nil, errors.New("admin connection limit reached")
	}

	client := NewClient(h, conn, adminID)
	m[client] = struct{}{}
	h.totalConns++
	return client, nil
}

// UnregisterClient removes a client; it is safe to call more than once.
func (h *ReviewerHub) UnregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.conns[client.AdminID]; ok {
		if _, exists := m[client]; exists {
			delete(m, client)
			h.totalConns--
		}
		if len(m) == 0 {
			delete(h.conns, client.AdminID)
		}
	}
}

// Count returns the number of registered clients.
func (h *ReviewerHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalConns
}

// Disconnect closes every connection held by adminID, e.g. after their access is revoked.
func (h *ReviewerHub) Disconnect(adminID string) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.conns[adminID]))
	for c := range h.conns[adminID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close(websocket.ClosePolicyViolation, "access revoked")
	}
}

// BroadcastAll sends message to every connected client.
func (h *ReviewerHub) BroadcastAll(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data := []byte(message)
	for _, clients := range h.conns {
		for c := range clients {
			c.TrySend(data)
		}
	}
}

// StartWiring subscribes to the reviewer channels and forwards every payload to all clients.
func (h *ReviewerHub) StartWiring(ctx context.Context, n *RedisNotifier) error {
	return n.StartSubscriber(ctx, func(channel, payload string) {
		switch channel {
		case AdminChannel, LifecycleChannel:
			h.BroadcastAll(payload)
		default:
			middleware.Logger.Warn("unexpected reviewer channel", slog.String("channel", channel))
		}
	})
}

// Shutdown gracefully closes all websocket connections.
func (h *ReviewerHub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	h.closed = true
	all := make([]*Client, 0, h.totalConns)
	for _, clients := range h.conns {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.conns = make(map[string]map[*Client]struct{})
	h.totalConns = 0
	h.mu.Unlock()

	for _, c := range all {
		c.Close(websocket.CloseGoingAway, "Server shutting down")
	}
	return nil
}
