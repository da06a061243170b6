package server

import (
	"log/slog"

	"appleverse/internal/middleware"
	"appleverse/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ReviewerFeedUpgrade rejects plain HTTP requests to the websocket route.
func (s *Server) ReviewerFeedUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// ReviewerFeedHandler streams signup notifications and lifecycle events to an admin.
// The feed is one-way; the token comes from the Authorization header or ?token=.
func (s *Server) ReviewerFeedHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		adminID, _ := conn.Locals("adminID").(string)
		if adminID == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(adminID, conn)
		if err != nil {
			middleware.Logger.Warn("reviewer feed registration refused",
				slog.String("admin_id", adminID), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}
		observability.WebSocketEventsTotal.WithLabelValues("connected").Inc()
		middleware.Logger.Info("reviewer feed connected", slog.String("admin_id", adminID))

		go client.WritePump()
		client.ReadPump()

		observability.WebSocketEventsTotal.WithLabelValues("disconnected").Inc()
		middleware.Logger.Info("reviewer feed disconnected", slog.String("admin_id", adminID))
	})
}
