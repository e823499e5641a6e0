package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// GetScenario returns the SUMO page to embed for a date (default today)
func (h *Handler) GetScenario(c *fiber.Ctx) error {
	date := time.Now()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "date must be RFC3339")
		}
		date = parsed
	}

	return c.JSON(fiber.Map{
		"url":     h.simulator.ScenarioURL(date),
		"weekday": date.Weekday().String(),
	})
}

// SimulatorHealth reports whether the SUMO web server is reachable
func (h *Handler) SimulatorHealth(c *fiber.Ctx) error {
	if err := h.simulator.Health(c.Context()); err != nil {
		h.log.Warn().Err(err).Msg("simulator unreachable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status":    "unavailable",
			"connected": h.simulator.Connected(),
		})
	}
	return c.JSON(fiber.Map{
		"status":    "ok",
		"connected": h.simulator.Connected(),
	})
}

// GetSimulatorMessages returns the buffered simulator feed
func (h *Handler) GetSimulatorMessages(c *fiber.Ctx) error {
	msgs := h.simulator.Messages()
	return c.JSON(fiber.Map{
		"data":      msgs,
		"count":     len(msgs),
		"connected": h.simulator.Connected(),
	})
}

// RequireUpgrade rejects plain HTTP requests on websocket routes
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// SimulatorStream relays every new simulator message to a browser socket
func (h *Handler) SimulatorStream(conn *websocket.Conn) {
	ch, cancel := h.simulator.Subscribe()
	defer cancel()

	// The browser never sends; a read error means it went away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Data)); err != nil {
			h.log.Debug().Err(err).Msg("simulator stream client write failed")
			return
		}
	}
}
