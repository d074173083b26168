package web

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-arcbase/pkg/hub"
	"github.com/teslashibe/go-arcbase/pkg/protocol"
)

// handleStatus returns the controller status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.Status())
}

// handleMoves returns recent moves, newest last. ?limit=N trims the list.
func (s *Server) handleMoves(c *fiber.Ctx) error {
	moves := s.ctrl.History()
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a non-negative integer"})
		}
		if limit < len(moves) {
			moves = moves[len(moves)-limit:]
		}
	}
	return c.JSON(fiber.Map{
		"moves": moves,
		"count": len(moves),
	})
}

// handleStats returns counters from every registered component
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.collectStats())
}

// handleConfig returns the active configuration
func (s *Server) handleConfig(c *fiber.Ctx) error {
	if s.ConfigView != nil {
		return c.JSON(s.ConfigView())
	}
	return c.JSON(s.ctrl.Config())
}

// handleInject feeds a manually posted event into the navigation state,
// using the same decoding as the event feed.
func (s *Server) handleInject(msgType protocol.MessageType) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := append([]byte(nil), c.Body()...)
		if len(body) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "empty body"})
		}

		msg := &protocol.Message{Type: msgType, Data: body}
		if _, err := protocol.Dispatch(msg, s.sink); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		s.logger.Info("event injected", "type", msgType, "remote", c.IP())
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "accepted", "type": msgType})
	}
}

// handleStatusWS streams status and move events to a dashboard
func (s *Server) handleStatusWS(c *websocket.Conn) {
	// current status first, before the hub starts writing
	msg, err := protocol.NewMessage(protocol.TypeStatus, s.ctrl.Status())
	if err == nil {
		if b, err := msg.Bytes(); err == nil {
			if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		}
	}

	hub.NewClient(s.statusHub, c).Run()
}
