// Package ingest accepts navigation events pushed by planner bridges over
// WebSocket and applies them to the shared navigation state.
package ingest

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-arcbase/pkg/nav"
	"github.com/teslashibe/go-arcbase/pkg/protocol"
)

// Config holds ingest endpoint settings.
type Config struct {
	// Enabled mounts the /ws/events endpoint.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxMessageSize bounds one inbound frame in bytes.
	MaxMessageSize int64 `yaml:"max_message_size" json:"max_message_size"`

	// IdleTimeout drops a source that sends nothing for this long. 0 disables.
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// DefaultConfig returns the default ingest settings.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MaxMessageSize: 256 * 1024,
		IdleTimeout:    0,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must be >= 0")
	}
	return nil
}

// Source represents a connected planner bridge
type Source struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu       sync.Mutex
	lastSeen time.Time
	received uint64
	rejected uint64
}

// Send sends a message to the source
func (s *Source) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages WebSocket connections from planner bridges
type Hub struct {
	cfg    Config
	sink   nav.Sink
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[string]*Source
	onEvent func(sourceID string, msgType protocol.MessageType)

	// Stats
	messagesReceived atomic.Uint64
	messagesRejected atomic.Uint64
	messagesSent     atomic.Uint64
}

// NewHub creates a new ingest hub that writes into sink
func NewHub(cfg Config, sink nav.Sink, logger *slog.Logger) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:     cfg,
		sink:    sink,
		logger:  logger,
		sources: make(map[string]*Source),
	}, nil
}

// OnEvent sets the callback invoked after each applied event
func (h *Hub) OnEvent(callback func(sourceID string, msgType protocol.MessageType)) {
	h.mu.Lock()
	h.onEvent = callback
	h.mu.Unlock()
}

// RegisterRoutes registers WebSocket routes on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/events", websocket.New(h.handleSource))
	app.Get("/ws/events/:id", websocket.New(h.handleSource))
}

// handleSource handles one planner bridge connection
func (h *Hub) handleSource(c *websocket.Conn) {
	sourceID := c.Params("id")
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	now := time.Now()
	src := &Source{
		ID:        sourceID,
		Conn:      c,
		Connected: now,
		lastSeen:  now,
	}

	h.mu.Lock()
	if old, ok := h.sources[sourceID]; ok {
		// a reconnecting bridge replaces its stale connection
		old.Conn.Close()
	}
	h.sources[sourceID] = src
	count := len(h.sources)
	h.mu.Unlock()

	h.logger.Info("event source connected", "source", sourceID, "total", count)

	defer func() {
		h.mu.Lock()
		if h.sources[sourceID] == src {
			delete(h.sources, sourceID)
		}
		count := len(h.sources)
		h.mu.Unlock()

		h.logger.Info("event source disconnected", "source", sourceID, "total", count)
	}()

	c.SetReadLimit(h.cfg.MaxMessageSize)

	for {
		if h.cfg.IdleTimeout > 0 {
			c.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		}
		_, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("event source read error", "source", sourceID, "error", err)
			return
		}

		src.mu.Lock()
		src.lastSeen = time.Now()
		src.mu.Unlock()

		reply, err := h.Handle(sourceID, data)
		if err != nil {
			src.mu.Lock()
			src.rejected++
			src.mu.Unlock()
		} else {
			src.mu.Lock()
			src.received++
			src.mu.Unlock()
		}

		if reply != nil {
			h.messagesSent.Add(1)
			if err := src.Send(reply); err != nil {
				h.logger.Debug("event source write error", "source", sourceID, "error", err)
				return
			}
		}
	}
}

// Handle applies one raw frame from sourceID to the sink. The returned
// message, if any, should be sent back to the source: a pong for a ping or
// an error report for a rejected frame.
func (h *Hub) Handle(sourceID string, data []byte) (*protocol.Message, error) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		h.messagesRejected.Add(1)
		h.logger.Warn("rejected event", "source", sourceID, "error", err)
		reply, _ := protocol.NewErrorMessage("", err)
		return reply, err
	}

	reply, err := protocol.Dispatch(msg, h.sink)
	if err != nil {
		h.messagesRejected.Add(1)
		h.logger.Warn("rejected event", "source", sourceID, "type", msg.Type, "error", err)
		reply, _ = protocol.NewErrorMessage(msg.Type, err)
		return reply, err
	}
	h.messagesReceived.Add(1)

	h.mu.RLock()
	cb := h.onEvent
	h.mu.RUnlock()
	if cb != nil && msg.Type != protocol.TypePing {
		cb(sourceID, msg.Type)
	}
	return reply, nil
}

// SourceCount returns the number of connected sources
func (h *Hub) SourceCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sources)
}

// Stats contains hub statistics
type Stats struct {
	SourceCount      int    `json:"source_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesRejected uint64 `json:"messages_rejected"`
	MessagesSent     uint64 `json:"messages_sent"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		SourceCount:      h.SourceCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesRejected: h.messagesRejected.Load(),
		MessagesSent:     h.messagesSent.Load(),
	}
}

// SourceInfo contains info about a connected source
type SourceInfo struct {
	ID        string    `json:"id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Received  uint64    `json:"received"`
	Rejected  uint64    `json:"rejected"`
}

// GetSourceInfos returns info about all connected sources
func (h *Hub) GetSourceInfos() []SourceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(h.sources))
	for _, s := range h.sources {
		s.mu.Lock()
		infos = append(infos, SourceInfo{
			ID:        s.ID,
			Connected: s.Connected,
			LastSeen:  s.lastSeen,
			Received:  s.received,
			Rejected:  s.rejected,
		})
		s.mu.Unlock()
	}
	return infos
}

// RegisterAPIRoutes registers API routes for source inspection
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	sources := api.Group("/sources")

	sources.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sources": h.GetSourceInfos(),
			"count":   h.SourceCount(),
		})
	})

	sources.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})
}
