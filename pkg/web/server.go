// Package web provides the HTTP API and live status feed for the base
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-arcbase/pkg/control"
	"github.com/teslashibe/go-arcbase/pkg/hub"
	"github.com/teslashibe/go-arcbase/pkg/nav"
	"github.com/teslashibe/go-arcbase/pkg/protocol"
)

// Config holds web server settings.
type Config struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    string `yaml:"port" json:"port"`

	// StatusInterval is how often /ws/status clients get a fresh status.
	StatusInterval time.Duration `yaml:"status_interval" json:"status_interval"`
}

// DefaultConfig returns the default web settings.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		Port:           "8080",
		StatusInterval: 500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Enabled && c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status_interval must be positive")
	}
	return nil
}

// Controller is the view of the control loop the server needs.
type Controller interface {
	Status() control.Status
	History() []control.MoveRecord
	Config() control.Config
}

// Server is the web API server
type Server struct {
	app    *fiber.App
	cfg    Config
	ctrl   Controller
	sink   nav.Sink
	logger *slog.Logger

	// statusHub fans status and move events out to dashboards
	statusHub *hub.Hub

	statsMu sync.RWMutex
	stats   map[string]func() any

	// ConfigView, when set, is served by GET /api/config instead of the
	// control loop configuration.
	ConfigView func() any
}

// NewServer creates a new web API server
func NewServer(cfg Config, ctrl Controller, sink nav.Sink, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		ctrl:      ctrl,
		sink:      sink,
		logger:    logger,
		statusHub: hub.New("status", logger),
		stats:     make(map[string]func() any),
	}

	app := fiber.New(fiber.Config{
		AppName:               "arcbase",
		DisableStartupMessage: true,
	})

	// CORS for local dashboards
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/moves", s.handleMoves)
	api.Get("/config", s.handleConfig)
	api.Get("/stats", s.handleStats)
	api.Post("/odom", s.handleInject(protocol.TypeOdom))
	api.Post("/path", s.handleInject(protocol.TypePath))
	api.Post("/goal", s.handleInject(protocol.TypeGoal))
	api.Post("/goal_status", s.handleInject(protocol.TypeGoalStatus))

	app.Use("/ws/status", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s, nil
}

// App returns the fiber app so other components can mount routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// AddStats registers a named stats source served by GET /api/stats.
func (s *Server) AddStats(name string, fn func() any) {
	s.statsMu.Lock()
	s.stats[name] = fn
	s.statsMu.Unlock()
}

func (s *Server) collectStats() fiber.Map {
	out := fiber.Map{
		"status_hub": fiber.Map{
			"clients": s.statusHub.ClientCount(),
			"dropped": s.statusHub.Dropped(),
			"running": s.statusHub.IsRunning(),
		},
	}
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	for name, fn := range s.stats {
		out[name] = fn()
	}
	return out
}

// Run serves on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.cfg.Port)
	if err != nil {
		return fmt.Errorf("web listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("web API listening", "addr", ln.Addr().String())

	go s.statusHub.Run(ctx)
	go s.publishStatus(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- s.app.Listener(ln) }()

	select {
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("web shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// publishStatus periodically pushes the controller status to dashboards.
func (s *Server) publishStatus(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.statusHub.ClientCount() == 0 {
				continue
			}
			s.broadcast(protocol.TypeStatus, s.ctrl.Status())
		}
	}
}

// PublishMove pushes a move record to dashboards. It is meant to be
// registered with Controller.OnMove.
func (s *Server) PublishMove(rec control.MoveRecord) {
	s.broadcast(protocol.TypeMove, rec)
}

func (s *Server) broadcast(msgType protocol.MessageType, data any) {
	msg, err := protocol.NewMessage(msgType, data)
	if err == nil {
		err = s.statusHub.BroadcastJSON(msg)
	}
	if err != nil {
		s.logger.Warn("encode broadcast", "type", msgType, "error", err)
	}
}
