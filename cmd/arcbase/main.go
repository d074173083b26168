// Command arcbase drives a differential base from navigation-stack output:
// it listens for local plans, odometry, goals and goal status, and turns
// them into timed rotate-then-translate moves on the base firmware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-arcbase/internal/config"
	"github.com/teslashibe/go-arcbase/internal/log"
	"github.com/teslashibe/go-arcbase/pkg/control"
	"github.com/teslashibe/go-arcbase/pkg/ingest"
	"github.com/teslashibe/go-arcbase/pkg/motor"
	"github.com/teslashibe/go-arcbase/pkg/nav"
	"github.com/teslashibe/go-arcbase/pkg/protocol"
	"github.com/teslashibe/go-arcbase/pkg/rosbridge"
	"github.com/teslashibe/go-arcbase/pkg/web"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Command line flags
	configPath := flag.String("config", "", "YAML config file")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	motorAddr := flag.String("motor", "", "Firmware address (host:port, /dev/tty..., or serial://...)")
	rosbridgeURL := flag.String("rosbridge", "", "rosbridge websocket URL")
	noRosbridge := flag.Bool("no-rosbridge", false, "Disable the rosbridge client")
	webPort := flag.String("web-port", "", "Web API port")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	// flags win over file and environment
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	cfg.Motor.SetAddress(*motorAddr)
	if *rosbridgeURL != "" {
		cfg.Rosbridge.URL = *rosbridgeURL
		cfg.Rosbridge.Enabled = true
	}
	if *noRosbridge {
		cfg.Rosbridge.Enabled = false
	}
	if *webPort != "" {
		cfg.Web.Port = *webPort
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid config: %v\n", err)
		return 2
	}

	if *printConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		os.Stdout.Write(out)
		return 0
	}

	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.For("main")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	// Connect to the base firmware
	link, err := motor.Dial(ctx, cfg.Motor, log.For("motor"))
	if err != nil {
		logger.Error("failed to connect to base firmware", "error", err)
		return 1
	}
	defer link.Close()

	state := nav.NewState(nil)
	executor := motor.NewExecutor(link, cfg.Motor, log.For("executor"))

	ctrl, err := control.New(cfg.Control, state, executor, link, log.For("control"))
	if err != nil {
		logger.Error("failed to create controller", "error", err)
		return 1
	}

	var bridge *rosbridge.Client
	if cfg.Rosbridge.Enabled {
		bridge, err = rosbridge.New(cfg.Rosbridge.Config, state, log.For("rosbridge"))
		if err != nil {
			logger.Error("failed to create rosbridge client", "error", err)
			return 1
		}
	}

	if cfg.Web.Enabled {
		srv, err := web.NewServer(cfg.Web, ctrl, state, log.For("web"))
		if err != nil {
			logger.Error("failed to create web server", "error", err)
			return 1
		}
		srv.ConfigView = func() any { return cfg }
		srv.AddStats("motor", func() any { return link.Stats() })
		srv.AddStats("executor", func() any { return executor.Stats() })
		if bridge != nil {
			srv.AddStats("rosbridge", func() any { return bridge.Stats() })
		}
		ctrl.OnMove(srv.PublishMove)

		if cfg.Ingest.Enabled {
			events, err := ingest.NewHub(cfg.Ingest, state, log.For("ingest"))
			if err != nil {
				logger.Error("failed to create ingest hub", "error", err)
				return 1
			}
			events.OnEvent(func(source string, msgType protocol.MessageType) {
				logger.Debug("event", "source", source, "type", msgType)
			})
			srv.AddStats("ingest", func() any { return events.GetStats() })
			events.RegisterRoutes(srv.App())
			events.RegisterAPIRoutes(srv.App().Group("/api"))
		}

		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("web server stopped", "error", err)
				cancel()
			}
		}()
	}

	if bridge != nil {
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("rosbridge client stopped", "error", err)
				cancel()
			}
		}()
	}

	// a link drop while idle must stop the process too
	linkLost := make(chan struct{})
	go func() {
		select {
		case <-link.Done():
			if ctx.Err() == nil {
				logger.Error("base firmware link lost")
				close(linkLost)
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	logger.Info("arcbase running",
		"motor", cfg.Motor.Transport,
		"rosbridge", cfg.Rosbridge.Enabled,
		"web", cfg.Web.Enabled,
	)

	// Run the control loop
	err = ctrl.Run(ctx)

	select {
	case <-linkLost:
		return 1
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("control loop ended", "error", err)
		return 1
	}

	logger.Info("goodbye")
	return 0
}
