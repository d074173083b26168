package motor

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/tarm/serial"
)

// Dial opens the firmware link described by cfg.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Transport {
	case TransportSerial:
		port, err := serial.OpenPort(&serial.Config{
			Name: cfg.Device,
			Baud: cfg.Baud,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
		}
		logger.Info("connected to firmware", "transport", cfg.Transport, "device", cfg.Device, "baud", cfg.Baud)
		return NewClient(port, cfg, logger), nil

	default:
		dialer := net.Dialer{Timeout: cfg.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to firmware at %s: %w", cfg.Address, err)
		}
		logger.Info("connected to firmware", "transport", cfg.Transport, "address", cfg.Address)
		return NewClient(conn, cfg, logger), nil
	}
}
