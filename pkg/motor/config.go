// Package motor drives the base firmware over its line-oriented text
// protocol and executes rotate-then-translate moves as timed open-loop
// commands.
//
// Protocol (one command per line):
//   - speed <int>
//   - move left|right|forward|stop
//   - odometrystop, state stopbetweenmoves false (shutdown only)
//
// After "move stop" the firmware reports a line containing
// "direction stop" once the motors are actually stopped.
package motor

import (
	"fmt"
	"strings"
	"time"
)

// Transport names.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// Config holds firmware link and calibration settings.
type Config struct {
	// Transport is "tcp" or "serial".
	Transport string `yaml:"transport" json:"transport"`

	// Address is the firmware socket for the tcp transport.
	// Example: "192.168.1.40:4444"
	Address string `yaml:"address" json:"address"`

	// Device and Baud are used by the serial transport.
	Device string `yaml:"device" json:"device"`
	Baud   int    `yaml:"baud" json:"baud"`

	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout"`

	// Speeds are firmware PWM values (0-255).
	TurnSpeed   int `yaml:"turn_speed" json:"turn_speed"`
	LinearSpeed int `yaml:"linear_speed" json:"linear_speed"`

	// Calibration for open-loop timing.
	SecondsPerRotation float64 `yaml:"seconds_per_rotation" json:"seconds_per_rotation"`
	SecondsPerMeter    float64 `yaml:"seconds_per_meter" json:"seconds_per_meter"`

	// AckMarker is the substring that confirms the motors stopped.
	AckMarker string `yaml:"ack_marker" json:"ack_marker"`

	// AckTimeout bounds the wait for AckMarker. 0 waits forever.
	AckTimeout time.Duration `yaml:"ack_timeout" json:"ack_timeout"`
}

// DefaultConfig returns the calibration of the reference base.
func DefaultConfig() Config {
	return Config{
		Transport:          TransportTCP,
		Address:            "localhost:4444",
		Device:             "/dev/ttyUSB0",
		Baud:               115200,
		DialTimeout:        5 * time.Second,
		TurnSpeed:          100,
		LinearSpeed:        150,
		SecondsPerRotation: 3.8,
		SecondsPerMeter:    3.2,
		AckMarker:          "direction stop",
		AckTimeout:         5 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportTCP:
		if c.Address == "" {
			return fmt.Errorf("address is required for tcp transport")
		}
	case TransportSerial:
		if c.Device == "" {
			return fmt.Errorf("device is required for serial transport")
		}
		if c.Baud <= 0 {
			return fmt.Errorf("baud must be positive, got %d", c.Baud)
		}
	default:
		return fmt.Errorf("transport must be 'tcp' or 'serial', got '%s'", c.Transport)
	}
	if c.TurnSpeed <= 0 || c.TurnSpeed > 255 {
		return fmt.Errorf("turn_speed must be in 1..255, got %d", c.TurnSpeed)
	}
	if c.LinearSpeed <= 0 || c.LinearSpeed > 255 {
		return fmt.Errorf("linear_speed must be in 1..255, got %d", c.LinearSpeed)
	}
	if c.SecondsPerRotation <= 0 {
		return fmt.Errorf("seconds_per_rotation must be positive")
	}
	if c.SecondsPerMeter <= 0 {
		return fmt.Errorf("seconds_per_meter must be positive")
	}
	if c.AckMarker == "" {
		return fmt.Errorf("ack_marker is required")
	}
	if c.AckTimeout < 0 {
		return fmt.Errorf("ack_timeout must be >= 0")
	}
	return nil
}

// SetAddress points the link at addr. A device path ("/dev/...") or a
// "serial://" prefix selects the serial transport; anything else is a tcp
// host:port. An empty addr leaves the config unchanged.
func (c *Config) SetAddress(addr string) {
	switch {
	case addr == "":
	case strings.HasPrefix(addr, "serial://"):
		c.Transport = TransportSerial
		c.Device = strings.TrimPrefix(addr, "serial://")
	case strings.HasPrefix(addr, "/dev/"):
		c.Transport = TransportSerial
		c.Device = addr
	default:
		c.Transport = TransportTCP
		c.Address = strings.TrimPrefix(addr, "tcp://")
	}
}
