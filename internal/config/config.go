// Package config loads the arcbase configuration: built-in defaults, then an
// optional YAML file, then environment overrides. Command-line flags are
// applied last by the command itself.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-arcbase/pkg/control"
	"github.com/teslashibe/go-arcbase/pkg/ingest"
	"github.com/teslashibe/go-arcbase/pkg/motor"
	"github.com/teslashibe/go-arcbase/pkg/rosbridge"
	"github.com/teslashibe/go-arcbase/pkg/web"
)

// Environment variables that override file settings.
const (
	EnvMotorAddr    = "ARCBASE_MOTOR_ADDR"
	EnvRosbridgeURL = "ROSBRIDGE_URL"
	EnvLogLevel     = "LOG_LEVEL"
	EnvWebPort      = "WEB_PORT"
)

// LogConfig selects the log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // "text" or "json"
}

// RosbridgeConfig adds an on/off switch to the rosbridge client settings.
type RosbridgeConfig struct {
	Enabled          bool `yaml:"enabled" json:"enabled"`
	rosbridge.Config `yaml:",inline"`
}

// Config is the complete process configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" json:"log"`
	Control   control.Config  `yaml:"control" json:"control"`
	Motor     motor.Config    `yaml:"motor" json:"motor"`
	Rosbridge RosbridgeConfig `yaml:"rosbridge" json:"rosbridge"`
	Ingest    ingest.Config   `yaml:"ingest" json:"ingest"`
	Web       web.Config      `yaml:"web" json:"web"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:       LogConfig{Level: "info"},
		Control:   control.DefaultConfig(),
		Motor:     motor.DefaultConfig(),
		Rosbridge: RosbridgeConfig{Enabled: true, Config: rosbridge.DefaultConfig()},
		Ingest:    ingest.DefaultConfig(),
		Web:       web.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty), and the environment. It does not validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Parse decodes YAML onto cfg. Keys not present keep their current values;
// unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// ApplyEnv applies the environment overrides.
func (c *Config) ApplyEnv() {
	c.Motor.SetAddress(MotorAddr(""))
	if url := RosbridgeURL(""); url != "" {
		c.Rosbridge.URL = url
		c.Rosbridge.Enabled = true
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		c.Log.Level = lvl
	}
	if port := os.Getenv(EnvWebPort); port != "" {
		c.Web.Port = port
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Control.Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if err := c.Motor.Validate(); err != nil {
		return fmt.Errorf("motor: %w", err)
	}
	if c.Rosbridge.Enabled {
		if err := c.Rosbridge.Validate(); err != nil {
			return fmt.Errorf("rosbridge: %w", err)
		}
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if err := c.Web.Validate(); err != nil {
		return fmt.Errorf("web: %w", err)
	}
	if !c.Rosbridge.Enabled && !(c.Ingest.Enabled && c.Web.Enabled) {
		return fmt.Errorf("no event source: enable rosbridge or the web ingest endpoint")
	}
	return nil
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// MotorAddr returns the motor link address from ARCBASE_MOTOR_ADDR.
// Falls back to the provided default if not set.
func MotorAddr(defaultAddr string) string {
	if addr := os.Getenv(EnvMotorAddr); addr != "" {
		return addr
	}
	return defaultAddr
}

// RosbridgeURL returns the rosbridge URL from ROSBRIDGE_URL.
// Falls back to the provided default if not set.
func RosbridgeURL(defaultURL string) string {
	if url := os.Getenv(EnvRosbridgeURL); url != "" {
		return url
	}
	return defaultURL
}
