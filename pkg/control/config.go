// Package control runs the fixed-cadence loop that turns the latest
// navigation state into one open-loop move at a time.
package control

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-arcbase/pkg/nav"
)

// Config holds all tunable parameters for the control loop.
type Config struct {
	// TickInterval is how often the loop wakes to check for work.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`

	// MoveInterval is the minimum spacing between move starts.
	MoveInterval time.Duration `yaml:"move_interval" json:"move_interval"`

	// StalenessWindow is how long a path update stays authoritative.
	StalenessWindow time.Duration `yaml:"staleness_window" json:"staleness_window"`

	// HistorySize bounds the move history kept for the dashboard.
	HistorySize int `yaml:"history_size" json:"history_size"`

	// ShutdownTimeout bounds the firmware shutdown sequence.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	Planner nav.PlannerConfig `yaml:"planner" json:"planner"`
}

// DefaultConfig returns the recommended loop configuration.
func DefaultConfig() Config {
	return Config{
		TickInterval:    50 * time.Millisecond,
		MoveInterval:    1500 * time.Millisecond,
		StalenessWindow: nav.DefaultStalenessWindow,
		HistorySize:     100,
		ShutdownTimeout: 2 * time.Second,
		Planner:         nav.DefaultPlannerConfig(),
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.MoveInterval < 0 {
		return fmt.Errorf("move_interval must be >= 0")
	}
	if c.StalenessWindow <= 0 {
		return fmt.Errorf("staleness_window must be positive")
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size must be >= 0")
	}
	if err := c.Planner.Validate(); err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	return nil
}
