// Package rosbridge subscribes to the navigation stack through a rosbridge
// v2 websocket and forwards decoded poses into a nav.Sink.
//
// This package handles:
//   - Connection management with automatic reconnection
//   - Topic subscription with unique request ids
//   - Decoding of nav_msgs, geometry_msgs and actionlib_msgs payloads
package rosbridge

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds rosbridge client configuration.
type Config struct {
	// URL is the rosbridge websocket endpoint.
	// Example: "ws://192.168.1.20:9090"
	URL string `yaml:"url" json:"url"`

	// Topics names the ROS topics to subscribe to.
	Topics TopicConfig `yaml:"topics" json:"topics"`

	// HandshakeTimeout bounds the websocket upgrade.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`

	// ThrottleRate asks rosbridge to space messages per topic (ms). 0 disables.
	ThrottleRate int `yaml:"throttle_rate" json:"throttle_rate"`

	// ReconnectInterval is how often to attempt reconnection on failure.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`

	// MaxReconnectAttempts is the maximum number of reconnection attempts.
	// 0 means unlimited.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
}

// TopicConfig holds the subscribed topic names.
type TopicConfig struct {
	LocalPlan  string `yaml:"local_plan" json:"local_plan"`
	Odom       string `yaml:"odom" json:"odom"`
	Goal       string `yaml:"goal" json:"goal"`
	GoalStatus string `yaml:"goal_status" json:"goal_status"`
}

// DefaultConfig returns a Config matching a stock move_base setup.
func DefaultConfig() Config {
	return Config{
		URL: "ws://localhost:9090",
		Topics: TopicConfig{
			LocalPlan:  DefaultLocalPlanTopic,
			Odom:       DefaultOdomTopic,
			Goal:       DefaultGoalTopic,
			GoalStatus: DefaultGoalStatusTopic,
		},
		HandshakeTimeout:     10 * time.Second,
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 0, // Unlimited
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got '%s'", u.Scheme)
	}
	if c.Topics.LocalPlan == "" || c.Topics.Odom == "" || c.Topics.Goal == "" || c.Topics.GoalStatus == "" {
		return fmt.Errorf("all topic names are required")
	}
	if c.ThrottleRate < 0 {
		return fmt.Errorf("throttle_rate must be >= 0")
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("reconnect_interval must be positive")
	}
	return nil
}
