// Package protocol defines the WebSocket message types for the navigation
// event feed. Planner bridges push path, odometry, goal and goal-status
// events; the base pushes status and move reports back to dashboards.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Planner → Base messages
	TypePath       MessageType = "path"        // Local plan poses
	TypeOdom       MessageType = "odom"        // Odometry pose
	TypeGoal       MessageType = "goal"        // Goal orientation
	TypeGoalStatus MessageType = "goal_status" // Planner goal status list

	// Base → Dashboard messages
	TypeStatus MessageType = "status" // Controller status
	TypeMove   MessageType = "move"   // Move record
	TypeError  MessageType = "error"  // Rejected inbound message

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// PoseData is a planar pose. Heading is radians in [-π, π].
type PoseData struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// PathData carries a local plan; only the last pose is used as the target.
type PathData struct {
	Poses []PoseData `json:"poses"`
}

// GoalData carries the goal orientation.
type GoalData struct {
	Heading float64 `json:"heading"`
}

// GoalStatusData carries planner status codes, latest last.
type GoalStatusData struct {
	Codes []int `json:"codes"`
}

// ErrorData reports why an inbound message was rejected.
type ErrorData struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
