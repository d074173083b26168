package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/go-arcbase/pkg/nav"
)

// ErrUnknownType is returned by Dispatch for types it does not handle.
var ErrUnknownType = errors.New("protocol: unknown message type")

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPathMessage creates a path message
func NewPathMessage(poses []nav.Pose2D) (*Message, error) {
	data := PathData{Poses: make([]PoseData, len(poses))}
	for i, p := range poses {
		data.Poses[i] = FromPose(p)
	}
	return NewMessage(TypePath, data)
}

// NewOdomMessage creates an odometry message
func NewOdomMessage(p nav.Pose2D) (*Message, error) {
	return NewMessage(TypeOdom, FromPose(p))
}

// NewGoalMessage creates a goal message
func NewGoalMessage(heading float64) (*Message, error) {
	return NewMessage(TypeGoal, GoalData{Heading: heading})
}

// NewGoalStatusMessage creates a goal status message
func NewGoalStatusMessage(codes ...int) (*Message, error) {
	return NewMessage(TypeGoalStatus, GoalStatusData{Codes: codes})
}

// NewErrorMessage reports a rejected message back to its sender
func NewErrorMessage(msgType MessageType, err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Type: msgType, Message: err.Error()})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// FromPose converts a nav pose to its wire form.
func FromPose(p nav.Pose2D) PoseData {
	return PoseData{X: p.X, Y: p.Y, Heading: p.Heading}
}

// Pose converts the wire form to a nav pose.
func (p PoseData) Pose() nav.Pose2D {
	return nav.Pose2D{X: p.X, Y: p.Y, Heading: p.Heading}
}

// =============================================================================
// Dispatch
// =============================================================================

// Dispatch applies an inbound message to the sink. Ping messages produce a
// pong reply; every other handled type returns a nil reply.
func Dispatch(m *Message, sink nav.Sink) (*Message, error) {
	switch m.Type {
	case TypePath:
		var data PathData
		if err := m.ParseData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		poses := make([]nav.Pose2D, len(data.Poses))
		for i, p := range data.Poses {
			poses[i] = p.Pose()
		}
		sink.UpdatePathTarget(poses)

	case TypeOdom:
		var data PoseData
		if err := m.ParseData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		sink.UpdateOdom(data.Pose())

	case TypeGoal:
		var data GoalData
		if err := m.ParseData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		sink.UpdateGoal(data.Heading)

	case TypeGoalStatus:
		var data GoalStatusData
		if err := m.ParseData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		sink.ReportStatus(data.Codes)

	case TypePing:
		var data PingData
		if err := m.ParseData(&data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", m.Type, err)
		}
		pingTS := data.Timestamp
		if pingTS == 0 {
			pingTS = m.Timestamp
		}
		return NewPongMessage(data.ID, pingTS, time.Now().UnixMilli())

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return nil, nil
}
