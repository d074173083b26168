package rosbridge

import (
	"encoding/json"

	"github.com/teslashibe/go-arcbase/pkg/nav"
)

// Default topic names, as published by move_base and the base driver.
const (
	DefaultLocalPlanTopic  = "/move_base/TrajectoryPlannerROS/local_plan"
	DefaultOdomTopic       = "/odom"
	DefaultGoalTopic       = "/move_base_simple/goal"
	DefaultGoalStatusTopic = "/move_base/status"
)

// ROS message types for each subscription.
const (
	TypePath            = "nav_msgs/Path"
	TypeOdometry        = "nav_msgs/Odometry"
	TypePoseStamped     = "geometry_msgs/PoseStamped"
	TypeGoalStatusArray = "actionlib_msgs/GoalStatusArray"
)

// rosbridge v2 operations used by the client.
const (
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
	OpPublish     = "publish"
	OpStatus      = "status"
)

// Operation is a rosbridge v2 protocol frame.
type Operation struct {
	Op           string          `json:"op"`
	ID           string          `json:"id,omitempty"`
	Topic        string          `json:"topic,omitempty"`
	Type         string          `json:"type,omitempty"`
	ThrottleRate int             `json:"throttle_rate,omitempty"`
	QueueLength  int             `json:"queue_length,omitempty"`
	Msg          json.RawMessage `json:"msg,omitempty"` // a JSON string in status frames
	Level        string          `json:"level,omitempty"`
}

// Point is geometry_msgs/Point.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is geometry_msgs/Pose.
type Pose struct {
	Position    Point      `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Pose2D projects the pose onto the ground plane.
func (p Pose) Pose2D() nav.Pose2D {
	q := p.Orientation
	return nav.Pose2D{
		X:       p.Position.X,
		Y:       p.Position.Y,
		Heading: nav.YawFromQuaternion(q.X, q.Y, q.Z, q.W),
	}
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq"`
	FrameID string `json:"frame_id"`
}

// PoseStamped is geometry_msgs/PoseStamped.
type PoseStamped struct {
	Header Header `json:"header"`
	Pose   Pose   `json:"pose"`
}

// Path is nav_msgs/Path.
type Path struct {
	Header Header        `json:"header"`
	Poses  []PoseStamped `json:"poses"`
}

// Poses2D converts every path pose.
func (p Path) Poses2D() []nav.Pose2D {
	out := make([]nav.Pose2D, len(p.Poses))
	for i, ps := range p.Poses {
		out[i] = ps.Pose.Pose2D()
	}
	return out
}

// Odometry is the subset of nav_msgs/Odometry the base uses.
type Odometry struct {
	Header Header `json:"header"`
	Pose   struct {
		Pose Pose `json:"pose"`
	} `json:"pose"`
}

// GoalStatus is actionlib_msgs/GoalStatus.
type GoalStatus struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
}

// GoalStatusArray is actionlib_msgs/GoalStatusArray.
type GoalStatusArray struct {
	StatusList []GoalStatus `json:"status_list"`
}

// Codes returns the status codes in list order.
func (a GoalStatusArray) Codes() []int {
	codes := make([]int, len(a.StatusList))
	for i, s := range a.StatusList {
		codes[i] = s.Status
	}
	return codes
}
