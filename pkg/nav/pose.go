// Package nav holds the shared navigation state of the base controller:
// the latest odometry and target poses, the follow-mode arbitration rules
// and the geometry that turns a target into a rotate-then-translate move.
package nav

import (
	"fmt"
	"math"
)

// Pose2D is a planar pose. Heading is in radians, normalized to (-π, π].
type Pose2D struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Heading float64 `json:"heading"`
}

// String formats the pose for logs.
func (p Pose2D) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f rad)", p.X, p.Y, p.Heading)
}

// DistanceTo returns the Euclidean distance between two poses.
func (p Pose2D) DistanceTo(other Pose2D) float64 {
	return math.Hypot(other.X-p.X, other.Y-p.Y)
}

// NormalizeRotation folds a heading difference into (-π, π] with a single
// ±2π correction. Callers must pass a value in [-2π, 2π].
func NormalizeRotation(dth float64) float64 {
	if dth > math.Pi {
		return dth - 2*math.Pi
	}
	if dth <= -math.Pi {
		return dth + 2*math.Pi
	}
	return dth
}

// ValidHeading reports whether th is finite and inside [-π, π].
func ValidHeading(th float64) bool {
	if math.IsNaN(th) || math.IsInf(th, 0) {
		return false
	}
	return th >= -math.Pi && th <= math.Pi
}

// YawFromQuaternion extracts the rotation about Z from an orientation
// quaternion (ZYX convention, same as tf's euler_from_quaternion).
func YawFromQuaternion(x, y, z, w float64) float64 {
	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	return math.Atan2(sinyCosp, cosyCosp)
}

// Degrees converts radians to degrees for log output.
func Degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}
