package nav

import (
	"fmt"
	"math"
)

// Planner defaults, tuned for the base firmware.
const (
	// DefaultMinTurn is the smallest rotation the firmware executes reliably.
	DefaultMinTurn = 0.18
	// DefaultDeadbandRatio scales MinTurn into the zero band.
	DefaultDeadbandRatio = 0.2
	// DefaultMinDistance is the shortest translation the protocol handles.
	DefaultMinDistance = 0.05
)

// MoveCommand is one rotate-then-translate move.
type MoveCommand struct {
	Rotation    float64    `json:"rotation"`    // signed radians, (-π, π]
	Translation float64    `json:"translation"` // meters, >= 0
	Heading     float64    `json:"heading"`     // desired heading before quantization
	Mode        FollowMode `json:"mode"`
}

// IsZero reports whether the command moves nothing.
func (c MoveCommand) IsZero() bool {
	return c.Rotation == 0 && c.Translation == 0
}

// String formats the command for logs.
func (c MoveCommand) String() string {
	return fmt.Sprintf("%s rot=%.3f rad (%.1f°) dist=%.3f m", c.Mode, c.Rotation, Degrees(c.Rotation), c.Translation)
}

// PlannerConfig holds the quantization thresholds.
type PlannerConfig struct {
	MinTurn       float64 `yaml:"min_turn" json:"min_turn"`
	DeadbandRatio float64 `yaml:"deadband_ratio" json:"deadband_ratio"`
	MinDistance   float64 `yaml:"min_distance" json:"min_distance"`
}

// DefaultPlannerConfig returns the firmware-tuned thresholds.
func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		MinTurn:       DefaultMinTurn,
		DeadbandRatio: DefaultDeadbandRatio,
		MinDistance:   DefaultMinDistance,
	}
}

// Validate checks the thresholds.
func (c *PlannerConfig) Validate() error {
	if c.MinTurn <= 0 || c.MinTurn >= math.Pi {
		return fmt.Errorf("min_turn must be in (0, π), got %v", c.MinTurn)
	}
	if c.DeadbandRatio < 0 || c.DeadbandRatio > 1 {
		return fmt.Errorf("deadband_ratio must be in [0, 1], got %v", c.DeadbandRatio)
	}
	if c.MinDistance < 0 {
		return fmt.Errorf("min_distance must be >= 0, got %v", c.MinDistance)
	}
	return nil
}

// Planner converts origin/target poses into a MoveCommand. It holds no
// state, so identical inputs always give identical output.
type Planner struct {
	cfg PlannerConfig
}

// NewPlanner creates a planner with the given thresholds.
func NewPlanner(cfg PlannerConfig) Planner {
	return Planner{cfg: cfg}
}

// Config returns the planner thresholds.
func (p Planner) Config() PlannerConfig {
	return p.cfg
}

// Plan computes the move from origin toward target for the given mode.
func (p Planner) Plan(origin, target Pose2D, goalHeading float64, mode FollowMode) (MoveCommand, error) {
	if !ValidHeading(origin.Heading) {
		return MoveCommand{}, &InvalidPoseError{Field: "origin", Heading: origin.Heading}
	}

	var distance, dx, dy float64
	if mode == PathFollow {
		dx = target.X - origin.X
		dy = target.Y - origin.Y
		distance = math.Hypot(dx, dy)
	}

	var heading float64
	switch {
	case distance > 0:
		// clamp guards acos against rounding just past ±1
		heading = math.Acos(math.Max(-1, math.Min(1, dx/distance)))
		if dy < 0 {
			heading = -heading
		}
	case mode == GoalSeek:
		if !ValidHeading(goalHeading) {
			return MoveCommand{}, &InvalidPoseError{Field: "goal", Heading: goalHeading}
		}
		heading = goalHeading
	default:
		if !ValidHeading(target.Heading) {
			return MoveCommand{}, &InvalidPoseError{Field: "target", Heading: target.Heading}
		}
		heading = target.Heading
	}

	rotation := NormalizeRotation(heading - origin.Heading)

	if distance > 0 && distance < p.cfg.MinDistance {
		distance = p.cfg.MinDistance
	}

	return MoveCommand{
		Rotation:    p.quantize(rotation),
		Translation: distance,
		Heading:     heading,
		Mode:        mode,
	}, nil
}

// quantize applies the deadband and staircases small rotations up to
// MinTurn, since the firmware drops or botches anything shorter.
func (p Planner) quantize(r float64) float64 {
	minTurn := p.cfg.MinTurn
	band := minTurn * p.cfg.DeadbandRatio
	switch {
	case r > -band && r < band:
		return 0
	case r >= band && r < minTurn:
		return minTurn
	case r <= -band && r > -minTurn:
		return -minTurn
	default:
		return r
	}
}
