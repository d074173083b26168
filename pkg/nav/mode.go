package nav

// FollowMode is the intent the control loop acts on for one move.
type FollowMode int

const (
	// Idle turns to face the last target heading without translating.
	Idle FollowMode = iota
	// PathFollow drives toward the last pose of a fresh planner path.
	PathFollow
	// GoalSeek turns in place to face the goal heading.
	GoalSeek
)

// String implements fmt.Stringer.
func (m FollowMode) String() string {
	switch m {
	case PathFollow:
		return "path_follow"
	case GoalSeek:
		return "goal_seek"
	default:
		return "idle"
	}
}

// MarshalText lets FollowMode render as a string in JSON.
func (m FollowMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// StatusActive is the goal-status code that authorizes movement
// (actionlib "ACTIVE": the goal was accepted and is being processed).
const StatusActive = 1

// Sink receives pose and status events from any inbound source.
type Sink interface {
	UpdateOdom(p Pose2D)
	UpdatePathTarget(poses []Pose2D)
	UpdateGoal(heading float64)
	ReportStatus(codes []int)
}

var _ Sink = (*State)(nil)
