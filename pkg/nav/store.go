package nav

import (
	"sync"
	"time"
)

// State is the shared navigation state. Event sources write to it through
// the Sink methods and the control loop reads consistent Snapshots.
// All fields are guarded by one mutex so a reader never sees a torn pose.
type State struct {
	clock func() time.Time

	mu          sync.RWMutex
	odom        Pose2D
	target      Pose2D
	goalHeading float64
	goalActive  bool
	lastPath    time.Time // zero means "immediately stale"
	follow      bool
	fallback    bool
	authorized  bool

	odomUpdates   uint64
	pathUpdates   uint64
	goalUpdates   uint64
	statusReports uint64
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	Odom         Pose2D    `json:"odom"`
	Target       Pose2D    `json:"target"`
	GoalHeading  float64   `json:"goal_heading"`
	GoalActive   bool      `json:"goal_active"`
	LastPath     time.Time `json:"last_path"`
	Follow       bool      `json:"follow"`
	SeekFallback bool      `json:"seek_fallback"`
	Authorized   bool      `json:"authorized"`

	OdomUpdates   uint64 `json:"odom_updates"`
	PathUpdates   uint64 `json:"path_updates"`
	GoalUpdates   uint64 `json:"goal_updates"`
	StatusReports uint64 `json:"status_reports"`
}

// NewState creates an empty state. A nil clock uses time.Now.
func NewState(clock func() time.Time) *State {
	if clock == nil {
		clock = time.Now
	}
	return &State{clock: clock}
}

// UpdateOdom overwrites the odometry pose.
func (s *State) UpdateOdom(p Pose2D) {
	s.mu.Lock()
	s.odom = p
	s.odomUpdates++
	s.mu.Unlock()
}

// UpdatePathTarget takes the last pose of a planner path as the new target
// and arms PathFollow. An empty path is ignored.
func (s *State) UpdatePathTarget(poses []Pose2D) {
	if len(poses) == 0 {
		return
	}
	last := poses[len(poses)-1]
	now := s.clock()

	s.mu.Lock()
	s.target = last
	s.lastPath = now
	s.follow = true
	s.fallback = false
	s.pathUpdates++
	s.mu.Unlock()
}

// UpdateGoal records a new goal heading. A goal only carries an orientation
// that is meaningful at the present location, so the target collapses onto
// the current odometry pose and the path timestamp becomes stale at once.
func (s *State) UpdateGoal(heading float64) {
	s.mu.Lock()
	s.goalHeading = heading
	s.goalActive = true
	s.target = s.odom
	s.lastPath = time.Time{}
	s.follow = true
	s.fallback = false
	s.goalUpdates++
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Odom:          s.odom,
		Target:        s.target,
		GoalHeading:   s.goalHeading,
		GoalActive:    s.goalActive,
		LastPath:      s.lastPath,
		Follow:        s.follow,
		SeekFallback:  s.fallback,
		Authorized:    s.authorized,
		OdomUpdates:   s.odomUpdates,
		PathUpdates:   s.pathUpdates,
		GoalUpdates:   s.goalUpdates,
		StatusReports: s.statusReports,
	}
}
