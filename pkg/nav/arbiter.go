package nav

import "time"

// DefaultStalenessWindow is how long a path update stays authoritative.
const DefaultStalenessWindow = 3 * time.Second

// ReportStatus applies a goal-status report. Only the last entry counts and
// authorization is recomputed from scratch on every report.
func (s *State) ReportStatus(codes []int) {
	authorized := len(codes) > 0 && codes[len(codes)-1] == StatusActive

	s.mu.Lock()
	s.authorized = authorized
	s.statusReports++
	s.mu.Unlock()
}

// Arbiter centralizes the follow-mode transitions on top of State.
type Arbiter struct {
	state  *State
	window time.Duration
}

// NewArbiter creates an arbiter. A non-positive window uses
// DefaultStalenessWindow.
func NewArbiter(state *State, window time.Duration) *Arbiter {
	if window <= 0 {
		window = DefaultStalenessWindow
	}
	return &Arbiter{state: state, window: window}
}

// Window returns the staleness window in use.
func (a *Arbiter) Window() time.Duration {
	return a.window
}

// Authorized reports whether the latest status report allows a move.
func (a *Arbiter) Authorized() bool {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.authorized
}

func (a *Arbiter) stale(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) > a.window
}

// CurrentIntent derives the mode for a move starting at now from the live
// state. Callers that also need the target should take one Snapshot and use
// IntentFor instead.
func (a *Arbiter) CurrentIntent(now time.Time) FollowMode {
	return a.IntentFor(a.state.Snapshot(), now)
}

// IntentFor derives the mode from a snapshot, so the mode and the target it
// applies to always come from the same state version.
// PathFollow is never selected once the last path update is stale.
func (a *Arbiter) IntentFor(s Snapshot, now time.Time) FollowMode {
	stale := a.stale(s.LastPath, now)
	switch {
	case s.Follow && !stale:
		return PathFollow
	case stale && s.GoalActive:
		return GoalSeek
	default:
		return Idle
	}
}

// Refresh runs the per-tick staleness check and marks the seek fallback.
// It returns true when the fallback flag was newly raised.
func (a *Arbiter) Refresh(now time.Time) bool {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	if !a.stale(a.state.lastPath, now) || a.state.fallback {
		return false
	}
	a.state.fallback = true
	return true
}

// ConsumeFollow clears the follow flag once a move has executed, so one
// path update authorizes at most one move.
func (a *Arbiter) ConsumeFollow() {
	a.state.mu.Lock()
	a.state.follow = false
	a.state.mu.Unlock()
}
