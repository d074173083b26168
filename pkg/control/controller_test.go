package control

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/teslashibe/go-arcbase/pkg/motor"
	"github.com/teslashibe/go-arcbase/pkg/nav"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// mockMover records executed commands
type mockMover struct {
	mu   sync.Mutex
	cmds []nav.MoveCommand
	err  error
}

func (m *mockMover) Execute(_ context.Context, cmd nav.MoveCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cmds = append(m.cmds, cmd)
	return m.err
}

func (m *mockMover) Phase() motor.Phase {
	return motor.PhaseIdle
}

func (m *mockMover) executed() []nav.MoveCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]nav.MoveCommand(nil), m.cmds...)
}

// mockShutdown counts shutdown calls
type mockShutdown struct {
	mu    sync.Mutex
	calls int
}

func (m *mockShutdown) Shutdown(context.Context) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return nil
}

func (m *mockShutdown) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixture struct {
	now   time.Time
	state *nav.State
	mover *mockMover
	down  *mockShutdown
	ctrl  *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		mover: &mockMover{},
		down:  &mockShutdown{},
	}
	f.state = nav.NewState(func() time.Time { return f.now })

	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	ctrl, err := New(cfg, f.state, f.mover, f.down, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctrl.clock = func() time.Time { return f.now }
	f.ctrl = ctrl
	return f
}

func (f *fixture) tick(t *testing.T) {
	t.Helper()
	if err := f.ctrl.Tick(context.Background(), f.now); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
}

func TestTick_NotAuthorizedNeverMoves(t *testing.T) {
	f := newFixture(t)
	f.state.ReportStatus([]int{3})
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 1}})

	f.tick(t)
	f.now = f.now.Add(5 * time.Second) // stale as well
	f.tick(t)

	if got := f.mover.executed(); len(got) != 0 {
		t.Errorf("expected no moves without authorization, got %v", got)
	}
}

func TestTick_PathFollowMove(t *testing.T) {
	f := newFixture(t)
	f.state.ReportStatus([]int{1})
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 0.5}, {X: 1, Heading: 0.4}})

	f.tick(t)

	cmds := f.mover.executed()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 move, got %d", len(cmds))
	}
	if cmds[0].Mode != nav.PathFollow {
		t.Errorf("Mode: got %v, want PathFollow", cmds[0].Mode)
	}
	if !floatEquals(cmds[0].Translation, 1.0) || cmds[0].Rotation != 0 {
		t.Errorf("Command: got %+v, want straight 1 m", cmds[0])
	}
	if f.state.Snapshot().Follow {
		t.Error("follow flag should be consumed after the move")
	}
}

func TestTick_SpacesMovesByInterval(t *testing.T) {
	f := newFixture(t)
	f.state.ReportStatus([]int{1})
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 1}})
	f.tick(t)

	f.now = f.now.Add(time.Second)
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 2}})
	f.tick(t)
	if n := len(f.mover.executed()); n != 1 {
		t.Fatalf("move ran before MoveInterval elapsed: %d moves", n)
	}

	f.now = f.now.Add(500 * time.Millisecond)
	f.tick(t)
	if n := len(f.mover.executed()); n != 2 {
		t.Fatalf("expected second move at MoveInterval, got %d moves", n)
	}
}

func TestTick_IdleTurnsToTargetHeading(t *testing.T) {
	f := newFixture(t)
	f.state.ReportStatus([]int{1})
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 1, Heading: 0.9}})
	f.tick(t)

	// no new path: next move only aligns with the target heading
	f.now = f.now.Add(1500 * time.Millisecond)
	f.tick(t)

	cmds := f.mover.executed()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 moves, got %d", len(cmds))
	}
	if cmds[1].Mode != nav.Idle || cmds[1].Translation != 0 || !floatEquals(cmds[1].Rotation, 0.9) {
		t.Errorf("second move: got %+v, want idle rotation 0.9", cmds[1])
	}
}

func TestTick_GoalSeekFallback(t *testing.T) {
	f := newFixture(t)
	f.state.ReportStatus([]int{1})
	f.state.UpdateOdom(nav.Pose2D{X: 3, Y: 3, Heading: 0.95})
	f.state.UpdateGoal(1.0)

	f.tick(t)

	cmds := f.mover.executed()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 move, got %d", len(cmds))
	}
	if cmds[0].Mode != nav.GoalSeek {
		t.Errorf("Mode: got %v, want GoalSeek", cmds[0].Mode)
	}
	if cmds[0].Translation != 0 || cmds[0].Rotation != nav.DefaultMinTurn {
		t.Errorf("Command: got %+v, want in-place MinTurn", cmds[0])
	}
	if !f.state.Snapshot().SeekFallback {
		t.Error("SeekFallback should be marked")
	}
}

func TestTick_InvalidPoseIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.state.ReportStatus([]int{1})
	f.state.UpdateOdom(nav.Pose2D{Heading: 7})
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 1}})

	f.tick(t)

	if n := len(f.mover.executed()); n != 0 {
		t.Errorf("invalid pose should not execute, got %d moves", n)
	}
	st := f.ctrl.Status()
	if st.Stats.Rejected != 1 || st.LastMove == nil || st.LastMove.Error == "" {
		t.Errorf("Status: got %+v, want one rejected move", st)
	}
	if !st.NextMove.Equal(f.now.Add(1500 * time.Millisecond)) {
		t.Errorf("NextMove: got %v", st.NextMove)
	}
}

func TestTick_AckTimeoutReturnsToWaiting(t *testing.T) {
	f := newFixture(t)
	f.mover.err = &motor.CommandTimeoutError{Command: "move stop", Marker: "direction stop", Timeout: time.Second}
	f.state.ReportStatus([]int{1})
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 1}})

	f.tick(t)

	if f.ctrl.Status().Stats.Timeouts != 1 {
		t.Errorf("Timeouts: got %d, want 1", f.ctrl.Status().Stats.Timeouts)
	}
}

func TestTick_DisconnectPropagates(t *testing.T) {
	f := newFixture(t)
	f.mover.err = &motor.LinkError{Op: "move left", Err: motor.ErrDisconnected}
	f.state.ReportStatus([]int{1})
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 1}})

	err := f.ctrl.Tick(context.Background(), f.now)
	if !errors.Is(err, motor.ErrDisconnected) {
		t.Fatalf("Tick() error = %v, want ErrDisconnected", err)
	}

	stats := f.ctrl.Status().Stats
	if stats.Moves != 0 || stats.Failed != 1 {
		t.Errorf("Stats: got moves=%d failed=%d, want 0 and 1", stats.Moves, stats.Failed)
	}
}

func TestTick_ModeAndTargetFromOneState(t *testing.T) {
	f := newFixture(t)
	f.ctrl.cfg.MoveInterval = 0
	f.ctrl.cfg.HistorySize = 0
	f.state.ReportStatus([]int{1})

	var mismatched, followed int
	f.ctrl.OnMove(func(rec MoveRecord) {
		switch rec.Command.Mode {
		case nav.PathFollow:
			followed++
			if rec.Target.X != 5 {
				mismatched++
			}
		case nav.GoalSeek:
			if rec.Target.X != 0 {
				mismatched++
			}
		}
	})

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
			}
			f.state.UpdateGoal(0)
			f.state.UpdatePathTarget([]nav.Pose2D{{X: 5}})
		}
	}()

	for i := 0; i < 20000; i++ {
		f.tick(t)
	}
	close(stop)
	<-done

	if mismatched != 0 {
		t.Errorf("%d moves planned with a mode and target from different updates", mismatched)
	}
	if followed == 0 {
		t.Log("no PathFollow move observed; writer never won a race")
	}
}

func TestRun_ShutdownOnCancel(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if got := f.down.count(); got != 1 {
		t.Errorf("Shutdown calls: got %d, want 1", got)
	}
}

func TestRun_ShutdownOnLinkFailure(t *testing.T) {
	f := newFixture(t)
	f.mover.err = motor.ErrDisconnected
	f.state.ReportStatus([]int{1})
	f.state.UpdatePathTarget([]nav.Pose2D{{X: 1}})

	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, motor.ErrDisconnected) {
			t.Errorf("Run() error = %v, want ErrDisconnected", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after link failure")
	}
	if got := f.down.count(); got != 1 {
		t.Errorf("Shutdown calls: got %d, want 1", got)
	}
}

func TestHistory_Bounded(t *testing.T) {
	f := newFixture(t)
	f.ctrl.cfg.HistorySize = 3
	f.state.ReportStatus([]int{1})

	var seen int
	f.ctrl.OnMove(func(MoveRecord) { seen++ })

	for i := 0; i < 5; i++ {
		f.state.UpdatePathTarget([]nav.Pose2D{{X: float64(i + 1)}})
		f.tick(t)
		f.now = f.now.Add(1500 * time.Millisecond)
	}

	h := f.ctrl.History()
	if len(h) != 3 {
		t.Fatalf("History length: got %d, want 3", len(h))
	}
	if !floatEquals(h[2].Target.X, 5) {
		t.Errorf("newest record target: got %v, want X=5", h[2].Target)
	}
	if h[0].ID == h[1].ID {
		t.Error("move ids should be unique")
	}
	if seen != 5 {
		t.Errorf("OnMove calls: got %d, want 5", seen)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
	if cfg.MoveInterval != 1500*time.Millisecond {
		t.Errorf("MoveInterval: got %v, want 1.5s", cfg.MoveInterval)
	}
	if cfg.StalenessWindow != 3*time.Second {
		t.Errorf("StalenessWindow: got %v, want 3s", cfg.StalenessWindow)
	}

	bad := cfg
	bad.TickInterval = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for zero tick interval")
	}

	bad = cfg
	bad.Planner.MinTurn = -1
	if err := bad.Validate(); err == nil {
		t.Error("expected error for negative MinTurn")
	}
}
