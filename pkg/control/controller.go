package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teslashibe/go-arcbase/pkg/motor"
	"github.com/teslashibe/go-arcbase/pkg/nav"
)

// Mover executes one planned move, blocking until it completes.
type Mover interface {
	Execute(ctx context.Context, cmd nav.MoveCommand) error
	Phase() motor.Phase
}

// Shutdowner sends the firmware termination sequence.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// MoveRecord describes one executed (or rejected) move.
type MoveRecord struct {
	ID       string          `json:"id"`
	Started  time.Time       `json:"started"`
	Duration time.Duration   `json:"duration"`
	Origin   nav.Pose2D      `json:"origin"`
	Target   nav.Pose2D      `json:"target"`
	Command  nav.MoveCommand `json:"command"`
	Error    string          `json:"error,omitempty"`
}

// Status is the dashboard view of the controller.
type Status struct {
	State    nav.Snapshot    `json:"state"`
	Intent   nav.FollowMode  `json:"intent"`
	Phase    motor.Phase     `json:"phase"`
	NextMove time.Time       `json:"next_move"`
	LastMove *MoveRecord     `json:"last_move,omitempty"`
	Stats    ControllerStats `json:"stats"`
}

// ControllerStats contains loop counters.
type ControllerStats struct {
	Ticks    uint64 `json:"ticks"`
	Moves    uint64 `json:"moves"`
	Rejected uint64 `json:"rejected"`
	Timeouts uint64 `json:"timeouts"`
	Failed   uint64 `json:"failed"`
}

// Controller is the control loop. Event sources write into the shared
// nav.State; the loop reads it, plans, and executes one move at a time.
type Controller struct {
	cfg     Config
	state   *nav.State
	arbiter *nav.Arbiter
	planner nav.Planner
	mover   Mover
	driver  Shutdowner
	logger  *slog.Logger
	clock   func() time.Time

	mu       sync.RWMutex
	nextMove time.Time
	history  []MoveRecord
	stats    ControllerStats
	onMove   func(MoveRecord)
}

// New creates a controller.
func New(cfg Config, state *nav.State, mover Mover, driver Shutdowner, logger *slog.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		state:   state,
		arbiter: nav.NewArbiter(state, cfg.StalenessWindow),
		planner: nav.NewPlanner(cfg.Planner),
		mover:   mover,
		driver:  driver,
		logger:  logger,
		clock:   time.Now,
		history: make([]MoveRecord, 0, cfg.HistorySize),
	}, nil
}

// OnMove sets the callback invoked after every move attempt.
func (c *Controller) OnMove(callback func(MoveRecord)) {
	c.mu.Lock()
	c.onMove = callback
	c.mu.Unlock()
}

// Config returns the loop configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Run starts the control loop. It blocks until ctx is done or the motor
// link fails, then sends the firmware shutdown sequence exactly once.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	defer c.shutdown()

	c.logger.Info("control loop started",
		"tick", c.cfg.TickInterval,
		"move_interval", c.cfg.MoveInterval,
		"staleness_window", c.cfg.StalenessWindow,
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Tick(ctx, c.clock()); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Error("control loop stopped", "error", err)
				return err
			}
		}
	}
}

func (c *Controller) shutdown() {
	if c.driver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()
	if err := c.driver.Shutdown(ctx); err != nil {
		c.logger.Warn("firmware shutdown incomplete", "error", err)
	}
}

// Tick runs one loop iteration at time now. It returns an error only for
// failures that must reach a supervisor (a lost motor link); geometry and
// acknowledgment problems are logged and the loop goes back to waiting.
func (c *Controller) Tick(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	c.stats.Ticks++
	nextMove := c.nextMove
	c.mu.Unlock()

	if c.arbiter.Refresh(now) {
		c.logger.Info("path update stale, falling back", "window", c.arbiter.Window())
	}

	if now.Before(nextMove) {
		return nil
	}

	// authorization, mode and target all come from one state version
	snap := c.state.Snapshot()
	if !snap.Authorized {
		return nil
	}
	mode := c.arbiter.IntentFor(snap, now)

	rec := MoveRecord{
		ID:      uuid.NewString(),
		Started: now,
		Origin:  snap.Odom,
		Target:  snap.Target,
	}

	cmd, err := c.planner.Plan(snap.Odom, snap.Target, snap.GoalHeading, mode)
	if err != nil {
		rec.Command.Mode = mode
		rec.Error = err.Error()
		c.finish(rec, now, func(s *ControllerStats) { s.Rejected++ })
		if errors.Is(err, nav.ErrInvalidPose) {
			c.logger.Warn("move rejected", "move_id", rec.ID, "mode", mode, "error", err)
			return nil
		}
		return fmt.Errorf("plan move: %w", err)
	}
	rec.Command = cmd

	c.logger.Info("move",
		"move_id", rec.ID,
		"mode", mode,
		"origin", snap.Odom.String(),
		"target", snap.Target.String(),
		"rotation", cmd.Rotation,
		"distance", cmd.Translation,
	)

	start := c.clock()
	err = c.mover.Execute(ctx, cmd)
	rec.Duration = c.clock().Sub(start)
	c.arbiter.ConsumeFollow()

	switch {
	case err == nil:
		c.finish(rec, now, func(s *ControllerStats) { s.Moves++ })
		return nil

	case errors.Is(err, motor.ErrCommandTimeout):
		rec.Error = err.Error()
		c.finish(rec, now, func(s *ControllerStats) { s.Timeouts++ })
		c.logger.Warn("move aborted, firmware did not acknowledge stop", "move_id", rec.ID, "error", err)
		return nil

	default:
		rec.Error = err.Error()
		c.finish(rec, now, func(s *ControllerStats) { s.Failed++ })
		return fmt.Errorf("execute move %s: %w", rec.ID, err)
	}
}

// finish records a move attempt and schedules the next one.
func (c *Controller) finish(rec MoveRecord, now time.Time, count func(*ControllerStats)) {
	c.mu.Lock()
	c.nextMove = now.Add(c.cfg.MoveInterval)
	count(&c.stats)
	if c.cfg.HistorySize > 0 {
		if len(c.history) >= c.cfg.HistorySize {
			c.history = c.history[1:]
		}
		c.history = append(c.history, rec)
	}
	onMove := c.onMove
	c.mu.Unlock()

	if onMove != nil {
		onMove(rec)
	}
}

// History returns the recent move records, oldest first.
func (c *Controller) History() []MoveRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]MoveRecord(nil), c.history...)
}

// Status returns the current controller status.
func (c *Controller) Status() Status {
	now := c.clock()

	c.mu.RLock()
	st := Status{
		NextMove: c.nextMove,
		Stats:    c.stats,
	}
	if n := len(c.history); n > 0 {
		last := c.history[n-1]
		st.LastMove = &last
	}
	c.mu.RUnlock()

	st.State = c.state.Snapshot()
	st.Intent = c.arbiter.IntentFor(st.State, now)
	st.Phase = c.mover.Phase()
	return st
}
