package motor

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-arcbase/pkg/nav"
)

// Driver is the command surface the Executor needs from the firmware link.
type Driver interface {
	SetSpeed(ctx context.Context, speed int) error
	Move(ctx context.Context, dir Direction) error
	// Stop halts the motors and blocks until the firmware acknowledges.
	Stop(ctx context.Context) error
	// Shutdown sends the one-time termination sequence.
	Shutdown(ctx context.Context) error
}

// Phase is the executor sub-state.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRotating
	PhaseStopping
	PhaseTranslating
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case PhaseRotating:
		return "rotating"
	case PhaseStopping:
		return "stopping"
	case PhaseTranslating:
		return "translating"
	default:
		return "idle"
	}
}

// MarshalText renders Phase as a string in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Executor runs one MoveCommand at a time as timed open-loop segments:
// Idle → Rotating → Stopping → Translating → Stopping → Idle.
// A started move always runs to completion; new targets wait for the next
// move. Only context cancellation (process shutdown) cuts a move short,
// and it still stops the motors.
type Executor struct {
	driver Driver
	cfg    Config
	logger *slog.Logger

	// sleep blocks for the open-loop segment duration
	sleep func(ctx context.Context, d time.Duration) error

	phase atomic.Int32
	busy  atomic.Bool

	executed atomic.Int64
	aborted  atomic.Int64
}

// NewExecutor creates an executor on top of a driver.
func NewExecutor(driver Driver, cfg Config, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		driver: driver,
		cfg:    cfg,
		logger: logger,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RotationDuration is how long the base turns at TurnSpeed to cover rad.
func (e *Executor) RotationDuration(rad float64) time.Duration {
	return seconds(math.Abs(rad) / (2 * math.Pi) * e.cfg.SecondsPerRotation)
}

// TranslationDuration is how long the base drives at LinearSpeed to cover m.
func (e *Executor) TranslationDuration(m float64) time.Duration {
	return seconds(m * e.cfg.SecondsPerMeter)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Phase returns the current sub-state.
func (e *Executor) Phase() Phase {
	return Phase(e.phase.Load())
}

func (e *Executor) setPhase(p Phase) {
	e.phase.Store(int32(p))
}

// Busy reports whether a move is in flight.
func (e *Executor) Busy() bool {
	return e.busy.Load()
}

// Execute runs cmd: rotation first, fully stopped and acknowledged, then
// translation. Zero components are skipped. A stop acknowledgment timeout
// aborts the rest of the move and is returned as *CommandTimeoutError.
func (e *Executor) Execute(ctx context.Context, cmd nav.MoveCommand) error {
	if !e.busy.CompareAndSwap(false, true) {
		return ErrMoveInFlight
	}
	defer e.busy.Store(false)
	defer e.setPhase(PhaseIdle)

	if cmd.Rotation != 0 {
		dir := Left
		if cmd.Rotation < 0 {
			dir = Right
		}
		d := e.RotationDuration(cmd.Rotation)
		if err := e.segment(ctx, PhaseRotating, e.cfg.TurnSpeed, dir, d); err != nil {
			e.aborted.Add(1)
			return err
		}
	}

	if cmd.Translation > 0 {
		d := e.TranslationDuration(cmd.Translation)
		if err := e.segment(ctx, PhaseTranslating, e.cfg.LinearSpeed, Forward, d); err != nil {
			e.aborted.Add(1)
			return err
		}
	}

	e.executed.Add(1)
	return nil
}

func (e *Executor) segment(ctx context.Context, phase Phase, speed int, dir Direction, d time.Duration) error {
	e.setPhase(phase)
	e.logger.Debug("segment start", "phase", phase, "direction", dir, "speed", speed, "duration", d)

	if err := e.driver.SetSpeed(ctx, speed); err != nil {
		return err
	}
	if err := e.driver.Move(ctx, dir); err != nil {
		return err
	}

	sleepErr := e.sleep(ctx, d)

	e.setPhase(PhaseStopping)
	if sleepErr != nil {
		// shutting down mid-segment: the motors must still stop
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.stopGrace())
		defer cancel()
		if err := e.driver.Stop(stopCtx); err != nil {
			e.logger.Warn("stop after cancellation failed", "error", err)
		}
		return sleepErr
	}
	return e.driver.Stop(ctx)
}

func (e *Executor) stopGrace() time.Duration {
	if e.cfg.AckTimeout > 0 {
		return e.cfg.AckTimeout
	}
	return 2 * time.Second
}

// Stats returns executor counters.
func (e *Executor) Stats() ExecutorStats {
	return ExecutorStats{
		Phase:    e.Phase(),
		Busy:     e.Busy(),
		Executed: e.executed.Load(),
		Aborted:  e.aborted.Load(),
	}
}

// ExecutorStats contains executor counters.
type ExecutorStats struct {
	Phase    Phase `json:"phase"`
	Busy     bool  `json:"busy"`
	Executed int64 `json:"executed"`
	Aborted  int64 `json:"aborted"`
}
