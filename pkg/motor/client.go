package motor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Direction is a "move" argument understood by the firmware.
type Direction string

const (
	Left    Direction = "left"
	Right   Direction = "right"
	Forward Direction = "forward"
	Halt    Direction = "stop"
)

// Shutdown command lines, sent once on termination.
const (
	cmdOdometryStop    = "odometrystop"
	cmdNoStopBetween   = "state stopbetweenmoves false"
	lineBufferCapacity = 256
)

// Client speaks the firmware text protocol over a persistent stream.
// A single reader goroutine scans incoming lines; writes are serialized.
type Client struct {
	cfg    Config
	logger *slog.Logger
	conn   io.ReadWriteCloser

	writeMu sync.Mutex
	lines   chan string
	done    chan struct{}

	errMu   sync.Mutex
	readErr error

	closed       atomic.Bool
	closeOnce    sync.Once
	shutdownOnce sync.Once
	shutdownErr  error

	// Stats
	linesSent     atomic.Int64
	linesReceived atomic.Int64
	acks          atomic.Int64
	timeouts      atomic.Int64
}

// NewClient wraps an open stream and starts reading from it.
func NewClient(conn io.ReadWriteCloser, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		conn:   conn,
		lines:  make(chan string, lineBufferCapacity),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	defer close(c.done)

	scanner := bufio.NewScanner(c.conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.linesReceived.Add(1)
		c.logger.Debug("firmware line", "line", line)
		c.push(line)
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.errMu.Lock()
	c.readErr = err
	c.errMu.Unlock()

	if !c.closed.Load() {
		c.logger.Warn("firmware stream ended", "error", err)
	}
}

// push queues a line, dropping the oldest when nobody is waiting.
func (c *Client) push(line string) {
	select {
	case c.lines <- line:
		return
	default:
	}
	select {
	case <-c.lines:
	default:
	}
	select {
	case c.lines <- line:
	default:
	}
}

// disconnectedErr reports the stream loss, or nil while it is healthy.
func (c *Client) disconnectedErr() error {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return fmt.Errorf("%w: %w", ErrDisconnected, c.readErr)
}

// Send writes one command line.
func (c *Client) Send(ctx context.Context, line string) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.disconnectedErr(); err != nil {
		return &LinkError{Op: line, Err: err}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return &LinkError{Op: line, Err: fmt.Errorf("%w: %w", ErrDisconnected, err)}
	}
	c.linesSent.Add(1)
	c.logger.Debug("firmware command", "line", line)
	return nil
}

// SetSpeed sends "speed <n>".
func (c *Client) SetSpeed(ctx context.Context, speed int) error {
	return c.Send(ctx, fmt.Sprintf("speed %d", speed))
}

// Move sends "move <direction>".
func (c *Client) Move(ctx context.Context, dir Direction) error {
	return c.Send(ctx, "move "+string(dir))
}

// Stop sends "move stop" and blocks until the firmware confirms with the
// ack marker, the ack timeout expires, or the stream is lost.
func (c *Client) Stop(ctx context.Context) error {
	c.drain()
	if err := c.Move(ctx, Halt); err != nil {
		return err
	}
	return c.awaitAck(ctx, "move stop")
}

// drain discards lines received before a new stop so a stale ack cannot
// satisfy the next wait.
func (c *Client) drain() {
	for {
		select {
		case <-c.lines:
		default:
			return
		}
	}
}

func (c *Client) awaitAck(ctx context.Context, command string) error {
	var timeout <-chan time.Time
	if c.cfg.AckTimeout > 0 {
		timer := time.NewTimer(c.cfg.AckTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case line := <-c.lines:
			if c.isAck(line) {
				c.acks.Add(1)
				return nil
			}

		case <-c.done:
			// the reader may have queued the ack right before the stream ended
			for {
				select {
				case line := <-c.lines:
					if c.isAck(line) {
						c.acks.Add(1)
						return nil
					}
				default:
					return &LinkError{Op: command, Err: c.disconnectedErr()}
				}
			}

		case <-timeout:
			c.timeouts.Add(1)
			return &CommandTimeoutError{
				Command: command,
				Marker:  c.cfg.AckMarker,
				Timeout: c.cfg.AckTimeout,
			}
		}
	}
}

func (c *Client) isAck(line string) bool {
	return strings.Contains(line, c.cfg.AckMarker)
}

// Shutdown stops odometry streaming, disables stop-between-moves and stops
// the motors. The sequence is sent once; later calls return the first result.
func (c *Client) Shutdown(ctx context.Context) error {
	c.shutdownOnce.Do(func() {
		var errs []error
		for _, line := range []string{cmdOdometryStop, cmdNoStopBetween, "move " + string(Halt)} {
			if err := c.Send(ctx, line); err != nil {
				errs = append(errs, err)
			}
		}
		c.shutdownErr = errors.Join(errs...)
		c.logger.Info("firmware shutdown sequence sent", "error", c.shutdownErr)
	})
	return c.shutdownErr
}

// Done is closed when the firmware stream ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the underlying stream.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = c.conn.Close()
	})
	return err
}

// Stats returns link statistics.
func (c *Client) Stats() LinkStats {
	return LinkStats{
		Connected:     !c.closed.Load() && c.disconnectedErr() == nil,
		LinesSent:     c.linesSent.Load(),
		LinesReceived: c.linesReceived.Load(),
		Acks:          c.acks.Load(),
		AckTimeouts:   c.timeouts.Load(),
	}
}

// LinkStats contains firmware link statistics.
type LinkStats struct {
	Connected     bool  `json:"connected"`
	LinesSent     int64 `json:"lines_sent"`
	LinesReceived int64 `json:"lines_received"`
	Acks          int64 `json:"acks"`
	AckTimeouts   int64 `json:"ack_timeouts"`
}

var _ Driver = (*Client)(nil)
