package rosbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-arcbase/pkg/nav"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("rosbridge: client closed")

// Subscription is one active topic subscription.
type Subscription struct {
	ID    string `json:"id"`
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// Client forwards navigation topics from rosbridge into a nav.Sink.
type Client struct {
	cfg    Config
	sink   nav.Sink
	logger *slog.Logger

	mu     sync.RWMutex
	conn   *websocket.Conn
	subs   map[string]Subscription // keyed by topic
	closed bool

	writeMu sync.Mutex

	messagesReceived atomic.Int64
	messagesDropped  atomic.Int64
	decodeErrors     atomic.Int64
	reconnectCount   atomic.Int64
}

// New creates a new rosbridge client.
// Call Run to connect and start forwarding.
func New(cfg Config, sink nav.Sink, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		subs:   make(map[string]Subscription),
	}, nil
}

// Connect dials rosbridge and subscribes to every configured topic.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	closed, connected := c.closed, c.conn != nil
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	if connected {
		return nil
	}

	c.logger.Info("connecting to rosbridge", "url", c.cfg.URL)

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to rosbridge: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.subs = make(map[string]Subscription)
	c.mu.Unlock()

	for _, t := range c.topics() {
		if err := c.subscribe(t.Topic, t.Type); err != nil {
			c.dropConn(conn)
			return err
		}
	}

	c.logger.Info("connected to rosbridge", "url", c.cfg.URL, "topics", len(c.topics()))
	return nil
}

func (c *Client) topics() []Subscription {
	return []Subscription{
		{Topic: c.cfg.Topics.LocalPlan, Type: TypePath},
		{Topic: c.cfg.Topics.Odom, Type: TypeOdometry},
		{Topic: c.cfg.Topics.Goal, Type: TypePoseStamped},
		{Topic: c.cfg.Topics.GoalStatus, Type: TypeGoalStatusArray},
	}
}

func (c *Client) subscribe(topic, msgType string) error {
	sub := Subscription{
		ID:    "subscribe:" + topic + ":" + uuid.NewString(),
		Topic: topic,
		Type:  msgType,
	}
	op := Operation{
		Op:           OpSubscribe,
		ID:           sub.ID,
		Topic:        topic,
		Type:         msgType,
		ThrottleRate: c.cfg.ThrottleRate,
		QueueLength:  1,
	}
	if err := c.send(op); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	c.mu.Lock()
	c.subs[topic] = sub
	c.mu.Unlock()

	c.logger.Debug("subscribed to topic", "topic", topic, "type", msgType, "id", sub.ID)
	return nil
}

func (c *Client) send(op Operation) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(op)
}

// ConnectWithRetry connects with automatic retry on failure.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrClosed) {
			return err
		}

		attempts++
		c.reconnectCount.Add(1)

		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			return fmt.Errorf("max reconnect attempts (%d) reached: %w", c.cfg.MaxReconnectAttempts, err)
		}

		c.logger.Warn("rosbridge connection failed, retrying",
			"error", err,
			"attempt", attempts,
			"retry_in", c.cfg.ReconnectInterval,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

// Run connects and forwards messages until ctx is done or Close is called.
// A dropped connection is re-established; only ctx, Close, or exhausted
// reconnect attempts end the loop.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	for {
		if err := c.ConnectWithRetry(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			continue
		}

		err := c.readLoop(conn)
		c.dropConn(conn)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.isClosed() {
			return nil
		}
		c.reconnectCount.Add(1)
		c.logger.Warn("rosbridge connection lost, reconnecting", "error", err)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handle(data)
	}
}

// handle decodes one rosbridge frame and forwards it to the sink.
func (c *Client) handle(data []byte) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		c.decodeErrors.Add(1)
		c.logger.Debug("bad rosbridge frame", "error", err)
		return
	}

	switch op.Op {
	case OpPublish:
	case OpStatus:
		var text string
		_ = json.Unmarshal(op.Msg, &text)
		c.logger.Warn("rosbridge status", "level", op.Level, "id", op.ID, "msg", text)
		return
	default:
		c.messagesDropped.Add(1)
		return
	}

	c.messagesReceived.Add(1)
	if err := c.dispatch(op.Topic, op.Msg); err != nil {
		c.decodeErrors.Add(1)
		c.logger.Debug("failed to decode message", "topic", op.Topic, "error", err)
	}
}

func (c *Client) dispatch(topic string, msg json.RawMessage) error {
	t := c.cfg.Topics
	switch topic {
	case t.LocalPlan:
		var path Path
		if err := json.Unmarshal(msg, &path); err != nil {
			return err
		}
		c.sink.UpdatePathTarget(path.Poses2D())

	case t.Odom:
		var odom Odometry
		if err := json.Unmarshal(msg, &odom); err != nil {
			return err
		}
		c.sink.UpdateOdom(odom.Pose.Pose.Pose2D())

	case t.Goal:
		var goal PoseStamped
		if err := json.Unmarshal(msg, &goal); err != nil {
			return err
		}
		c.sink.UpdateGoal(goal.Pose.Pose2D().Heading)

	case t.GoalStatus:
		var status GoalStatusArray
		if err := json.Unmarshal(msg, &status); err != nil {
			return err
		}
		c.sink.ReportStatus(status.Codes())

	default:
		c.messagesDropped.Add(1)
	}
	return nil
}

func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Subscriptions returns the active subscriptions.
func (c *Client) Subscriptions() []Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	return out
}

// Close unsubscribes and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	subs := make([]Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	for _, s := range subs {
		_ = conn.WriteJSON(Operation{Op: OpUnsubscribe, ID: s.ID, Topic: s.Topic})
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.logger.Info("rosbridge client closed")
	return conn.Close()
}

// Stats returns client statistics.
func (c *Client) Stats() ClientStats {
	c.mu.RLock()
	connected := c.conn != nil && !c.closed
	c.mu.RUnlock()

	return ClientStats{
		Connected:        connected,
		Subscriptions:    c.Subscriptions(),
		MessagesReceived: c.messagesReceived.Load(),
		MessagesDropped:  c.messagesDropped.Load(),
		DecodeErrors:     c.decodeErrors.Load(),
		ReconnectCount:   c.reconnectCount.Load(),
	}
}

// ClientStats contains client statistics.
type ClientStats struct {
	Connected        bool           `json:"connected"`
	Subscriptions    []Subscription `json:"subscriptions"`
	MessagesReceived int64          `json:"messages_received"`
	MessagesDropped  int64          `json:"messages_dropped"`
	DecodeErrors     int64          `json:"decode_errors"`
	ReconnectCount   int64          `json:"reconnect_count"`
}
