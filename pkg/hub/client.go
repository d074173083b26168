package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// dashboards only listen, so anything larger is a misbehaving peer
	maxInbound = 4 * 1024
)

// Client is one dashboard connection attached to a Hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// NewClient attaches conn to hub. A client created after the hub has
// stopped starts closed.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	c := &Client{hub: hub, conn: conn, send: make(chan Message, sendBuffer)}
	select {
	case hub.register <- c:
	case <-hub.done:
		close(c.send)
	}
	return c
}

// Run serves the connection until the peer goes away or the hub stops.
// It blocks, so call it from the websocket handler.
func (c *Client) Run() {
	go c.deliver()
	c.listen()
}

// listen consumes inbound frames to track liveness. When it returns the
// client is detached from the hub.
func (c *Client) listen() {
	defer c.detach()

	c.conn.SetReadLimit(maxInbound)
	c.extend()
	c.conn.SetPongHandler(func(string) error {
		c.extend()
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) extend() {
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
}

func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// deliver owns every write on the connection: queued messages and pings.
// A closed send channel means the hub dropped us.
func (c *Client) deliver() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var err error
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, nil)
				return
			}
			err = c.write(websocket.TextMessage, msg.Data)
		case <-ping.C:
			err = c.write(websocket.PingMessage, nil)
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(kind, data)
}
