package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	outboxSize   = 16
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Client is one browser connection, subscribed to its family's messages.
type Client struct {
	hub      *Hub
	conn     *ws.Conn
	familyID int64
	outbox   chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, familyID int64) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		familyID: familyID,
		outbox:   make(chan []byte, outboxSize),
	}
}

// Run serves the connection until either side closes it.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.deliver(ctx)
	c.drainReads(ctx)
}

// drainReads ignores client frames; the feed is one-way. A read error
// means the peer went away.
func (c *Client) drainReads(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// deliver writes queued messages and keeps the connection alive with pings.
func (c *Client) deliver(ctx context.Context) {
	keepalive := time.NewTicker(pingInterval)
	defer keepalive.Stop()

	for {
		select {
		case payload, open := <-c.outbox:
			if !open {
				return
			}
			if err := c.write(ctx, payload); err != nil {
				return
			}
		case <-keepalive.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, payload)
}
