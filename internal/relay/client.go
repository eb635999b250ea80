package relay

import (
	"context"
	"encoding/json"
	"time"

	ws "github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/trackerhq/tracker-core/internal/event"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
)

// Client represents one WebSocket connection inside a household room.
type Client struct {
	id        string
	household string
	hub       *Hub
	conn      *ws.Conn
	send      chan []byte
}

// NewClient creates a Client for the given household and connection.
func NewClient(hub *Hub, conn *ws.Conn, householdID string) *Client {
	return &Client{
		id:        uuid.NewString(),
		household: householdID,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}
}

// Run registers the client, sends the connected greeting, and pumps frames
// until the connection closes, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	c.enqueue(event.Message{
		Event: event.Connected,
		Data: map[string]any{
			"household_id":       c.household,
			"active_connections": c.hub.ActiveCount(c.household),
			"map_version":        event.MapVersion,
		},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump acknowledges client frames until the connection drops.
func (c *Client) readPump(ctx context.Context) {
	for {
		_, raw, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if msg, ok := event.Decode(raw); ok {
			c.enqueue(event.Message{
				Event: event.Ack,
				Data:  map[string]any{"received": string(msg.Event)},
			})
		}
	}
}

// writePump drains the send channel and emits a keep-alive ping frame on a
// fixed interval so idle connections are detectable.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				// Hub closed the channel — connection is done
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, frame); err != nil {
				return
			}
		case <-ticker.C:
			frame, err := json.Marshal(event.Message{Event: event.Ping, Data: map[string]any{}})
			if err != nil {
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, frame); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) enqueue(msg event.Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("marshal frame", "client", c.id, "error", err)
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}
