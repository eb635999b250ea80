package realtime

import (
	"context"
	"fmt"
	"net/url"
	"path"

	ws "github.com/coder/websocket"

	"github.com/trackerhq/tracker-core/internal/event"
)

// channelConn is the minimal transport surface the supervisor needs; the
// real implementation wraps a WebSocket, tests script their own.
type channelConn interface {
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

type dialFunc func(ctx context.Context, addr string) (channelConn, error)

type wsConn struct {
	conn *ws.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Close() error {
	return c.conn.Close(ws.StatusNormalClosure, "")
}

func wsDial(ctx context.Context, addr string) (channelConn, error) {
	conn, _, err := ws.Dial(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// channelURL builds the event channel address: the streaming variant of the
// API scheme, household id in the path, token URL-encoded in the query
// string. The handshake cannot carry custom headers, so the query string is
// the only place the credential can go.
func channelURL(baseURL, syncPath, householdID, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = path.Join(u.Path, syncPath, householdID)

	q := url.Values{}
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// readLoop decodes frames until the connection fails or ctx is canceled.
// Malformed frames and unknown event kinds are dropped without effect: a
// lost invalidation degrades to "stale until the next event", never a crash.
func (s *Supervisor) readLoop(ctx context.Context, conn channelConn) error {
	for {
		raw, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		s.handleMessage(ctx, raw)
	}
}

func (s *Supervisor) handleMessage(ctx context.Context, raw []byte) {
	msg, ok := event.Decode(raw)
	if !ok {
		s.logger.Debug("dropping malformed frame", "size", len(raw))
		return
	}

	keys := event.Invalidations(msg.Event)
	if keys == nil {
		// Server-side taxonomy may be ahead of this client. Ignore and
		// keep reading.
		s.logger.Debug("ignoring unknown event kind", "event", string(msg.Event))
		return
	}
	if len(keys) == 0 {
		// Protocol frame (connected/ping/ack), nothing to invalidate.
		return
	}

	s.inv.Invalidate(ctx, keys...)
	s.logger.Debug("invalidated cache keys", "event", string(msg.Event), "keys", len(keys))
}
