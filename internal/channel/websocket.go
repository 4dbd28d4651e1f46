package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pkt.systems/codesync/schema"
)

const closeGrace = time.Second

// WebSocketTransport opens WebSocket streams at {api}/ws/{participant}.
type WebSocketTransport struct {
	api    string
	dialer *websocket.Dialer
	// IdleTimeout fails a read that sees no message for this long. Zero
	// disables the deadline.
	IdleTimeout time.Duration
}

// NewWebSocketTransport constructs a WebSocket transport for the given API base URL.
// http and https schemes are mapped to ws and wss.
func NewWebSocketTransport(api string, dialer *websocket.Dialer) (*WebSocketTransport, error) {
	parsed, err := url.Parse(strings.TrimRight(api, "/"))
	if err != nil {
		return nil, err
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("websocket transport: unsupported scheme %q", parsed.Scheme)
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketTransport{api: parsed.String(), dialer: dialer, IdleTimeout: DefaultIdleTimeout}, nil
}

// Open implements Transport.
func (t *WebSocketTransport) Open(ctx context.Context, id schema.ParticipantID) (Stream, error) {
	conn, resp, err := t.dialer.DialContext(ctx, t.api+"/ws/"+url.PathEscape(string(id)), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, fmt.Errorf("websocket handshake: http status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	conn.SetReadLimit(MaxFrameSize)
	return &wsStream{conn: conn, idle: t.IdleTimeout}, nil
}

type wsStream struct {
	conn *websocket.Conn
	idle time.Duration
	once sync.Once
}

// Next returns the next text message. Binary and control messages are skipped.
func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.idle > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idle))
		}
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrIdleTimeout
			}
			return nil, err
		}
		if kind == websocket.TextMessage {
			return data, nil
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.once.Do(func() {
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeGrace))
		err = s.conn.Close()
	})
	return err
}
