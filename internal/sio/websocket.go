package sio

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

// wsTransport is the preferred transport: one engine.io packet per websocket
// text message.
type wsTransport struct {
	conn *websocket.Conn
	hs   handshake
}

func dialWebsocket(ctx context.Context, base *url.URL) (*wsTransport, error) {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/socket.io/"
	q := u.Query()
	q.Set("EIO", "3")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("sio: websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("sio: websocket dial: %w", err)
	}

	t := &wsTransport{conn: conn}
	// First frame is the engine.io open packet with the session handshake.
	frame, err := t.read()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if len(frame) == 0 || frame[0] != engineOpen {
		conn.Close()
		return nil, fmt.Errorf("sio: expected open packet, got %q", frame)
	}
	if err := unmarshalHandshake(frame[1:], &t.hs); err != nil {
		conn.Close()
		return nil, err
	}
	return t, nil
}

func (t *wsTransport) name() string       { return "websocket" }
func (t *wsTransport) session() handshake { return t.hs }
func (t *wsTransport) close() error       { return t.conn.Close() }

func (t *wsTransport) read() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("sio: websocket read: %w", err)
	}
	return data, nil
}

func (t *wsTransport) write(frame []byte) error {
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("sio: websocket write: %w", err)
	}
	return nil
}
