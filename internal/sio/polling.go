package sio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// pollTransport is the fallback transport: downstream packets arrive on a
// long-poll GET, upstream packets go out as POSTed payloads.
type pollTransport struct {
	base   url.URL
	sid    string
	hs     handshake
	client *http.Client
	ctx    context.Context
	queue  [][]byte
}

func dialPolling(ctx context.Context, base *url.URL) (*pollTransport, error) {
	u := *base
	u.Path = "/socket.io/"
	q := u.Query()
	q.Set("EIO", "3")
	q.Set("transport", "polling")
	u.RawQuery = q.Encode()

	t := &pollTransport{
		base: u,
		// No client timeout: long polls are held open by the server and are
		// cancelled through ctx instead.
		client: &http.Client{},
		ctx:    ctx,
	}
	packets, err := t.poll()
	if err != nil {
		return nil, err
	}
	if len(packets) == 0 || len(packets[0]) == 0 || packets[0][0] != engineOpen {
		return nil, fmt.Errorf("sio: polling handshake: unexpected payload")
	}
	if err := unmarshalHandshake(packets[0][1:], &t.hs); err != nil {
		return nil, err
	}
	t.sid = t.hs.SID
	t.queue = packets[1:]
	return t, nil
}

func (t *pollTransport) name() string       { return "polling" }
func (t *pollTransport) session() handshake { return t.hs }
func (t *pollTransport) close() error       { return nil }

func (t *pollTransport) read() ([]byte, error) {
	for len(t.queue) == 0 {
		packets, err := t.poll()
		if err != nil {
			return nil, err
		}
		t.queue = packets
	}
	frame := t.queue[0]
	t.queue = t.queue[1:]
	return frame, nil
}

func (t *pollTransport) write(frame []byte) error {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodPost, t.endpoint(), bytes.NewReader(encodePayload([][]byte{frame})))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sio: polling write: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sio: polling write status %d", resp.StatusCode)
	}
	return nil
}

func (t *pollTransport) poll() ([][]byte, error) {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, t.endpoint(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sio: poll: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("sio: poll status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("sio: poll body: %w", err)
	}
	return decodePayload(body)
}

// endpoint rebuilds the polling URL with the session id and a cache buster.
func (t *pollTransport) endpoint() string {
	u := t.base
	q := u.Query()
	if t.sid != "" {
		q.Set("sid", t.sid)
	}
	q.Set("t", strconv.FormatInt(time.Now().UnixNano(), 36))
	u.RawQuery = q.Encode()
	return u.String()
}

func unmarshalHandshake(data []byte, hs *handshake) error {
	if err := json.Unmarshal(data, hs); err != nil {
		return fmt.Errorf("sio: handshake: %w", err)
	}
	if hs.PingInterval <= 0 {
		hs.PingInterval = 25000
	}
	return nil
}
