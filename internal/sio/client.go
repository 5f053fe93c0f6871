package sio

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the connection lifecycle as seen by the caller.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusReconnecting Status = "reconnecting"
	StatusClosed       Status = "closed"
)

type transport interface {
	name() string
	session() handshake
	read() ([]byte, error)
	write(frame []byte) error
	close() error
}

// Client is a Socket.IO client for one server. Connection loss is surfaced
// only as a status change; the client keeps redialing with capped backoff
// until Close. Emit is fire-and-forget: frames queued while disconnected are
// dropped.
type Client struct {
	base *url.URL
	log  zerolog.Logger

	mu       sync.Mutex
	handlers map[string]func(json.RawMessage)
	statusFn func(Status)
	status   Status

	sendq  chan []byte
	cancel context.CancelFunc
	done   chan struct{}
}

func New(rawURL string, log zerolog.Logger) (*Client, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("sio: parse url: %w", err)
	}
	return &Client{
		base:     base,
		log:      log,
		handlers: make(map[string]func(json.RawMessage)),
		status:   StatusClosed,
		sendq:    make(chan []byte, 64),
		done:     make(chan struct{}),
	}, nil
}

// On registers the handler for a named event. One handler per event: a second
// registration for the same name replaces the first.
func (c *Client) On(event string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = fn
}

// OnStatus registers the status observer (last registration wins).
func (c *Client) OnStatus(fn func(Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusFn = fn
}

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Emit queues an event for sending. No return value and no delivery
// guarantee; a full or disconnected queue drops the frame.
func (c *Client) Emit(event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("drop unencodable emit")
		return
	}
	select {
	case c.sendq <- frame:
	default:
		c.log.Warn().Str("event", event).Msg("send queue full, frame dropped")
	}
}

// Connect starts the connection manager. It returns immediately; readiness is
// observed through OnStatus.
func (c *Client) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(ctx)
}

// Close tears the connection down for good.
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	if c.status == s {
		c.mu.Unlock()
		return
	}
	c.status = s
	fn := c.statusFn
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)
	defer c.setStatus(StatusClosed)

	first := true
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if first {
			c.setStatus(StatusConnecting)
		} else {
			c.setStatus(StatusReconnecting)
		}

		tr, err := c.dial(ctx)
		if err != nil {
			attempt++
			wait := backoff(attempt)
			c.log.Warn().Err(err).Dur("retry_in", wait).Msg("dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}

		first = false
		attempt = 0
		c.log.Info().Str("transport", tr.name()).Str("sid", tr.session().SID).Msg("connected")
		c.setStatus(StatusOpen)
		c.serve(ctx, tr)
		tr.close()
	}
}

// dial tries the websocket transport first and falls back to long polling.
func (c *Client) dial(ctx context.Context) (transport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if tr, err := dialWebsocket(dialCtx, c.base); err == nil {
		return tr, nil
	} else {
		c.log.Debug().Err(err).Msg("websocket transport unavailable, trying polling")
	}
	// The polling transport keeps issuing requests after dial, so it gets the
	// long-lived context.
	return dialPolling(ctx, c.base)
}

// serve pumps one established transport until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, tr transport) {
	writeDone := make(chan struct{})
	readDone := make(chan struct{})

	go func() {
		defer close(writeDone)
		ping := time.NewTicker(time.Duration(tr.session().PingInterval) * time.Millisecond)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				// The transport read does not watch ctx; close it so the
				// read loop unblocks and serve can return.
				tr.close()
				return
			case <-readDone:
				return
			case <-ping.C:
				if err := tr.write([]byte{enginePing}); err != nil {
					return
				}
			case frame := <-c.sendq:
				if err := tr.write(frame); err != nil {
					c.log.Warn().Err(err).Msg("write failed")
					return
				}
			}
		}
	}()

	for {
		frame, err := tr.read()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("connection lost")
			}
			break
		}
		c.dispatch(frame, tr)
	}
	close(readDone)
	<-writeDone
}

func (c *Client) dispatch(frame []byte, tr transport) {
	if len(frame) == 0 {
		return
	}
	switch frame[0] {
	case enginePong, engineNoop, engineOpen:
		// nothing to do
	case enginePing:
		_ = tr.write([]byte{enginePong})
	case engineClose:
		// server-side close; the read loop will fail next
	case engineMessage:
		ev, ok, err := decodeEvent(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("undecodable frame")
			return
		}
		if !ok {
			return // connect/ack/error frames carry nothing we act on
		}
		c.mu.Lock()
		fn := c.handlers[ev.Name]
		c.mu.Unlock()
		if fn != nil {
			fn(ev.Arg)
		} else {
			c.log.Debug().Str("event", ev.Name).Msg("unhandled event")
		}
	}
}

// backoff is capped exponential with jitter: 0.5s, 1s, 2s ... up to 30s.
func backoff(attempt int) time.Duration {
	if attempt > 7 {
		attempt = 7
	}
	d := 500 * time.Millisecond << uint(attempt-1)
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)))
}
