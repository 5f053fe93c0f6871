// Package sio is a minimal Socket.IO client (engine.io protocol 3) speaking
// just enough of the wire format for the game: a websocket transport with an
// HTTP long-polling fallback, event frames on the default namespace, and
// client-initiated heartbeats.
package sio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// engine.io packet types (first byte of every frame).
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineUpgrade = '5'
	engineNoop    = '6'
)

// socket.io packet types (second byte of message frames).
const (
	socketConnect    = '0'
	socketDisconnect = '1'
	socketEvent      = '2'
	socketAck        = '3'
	socketError      = '4'
)

var errShortPacket = errors.New("sio: short packet")

// handshake is the JSON body of the engine.io open packet.
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // ms
	PingTimeout  int      `json:"pingTimeout"`  // ms
}

// Event is one inbound socket.io event on the default namespace. Arg is the
// first argument's raw JSON, or nil for argument-less events.
type Event struct {
	Name string
	Arg  json.RawMessage
}

// encodeEvent produces an engine.io message frame carrying a socket.io event:
// `42["name",payload]`.
func encodeEvent(name string, payload any) ([]byte, error) {
	args := []any{name}
	if payload != nil {
		args = append(args, payload)
	}
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("sio: encode %s: %w", name, err)
	}
	frame := make([]byte, 0, len(body)+2)
	frame = append(frame, engineMessage, socketEvent)
	return append(frame, body...), nil
}

// decodeEvent parses a message frame. The boolean reports whether the frame
// was an event at all; connect/ack/error frames decode to false, nil.
func decodeEvent(frame []byte) (Event, bool, error) {
	if len(frame) < 2 || frame[0] != engineMessage || frame[1] != socketEvent {
		return Event{}, false, nil
	}
	rest := frame[2:]
	// Skip an ack id if the server attached one.
	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	rest = rest[i:]
	var args []json.RawMessage
	if err := json.Unmarshal(rest, &args); err != nil {
		return Event{}, false, fmt.Errorf("sio: decode event: %w", err)
	}
	if len(args) == 0 {
		return Event{}, false, errShortPacket
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return Event{}, false, fmt.Errorf("sio: event name: %w", err)
	}
	ev := Event{Name: name}
	if len(args) > 1 {
		ev.Arg = args[1]
	}
	return ev, true, nil
}

// encodePayload concatenates packets in the polling body format:
// `<length>:<packet>` per packet, length counted in runes.
func encodePayload(packets [][]byte) []byte {
	var b strings.Builder
	for _, p := range packets {
		b.WriteString(strconv.Itoa(len([]rune(string(p)))))
		b.WriteByte(':')
		b.Write(p)
	}
	return []byte(b.String())
}

// decodePayload splits a polling body back into packets.
func decodePayload(body []byte) ([][]byte, error) {
	var packets [][]byte
	runes := []rune(string(body))
	for len(runes) > 0 {
		sep := -1
		for i, r := range runes {
			if r == ':' {
				sep = i
				break
			}
		}
		if sep < 0 {
			return nil, fmt.Errorf("sio: malformed payload %q", string(body))
		}
		n, err := strconv.Atoi(string(runes[:sep]))
		if err != nil || n < 0 || sep+1+n > len(runes) {
			return nil, fmt.Errorf("sio: bad packet length in payload %q", string(body))
		}
		packets = append(packets, []byte(string(runes[sep+1:sep+1+n])))
		runes = runes[sep+1+n:]
	}
	return packets, nil
}
