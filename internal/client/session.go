package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/sio"
)

// Session manages the one duplex connection of this client. It layers the
// game's join semantics over the raw socket: remember room + credential on
// join, auto-rejoin after a reconnect, and fetch the lobby room list on the
// very first connect.
//
// The auto-rejoin (and the initial room-list request) is suppressed while an
// external-link join is in progress, so a deep link never races the stored
// credentials.
type Session struct {
	sock  Socket
	creds CredentialStore
	log   zerolog.Logger

	mu           sync.Mutex
	room         string
	password     string
	everOpen     bool
	externalJoin bool

	statusFn func(sio.Status)
}

// Socket is the transport surface the session drives. Satisfied by
// *sio.Client.
type Socket interface {
	Connect(ctx context.Context)
	Close() error
	Emit(event string, payload any)
	On(event string, fn func(json.RawMessage))
	OnStatus(fn func(sio.Status))
	Status() sio.Status
}

func NewSession(sock Socket, creds CredentialStore, log zerolog.Logger) *Session {
	s := &Session{sock: sock, creds: creds, log: log}
	if room, password, ok := creds.Load(); ok {
		s.room, s.password = room, password
	}
	sock.OnStatus(s.handleStatus)
	return s
}

// Connect starts the underlying socket. The socket keeps reconnecting on its
// own; loss of connection is a status change, never an error.
func (s *Session) Connect(ctx context.Context) {
	s.sock.Connect(ctx)
}

func (s *Session) Close() error {
	return s.sock.Close()
}

// Send is fire-and-forget, per the transport contract.
func (s *Session) Send(event string, payload any) {
	s.sock.Emit(event, payload)
}

// OnMessage registers the handler for a named inbound event. One handler per
// type; registering again replaces the previous one.
func (s *Session) OnMessage(event string, fn func(json.RawMessage)) {
	s.sock.On(event, fn)
}

// OnStatus observes connection lifecycle changes.
func (s *Session) OnStatus(fn func(sio.Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusFn = fn
}

func (s *Session) Status() sio.Status {
	return s.sock.Status()
}

// Room returns the currently joined room, empty before any join.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Join sends the join intent and durably records the credentials so a later
// reconnect can replay them. The credential itself never appears in logs.
func (s *Session) Join(room, password string) {
	s.mu.Lock()
	s.room, s.password = room, password
	s.externalJoin = false
	s.mu.Unlock()
	if err := s.creds.Save(room, password); err != nil {
		s.log.Warn().Err(err).Msg("could not persist room credentials")
	}
	s.sock.Emit("join", map[string]string{"room": room, "password": password})
}

// BeginExternalJoin marks a deep-link join flow as pending (e.g. a scanned QR
// code carrying only the room name). Until EndExternalJoin, a connect event
// triggers neither the room-list request nor an automatic rejoin.
func (s *Session) BeginExternalJoin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalJoin = true
}

func (s *Session) EndExternalJoin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.externalJoin = false
}

func (s *Session) handleStatus(st sio.Status) {
	if st == sio.StatusOpen {
		s.onOpen()
	}
	s.mu.Lock()
	fn := s.statusFn
	s.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func (s *Session) onOpen() {
	s.mu.Lock()
	external := s.externalJoin
	firstOpen := !s.everOpen
	s.everOpen = true
	room, password := s.room, s.password
	s.mu.Unlock()

	if external {
		return
	}
	if firstOpen {
		// Fresh page: populate the lobby. A stored room is not auto-joined
		// here; the user confirms the credential first.
		s.sock.Emit("request_room_list", struct{}{})
		return
	}
	if room != "" && password != "" {
		s.log.Info().Str("room", room).Msg("reconnected, rejoining")
		s.sock.Emit("join", map[string]string{"room": room, "password": password})
	}
}
