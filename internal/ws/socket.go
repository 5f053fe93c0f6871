package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/rs/zerolog/log"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
)

const (
	timerInterval = 5 * time.Second
	sweepInterval = time.Minute
)

type ConnCtx struct {
	Room string
}

type Server struct {
	mgr *game.Manager
	io  *socketio.Server

	mu      sync.Mutex
	conns   map[string]socketio.Conn            // socketID -> Conn, every live connection
	members map[string]map[string]socketio.Conn // roomName -> socketID -> Conn
	timers  map[string]chan struct{}            // roomName -> timer stop
}

func New(mgr *game.Manager) *Server {
	return &Server{
		mgr:     mgr,
		conns:   make(map[string]socketio.Conn),
		members: make(map[string]map[string]socketio.Conn),
		timers:  make(map[string]chan struct{}),
	}
}

// Mount attaches Socket.IO server with handlers to the given Gin engine.
func (srv *Server) Mount(r *gin.Engine) *socketio.Server {
	io := socketio.NewServer(nil)
	srv.io = io

	io.OnConnect("/", func(s socketio.Conn) error {
		s.SetContext(&ConnCtx{})
		srv.mu.Lock()
		srv.conns[s.ID()] = s
		srv.mu.Unlock()
		log.Info().Str("sid", s.ID()).Msg("socket connected")
		return nil
	})

	io.OnEvent("/", "join", func(s socketio.Conn, payload struct {
		Room     string `json:"room"`
		Password string `json:"password"`
	}) {
		room, err := srv.mgr.Join(payload.Room, payload.Password, s.ID())
		if err != nil {
			s.Emit("join_error", map[string]any{"message": joinErrorMessage(err)})
			return
		}
		s.SetContext(&ConnCtx{Room: payload.Room})
		s.Join(payload.Room)
		srv.addMember(payload.Room, s)
		srv.ensureTimer(payload.Room)
		log.Info().Str("sid", s.ID()).Str("room", payload.Room).Msg("join")
		srv.broadcastSnapshot(payload.Room, room)
		srv.broadcastRoomList()
	})

	io.OnEvent("/", "request_room_list", func(s socketio.Conn) {
		s.Emit("room_list", srv.roomList())
	})

	io.OnEvent("/", "prepare_ingredient", func(s socketio.Conn, payload struct {
		IngredientType game.IngredientType `json:"ingredient_type"`
	}) {
		name, room, ok := srv.roomOf(s)
		if !ok {
			return
		}
		room.Touch(s.ID())
		item, err := room.PrepareIngredient(s.ID(), payload.IngredientType)
		if err != nil {
			s.Emit("build_error", map[string]any{"message": err.Error()})
			return
		}
		io.BroadcastToRoom("/", name, "ingredient_prepared", item)
	})

	io.OnEvent("/", "take_ingredient", func(s socketio.Conn, payload struct {
		IngredientID string `json:"ingredient_id"`
		TargetSID    string `json:"target_sid"`
	}) {
		name, room, ok := srv.roomOf(s)
		if !ok {
			return
		}
		room.Touch(s.ID())
		if _, err := room.TakeIngredient(s.ID(), payload.IngredientID, payload.TargetSID); err != nil {
			s.Emit("build_error", map[string]any{"message": err.Error()})
			return
		}
		io.BroadcastToRoom("/", name, "ingredient_removed", map[string]any{"ingredient_id": payload.IngredientID})
		// Builder contents only travel in snapshots.
		srv.broadcastSnapshot(name, room)
	})

	io.OnEvent("/", "build_pizza", func(s socketio.Conn, payload struct {
		PlayerSID string `json:"player_sid"`
	}) {
		name, room, ok := srv.roomOf(s)
		if !ok {
			return
		}
		room.Touch(s.ID())
		out, err := room.BuildPizza(s.ID(), payload.PlayerSID)
		if err != nil {
			s.Emit("build_error", map[string]any{"message": buildErrorMessage(err)})
			return
		}
		io.BroadcastToRoom("/", name, "pizza_built", out.Pizza)
		if out.Wasted {
			s.Emit("build_error", map[string]any{"message": out.ErrorMessage})
		}
		if out.FulfilledOrderID != "" {
			io.BroadcastToRoom("/", name, "order_fulfilled", map[string]any{"order_id": out.FulfilledOrderID})
		}
		if out.ClearedBuilder != "" {
			io.BroadcastToRoom("/", name, "clear_shared_builder", map[string]any{"player_sid": out.ClearedBuilder})
		}
		srv.mgr.Persist(room)
		srv.broadcastSnapshot(name, room)
	})

	io.OnEvent("/", "move_to_oven", func(s socketio.Conn, payload struct {
		PizzaID string `json:"pizza_id"`
	}) {
		name, room, ok := srv.roomOf(s)
		if !ok {
			return
		}
		room.Touch(s.ID())
		pizza, err := room.MoveToOven(payload.PizzaID)
		if err != nil {
			s.Emit("oven_error", map[string]any{"message": ovenErrorMessage(err)})
			return
		}
		io.BroadcastToRoom("/", name, "pizza_moved_to_oven", pizza)
	})

	io.OnEvent("/", "toggle_oven", func(s socketio.Conn, payload struct {
		State string `json:"state"`
	}) {
		name, room, ok := srv.roomOf(s)
		if !ok {
			return
		}
		room.Touch(s.ID())
		on := payload.State == "on"
		if !room.ToggleOven(on) {
			return
		}
		io.BroadcastToRoom("/", name, "oven_toggled", map[string]any{"state": payload.State})
		if !on {
			// Turning the oven off bakes everything out.
			srv.broadcastSnapshot(name, room)
		}
	})

	io.OnEvent("/", "start_round", func(s socketio.Conn) {
		name, room, ok := srv.roomOf(s)
		if !ok {
			return
		}
		room.Touch(s.ID())
		if err := room.StartRound(); err != nil {
			s.Emit("build_error", map[string]any{"message": err.Error()})
			return
		}
		state := room.Snapshot()
		log.Info().Str("room", name).Int("round", state.Round).Msg("round started")
		io.BroadcastToRoom("/", name, "round_started", map[string]any{
			"round":           state.Round,
			"duration":        state.RoundDuration,
			"customer_orders": state.CustomerOrders,
		})
		srv.mgr.Persist(room)
	})

	io.OnEvent("/", "time_request", func(s socketio.Conn) {
		name, room, ok := srv.roomOf(s)
		if !ok {
			return
		}
		room.Touch(s.ID())
		tr := srv.tick(name, room)
		s.Emit("time_response", tr)
	})

	io.OnEvent("/", "request_admin_dashboard", func(s socketio.Conn) {
		s.Emit("admin_dashboard", srv.dashboard())
	})

	io.OnError("/", func(s socketio.Conn, e error) {
		log.Error().Str("sid", s.ID()).Err(e).Msg("socket error")
	})
	io.OnDisconnect("/", func(s socketio.Conn, reason string) {
		srv.mu.Lock()
		delete(srv.conns, s.ID())
		srv.mu.Unlock()
		name, room, emptied := srv.mgr.Leave(s.ID())
		if name != "" {
			srv.removeMember(name, s)
			if emptied {
				srv.stopTimer(name)
			} else if room != nil {
				srv.broadcastSnapshot(name, room)
			}
			srv.broadcastRoomList()
		}
		log.Info().Str("sid", s.ID()).Str("reason", reason).Msg("socket disconnected")
	})

	go io.Serve()

	r.GET("/socket.io/*any", gin.WrapH(io))
	r.POST("/socket.io/*any", gin.WrapH(io))

	r.OPTIONS("/socket.io/*any", func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		c.Status(http.StatusNoContent)
	})

	return io
}

// RunSweeper expires idle rooms and sleeping players until ctx ends.
func (srv *Server) RunSweeper(ctx context.Context) {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			expired := srv.mgr.Sweep()
			for _, name := range expired {
				log.Info().Str("room", name).Msg("room expired")
				srv.io.BroadcastToRoom("/", name, "room_expired", map[string]any{"room": name})
				srv.stopTimer(name)
			}
			if len(expired) > 0 {
				srv.broadcastRoomList()
			}
		}
	}
}

// ensureTimer starts the per-room background timer if it is not running. The
// timer is the fail-safe that ends a round even when every client went quiet.
func (srv *Server) ensureTimer(name string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, running := srv.timers[name]; running {
		return
	}
	stop := make(chan struct{})
	srv.timers[name] = stop
	go srv.runTimer(name, stop)
}

func (srv *Server) stopTimer(name string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if stop, ok := srv.timers[name]; ok {
		close(stop)
		delete(srv.timers, name)
	}
}

func (srv *Server) runTimer(name string, stop <-chan struct{}) {
	t := time.NewTicker(timerInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			room, ok := srv.mgr.Room(name)
			if !ok {
				srv.stopTimer(name)
				return
			}
			room.RecordCFD()
			tr := srv.tick(name, room)
			srv.io.BroadcastToRoom("/", name, "time_response", tr)
		}
	}
}

// tick advances one room's clock work: releases due customer orders and
// handles round or debrief expiry.
func (srv *Server) tick(name string, room *game.Room) game.TimeResponse {
	out := room.Tick()
	for _, order := range out.NewOrders {
		srv.io.BroadcastToRoom("/", name, "new_order", order)
	}
	if len(out.NewOrders) > 0 {
		// Clients that missed an individual new_order converge on the full list.
		srv.io.BroadcastToRoom("/", name, "game_state_update", map[string]any{
			"customer_orders": room.OrdersSnapshot(),
		})
	}
	if out.RoundExpired {
		srv.endRound(name, room)
		out.Time.Phase = game.PhaseDebrief
	}
	if out.DebriefExpired {
		room.ResetRound()
		srv.mgr.Persist(room)
		log.Info().Str("room", name).Msg("debrief over, room reset")
		srv.io.BroadcastToRoom("/", name, "game_reset", room.Snapshot())
		out.Time.Phase = game.PhaseWaiting
	}
	return out.Time
}

func (srv *Server) endRound(name string, room *game.Room) {
	out, err := room.EndRound()
	if err != nil {
		return // another tick beat us to it
	}
	if out.OvenWasOn {
		srv.io.BroadcastToRoom("/", name, "oven_toggled", map[string]any{"state": "off"})
	}
	log.Info().Str("room", name).Int("round", out.Round).Int("score", out.Result.Score).Msg("round ended")
	srv.io.BroadcastToRoom("/", name, "round_ended", out.Result)
	if err := srv.mgr.RecordScore(name, out.Round, out.Result.Score); err != nil {
		log.Warn().Err(err).Str("room", name).Msg("high score not recorded")
	}
	srv.mgr.Persist(room)
	srv.broadcastRoomList()
}

func (srv *Server) addMember(name string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.members[name] == nil {
		srv.members[name] = make(map[string]socketio.Conn)
	}
	srv.members[name][c.ID()] = c
}

func (srv *Server) removeMember(name string, c socketio.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if m := srv.members[name]; m != nil {
		delete(m, c.ID())
		if len(m) == 0 {
			delete(srv.members, name)
		}
	}
}

func (srv *Server) roomOf(s socketio.Conn) (string, *game.Room, bool) {
	ctx, _ := s.Context().(*ConnCtx)
	if ctx == nil || ctx.Room == "" {
		return "", nil, false
	}
	room, ok := srv.mgr.Room(ctx.Room)
	return ctx.Room, room, ok
}

func (srv *Server) broadcastSnapshot(name string, room *game.Room) {
	srv.io.BroadcastToRoom("/", name, "full_snapshot", room.Snapshot())
}

func (srv *Server) roomList() game.RoomList {
	return game.RoomList{Rooms: srv.mgr.PlayerCounts(), HighScores: srv.mgr.HighScores()}
}

func (srv *Server) broadcastRoomList() {
	list := srv.roomList()
	srv.mu.Lock()
	conns := make([]socketio.Conn, 0, len(srv.conns))
	for _, c := range srv.conns {
		conns = append(conns, c)
	}
	srv.mu.Unlock()
	for _, c := range conns {
		c.Emit("room_list", list)
	}
}

// dashboard summarizes every active room for the facilitator view.
func (srv *Server) dashboard() map[string]any {
	counts := srv.mgr.PlayerCounts()
	rooms := make(map[string]any, len(counts))
	for name := range counts {
		room, ok := srv.mgr.Room(name)
		if !ok {
			continue
		}
		state := room.Snapshot()
		rooms[name] = map[string]any{
			"players":          len(state.Players),
			"round":            state.Round,
			"phase":            state.Phase,
			"completed_pizzas": len(state.CompletedPizzas),
			"wasted_pizzas":    len(state.WastedPizzas),
			"oven_on":          state.OvenOn,
		}
	}
	return map[string]any{"rooms": rooms}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrMissingFields):
		return "Room name and password are required."
	case errors.Is(err, game.ErrMaxRooms):
		return "Maximum number of rooms reached."
	case errors.Is(err, game.ErrWrongPassword):
		return "Incorrect password."
	case errors.Is(err, game.ErrRoomFull):
		return "Room is full."
	}
	return "Unable to join room."
}

func buildErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrEmptyBuilder):
		return "No ingredients selected for pizza!"
	case errors.Is(err, game.ErrWrongPhase):
		return "Round is not running."
	}
	return err.Error()
}

func ovenErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrOvenOn):
		return "Cannot add pizza while oven is on!"
	case errors.Is(err, game.ErrOvenFull):
		return "Oven is full!"
	}
	return err.Error()
}
