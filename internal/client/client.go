// Package client is the game's client core: a transport session, the local
// intent buffer, the state reconciler, and the view projector. All inbound
// channel events and all user intents are serialized onto one queue and
// handled by a single goroutine, so canonical state is never torn mid-update.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
	"github.com/southernadd-cmyk/kanbanpizza2/internal/sio"
)

const (
	heartbeatPeriod = time.Second     // time_request cadence
	dashboardPeriod = 3 * time.Second // request_admin_dashboard cadence
)

// Client drives one player's view of the game.
type Client struct {
	session    *Session
	reconciler *Reconciler
	buffer     *IntentBuffer
	moderation *Moderation
	log        zerolog.Logger

	events chan func()

	mu          sync.Mutex
	facilitator bool

	onRender    func(RenderPlan)
	onNotice    func(string)
	onJoinError func(string)
	onTime      func(game.TimeResponse)
	onRoomList  func(game.RoomList)
	onDashboard func(json.RawMessage)
	onStatus    func(sio.Status)
}

func New(session *Session, moderation *Moderation, log zerolog.Logger) *Client {
	c := &Client{
		session:    session,
		reconciler: NewReconciler(log),
		buffer:     NewIntentBuffer(),
		moderation: moderation,
		log:        log,
		events:     make(chan func(), 256),
	}
	c.wire()
	return c
}

// Observer registration. Call before Run; the zero observer is a no-op.

func (c *Client) OnRender(fn func(RenderPlan))         { c.onRender = fn }
func (c *Client) OnNotice(fn func(string))             { c.onNotice = fn }
func (c *Client) OnJoinError(fn func(string))          { c.onJoinError = fn }
func (c *Client) OnTime(fn func(game.TimeResponse))    { c.onTime = fn }
func (c *Client) OnRoomList(fn func(game.RoomList))    { c.onRoomList = fn }
func (c *Client) OnDashboard(fn func(json.RawMessage)) { c.onDashboard = fn }
func (c *Client) OnStatus(fn func(sio.Status))         { c.onStatus = fn }

// Run connects and processes the event queue until ctx ends. The heartbeat
// tickers live and die with this call, so tearing the view down cannot leak a
// send against a dead channel.
func (c *Client) Run(ctx context.Context) {
	c.session.Connect(ctx)
	defer c.session.Close()

	heartbeat := time.NewTicker(heartbeatPeriod)
	defer heartbeat.Stop()
	dashboard := time.NewTicker(dashboardPeriod)
	defer dashboard.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-c.events:
			fn()
		case <-heartbeat.C:
			if c.session.Status() == sio.StatusOpen && c.session.Room() != "" {
				c.session.Send("time_request", struct{}{})
			}
		case <-dashboard.C:
			c.mu.Lock()
			want := c.facilitator
			c.mu.Unlock()
			if want && c.session.Status() == sio.StatusOpen {
				c.session.Send("request_admin_dashboard", struct{}{})
			}
		}
	}
}

// SetFacilitatorView turns the 3s dashboard poll on or off.
func (c *Client) SetFacilitatorView(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.facilitator = open
}

func (c *Client) do(fn func()) {
	select {
	case c.events <- fn:
	default:
		// The queue only fills if Run is not draining it; dropping keeps the
		// transport goroutine from blocking forever.
		c.log.Warn().Msg("event queue full, event dropped")
	}
}

// wire registers one handler per inbound event type. Every handler applies
// its patch and then triggers exactly one projection pass.
func (c *Client) wire() {
	apply := func(event string, fn func(json.RawMessage)) {
		c.session.OnMessage(event, func(raw json.RawMessage) {
			c.do(func() {
				fn(raw)
				c.project()
			})
		})
	}

	apply("full_snapshot", c.reconciler.ApplySnapshot)
	apply("game_state_update", c.reconciler.ApplyUpdate)
	apply("round_started", func(raw json.RawMessage) {
		c.buffer.Clear()
		c.reconciler.ApplyRoundStarted(raw)
		c.notice(fmt.Sprintf("Round %d started.", c.reconciler.State().Round))
	})
	apply("round_ended", c.reconciler.ApplyRoundEnded)
	apply("game_reset", func(raw json.RawMessage) {
		c.buffer.Clear()
		c.reconciler.ApplyGameReset(raw)
		c.notice("Round reset. Ready for a new round.")
	})
	apply("oven_toggled", c.reconciler.ApplyOvenToggled)
	apply("ingredient_prepared", c.reconciler.ApplyIngredientPrepared)
	apply("ingredient_removed", c.reconciler.ApplyIngredientRemoved)
	apply("pizza_built", c.reconciler.ApplyPizzaBuilt)
	apply("pizza_moved_to_oven", c.reconciler.ApplyPizzaMovedToOven)
	apply("new_order", c.reconciler.ApplyNewOrder)
	apply("order_fulfilled", c.reconciler.ApplyOrderFulfilled)
	apply("clear_shared_builder", c.reconciler.ApplyClearSharedBuilder)

	// join_error is field-level feedback: no state change, no projection, and
	// crucially no reset of unrelated UI.
	c.session.OnMessage("join_error", func(raw json.RawMessage) {
		var p struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			c.log.Warn().Err(err).Msg("undecodable join_error")
			p.Message = "Join failed."
		}
		c.do(func() {
			if c.onJoinError != nil {
				c.onJoinError(p.Message)
			}
		})
	})

	c.session.OnMessage("time_response", func(raw json.RawMessage) {
		c.do(func() {
			c.reconciler.ApplyTimeResponse(raw)
			if c.onTime != nil {
				c.onTime(c.reconciler.TimeInfo())
			}
		})
	})

	c.session.OnMessage("room_list", func(raw json.RawMessage) {
		c.do(func() {
			c.reconciler.ApplyRoomList(raw)
			if c.onRoomList != nil {
				c.onRoomList(c.reconciler.RoomList())
			}
		})
	})

	c.session.OnMessage("build_error", c.transientError("Build Error"))
	c.session.OnMessage("oven_error", c.transientError("Oven Error"))

	c.session.OnMessage("room_expired", func(raw json.RawMessage) {
		c.do(func() {
			c.notice("Room expired.")
			c.session.Send("request_room_list", struct{}{})
		})
	})

	c.session.OnMessage("admin_dashboard", func(raw json.RawMessage) {
		c.do(func() {
			if c.onDashboard != nil {
				c.onDashboard(raw)
			}
		})
	})

	c.session.OnStatus(func(st sio.Status) {
		c.do(func() {
			if c.onStatus != nil {
				c.onStatus(st)
			}
		})
	})
}

// transientError surfaces a server-side action rejection as a status message.
// The intent buffer is deliberately left alone: the user may simply resubmit.
func (c *Client) transientError(prefix string) func(json.RawMessage) {
	return func(raw json.RawMessage) {
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &p)
		c.do(func() {
			c.notice(prefix + ": " + p.Message)
		})
	}
}

func (c *Client) notice(text string) {
	if c.onNotice != nil {
		c.onNotice(text)
	}
}

func (c *Client) project() {
	if c.onRender == nil {
		return
	}
	c.onRender(Project(c.reconciler.State(), c.buffer.Items()))
}

// JoinRoom validates the room name through the fail-open moderation gate and
// then sends the join. The gate runs off-loop (it is a network call); its
// answer is discarded if a newer submit has started meanwhile.
func (c *Client) JoinRoom(ctx context.Context, room, password string) {
	if room == "" || password == "" {
		c.do(func() {
			if c.onJoinError != nil {
				c.onJoinError("Room name and password cannot be empty.")
			}
		})
		return
	}
	go func() {
		flagged, stale := c.moderation.Check(ctx, room)
		if stale {
			return
		}
		c.do(func() {
			if flagged {
				if c.onJoinError != nil {
					c.onJoinError("Room name contains inappropriate language.")
				}
				return
			}
			c.session.Join(room, password)
		})
	}()
}

// BeginExternalJoin marks a deep-link join as pending; see Session.
func (c *Client) BeginExternalJoin() { c.session.BeginExternalJoin() }

// RequestRoomList asks for the lobby room list.
func (c *Client) RequestRoomList() {
	c.do(func() { c.session.Send("request_room_list", struct{}{}) })
}

// PrepareIngredient asks the server to add an ingredient to the shared pool.
func (c *Client) PrepareIngredient(typ game.IngredientType) {
	c.do(func() {
		c.session.Send("prepare_ingredient", map[string]game.IngredientType{"ingredient_type": typ})
	})
}

// TakeIngredient claims a pooled ingredient. With an empty target it goes to
// the player's own builder, and in round 1 it is also buffered locally for
// optimistic display.
func (c *Client) TakeIngredient(item game.Ingredient, targetSID string) {
	c.do(func() {
		payload := map[string]string{"ingredient_id": item.ID}
		if targetSID != "" {
			payload["target_sid"] = targetSID
		}
		c.session.Send("take_ingredient", payload)
		if c.reconciler.State().Round == 1 && targetSID == "" {
			c.buffer.Push(item)
			c.project()
		}
	})
}

// SubmitPizza submits a builder. In round 1 an empty local buffer is rejected
// before anything is sent: the server would reject it anyway, so the round
// trip is saved and the user gets immediate feedback.
func (c *Client) SubmitPizza(targetSID string) {
	c.do(func() {
		if c.reconciler.State().Round <= 1 {
			if c.buffer.Len() == 0 {
				c.notice("No ingredients selected for pizza!")
				return
			}
			c.buffer.Clear()
			c.session.Send("build_pizza", struct{}{})
			c.project()
			return
		}
		// Later rounds build from the shared builders; without a target the
		// server builds for the sender.
		if targetSID == "" {
			c.session.Send("build_pizza", struct{}{})
			return
		}
		c.session.Send("build_pizza", map[string]string{"player_sid": targetSID})
	})
}

// MoveToOven requests a built pizza's transfer into the oven.
func (c *Client) MoveToOven(pizzaID string) {
	c.do(func() {
		c.session.Send("move_to_oven", map[string]string{"pizza_id": pizzaID})
	})
}

// ToggleOven switches the oven on or off.
func (c *Client) ToggleOven(on bool) {
	c.do(func() {
		state := "off"
		if on {
			state = "on"
		}
		c.session.Send("toggle_oven", map[string]string{"state": state})
	})
}

// StartRound asks the server to begin the next round.
func (c *Client) StartRound() {
	c.do(func() { c.session.Send("start_round", struct{}{}) })
}
