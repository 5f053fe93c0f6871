package client

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
)

// Reconciler owns the canonical client-side game state. Full snapshots
// replace it wholesale; deltas patch named fields only. Ordering is the
// channel's: messages are applied in arrival order, so a snapshot arriving
// after a delta wins outright over it.
//
// Nothing here panics across the boundary: a malformed or partial payload
// degrades to last-known or empty values and a logged warning.
type Reconciler struct {
	log zerolog.Logger

	state      game.State
	lastResult *game.RoundResult
	timeInfo   game.TimeResponse
	roomList   game.RoomList
}

func NewReconciler(log zerolog.Logger) *Reconciler {
	r := &Reconciler{log: log}
	r.state = emptyState()
	return r
}

func emptyState() game.State {
	return game.State{
		Players:             map[string]*game.PlayerBuilder{},
		PreparedIngredients: []game.Ingredient{},
		BuiltPizzas:         []game.Pizza{},
		Oven:                []game.Pizza{},
		CompletedPizzas:     []game.Pizza{},
		WastedPizzas:        []game.Pizza{},
		CustomerOrders:      []game.Order{},
		PendingOrders:       []game.Order{},
		Phase:               game.PhaseWaiting,
	}
}

// State hands out a read reference. The projector must never mutate it.
func (r *Reconciler) State() *game.State {
	return &r.state
}

// LastResult is the debrief summary from the most recent round_ended, nil
// outside a debrief.
func (r *Reconciler) LastResult() *game.RoundResult {
	return r.lastResult
}

func (r *Reconciler) TimeInfo() game.TimeResponse {
	return r.timeInfo
}

func (r *Reconciler) RoomList() game.RoomList {
	return r.roomList
}

// statePatch mirrors game.State with pointer fields, so that an absent field
// is distinguishable from a zero one.
type statePatch struct {
	Players             *map[string]*game.PlayerBuilder `json:"players"`
	PreparedIngredients *[]game.Ingredient              `json:"prepared_ingredients"`
	BuiltPizzas         *[]game.Pizza                   `json:"built_pizzas"`
	Oven                *[]game.Pizza                   `json:"oven"`
	CompletedPizzas     *[]game.Pizza                   `json:"completed_pizzas"`
	WastedPizzas        *[]game.Pizza                   `json:"wasted_pizzas"`
	Round               *int                            `json:"round"`
	MaxRounds           *int                            `json:"max_rounds"`
	Phase               *game.Phase                     `json:"current_phase"`
	OvenCapacity        *int                            `json:"max_pizzas_in_oven"`
	OvenOn              *bool                           `json:"oven_on"`
	RoundDuration       *int                            `json:"round_duration"`
	DebriefDuration     *int                            `json:"debrief_duration"`
	CustomerOrders      *[]game.Order                   `json:"customer_orders"`
	PendingOrders       *[]game.Order                   `json:"pending_orders"`
}

// ApplySnapshot replaces the canonical state from a full_snapshot (or the
// snapshot embedded in game_reset). Fields missing from the payload keep
// their last-known value, logged as a recoverable observation.
func (r *Reconciler) ApplySnapshot(raw json.RawMessage) {
	var p statePatch
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.Warn().Err(err).Msg("undecodable snapshot, keeping last-known state")
		return
	}
	prev := r.state
	next := emptyState()

	if p.Players != nil {
		next.Players = *p.Players
	} else {
		next.Players = prev.Players
		r.log.Warn().Str("field", "players").Msg("snapshot missing field, keeping last-known")
	}
	if next.Players == nil {
		next.Players = map[string]*game.PlayerBuilder{}
	}
	next.PreparedIngredients = pickIngredients(r.log, "prepared_ingredients", p.PreparedIngredients, prev.PreparedIngredients)
	next.BuiltPizzas = pickPizzas(r.log, "built_pizzas", p.BuiltPizzas, prev.BuiltPizzas)
	next.Oven = pickPizzas(r.log, "oven", p.Oven, prev.Oven)
	next.CompletedPizzas = pickPizzas(r.log, "completed_pizzas", p.CompletedPizzas, prev.CompletedPizzas)
	next.WastedPizzas = pickPizzas(r.log, "wasted_pizzas", p.WastedPizzas, prev.WastedPizzas)
	if p.CustomerOrders != nil {
		next.CustomerOrders = *p.CustomerOrders
	}
	if p.PendingOrders != nil {
		next.PendingOrders = *p.PendingOrders
	}
	if p.Round != nil {
		next.Round = *p.Round
	} else {
		next.Round = prev.Round
	}
	if p.MaxRounds != nil {
		next.MaxRounds = *p.MaxRounds
	} else {
		next.MaxRounds = prev.MaxRounds
	}
	if p.Phase != nil {
		next.Phase = *p.Phase
	} else {
		next.Phase = prev.Phase
	}
	if p.OvenCapacity != nil {
		next.OvenCapacity = *p.OvenCapacity
	} else {
		next.OvenCapacity = prev.OvenCapacity
	}
	if p.OvenOn != nil {
		next.OvenOn = *p.OvenOn
	}
	if p.RoundDuration != nil {
		next.RoundDuration = *p.RoundDuration
	} else {
		next.RoundDuration = prev.RoundDuration
	}
	if p.DebriefDuration != nil {
		next.DebriefDuration = *p.DebriefDuration
	} else {
		next.DebriefDuration = prev.DebriefDuration
	}

	r.state = next
}

func pickIngredients(log zerolog.Logger, field string, got *[]game.Ingredient, last []game.Ingredient) []game.Ingredient {
	if got != nil {
		return *got
	}
	log.Warn().Str("field", field).Msg("snapshot missing field, keeping last-known")
	if last == nil {
		return []game.Ingredient{}
	}
	return last
}

func pickPizzas(log zerolog.Logger, field string, got *[]game.Pizza, last []game.Pizza) []game.Pizza {
	if got != nil {
		return *got
	}
	log.Warn().Str("field", field).Msg("snapshot missing field, keeping last-known")
	if last == nil {
		return []game.Pizza{}
	}
	return last
}

// ApplyUpdate patches only the fields present in a game_state_update delta
// (customer_orders and pending_orders in practice).
func (r *Reconciler) ApplyUpdate(raw json.RawMessage) {
	var p statePatch
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.Warn().Err(err).Msg("undecodable state update, ignored")
		return
	}
	if p.CustomerOrders != nil {
		r.state.CustomerOrders = *p.CustomerOrders
	}
	if p.PendingOrders != nil {
		r.state.PendingOrders = *p.PendingOrders
	}
	if p.OvenOn != nil {
		r.state.OvenOn = *p.OvenOn
	}
}

// ApplyRoundStarted enters the round phase and resets the per-round
// collections the server resets on its side.
func (r *Reconciler) ApplyRoundStarted(raw json.RawMessage) {
	var p struct {
		Round          *int         `json:"round"`
		Duration       *int         `json:"duration"`
		CustomerOrders []game.Order `json:"customer_orders"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.Warn().Err(err).Msg("undecodable round_started")
	}
	if p.Round != nil {
		r.state.Round = *p.Round
	}
	if p.Duration != nil {
		r.state.RoundDuration = *p.Duration
	}
	r.state.Phase = game.PhaseRound
	r.state.PreparedIngredients = []game.Ingredient{}
	r.state.BuiltPizzas = []game.Pizza{}
	r.state.Oven = []game.Pizza{}
	r.state.CompletedPizzas = []game.Pizza{}
	r.state.WastedPizzas = []game.Pizza{}
	r.state.OvenOn = false
	r.state.CustomerOrders = p.CustomerOrders
	if r.state.CustomerOrders == nil {
		r.state.CustomerOrders = []game.Order{}
	}
	for _, b := range r.state.Players {
		b.BuilderIngredients = []game.Ingredient{}
	}
	r.lastResult = nil
}

// ApplyRoundEnded enters the debrief and attaches the read-only summary.
func (r *Reconciler) ApplyRoundEnded(raw json.RawMessage) {
	var res game.RoundResult
	if err := json.Unmarshal(raw, &res); err != nil {
		r.log.Warn().Err(err).Msg("undecodable round_ended, entering debrief without summary")
		r.state.Phase = game.PhaseDebrief
		return
	}
	r.state.Phase = game.PhaseDebrief
	r.lastResult = &res
}

// ApplyGameReset replaces the state from the embedded snapshot and returns to
// the waiting phase.
func (r *Reconciler) ApplyGameReset(raw json.RawMessage) {
	r.ApplySnapshot(raw)
	r.state.Phase = game.PhaseWaiting
	r.lastResult = nil
}

func (r *Reconciler) ApplyOvenToggled(raw json.RawMessage) {
	var p struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.Warn().Err(err).Msg("undecodable oven_toggled, ignored")
		return
	}
	r.state.OvenOn = p.State == "on"
}

func (r *Reconciler) ApplyIngredientPrepared(raw json.RawMessage) {
	var item game.Ingredient
	if err := json.Unmarshal(raw, &item); err != nil || item.ID == "" {
		r.log.Warn().Err(err).Msg("undecodable ingredient_prepared, ignored")
		return
	}
	for _, existing := range r.state.PreparedIngredients {
		if existing.ID == item.ID {
			return // duplicate delivery, idempotent
		}
	}
	r.state.PreparedIngredients = append(r.state.PreparedIngredients, item)
}

func (r *Reconciler) ApplyIngredientRemoved(raw json.RawMessage) {
	var p struct {
		IngredientID string `json:"ingredient_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.IngredientID == "" {
		r.log.Warn().Err(err).Msg("undecodable ingredient_removed, ignored")
		return
	}
	pool := r.state.PreparedIngredients[:0]
	for _, item := range r.state.PreparedIngredients {
		if item.ID != p.IngredientID {
			pool = append(pool, item)
		}
	}
	r.state.PreparedIngredients = pool
}

// ApplyPizzaBuilt moves a pizza into built (or wasted, when the server marked
// it so). The id is scrubbed from every collection first: a pizza lives in at
// most one of built/oven/completed/wasted.
func (r *Reconciler) ApplyPizzaBuilt(raw json.RawMessage) {
	var pizza game.Pizza
	if err := json.Unmarshal(raw, &pizza); err != nil || pizza.ID == "" {
		r.log.Warn().Err(err).Msg("undecodable pizza_built, ignored")
		return
	}
	r.removePizza(pizza.ID)
	if pizza.Status == game.StatusInvalid || pizza.Status == game.StatusUnmatched {
		r.state.WastedPizzas = append(r.state.WastedPizzas, pizza)
		return
	}
	r.state.BuiltPizzas = append(r.state.BuiltPizzas, pizza)
}

func (r *Reconciler) ApplyPizzaMovedToOven(raw json.RawMessage) {
	var pizza game.Pizza
	if err := json.Unmarshal(raw, &pizza); err != nil || pizza.ID == "" {
		r.log.Warn().Err(err).Msg("undecodable pizza_moved_to_oven, ignored")
		return
	}
	r.removePizza(pizza.ID)
	r.state.Oven = append(r.state.Oven, pizza)
}

func (r *Reconciler) removePizza(id string) {
	drop := func(list []game.Pizza) []game.Pizza {
		out := list[:0]
		for _, p := range list {
			if p.ID != id {
				out = append(out, p)
			}
		}
		return out
	}
	r.state.BuiltPizzas = drop(r.state.BuiltPizzas)
	r.state.Oven = drop(r.state.Oven)
	r.state.CompletedPizzas = drop(r.state.CompletedPizzas)
	r.state.WastedPizzas = drop(r.state.WastedPizzas)
}

func (r *Reconciler) ApplyNewOrder(raw json.RawMessage) {
	var order game.Order
	if err := json.Unmarshal(raw, &order); err != nil || order.ID == "" {
		r.log.Warn().Err(err).Msg("undecodable new_order, ignored")
		return
	}
	for _, existing := range r.state.CustomerOrders {
		if existing.ID == order.ID {
			return
		}
	}
	r.state.CustomerOrders = append(r.state.CustomerOrders, order)
}

func (r *Reconciler) ApplyOrderFulfilled(raw json.RawMessage) {
	var p struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.OrderID == "" {
		r.log.Warn().Err(err).Msg("undecodable order_fulfilled, ignored")
		return
	}
	orders := r.state.CustomerOrders[:0]
	for _, o := range r.state.CustomerOrders {
		if o.ID != p.OrderID {
			orders = append(orders, o)
		}
	}
	r.state.CustomerOrders = orders
}

func (r *Reconciler) ApplyClearSharedBuilder(raw json.RawMessage) {
	var p struct {
		PlayerSID string `json:"player_sid"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		r.log.Warn().Err(err).Msg("undecodable clear_shared_builder, ignored")
		return
	}
	if b, ok := r.state.Players[p.PlayerSID]; ok {
		b.BuilderIngredients = []game.Ingredient{}
	}
}

func (r *Reconciler) ApplyTimeResponse(raw json.RawMessage) {
	var t game.TimeResponse
	if err := json.Unmarshal(raw, &t); err != nil {
		r.log.Warn().Err(err).Msg("undecodable time_response, ignored")
		return
	}
	r.timeInfo = t
}

func (r *Reconciler) ApplyRoomList(raw json.RawMessage) {
	var list game.RoomList
	if err := json.Unmarshal(raw, &list); err != nil {
		r.log.Warn().Err(err).Msg("undecodable room_list, ignored")
		return
	}
	if list.Rooms == nil {
		list.Rooms = map[string]int{}
	}
	r.roomList = list
}
