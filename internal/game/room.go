package game

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrMissingFields     = errors.New("required fields missing")
	ErrMaxRooms          = errors.New("max rooms reached")
	ErrWrongPassword     = errors.New("incorrect password")
	ErrRoomFull          = errors.New("room full")
	ErrWrongPhase        = errors.New("action not allowed in this phase")
	ErrUnknownPlayer     = errors.New("unknown player")
	ErrUnknownIngredient = errors.New("ingredient not in pool")
	ErrUnknownPizza      = errors.New("pizza not found")
	ErrEmptyBuilder      = errors.New("builder is empty")
	ErrOvenOn            = errors.New("oven is on")
	ErrOvenFull          = errors.New("oven full")
)

const (
	MaxRooms   = 10
	MaxPlayers = 5

	RoomTimeout   = 30 * time.Minute
	PlayerTimeout = 5 * time.Minute
)

// RoomSnapshot is what gets persisted per room: wire state plus the
// debrief-only series that are stripped from regular broadcasts.
type RoomSnapshot struct {
	State      *State      `json:"state"`
	Password   string      `json:"password"`
	LeadTimes  []LeadTime  `json:"lead_times"`
	CFDHistory []CFDSample `json:"cfd_history"`
}

// RoomStore persists room snapshots and the sid->room mapping across
// restarts. Implementations live in internal/store.
type RoomStore interface {
	SaveRoom(name string, snap RoomSnapshot) error
	LoadRoom(name string) (RoomSnapshot, bool, error)
	DeleteRoom(name string) error
	RoomNames() ([]string, error)
	SetSession(sid, room string) error
	Session(sid string) (string, error)
	DropSession(sid string) error
}

// ScoreStore keeps the cross-room leaderboard, top three per round.
type ScoreStore interface {
	Record(room string, round, score int) error
	Top() (map[int]map[int]HighScoreEntry, error)
}

// Room is one game room. All methods lock; outcomes carry the decisions the
// transport layer turns into emits.
type Room struct {
	mu   sync.Mutex
	name string

	state    *State
	password string

	leadTimes  []LeadTime
	cfdHistory []CFDSample

	roundStart   float64
	debriefStart float64
	ovenStart    float64

	now func() time.Time
}

// Manager owns every room. It is safe for concurrent use from socket
// handlers and the background sweeper.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	store  RoomStore
	scores ScoreStore
	now    func() time.Time
}

func NewManager(store RoomStore, scores ScoreStore) *Manager {
	return &Manager{
		rooms:  make(map[string]*Room),
		store:  store,
		scores: scores,
		now:    time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	for _, r := range m.rooms {
		r.now = now
	}
}

func (m *Manager) unix() float64 {
	return float64(m.now().UnixNano()) / 1e9
}

func (r *Room) unix() float64 {
	return float64(r.now().UnixNano()) / 1e9
}

// Join adds sid to the named room, creating it on first join. A join with a
// wrong password or into a full room fails without side effects.
func (m *Manager) Join(name, password, sid string) (*Room, error) {
	if name == "" || password == "" {
		return nil, ErrMissingFields
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.rooms[name]
	if r == nil {
		// Rooms survive restarts through the store.
		if snap, ok, err := m.store.LoadRoom(name); err == nil && ok {
			r = &Room{name: name, state: snap.State, password: snap.Password,
				leadTimes: snap.LeadTimes, cfdHistory: snap.CFDHistory, now: m.now}
			m.rooms[name] = r
		}
	}
	if r == nil {
		if len(m.rooms) >= MaxRooms {
			return nil, ErrMaxRooms
		}
		r = &Room{name: name, state: NewState(), password: password, now: m.now}
		m.rooms[name] = r
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.password != password {
		return nil, ErrWrongPassword
	}
	if _, ok := r.state.Players[sid]; !ok && len(r.state.Players) >= MaxPlayers {
		return nil, ErrRoomFull
	}
	nowUnix := m.unix()
	if p, ok := r.state.Players[sid]; ok {
		p.LastActivity = nowUnix
	} else {
		r.state.Players[sid] = &PlayerBuilder{BuilderIngredients: []Ingredient{}, LastActivity: nowUnix}
	}
	r.state.LastUpdated = nowUnix

	_ = m.store.SetSession(sid, name)
	m.persistLocked(r)
	return r, nil
}

// Leave removes sid from whatever room it is in. Returns the room and whether
// the room emptied out (and was therefore dropped).
func (m *Manager) Leave(sid string) (name string, room *Room, emptied bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name, err := m.store.Session(sid)
	if err != nil || name == "" {
		return "", nil, false
	}
	_ = m.store.DropSession(sid)
	r := m.rooms[name]
	if r == nil {
		return name, nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state.Players, sid)
	r.state.LastUpdated = m.unix()
	if len(r.state.Players) == 0 {
		delete(m.rooms, name)
		_ = m.store.DeleteRoom(name)
		return name, r, true
	}
	m.persistLocked(r)
	return name, r, false
}

// RoomFor resolves the room a sid previously joined.
func (m *Manager) RoomFor(sid string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name, err := m.store.Session(sid)
	if err != nil || name == "" {
		return nil, false
	}
	r := m.rooms[name]
	return r, r != nil
}

func (m *Manager) Room(name string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r := m.rooms[name]
	return r, r != nil
}

// PlayerCounts lists active rooms for the lobby modal.
func (m *Manager) PlayerCounts() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.rooms))
	for name, r := range m.rooms {
		r.mu.Lock()
		out[name] = len(r.state.Players)
		r.mu.Unlock()
	}
	return out
}

// HighScores returns the leaderboard, empty on store failure: the lobby list
// is best effort.
func (m *Manager) HighScores() map[int]map[int]HighScoreEntry {
	top, err := m.scores.Top()
	if err != nil || top == nil {
		return map[int]map[int]HighScoreEntry{}
	}
	return top
}

// RecordScore persists a round score onto the leaderboard.
func (m *Manager) RecordScore(room string, round, score int) error {
	return m.scores.Record(room, round, score)
}

// Persist writes the room's current snapshot through to the store.
func (m *Manager) Persist(r *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.persistLocked(r)
}

func (m *Manager) persistLocked(r *Room) {
	_ = m.store.SaveRoom(r.name, RoomSnapshot{
		State:      r.state,
		Password:   r.password,
		LeadTimes:  r.leadTimes,
		CFDHistory: r.cfdHistory,
	})
}

// Sweep drops players idle past PlayerTimeout and rooms idle past RoomTimeout
// or left without players. Returns the names of expired rooms.
func (m *Manager) Sweep() (expired []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nowUnix := m.unix()
	for name, r := range m.rooms {
		r.mu.Lock()
		changed := false
		for sid, p := range r.state.Players {
			last := p.LastActivity
			if last == 0 {
				last = r.state.LastUpdated
			}
			if nowUnix-last >= PlayerTimeout.Seconds() {
				delete(r.state.Players, sid)
				_ = m.store.DropSession(sid)
				changed = true
			}
		}
		if nowUnix-r.state.LastUpdated >= RoomTimeout.Seconds() || len(r.state.Players) == 0 {
			delete(m.rooms, name)
			_ = m.store.DeleteRoom(name)
			expired = append(expired, name)
			r.mu.Unlock()
			continue
		}
		if changed {
			m.persistLocked(r)
		}
		r.mu.Unlock()
	}
	return expired
}

func (r *Room) Name() string { return r.name }

// Touch refreshes a player's activity timestamp.
func (r *Room) Touch(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.state.Players[sid]; ok {
		p.LastActivity = r.unix()
	}
}

// Snapshot returns a deep copy of the wire state, safe to hand to emitters.
func (r *Room) Snapshot() *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() *State {
	cp := *r.state
	cp.Players = make(map[string]*PlayerBuilder, len(r.state.Players))
	for sid, p := range r.state.Players {
		pc := *p
		pc.BuilderIngredients = append([]Ingredient(nil), p.BuilderIngredients...)
		cp.Players[sid] = &pc
	}
	cp.PreparedIngredients = append([]Ingredient(nil), r.state.PreparedIngredients...)
	cp.BuiltPizzas = append([]Pizza(nil), r.state.BuiltPizzas...)
	cp.Oven = append([]Pizza(nil), r.state.Oven...)
	cp.CompletedPizzas = append([]Pizza(nil), r.state.CompletedPizzas...)
	cp.WastedPizzas = append([]Pizza(nil), r.state.WastedPizzas...)
	cp.CustomerOrders = append([]Order(nil), r.state.CustomerOrders...)
	cp.PendingOrders = append([]Order(nil), r.state.PendingOrders...)
	return &cp
}

// PrepareIngredient drops a new ingredient into the shared pool.
func (r *Room) PrepareIngredient(sid string, typ IngredientType) (Ingredient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != PhaseRound {
		return Ingredient{}, ErrWrongPhase
	}
	item := Ingredient{ID: NewID(), Type: typ, PreparedBy: sid, PreparedAt: r.unix()}
	r.state.PreparedIngredients = append(r.state.PreparedIngredients, item)
	r.state.LastUpdated = item.PreparedAt
	return item, nil
}

// TakeIngredient moves an ingredient from the pool into a builder. The target
// builder may differ from the taker only after round 1.
func (r *Room) TakeIngredient(sid, ingredientID, targetSID string) (target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != PhaseRound {
		return "", ErrWrongPhase
	}
	idx := -1
	for i, it := range r.state.PreparedIngredients {
		if it.ID == ingredientID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", ErrUnknownIngredient
	}
	target = sid
	if r.state.Round > 1 && targetSID != "" {
		target = targetSID
	}
	p, ok := r.state.Players[target]
	if !ok {
		return "", ErrUnknownPlayer
	}
	taken := r.state.PreparedIngredients[idx]
	r.state.PreparedIngredients = append(r.state.PreparedIngredients[:idx], r.state.PreparedIngredients[idx+1:]...)
	p.BuilderIngredients = append(p.BuilderIngredients, taken)
	r.state.LastUpdated = r.unix()
	return target, nil
}

// BuildOutcome tells the transport layer what to emit after a build attempt.
type BuildOutcome struct {
	Pizza            Pizza
	Wasted           bool
	ErrorMessage     string // build_error text when Wasted
	FulfilledOrderID string // round 3, when an order matched
	ClearedBuilder   string // shared builder to clear (round > 1)
}

// BuildPizza consumes the target builder's contents into a pizza. In rounds 1
// and 2 the fixed recipes decide validity; in round 3 the pizza must match an
// open customer order exactly.
func (r *Room) BuildPizza(sid, playerSID string) (BuildOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != PhaseRound {
		return BuildOutcome{}, ErrWrongPhase
	}
	target := sid
	if r.state.Round > 1 && playerSID != "" {
		target = playerSID
	}
	p, ok := r.state.Players[target]
	if !ok {
		return BuildOutcome{}, ErrUnknownPlayer
	}
	if len(p.BuilderIngredients) == 0 {
		return BuildOutcome{}, ErrEmptyBuilder
	}

	counts := CountIngredients(p.BuilderIngredients)
	nowUnix := r.unix()
	start := p.BuilderIngredients[0].PreparedAt
	for _, i := range p.BuilderIngredients {
		if i.PreparedAt < start {
			start = i.PreparedAt
		}
	}
	pizza := Pizza{
		ID:             NewID(),
		Team:           r.name,
		Ingredients:    counts,
		BuiltAt:        nowUnix,
		BuildStartTime: start,
	}

	var out BuildOutcome
	if r.state.Round < 3 {
		if typ, ok := ValidateRecipe(counts); ok {
			pizza.Type = typ
			r.state.BuiltPizzas = append(r.state.BuiltPizzas, pizza)
			out = BuildOutcome{Pizza: pizza}
		} else {
			pizza.Status = StatusInvalid
			r.state.WastedPizzas = append(r.state.WastedPizzas, pizza)
			r.leadTimes = append(r.leadTimes, LeadTime{PizzaID: pizza.ID, LeadTime: nowUnix - start, Status: "incomplete", StartTime: start})
			out = BuildOutcome{Pizza: pizza, Wasted: true, ErrorMessage: "Invalid Combo!"}
		}
	} else {
		if i := MatchOrder(r.state.CustomerOrders, counts); i >= 0 {
			order := r.state.CustomerOrders[i]
			pizza.Type = order.Type
			pizza.OrderID = order.ID
			r.state.CustomerOrders = append(r.state.CustomerOrders[:i], r.state.CustomerOrders[i+1:]...)
			r.state.BuiltPizzas = append(r.state.BuiltPizzas, pizza)
			out = BuildOutcome{Pizza: pizza, FulfilledOrderID: order.ID}
		} else {
			pizza.Status = StatusUnmatched
			r.state.WastedPizzas = append(r.state.WastedPizzas, pizza)
			out = BuildOutcome{Pizza: pizza, Wasted: true, ErrorMessage: "No matching order!"}
		}
	}

	p.BuilderIngredients = []Ingredient{}
	if r.state.Round > 1 {
		out.ClearedBuilder = target
	}
	r.state.LastUpdated = nowUnix
	return out, nil
}

// MoveToOven transfers a built pizza into the oven. Rejected while the oven
// is on or at capacity.
func (r *Room) MoveToOven(pizzaID string) (Pizza, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.OvenOn {
		return Pizza{}, ErrOvenOn
	}
	idx := -1
	for i, p := range r.state.BuiltPizzas {
		if p.ID == pizzaID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Pizza{}, ErrUnknownPizza
	}
	if len(r.state.Oven) >= r.state.OvenCapacity {
		return Pizza{}, ErrOvenFull
	}
	pizza := r.state.BuiltPizzas[idx]
	r.state.BuiltPizzas = append(r.state.BuiltPizzas[:idx], r.state.BuiltPizzas[idx+1:]...)
	pizza.OvenStart = r.unix()
	r.state.Oven = append(r.state.Oven, pizza)
	r.state.LastUpdated = pizza.OvenStart
	return pizza, nil
}

// ToggleOven switches the oven. Turning it off bakes out everything inside:
// each pizza's accumulated oven-on time decides whether it lands in completed
// or wasted. Returns whether the state actually changed.
func (r *Room) ToggleOven(on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	nowUnix := r.unix()
	switch {
	case on && !r.state.OvenOn:
		r.state.OvenOn = true
		r.ovenStart = nowUnix
		r.state.LastUpdated = nowUnix
		return true
	case !on && r.state.OvenOn:
		r.bakeOutLocked(nowUnix, false)
		r.state.LastUpdated = nowUnix
		return true
	}
	return false
}

// bakeOutLocked empties the oven, classifying every pizza. When forced (round
// end) everything counts as undercooked waste regardless of time baked.
func (r *Room) bakeOutLocked(nowUnix float64, forced bool) {
	elapsed := nowUnix - r.ovenStart
	for _, p := range r.state.Oven {
		p.BakingTime += elapsed
		p.CompletedAt = nowUnix
		status := "incomplete"
		if forced {
			p.Status = StatusUndercooked
			r.state.WastedPizzas = append(r.state.WastedPizzas, p)
		} else {
			p.Status = ClassifyBake(p.BakingTime)
			if p.Status == StatusCooked {
				status = "completed"
				r.state.CompletedPizzas = append(r.state.CompletedPizzas, p)
			} else {
				r.state.WastedPizzas = append(r.state.WastedPizzas, p)
			}
		}
		r.leadTimes = append(r.leadTimes, LeadTime{PizzaID: p.ID, LeadTime: nowUnix - p.BuildStartTime, Status: status, StartTime: p.BuildStartTime})
	}
	r.state.Oven = []Pizza{}
	r.state.OvenOn = false
}

// StartRound moves waiting -> round, clearing per-round collections and, in
// round 3, seeding the pending order book.
func (r *Room) StartRound() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != PhaseWaiting {
		return ErrWrongPhase
	}
	r.state.Phase = PhaseRound
	r.roundStart = r.unix()
	r.state.ResetForRound()
	r.leadTimes = nil
	r.cfdHistory = nil
	if r.state.Round == 3 {
		r.state.PendingOrders = GenerateOrders(r.state.RoundDuration)
	}
	r.state.LastUpdated = r.roundStart
	return nil
}

// EndOutcome carries everything round_ended needs.
type EndOutcome struct {
	Result     RoundResult
	OvenWasOn  bool // an oven_toggled{off} must be emitted
	Round      int
}

// EndRound moves round -> debrief. Anything still in the oven is forced out
// as waste, then the round is scored.
func (r *Room) EndRound() (EndOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != PhaseRound {
		return EndOutcome{}, ErrWrongPhase
	}
	nowUnix := r.unix()
	ovenWasOn := r.state.OvenOn
	if ovenWasOn {
		r.bakeOutLocked(nowUnix, true)
	}

	completed := len(r.state.CompletedPizzas)
	wasted := len(r.state.WastedPizzas)
	unsold := len(r.state.BuiltPizzas)
	leftover := len(r.state.PreparedIngredients)

	var fulfilled, unmatched, remaining int
	if r.state.Round == 3 {
		for _, p := range r.state.CompletedPizzas {
			if p.OrderID != "" {
				fulfilled++
			} else {
				unmatched++
			}
		}
		remaining = len(r.state.CustomerOrders)
	}

	res := RoundResult{
		Score:                Score(r.state.Round, completed, wasted, unsold, leftover, fulfilled, unmatched, remaining),
		CompletedPizzasCount: completed,
		WastedPizzasCount:    wasted,
		UnsoldPizzasCount:    unsold,
		IngredientsLeftCount: leftover,
		LeadTimes:            append([]LeadTime(nil), r.leadTimes...),
		CFDData:              append([]CFDSample(nil), r.cfdHistory...),
	}
	if r.state.Round == 3 {
		res.FulfilledOrdersCount = fulfilled
		res.RemainingOrdersCount = remaining
		res.UnmatchedPizzasCount = unmatched
	}

	r.state.Phase = PhaseDebrief
	r.debriefStart = nowUnix
	r.cfdHistory = nil
	r.state.LastUpdated = nowUnix
	return EndOutcome{Result: res, OvenWasOn: ovenWasOn, Round: r.state.Round}, nil
}

// ResetRound leaves the debrief: advance to the next round, or wrap back to
// round 1 after the last one. Either way the room returns to waiting.
func (r *Room) ResetRound() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Round < r.state.MaxRounds {
		r.state.Round++
	} else {
		r.state.Round = 1
	}
	r.state.Phase = PhaseWaiting
	r.state.ResetForRound()
	r.leadTimes = nil
	r.state.LastUpdated = r.unix()
}

// RecordCFD samples the flow counters, once per timer tick during a round.
func (r *Room) RecordCFD() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != PhaseRound || r.roundStart == 0 {
		return
	}
	r.cfdHistory = append(r.cfdHistory, CFDSample{
		Time:   int(r.unix() - r.roundStart),
		Built:  len(r.state.BuiltPizzas),
		Oven:   len(r.state.Oven),
		Done:   len(r.state.CompletedPizzas),
		Wasted: len(r.state.WastedPizzas),
	})
}

// TickOutcome is what one time_request/timer pass produced.
type TickOutcome struct {
	Time           TimeResponse
	NewOrders      []Order // released from pending this tick (round 3)
	RoundExpired   bool
	DebriefExpired bool
}

// Tick is the fail-safe clock check behind both the heartbeat handler and the
// background round timer: it releases due customer orders and reports phase
// expiry so the caller can end or reset the round.
func (r *Room) Tick() TickOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	nowUnix := r.unix()
	var out TickOutcome

	switch r.state.Phase {
	case PhaseRound:
		elapsed := nowUnix - r.roundStart
		if r.roundStart > 0 && elapsed >= float64(r.state.RoundDuration) {
			out.RoundExpired = true
			return out
		}
		if r.state.Round == 3 && len(r.state.PendingOrders) > 0 {
			// Release due orders, at most ten per tick.
			var due, rest []Order
			for _, o := range r.state.PendingOrders {
				if o.ArrivalTime <= elapsed && len(due) < 10 {
					due = append(due, o)
				} else {
					rest = append(rest, o)
				}
			}
			if len(due) > 0 {
				r.state.CustomerOrders = append(r.state.CustomerOrders, due...)
				r.state.PendingOrders = rest
				r.state.LastUpdated = nowUnix
				out.NewOrders = due
			}
		}
		out.Time.RoundTimeRemaining = int(float64(r.state.RoundDuration) - elapsed)
	case PhaseDebrief:
		if r.debriefStart > 0 && nowUnix-r.debriefStart >= float64(r.state.DebriefDuration) {
			out.DebriefExpired = true
			return out
		}
		out.Time.RoundTimeRemaining = int(float64(r.state.DebriefDuration) - (nowUnix - r.debriefStart))
	}
	if out.Time.RoundTimeRemaining < 0 {
		out.Time.RoundTimeRemaining = 0
	}
	if r.state.OvenOn {
		out.Time.OvenTime = int(nowUnix - r.ovenStart)
	}
	out.Time.Phase = r.state.Phase
	return out
}

// OrdersSnapshot returns the currently open customer orders.
func (r *Room) OrdersSnapshot() []Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Order(nil), r.state.CustomerOrders...)
}
