package game

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeStore struct {
	rooms    map[string]RoomSnapshot
	sessions map[string]string
	scores   map[int][]HighScoreEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:    map[string]RoomSnapshot{},
		sessions: map[string]string{},
		scores:   map[int][]HighScoreEntry{},
	}
}

func (f *fakeStore) SaveRoom(name string, snap RoomSnapshot) error {
	f.rooms[name] = snap
	return nil
}

func (f *fakeStore) LoadRoom(name string) (RoomSnapshot, bool, error) {
	snap, ok := f.rooms[name]
	return snap, ok, nil
}

func (f *fakeStore) DeleteRoom(name string) error {
	delete(f.rooms, name)
	return nil
}

func (f *fakeStore) RoomNames() ([]string, error) {
	var names []string
	for name := range f.rooms {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeStore) SetSession(sid, room string) error {
	f.sessions[sid] = room
	return nil
}

func (f *fakeStore) Session(sid string) (string, error) {
	return f.sessions[sid], nil
}

func (f *fakeStore) DropSession(sid string) error {
	delete(f.sessions, sid)
	return nil
}

func (f *fakeStore) Record(room string, round, score int) error {
	f.scores[round] = append(f.scores[round], HighScoreEntry{RoomName: room, Score: score})
	return nil
}

func (f *fakeStore) Top() (map[int]map[int]HighScoreEntry, error) {
	return map[int]map[int]HighScoreEntry{}, nil
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager() (*Manager, *fakeStore, *testClock) {
	st := newFakeStore()
	m := NewManager(st, st)
	clk := &testClock{t: time.Unix(1_700_000_000, 0)}
	m.SetClock(clk.now)
	return m, st, clk
}

func TestJoinValidation(t *testing.T) {
	m, _, _ := newTestManager()

	if _, err := m.Join("", "pw", "sid1"); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
	if _, err := m.Join("kitchen", "", "sid1"); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}

	if _, err := m.Join("kitchen", "pw", "sid1"); err != nil {
		t.Fatalf("first join should create the room: %v", err)
	}
	if _, err := m.Join("kitchen", "wrong", "sid2"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}

	for i := 2; i <= MaxPlayers; i++ {
		if _, err := m.Join("kitchen", "pw", fmt.Sprintf("sid%d", i)); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}
	if _, err := m.Join("kitchen", "pw", "sid6"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	// Rejoining an existing member of a full room is fine.
	if _, err := m.Join("kitchen", "pw", "sid3"); err != nil {
		t.Fatalf("rejoin should succeed: %v", err)
	}
}

func TestJoinMaxRooms(t *testing.T) {
	m, _, _ := newTestManager()
	for i := 0; i < MaxRooms; i++ {
		if _, err := m.Join(fmt.Sprintf("room%d", i), "pw", fmt.Sprintf("sid%d", i)); err != nil {
			t.Fatalf("join %d failed: %v", i, err)
		}
	}
	if _, err := m.Join("onemore", "pw", "sidx"); !errors.Is(err, ErrMaxRooms) {
		t.Fatalf("expected ErrMaxRooms, got %v", err)
	}
}

func TestJoinReloadsFromStore(t *testing.T) {
	m, st, _ := newTestManager()
	if _, err := m.Join("kitchen", "pw", "sid1"); err != nil {
		t.Fatal(err)
	}

	// A fresh manager over the same store picks the room back up.
	m2 := NewManager(st, st)
	if _, err := m2.Join("kitchen", "wrong", "sid2"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("reloaded room should keep its password, got %v", err)
	}
	room, err := m2.Join("kitchen", "pw", "sid2")
	if err != nil {
		t.Fatalf("rejoin after reload failed: %v", err)
	}
	if got := len(room.Snapshot().Players); got != 2 {
		t.Fatalf("expected 2 players after reload, got %d", got)
	}
}

func TestLeave(t *testing.T) {
	m, _, _ := newTestManager()
	m.Join("kitchen", "pw", "sid1")
	m.Join("kitchen", "pw", "sid2")

	name, _, emptied := m.Leave("sid1")
	if name != "kitchen" || emptied {
		t.Fatalf("expected non-empty kitchen, got name=%q emptied=%v", name, emptied)
	}
	name, _, emptied = m.Leave("sid2")
	if name != "kitchen" || !emptied {
		t.Fatalf("expected kitchen to empty out, got name=%q emptied=%v", name, emptied)
	}
	if _, ok := m.Room("kitchen"); ok {
		t.Fatal("emptied room should be gone")
	}
}

func prepareAndTake(t *testing.T, room *Room, sid string, types ...IngredientType) {
	t.Helper()
	for _, typ := range types {
		item, err := room.PrepareIngredient(sid, typ)
		if err != nil {
			t.Fatalf("prepare %s: %v", typ, err)
		}
		if _, err := room.TakeIngredient(sid, item.ID, ""); err != nil {
			t.Fatalf("take %s: %v", typ, err)
		}
	}
}

func TestRoundOneFlow(t *testing.T) {
	m, _, clk := newTestManager()
	room, err := m.Join("kitchen", "pw", "sid1")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := room.PrepareIngredient("sid1", IngredientBase); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("prepare before round start should fail, got %v", err)
	}
	if err := room.StartRound(); err != nil {
		t.Fatal(err)
	}
	if err := room.StartRound(); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("double start should fail, got %v", err)
	}

	if _, err := room.BuildPizza("sid1", ""); !errors.Is(err, ErrEmptyBuilder) {
		t.Fatalf("empty builder should be rejected, got %v", err)
	}

	prepareAndTake(t, room, "sid1", IngredientBase, IngredientSauce, IngredientHam, IngredientHam, IngredientHam, IngredientHam)
	out, err := room.BuildPizza("sid1", "")
	if err != nil {
		t.Fatal(err)
	}
	if out.Wasted {
		t.Fatalf("valid bacon pizza marked wasted: %s", out.ErrorMessage)
	}
	if out.Pizza.Type != "bacon" {
		t.Fatalf("expected bacon, got %q", out.Pizza.Type)
	}
	if out.ClearedBuilder != "" {
		t.Fatal("round 1 builds should not clear a shared builder")
	}

	pizza, err := room.MoveToOven(out.Pizza.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !room.ToggleOven(true) {
		t.Fatal("oven should turn on")
	}
	if _, err := room.MoveToOven("whatever"); !errors.Is(err, ErrOvenOn) {
		t.Fatalf("loading a running oven should fail with ErrOvenOn, got %v", err)
	}

	clk.advance(35 * time.Second)
	if !room.ToggleOven(false) {
		t.Fatal("oven should turn off")
	}
	state := room.Snapshot()
	if len(state.CompletedPizzas) != 1 {
		t.Fatalf("expected 1 completed pizza, got %d", len(state.CompletedPizzas))
	}
	if state.CompletedPizzas[0].ID != pizza.ID {
		t.Fatal("wrong pizza completed")
	}
	if state.CompletedPizzas[0].Status != StatusCooked {
		t.Fatalf("expected cooked, got %s", state.CompletedPizzas[0].Status)
	}
}

func TestBuildInvalidCombo(t *testing.T) {
	m, _, _ := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")
	room.StartRound()

	prepareAndTake(t, room, "sid1", IngredientBase, IngredientSauce, IngredientHam)
	out, err := room.BuildPizza("sid1", "")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Wasted || out.ErrorMessage != "Invalid Combo!" {
		t.Fatalf("expected Invalid Combo!, got wasted=%v msg=%q", out.Wasted, out.ErrorMessage)
	}
	if out.Pizza.Status != StatusInvalid {
		t.Fatalf("expected status %s, got %s", StatusInvalid, out.Pizza.Status)
	}
	state := room.Snapshot()
	if len(state.WastedPizzas) != 1 || len(state.BuiltPizzas) != 0 {
		t.Fatal("invalid pizza should land in wasted only")
	}
}

func TestOvenCapacity(t *testing.T) {
	m, _, _ := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")
	room.StartRound()

	ids := make([]string, 0, DefaultOvenCapacity+1)
	for i := 0; i <= DefaultOvenCapacity; i++ {
		prepareAndTake(t, room, "sid1", IngredientBase, IngredientSauce, IngredientHam, IngredientHam, IngredientHam, IngredientHam)
		out, err := room.BuildPizza("sid1", "")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, out.Pizza.ID)
	}
	for i := 0; i < DefaultOvenCapacity; i++ {
		if _, err := room.MoveToOven(ids[i]); err != nil {
			t.Fatalf("move %d: %v", i, err)
		}
	}
	if _, err := room.MoveToOven(ids[DefaultOvenCapacity]); !errors.Is(err, ErrOvenFull) {
		t.Fatalf("expected ErrOvenFull, got %v", err)
	}
}

func TestEndRoundForcesBakeOut(t *testing.T) {
	m, _, clk := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")
	room.StartRound()

	prepareAndTake(t, room, "sid1", IngredientBase, IngredientSauce, IngredientHam, IngredientHam, IngredientHam, IngredientHam)
	out, _ := room.BuildPizza("sid1", "")
	room.MoveToOven(out.Pizza.ID)
	room.ToggleOven(true)
	clk.advance(40 * time.Second)

	end, err := room.EndRound()
	if err != nil {
		t.Fatal(err)
	}
	if !end.OvenWasOn {
		t.Fatal("end outcome should flag the oven as having been on")
	}
	// Forced bake-out wastes everything regardless of baking time.
	state := room.Snapshot()
	if len(state.WastedPizzas) != 1 || len(state.CompletedPizzas) != 0 {
		t.Fatalf("expected forced waste, got wasted=%d completed=%d", len(state.WastedPizzas), len(state.CompletedPizzas))
	}
	if state.Phase != PhaseDebrief {
		t.Fatalf("expected debrief, got %s", state.Phase)
	}
	want := Score(1, 0, 1, 0, 0, 0, 0, 0)
	if end.Result.Score != want {
		t.Fatalf("expected score %d, got %d", want, end.Result.Score)
	}
}

func TestResetRoundAdvancesAndWraps(t *testing.T) {
	m, _, _ := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")

	for want := 2; want <= 3; want++ {
		room.StartRound()
		if _, err := room.EndRound(); err != nil {
			t.Fatal(err)
		}
		room.ResetRound()
		if got := room.Snapshot().Round; got != want {
			t.Fatalf("expected round %d, got %d", want, got)
		}
	}
	room.StartRound()
	room.EndRound()
	room.ResetRound()
	state := room.Snapshot()
	if state.Round != 1 {
		t.Fatalf("expected wrap to round 1, got %d", state.Round)
	}
	if state.Phase != PhaseWaiting {
		t.Fatalf("expected waiting, got %s", state.Phase)
	}
}

func TestTakeIngredientRedirect(t *testing.T) {
	m, _, _ := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")
	m.Join("kitchen", "pw", "sid2")

	// Advance to round 2 where shared builders are live.
	room.StartRound()
	room.EndRound()
	room.ResetRound()
	room.StartRound()

	item, err := room.PrepareIngredient("sid1", IngredientBase)
	if err != nil {
		t.Fatal(err)
	}
	target, err := room.TakeIngredient("sid1", item.ID, "sid2")
	if err != nil {
		t.Fatal(err)
	}
	if target != "sid2" {
		t.Fatalf("expected redirect to sid2, got %q", target)
	}
	state := room.Snapshot()
	if len(state.Players["sid2"].BuilderIngredients) != 1 {
		t.Fatal("ingredient should land in sid2's builder")
	}
	if len(state.Players["sid1"].BuilderIngredients) != 0 {
		t.Fatal("sid1's builder should stay empty")
	}

	if _, err := room.TakeIngredient("sid1", "nope", ""); !errors.Is(err, ErrUnknownIngredient) {
		t.Fatalf("expected ErrUnknownIngredient, got %v", err)
	}
}

func TestRoundThreeOrderMatching(t *testing.T) {
	m, _, clk := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")

	for i := 0; i < 2; i++ {
		room.StartRound()
		room.EndRound()
		room.ResetRound()
	}
	if room.Snapshot().Round != 3 {
		t.Fatal("setup should land in round 3")
	}
	room.StartRound()

	// The first pending order arrives at t=0; a tick releases it.
	clk.advance(time.Second)
	out := room.Tick()
	if len(out.NewOrders) == 0 {
		t.Fatal("expected at least one released order")
	}
	orders := room.OrdersSnapshot()
	if len(orders) == 0 {
		t.Fatal("released orders should be open")
	}

	order := orders[0]
	var types []IngredientType
	for i := 0; i < order.Ingredients.Base; i++ {
		types = append(types, IngredientBase)
	}
	for i := 0; i < order.Ingredients.Sauce; i++ {
		types = append(types, IngredientSauce)
	}
	for i := 0; i < order.Ingredients.Ham; i++ {
		types = append(types, IngredientHam)
	}
	for i := 0; i < order.Ingredients.Pineapple; i++ {
		types = append(types, IngredientPineapple)
	}
	prepareAndTake(t, room, "sid1", types...)

	built, err := room.BuildPizza("sid1", "")
	if err != nil {
		t.Fatal(err)
	}
	if built.FulfilledOrderID != order.ID {
		t.Fatalf("expected to fulfill %s, got %q", order.ID, built.FulfilledOrderID)
	}
	if built.Pizza.OrderID != order.ID {
		t.Fatal("pizza should carry the fulfilled order id")
	}
	for _, o := range room.OrdersSnapshot() {
		if o.ID == order.ID {
			t.Fatal("fulfilled order should be closed")
		}
	}
}

func TestTickExpiry(t *testing.T) {
	m, _, clk := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")
	room.StartRound()

	out := room.Tick()
	if out.RoundExpired {
		t.Fatal("round should not expire immediately")
	}
	if out.Time.RoundTimeRemaining > DefaultRoundDuration {
		t.Fatalf("remaining %d exceeds the round duration", out.Time.RoundTimeRemaining)
	}

	clk.advance(time.Duration(DefaultRoundDuration+1) * time.Second)
	out = room.Tick()
	if !out.RoundExpired {
		t.Fatal("round should expire after its duration")
	}
	if _, err := room.EndRound(); err != nil {
		t.Fatal(err)
	}

	clk.advance(time.Duration(DefaultDebriefDuration+1) * time.Second)
	out = room.Tick()
	if !out.DebriefExpired {
		t.Fatal("debrief should expire after its duration")
	}
}

func TestSweep(t *testing.T) {
	m, _, clk := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")
	m.Join("kitchen", "pw", "sid2")

	clk.advance(PlayerTimeout + time.Second)
	room.Touch("sid1") // sid1 stays alive, sid2 idles out

	expired := m.Sweep()
	if len(expired) != 0 {
		t.Fatalf("room should survive, expired %v", expired)
	}
	if got := len(room.Snapshot().Players); got != 1 {
		t.Fatalf("expected 1 player after sweep, got %d", got)
	}

	clk.advance(RoomTimeout + time.Second)
	expired = m.Sweep()
	if len(expired) != 1 || expired[0] != "kitchen" {
		t.Fatalf("expected kitchen to expire, got %v", expired)
	}
	if _, ok := m.Room("kitchen"); ok {
		t.Fatal("expired room should be gone")
	}
}

func TestRecordCFD(t *testing.T) {
	m, _, clk := newTestManager()
	room, _ := m.Join("kitchen", "pw", "sid1")

	room.RecordCFD() // no-op outside a round
	room.StartRound()
	clk.advance(5 * time.Second)
	room.RecordCFD()
	clk.advance(5 * time.Second)
	room.RecordCFD()

	end, err := room.EndRound()
	if err != nil {
		t.Fatal(err)
	}
	if len(end.Result.CFDData) != 2 {
		t.Fatalf("expected 2 cfd samples, got %d", len(end.Result.CFDData))
	}
	if end.Result.CFDData[1].Time != 10 {
		t.Fatalf("expected sample at t=10, got %d", end.Result.CFDData[1].Time)
	}
}
