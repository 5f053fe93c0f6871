package client

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
)

func newTestReconciler() *Reconciler {
	return NewReconciler(zerolog.Nop())
}

func TestApplySnapshotReplacesState(t *testing.T) {
	r := newTestReconciler()
	r.ApplySnapshot([]byte(`{
		"players": {"p1": {"builder_ingredients": [], "last_activity": 0}},
		"prepared_ingredients": [{"id": "i1", "type": "base"}],
		"built_pizzas": [], "oven": [], "completed_pizzas": [], "wasted_pizzas": [],
		"round": 2, "max_rounds": 3, "current_phase": "round",
		"max_pizzas_in_oven": 3, "oven_on": true,
		"customer_orders": [], "pending_orders": []
	}`))

	s := r.State()
	if s.Round != 2 || s.Phase != game.PhaseRound || !s.OvenOn {
		t.Fatalf("snapshot not applied: %+v", s)
	}
	if len(s.PreparedIngredients) != 1 || s.PreparedIngredients[0].ID != "i1" {
		t.Fatal("pool not replaced")
	}
	if _, ok := s.Players["p1"]; !ok {
		t.Fatal("players not replaced")
	}

	// A later snapshot wins outright, even over interleaved deltas.
	r.ApplyUpdate([]byte(`{"oven_on": false}`))
	if r.State().OvenOn {
		t.Fatal("delta should have patched oven_on")
	}
	r.ApplySnapshot([]byte(`{
		"players": {}, "prepared_ingredients": [],
		"built_pizzas": [], "oven": [], "completed_pizzas": [], "wasted_pizzas": [],
		"round": 3, "current_phase": "round", "oven_on": true,
		"customer_orders": [], "pending_orders": []
	}`))
	s = r.State()
	if s.Round != 3 || !s.OvenOn {
		t.Fatal("later snapshot should replace earlier delta")
	}
	if len(s.PreparedIngredients) != 0 {
		t.Fatal("pool should be empty again")
	}
}

func TestApplySnapshotMissingFieldsKeepLastKnown(t *testing.T) {
	r := newTestReconciler()
	r.ApplySnapshot([]byte(`{
		"players": {"p1": {"builder_ingredients": []}},
		"prepared_ingredients": [{"id": "i1", "type": "sauce"}],
		"round": 1, "current_phase": "round"
	}`))
	r.ApplySnapshot([]byte(`{"round": 2}`))

	s := r.State()
	if s.Round != 2 {
		t.Fatal("present fields should apply")
	}
	if len(s.PreparedIngredients) != 1 {
		t.Fatal("absent pool should keep last-known value")
	}
	if _, ok := s.Players["p1"]; !ok {
		t.Fatal("absent players should keep last-known value")
	}
	if s.Phase != game.PhaseRound {
		t.Fatal("absent phase should keep last-known value")
	}
}

func TestApplySnapshotMalformedIsIgnored(t *testing.T) {
	r := newTestReconciler()
	r.ApplySnapshot([]byte(`{"round": 2, "players": {}}`))
	r.ApplySnapshot([]byte(`not json at all`))
	if r.State().Round != 2 {
		t.Fatal("malformed snapshot should leave state untouched")
	}
}

func TestApplyUpdatePatchesOnlyPresentFields(t *testing.T) {
	r := newTestReconciler()
	r.ApplyUpdate([]byte(`{"customer_orders": [{"id": "o1", "type": "plain"}]}`))
	s := r.State()
	if len(s.CustomerOrders) != 1 {
		t.Fatal("customer_orders should be patched")
	}
	if s.OvenOn {
		t.Fatal("absent oven_on must not be zeroed in")
	}

	r.ApplyUpdate([]byte(`{"oven_on": true}`))
	s = r.State()
	if !s.OvenOn {
		t.Fatal("oven_on should be patched")
	}
	if len(s.CustomerOrders) != 1 {
		t.Fatal("absent customer_orders must survive the second delta")
	}
}

func TestRoundStartedResetsCollections(t *testing.T) {
	r := newTestReconciler()
	r.ApplySnapshot([]byte(`{
		"players": {"p1": {"builder_ingredients": [{"id": "i1", "type": "ham"}]}},
		"prepared_ingredients": [{"id": "i2", "type": "base"}],
		"built_pizzas": [{"pizza_id": "z1"}],
		"oven": [], "completed_pizzas": [], "wasted_pizzas": [],
		"round": 1, "current_phase": "waiting", "oven_on": true,
		"customer_orders": [], "pending_orders": []
	}`))
	r.ApplyRoundEnded([]byte(`{"score": 5}`))
	if r.LastResult() == nil {
		t.Fatal("round_ended should record a result")
	}

	r.ApplyRoundStarted([]byte(`{"round": 2, "duration": 180}`))
	s := r.State()
	if s.Phase != game.PhaseRound || s.Round != 2 {
		t.Fatalf("expected round 2 running, got round=%d phase=%s", s.Round, s.Phase)
	}
	if len(s.PreparedIngredients) != 0 || len(s.BuiltPizzas) != 0 || s.OvenOn {
		t.Fatal("per-round collections should reset")
	}
	if len(s.Players["p1"].BuilderIngredients) != 0 {
		t.Fatal("builders should reset")
	}
	if r.LastResult() != nil {
		t.Fatal("round_started should clear the debrief summary")
	}
}

func TestGameResetForcesWaiting(t *testing.T) {
	r := newTestReconciler()
	r.ApplyGameReset([]byte(`{"players": {}, "round": 2, "current_phase": "round"}`))
	if r.State().Phase != game.PhaseWaiting {
		t.Fatal("game_reset should land in waiting regardless of payload phase")
	}
	if r.State().Round != 2 {
		t.Fatal("round should come from the embedded snapshot")
	}
}

func TestPizzaExclusivity(t *testing.T) {
	r := newTestReconciler()
	r.ApplyPizzaBuilt([]byte(`{"pizza_id": "z1", "type": "bacon"}`))
	if len(r.State().BuiltPizzas) != 1 {
		t.Fatal("pizza should be in built")
	}

	r.ApplyPizzaMovedToOven([]byte(`{"pizza_id": "z1", "type": "bacon"}`))
	s := r.State()
	if len(s.BuiltPizzas) != 0 {
		t.Fatal("pizza must leave built when entering the oven")
	}
	if len(s.Oven) != 1 {
		t.Fatal("pizza should be in the oven")
	}

	// Replayed event: still exactly one copy.
	r.ApplyPizzaMovedToOven([]byte(`{"pizza_id": "z1", "type": "bacon"}`))
	if len(r.State().Oven) != 1 {
		t.Fatal("duplicate delivery should not duplicate the pizza")
	}
}

func TestPizzaBuiltInvalidGoesToWasted(t *testing.T) {
	r := newTestReconciler()
	r.ApplyPizzaBuilt([]byte(`{"pizza_id": "z1", "status": "invalid"}`))
	s := r.State()
	if len(s.WastedPizzas) != 1 || len(s.BuiltPizzas) != 0 {
		t.Fatal("invalid pizza should land in wasted")
	}
}

func TestIngredientEvents(t *testing.T) {
	r := newTestReconciler()
	r.ApplyIngredientPrepared([]byte(`{"id": "i1", "type": "base"}`))
	r.ApplyIngredientPrepared([]byte(`{"id": "i1", "type": "base"}`))
	if len(r.State().PreparedIngredients) != 1 {
		t.Fatal("duplicate prepare should be idempotent")
	}

	r.ApplyIngredientRemoved([]byte(`{"ingredient_id": "i1"}`))
	if len(r.State().PreparedIngredients) != 0 {
		t.Fatal("ingredient should leave the pool")
	}
	// Removing it again is a no-op, not a panic.
	r.ApplyIngredientRemoved([]byte(`{"ingredient_id": "i1"}`))
}

func TestOrderEvents(t *testing.T) {
	r := newTestReconciler()
	r.ApplyNewOrder([]byte(`{"id": "o1", "type": "plain"}`))
	r.ApplyNewOrder([]byte(`{"id": "o1", "type": "plain"}`))
	if len(r.State().CustomerOrders) != 1 {
		t.Fatal("duplicate order should be idempotent")
	}
	r.ApplyOrderFulfilled([]byte(`{"order_id": "o1"}`))
	if len(r.State().CustomerOrders) != 0 {
		t.Fatal("fulfilled order should close")
	}
}

func TestClearSharedBuilder(t *testing.T) {
	r := newTestReconciler()
	r.ApplySnapshot([]byte(`{
		"players": {"p1": {"builder_ingredients": [{"id": "i1", "type": "ham"}]}},
		"round": 2, "current_phase": "round"
	}`))
	r.ApplyClearSharedBuilder([]byte(`{"player_sid": "p1"}`))
	if len(r.State().Players["p1"].BuilderIngredients) != 0 {
		t.Fatal("builder should be cleared")
	}
	// Unknown sid is tolerated.
	r.ApplyClearSharedBuilder([]byte(`{"player_sid": "ghost"}`))
}

func TestMalformedEventPayloadsAreIgnored(t *testing.T) {
	r := newTestReconciler()
	payloads := []json.RawMessage{
		[]byte(`garbage`),
		[]byte(`{"pizza_id": ""}`),
		[]byte(`123`),
	}
	for _, p := range payloads {
		r.ApplyPizzaBuilt(p)
		r.ApplyIngredientPrepared(p)
		r.ApplyNewOrder(p)
	}
	s := r.State()
	if len(s.BuiltPizzas)+len(s.PreparedIngredients)+len(s.CustomerOrders) != 0 {
		t.Fatal("malformed payloads must not create entities")
	}
}
