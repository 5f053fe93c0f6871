package game

import (
	"testing"
)

func TestNewState(t *testing.T) {
	s := NewState()
	if s.Players == nil {
		t.Fatal("players map should be initialized")
	}
	if s.Round != 1 {
		t.Fatalf("expected round 1, got %d", s.Round)
	}
	if s.Phase != PhaseWaiting {
		t.Fatalf("expected phase %s, got %s", PhaseWaiting, s.Phase)
	}
	if s.OvenCapacity != DefaultOvenCapacity {
		t.Fatalf("expected oven capacity %d, got %d", DefaultOvenCapacity, s.OvenCapacity)
	}
}

func TestValidateRecipe(t *testing.T) {
	cases := []struct {
		name   string
		counts IngredientCounts
		typ    string
		ok     bool
	}{
		{"bacon", IngredientCounts{Base: 1, Sauce: 1, Ham: 4}, "bacon", true},
		{"pineapple", IngredientCounts{Base: 1, Sauce: 1, Ham: 2, Pineapple: 2}, "pineapple", true},
		{"no base", IngredientCounts{Sauce: 1, Ham: 4}, "", false},
		{"two bases", IngredientCounts{Base: 2, Sauce: 1, Ham: 4}, "", false},
		{"ham and extra pineapple", IngredientCounts{Base: 1, Sauce: 1, Ham: 4, Pineapple: 1}, "", false},
		{"three ham", IngredientCounts{Base: 1, Sauce: 1, Ham: 3}, "", false},
		{"empty", IngredientCounts{}, "", false},
	}
	for _, tc := range cases {
		typ, ok := ValidateRecipe(tc.counts)
		if ok != tc.ok || typ != tc.typ {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", tc.name, typ, ok, tc.typ, tc.ok)
		}
	}
}

func TestClassifyBake(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0, StatusUndercooked},
		{29.9, StatusUndercooked},
		{30, StatusCooked},
		{45, StatusCooked},
		{45.1, StatusBurnt},
		{300, StatusBurnt},
	}
	for _, tc := range cases {
		if got := ClassifyBake(tc.seconds); got != tc.want {
			t.Errorf("ClassifyBake(%v) = %s, want %s", tc.seconds, got, tc.want)
		}
	}
}

func TestCountIngredientsDropsUnknownTypes(t *testing.T) {
	c := CountIngredients([]Ingredient{
		{Type: IngredientBase},
		{Type: IngredientSauce},
		{Type: IngredientHam},
		{Type: "anchovy"},
	})
	want := IngredientCounts{Base: 1, Sauce: 1, Ham: 1}
	if c != want {
		t.Fatalf("got %+v, want %+v", c, want)
	}
}

func TestScoreEarlyRounds(t *testing.T) {
	// 3 completed, 1 wasted, 2 unsold, 4 ingredients left over.
	got := Score(1, 3, 1, 2, 4, 0, 0, 0)
	want := 3*10 - 1*10 - 2*5 - 4
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	if Score(2, 3, 1, 2, 4, 0, 0, 0) != want {
		t.Fatal("round 2 should score like round 1")
	}
}

func TestScoreFinalRound(t *testing.T) {
	// 5 fulfilled, 2 unmatched, 1 wasted, 1 unsold, 3 left over, 4 remaining.
	got := Score(3, 0, 1, 1, 3, 5, 2, 4)
	want := 5*20 - 2*10 - 1*10 - 1*5 - 3 - 4*15
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestGenerateOrders(t *testing.T) {
	orders := GenerateOrders(DefaultRoundDuration)
	if len(orders) != 15 {
		t.Fatalf("expected 15 orders, got %d", len(orders))
	}
	maxTime := float64(DefaultRoundDuration - 45)
	if orders[0].ArrivalTime != 0 {
		t.Fatalf("first order should arrive at 0, got %v", orders[0].ArrivalTime)
	}
	if orders[len(orders)-1].ArrivalTime != maxTime {
		t.Fatalf("last order should arrive at %v, got %v", maxTime, orders[len(orders)-1].ArrivalTime)
	}
	seen := map[string]bool{}
	for i, o := range orders {
		if o.ID == "" {
			t.Fatalf("order %d has no id", i)
		}
		if seen[o.ID] {
			t.Fatalf("duplicate order id %s", o.ID)
		}
		seen[o.ID] = true
		if i > 0 && o.ArrivalTime < orders[i-1].ArrivalTime {
			t.Fatal("arrival times should be non-decreasing")
		}
	}
}

func TestMatchOrder(t *testing.T) {
	orders := []Order{
		{ID: "a", Ingredients: IngredientCounts{Base: 1, Sauce: 1, Ham: 4}},
		{ID: "b", Ingredients: IngredientCounts{Base: 1, Sauce: 1}},
	}
	if i := MatchOrder(orders, IngredientCounts{Base: 1, Sauce: 1}); i != 1 {
		t.Fatalf("expected match at 1, got %d", i)
	}
	if i := MatchOrder(orders, IngredientCounts{Base: 1, Sauce: 1, Ham: 3}); i != -1 {
		t.Fatalf("expected no match, got %d", i)
	}
	// Exact match only: extra pineapple disqualifies.
	if i := MatchOrder(orders, IngredientCounts{Base: 1, Sauce: 1, Ham: 4, Pineapple: 1}); i != -1 {
		t.Fatalf("expected no match, got %d", i)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if len(a) != 8 {
		t.Fatalf("expected 8-char id, got %q", a)
	}
	if a == b {
		t.Fatal("ids should not repeat")
	}
}
