package game

import (
	"math/rand"

	"github.com/google/uuid"
)

const (
	DefaultMaxRounds       = 3
	DefaultOvenCapacity    = 3
	DefaultRoundDuration   = 180 // seconds
	DefaultDebriefDuration = 120 // seconds

	// Baking time boundaries, in seconds of oven-on time.
	MinBakeSeconds = 30
	MaxBakeSeconds = 45
)

// NewID returns a short entity id, as used for ingredients, pizzas and orders.
func NewID() string {
	return uuid.NewString()[:8]
}

// NewState returns the state of a freshly created room.
func NewState() *State {
	return &State{
		Players:             map[string]*PlayerBuilder{},
		PreparedIngredients: []Ingredient{},
		BuiltPizzas:         []Pizza{},
		Oven:                []Pizza{},
		CompletedPizzas:     []Pizza{},
		WastedPizzas:        []Pizza{},
		Round:               1,
		MaxRounds:           DefaultMaxRounds,
		Phase:               PhaseWaiting,
		OvenCapacity:        DefaultOvenCapacity,
		RoundDuration:       DefaultRoundDuration,
		DebriefDuration:     DefaultDebriefDuration,
		CustomerOrders:      []Order{},
		PendingOrders:       []Order{},
	}
}

// ResetForRound clears the per-round collections in place. Builders are
// emptied for every player; the round counter itself is advanced elsewhere.
func (s *State) ResetForRound() {
	s.PreparedIngredients = []Ingredient{}
	s.BuiltPizzas = []Pizza{}
	s.Oven = []Pizza{}
	s.CompletedPizzas = []Pizza{}
	s.WastedPizzas = []Pizza{}
	s.CustomerOrders = []Order{}
	s.PendingOrders = []Order{}
	s.OvenOn = false
	for _, p := range s.Players {
		p.BuilderIngredients = []Ingredient{}
	}
}

// ValidateRecipe checks a builder's contents against the fixed round-1/2
// recipes. A valid pizza has one base, one sauce, and either four ham or two
// ham plus two pineapple.
func ValidateRecipe(c IngredientCounts) (pizzaType string, ok bool) {
	if c.Base != 1 || c.Sauce != 1 {
		return "", false
	}
	switch {
	case c.Ham == 4 && c.Pineapple == 0:
		return "bacon", true
	case c.Ham == 2 && c.Pineapple == 2:
		return "pineapple", true
	}
	return "", false
}

// ClassifyBake maps accumulated oven-on seconds to a pizza status.
func ClassifyBake(bakingSeconds float64) string {
	switch {
	case bakingSeconds < MinBakeSeconds:
		return StatusUndercooked
	case bakingSeconds <= MaxBakeSeconds:
		return StatusCooked
	}
	return StatusBurnt
}

// CountIngredients tallies a builder's contents by type. Unknown types are
// dropped, matching the server's tolerance for stale payloads.
func CountIngredients(items []Ingredient) IngredientCounts {
	var c IngredientCounts
	for _, i := range items {
		switch i.Type {
		case IngredientBase:
			c.Base++
		case IngredientSauce:
			c.Sauce++
		case IngredientHam:
			c.Ham++
		case IngredientPineapple:
			c.Pineapple++
		}
	}
	return c
}

// Score applies the per-round scoring formula. Rounds 1 and 2 reward finished
// pizzas and punish waste; round 3 additionally weighs order fulfillment.
func Score(round, completed, wasted, unsold, leftover, fulfilled, unmatched, remaining int) int {
	if round < 3 {
		return completed*10 - wasted*10 - unsold*5 - leftover
	}
	return fulfilled*20 - unmatched*10 - wasted*10 - unsold*5 - leftover - remaining*15
}

var orderCatalog = []Order{
	{Type: "ham", Ingredients: IngredientCounts{Base: 1, Sauce: 1, Ham: 4}},
	{Type: "pineapple", Ingredients: IngredientCounts{Base: 1, Sauce: 1, Pineapple: 4}},
	{Type: "ham & pineapple", Ingredients: IngredientCounts{Base: 1, Sauce: 1, Ham: 2, Pineapple: 2}},
	{Type: "light ham", Ingredients: IngredientCounts{Base: 1, Sauce: 1, Ham: 1}},
	{Type: "light pineapple", Ingredients: IngredientCounts{Base: 1, Sauce: 1, Pineapple: 1}},
	{Type: "plain", Ingredients: IngredientCounts{Base: 1, Sauce: 1}},
	{Type: "heavy ham", Ingredients: IngredientCounts{Base: 1, Sauce: 1, Ham: 6}},
	{Type: "heavy pineapple", Ingredients: IngredientCounts{Base: 1, Sauce: 1, Pineapple: 6}},
}

// GenerateOrders produces the round-3 order book: fifteen random orders with
// arrival times spread evenly across the round, the last one arriving 45
// seconds before the round ends so it can still be fulfilled.
func GenerateOrders(roundDurationSeconds int) []Order {
	const count = 15
	maxTime := float64(roundDurationSeconds - 45)
	orders := make([]Order, 0, count)
	for i := 0; i < count; i++ {
		o := orderCatalog[rand.Intn(len(orderCatalog))]
		o.ID = NewID()
		o.ArrivalTime = float64(i) * (maxTime / float64(count-1))
		orders = append(orders, o)
	}
	return orders
}

// MatchOrder finds the first customer order whose required counts equal the
// built counts exactly. Returns the index, or -1 when nothing matches.
func MatchOrder(orders []Order, c IngredientCounts) int {
	for i, o := range orders {
		if o.Ingredients == c {
			return i
		}
	}
	return -1
}
