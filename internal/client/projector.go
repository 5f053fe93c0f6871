package client

import (
	"sort"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
)

// Oven-button labels. When the oven is both on and full, "Oven is ON" wins.
const (
	LabelMoveToOven = "Move to Oven"
	LabelOvenOn     = "Oven is ON"
	LabelOvenFull   = "Oven Full"
)

// Control is an on-screen button's derived state.
type Control struct {
	Enabled bool
	Label   string
}

// PizzaCard is one pizza tile. MoveToOven is meaningful only in the built
// column.
type PizzaCard struct {
	ID         string
	Type       string
	Status     string
	MoveToOven Control
}

// BuilderView is one shared builder panel.
type BuilderView struct {
	SID         string
	Ingredients []game.IngredientType
}

type OrderCard struct {
	ID          string
	Label       string
	Ingredients game.IngredientCounts
}

type PoolItem struct {
	ID   string
	Type game.IngredientType
}

// RenderPlan is the full derived widget state for one frame. It carries no
// memory of its own: two Project calls over the same inputs produce equal
// plans, so re-rendering from it is idempotent.
type RenderPlan struct {
	Phase       game.Phase
	Round       int
	PlayerCount int

	GameAreaVisible   bool
	StartRoundVisible bool

	// Exactly one of the builder surfaces is visible.
	OwnBuilderVisible     bool
	SubmitVisible         bool
	SharedBuildersVisible bool
	BuilderHeading        string
	OwnBuilder            []game.IngredientType
	SharedBuilders        []BuilderView

	OrdersVisible bool
	OrderCount    int
	Orders        []OrderCard

	Pool      []PoolItem
	Built     []PizzaCard
	Oven      []PizzaCard
	Completed []PizzaCard
	Wasted    []PizzaCard

	OvenOn bool
}

// Project derives the complete widget state from the canonical game state and
// the local intent buffer (the round-1 own-builder contents). It is a pure
// function: no side effects, no reads beyond its arguments, and player maps
// are walked in sorted key order so equal states yield identical plans.
func Project(s *game.State, ownBuilder []game.Ingredient) RenderPlan {
	plan := RenderPlan{
		Phase:       s.Phase,
		Round:       s.Round,
		PlayerCount: len(s.Players),
		OvenOn:      s.OvenOn,
	}

	plan.GameAreaVisible = s.Phase == game.PhaseRound
	plan.StartRoundVisible = s.Phase != game.PhaseRound

	// Builder visibility precedence, in order:
	//  1. debrief between rounds: shared builders
	//  2. round 2 onwards: shared builders (populated only mid-round)
	//  3. otherwise: the player's own builder with its submit control
	switch {
	case s.Phase == game.PhaseDebrief && s.Round < s.MaxRounds && s.Round >= 1:
		plan.SharedBuildersVisible = true
		plan.BuilderHeading = "Shared Pizza Builders"
		plan.SharedBuilders = sharedBuilders(s)
	case s.Round > 1:
		plan.SharedBuildersVisible = true
		plan.BuilderHeading = "Shared Pizza Builders"
		if s.Phase == game.PhaseRound {
			plan.SharedBuilders = sharedBuilders(s)
		}
	default:
		plan.OwnBuilderVisible = true
		plan.SubmitVisible = true
		plan.BuilderHeading = "Your Pizza Builder"
		for _, item := range ownBuilder {
			plan.OwnBuilder = append(plan.OwnBuilder, item.Type)
		}
	}

	if s.Round == 3 && s.Phase == game.PhaseRound {
		plan.OrdersVisible = true
		plan.OrderCount = len(s.CustomerOrders)
		for _, o := range s.CustomerOrders {
			plan.Orders = append(plan.Orders, OrderCard{ID: o.ID, Label: o.Type, Ingredients: o.Ingredients})
		}
	}

	for _, item := range s.PreparedIngredients {
		plan.Pool = append(plan.Pool, PoolItem{ID: item.ID, Type: item.Type})
	}

	oven := ovenControl(s)
	for _, p := range s.BuiltPizzas {
		plan.Built = append(plan.Built, PizzaCard{ID: p.ID, Type: p.Type, Status: p.Status, MoveToOven: oven})
	}
	for _, p := range s.Oven {
		plan.Oven = append(plan.Oven, PizzaCard{ID: p.ID, Type: p.Type, Status: p.Status})
	}
	for _, p := range s.CompletedPizzas {
		plan.Completed = append(plan.Completed, PizzaCard{ID: p.ID, Type: p.Type, Status: p.Status})
	}
	for _, p := range s.WastedPizzas {
		plan.Wasted = append(plan.Wasted, PizzaCard{ID: p.ID, Type: p.Type, Status: p.Status})
	}

	return plan
}

// ovenControl derives the built-pizza oven button. Disabled while the oven is
// on or full; the oven-on label takes precedence when both hold.
func ovenControl(s *game.State) Control {
	switch {
	case s.OvenOn:
		return Control{Label: LabelOvenOn}
	case len(s.Oven) >= s.OvenCapacity:
		return Control{Label: LabelOvenFull}
	}
	return Control{Enabled: true, Label: LabelMoveToOven}
}

func sharedBuilders(s *game.State) []BuilderView {
	sids := make([]string, 0, len(s.Players))
	for sid := range s.Players {
		sids = append(sids, sid)
	}
	sort.Strings(sids)
	views := make([]BuilderView, 0, len(sids))
	for _, sid := range sids {
		v := BuilderView{SID: sid}
		for _, item := range s.Players[sid].BuilderIngredients {
			v.Ingredients = append(v.Ingredients, item.Type)
		}
		views = append(views, v)
	}
	return views
}
