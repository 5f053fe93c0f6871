package game

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseRound   Phase = "round"
	PhaseDebrief Phase = "debrief"
)

type IngredientType string

const (
	IngredientBase      IngredientType = "base"
	IngredientSauce     IngredientType = "sauce"
	IngredientHam       IngredientType = "ham"
	IngredientPineapple IngredientType = "pineapple"
)

// Pizza status values assigned by build validation and by the oven.
const (
	StatusInvalid     = "invalid"
	StatusUnmatched   = "unmatched"
	StatusUndercooked = "undercooked"
	StatusCooked      = "cooked"
	StatusBurnt       = "burnt"
)

// Ingredient is a prepared ingredient sitting in the shared pool or inside a
// builder. Timestamps are unix seconds, matching the wire format.
type Ingredient struct {
	ID         string         `json:"id"`
	Type       IngredientType `json:"type"`
	PreparedBy string         `json:"prepared_by,omitempty"`
	PreparedAt float64        `json:"prepared_at,omitempty"`
}

type IngredientCounts struct {
	Base      int `json:"base"`
	Sauce     int `json:"sauce"`
	Ham       int `json:"ham"`
	Pineapple int `json:"pineapple"`
}

type Pizza struct {
	ID             string           `json:"pizza_id"`
	Team           string           `json:"team,omitempty"`
	Type           string           `json:"type,omitempty"`
	Status         string           `json:"status,omitempty"`
	OrderID        string           `json:"order_id,omitempty"`
	Ingredients    IngredientCounts `json:"ingredients"`
	BuiltAt        float64          `json:"built_at,omitempty"`
	BuildStartTime float64          `json:"build_start_time,omitempty"`
	OvenStart      float64          `json:"oven_start,omitempty"`
	BakingTime     float64          `json:"baking_time"`
	CompletedAt    float64          `json:"completed_at,omitempty"`
}

// Order is a round-3 customer order. Type is a display label derived from the
// ingredient counts; matching is done on the counts, never on the label.
type Order struct {
	ID          string           `json:"id"`
	Type        string           `json:"type"`
	Ingredients IngredientCounts `json:"ingredients"`
	ArrivalTime float64          `json:"arrival_time"`
}

// PlayerBuilder is one player's in-progress pizza. Owned by that player during
// round 1; shared by the whole room from round 2 on.
type PlayerBuilder struct {
	BuilderIngredients []Ingredient `json:"builder_ingredients"`
	LastActivity       float64      `json:"last_activity,omitempty"`
}

// State is the canonical game state as it travels on the wire: the server
// pushes it whole in full_snapshot/game_reset, and the client reconciler
// replaces or patches its copy of it. Field names match the protocol.
type State struct {
	Players             map[string]*PlayerBuilder `json:"players"`
	PreparedIngredients []Ingredient              `json:"prepared_ingredients"`
	BuiltPizzas         []Pizza                   `json:"built_pizzas"`
	Oven                []Pizza                   `json:"oven"`
	CompletedPizzas     []Pizza                   `json:"completed_pizzas"`
	WastedPizzas        []Pizza                   `json:"wasted_pizzas"`
	Round               int                       `json:"round"`
	MaxRounds           int                       `json:"max_rounds"`
	Phase               Phase                     `json:"current_phase"`
	OvenCapacity        int                       `json:"max_pizzas_in_oven"`
	OvenOn              bool                      `json:"oven_on"`
	RoundDuration       int                       `json:"round_duration"`
	DebriefDuration     int                       `json:"debrief_duration"`
	CustomerOrders      []Order                   `json:"customer_orders"`
	PendingOrders       []Order                   `json:"pending_orders"`
	LastUpdated         float64                   `json:"last_updated"`
}

// LeadTime records how long one pizza spent between its first ingredient and
// leaving the oven, for the debrief chart.
type LeadTime struct {
	PizzaID   string  `json:"pizza_id"`
	LeadTime  float64 `json:"lead_time"`
	Status    string  `json:"status"` // "completed" | "incomplete"
	StartTime float64 `json:"start_time"`
}

// CFDSample is one cumulative-flow-diagram data point, sampled during a round.
type CFDSample struct {
	Time   int `json:"time"`
	Built  int `json:"built"`
	Oven   int `json:"oven"`
	Done   int `json:"done"`
	Wasted int `json:"wasted"`
}

// RoundResult is the read-only summary attached to round_ended.
type RoundResult struct {
	Score                int         `json:"score"`
	CompletedPizzasCount int         `json:"completed_pizzas_count"`
	WastedPizzasCount    int         `json:"wasted_pizzas_count"`
	UnsoldPizzasCount    int         `json:"unsold_pizzas_count"`
	IngredientsLeftCount int         `json:"ingredients_left_count"`
	LeadTimes            []LeadTime  `json:"lead_times,omitempty"`
	CFDData              []CFDSample `json:"cfd_data,omitempty"`
	// Round 3 only.
	FulfilledOrdersCount int `json:"fulfilled_orders_count,omitempty"`
	RemainingOrdersCount int `json:"remaining_orders_count,omitempty"`
	UnmatchedPizzasCount int `json:"unmatched_pizzas_count,omitempty"`
}

// TimeResponse answers the client's 1s time_request heartbeat.
type TimeResponse struct {
	Phase              Phase `json:"phase"`
	RoundTimeRemaining int   `json:"roundTimeRemaining"`
	OvenTime           int   `json:"ovenTime"`
}

// RoomList is broadcast whenever rooms appear, fill up, or expire.
type RoomList struct {
	Rooms      map[string]int                 `json:"rooms"`
	HighScores map[int]map[int]HighScoreEntry `json:"high_scores"`
}

// HighScoreEntry is one ranked entry of the persistent leaderboard.
type HighScoreEntry struct {
	RoomName  string `json:"room_name"`
	Score     int    `json:"score"`
	Timestamp string `json:"timestamp"`
}
