package client

import (
	"sync"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
)

// IntentBuffer holds the ingredients the local player has optimistically
// dropped into their own builder during round 1, before the server confirms
// them. It is authoritative for local display only; everyone else's builders
// come from pushed canonical state. Every Push is paired with an outbound
// take_ingredient by the caller.
type IntentBuffer struct {
	mu    sync.Mutex
	items []game.Ingredient
}

func NewIntentBuffer() *IntentBuffer {
	return &IntentBuffer{}
}

func (b *IntentBuffer) Push(item game.Ingredient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
}

// Items returns a copy, safe to hand to the projector.
func (b *IntentBuffer) Items() []game.Ingredient {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]game.Ingredient(nil), b.items...)
}

func (b *IntentBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Drain atomically empties the buffer and returns what was in it.
func (b *IntentBuffer) Drain() []game.Ingredient {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// Clear drops everything. Called on round_started and game_reset; never on a
// build rejection, since the user is expected to just resubmit.
func (b *IntentBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = nil
}
