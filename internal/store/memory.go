package store

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
)

// Memory implements both game.RoomStore and game.ScoreStore without any
// external service. Used when no redis URL / postgres DSN is configured, and
// throughout the tests.
type Memory struct {
	mu       sync.Mutex
	rooms    map[string][]byte
	sessions map[string]string
	scores   map[int][]game.HighScoreEntry // round -> ranked entries
}

func NewMemory() *Memory {
	return &Memory{
		rooms:    make(map[string][]byte),
		sessions: make(map[string]string),
		scores:   make(map[int][]game.HighScoreEntry),
	}
}

func (m *Memory) SaveRoom(name string, snap game.RoomSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[name] = b
	return nil
}

func (m *Memory) LoadRoom(name string) (game.RoomSnapshot, bool, error) {
	m.mu.Lock()
	b, ok := m.rooms[name]
	m.mu.Unlock()
	if !ok {
		return game.RoomSnapshot{}, false, nil
	}
	var snap game.RoomSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return game.RoomSnapshot{}, false, err
	}
	return snap, true, nil
}

func (m *Memory) DeleteRoom(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, name)
	return nil
}

func (m *Memory) RoomNames() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.rooms))
	for name := range m.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) SetSession(sid, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = room
	return nil
}

func (m *Memory) Session(sid string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sid], nil
}

func (m *Memory) DropSession(sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

// Record keeps the top three scores per round, highest first.
func (m *Memory) Record(room string, round, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := append(m.scores[round], game.HighScoreEntry{
		RoomName:  room,
		Score:     score,
		Timestamp: time.Now().UTC().Format("2006-01-02 15:04:05"),
	})
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > 3 {
		entries = entries[:3]
	}
	m.scores[round] = entries
	return nil
}

func (m *Memory) Top() (map[int]map[int]game.HighScoreEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[int]map[int]game.HighScoreEntry{1: {}, 2: {}, 3: {}}
	for round, entries := range m.scores {
		ranked := make(map[int]game.HighScoreEntry, len(entries))
		for i, e := range entries {
			ranked[i+1] = e
		}
		out[round] = ranked
	}
	return out, nil
}
