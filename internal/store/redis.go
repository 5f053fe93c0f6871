package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gomodule/redigo/redis"

	"github.com/southernadd-cmyk/kanbanpizza2/internal/game"
)

// Snapshots expire after a day; abandoned rooms must not pile up in redis.
const roomTTLSeconds = 86400

// Redis persists room snapshots and sid->room mappings under "room:<name>"
// and "sid:<id>" keys, so a restarted server picks up live rooms.
type Redis struct {
	pool *redis.Pool
}

func NewRedis(url string) (*Redis, error) {
	pool := &redis.Pool{
		MaxIdle: 3,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(url)
		},
	}
	conn := pool.Get()
	defer conn.Close()
	if _, err := conn.Do("PING"); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{pool: pool}, nil
}

// Ping verifies the connection, for the health endpoint.
func (r *Redis) Ping() error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("PING")
	return err
}

func (r *Redis) Close() error {
	return r.pool.Close()
}

func (r *Redis) SaveRoom(name string, snap game.RoomSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	conn := r.pool.Get()
	defer conn.Close()
	_, err = conn.Do("SET", "room:"+name, b, "EX", roomTTLSeconds)
	return err
}

func (r *Redis) LoadRoom(name string) (game.RoomSnapshot, bool, error) {
	conn := r.pool.Get()
	defer conn.Close()
	b, err := redis.Bytes(conn.Do("GET", "room:"+name))
	if err == redis.ErrNil {
		return game.RoomSnapshot{}, false, nil
	}
	if err != nil {
		return game.RoomSnapshot{}, false, err
	}
	var snap game.RoomSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		// A corrupt snapshot is treated as absent; the room restarts fresh.
		return game.RoomSnapshot{}, false, nil
	}
	return snap, true, nil
}

func (r *Redis) DeleteRoom(name string) error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("DEL", "room:"+name)
	return err
}

func (r *Redis) RoomNames() ([]string, error) {
	conn := r.pool.Get()
	defer conn.Close()
	keys, err := redis.Strings(conn.Do("KEYS", "room:*"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, "room:"))
	}
	return names, nil
}

func (r *Redis) SetSession(sid, room string) error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("SET", "sid:"+sid, room, "EX", roomTTLSeconds)
	return err
}

func (r *Redis) Session(sid string) (string, error) {
	conn := r.pool.Get()
	defer conn.Close()
	room, err := redis.String(conn.Do("GET", "sid:"+sid))
	if err == redis.ErrNil {
		return "", nil
	}
	return room, err
}

func (r *Redis) DropSession(sid string) error {
	conn := r.pool.Get()
	defer conn.Close()
	_, err := conn.Do("DEL", "sid:"+sid)
	return err
}
