package config

import (
	"errors"
	"fmt"
)

type Config struct {
	Bind        string
	Port        int
	RedisURL    string // empty means the in-memory room store
	PostgresDSN string // empty disables persistent high scores
	PublicURL   string // external base URL for QR join links
	Verbose     bool
}

func Default() Config {
	return Config{
		Bind: "0.0.0.0",
		Port: 8080,
	}
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	if c.Bind == "" {
		return errors.New("bind address must not be empty")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}
