package client

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// CredentialStore persists the last joined room and its password across
// process restarts, the terminal equivalent of the browser's local storage.
type CredentialStore interface {
	Load() (room, password string, ok bool)
	Save(room, password string) error
	Clear() error
}

// FileCredentials keeps the credentials in a mode-0600 JSON file under the
// user's state directory.
type FileCredentials struct {
	path string
}

func NewFileCredentials(path string) *FileCredentials {
	return &FileCredentials{path: path}
}

// DefaultCredentialsPath is ~/.config/kanbanpizza/session.json (or the
// XDG-resolved equivalent).
func DefaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "kanbanpizza", "session.json")
}

type credFile struct {
	Room     string `json:"room"`
	Password string `json:"password"`
}

func (f *FileCredentials) Load() (string, string, bool) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return "", "", false
	}
	var c credFile
	if err := json.Unmarshal(b, &c); err != nil || c.Room == "" {
		return "", "", false
	}
	return c.Room, c.Password, true
}

func (f *FileCredentials) Save(room, password string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	b, err := json.Marshal(credFile{Room: room, Password: password})
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, b, 0o600)
}

func (f *FileCredentials) Clear() error {
	err := os.Remove(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// MemoryCredentials is the in-memory CredentialStore used in tests and for
// throwaway sessions.
type MemoryCredentials struct {
	room, password string
	set            bool
}

func (m *MemoryCredentials) Load() (string, string, bool) {
	return m.room, m.password, m.set
}

func (m *MemoryCredentials) Save(room, password string) error {
	m.room, m.password, m.set = room, password, true
	return nil
}

func (m *MemoryCredentials) Clear() error {
	m.set = false
	m.room, m.password = "", ""
	return nil
}
