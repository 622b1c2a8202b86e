package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// Session is what ecuwatch remembers between runs.
type Session struct {
	BaseURL string `json:"base_url"`
	Token   string `json:"token"`
	// UserID is the subject the token was issued to. It lets the watcher
	// recognise its own comments.
	UserID string `json:"user_id,omitempty"`
	// Images maps a file id to the image paths the user attached from this
	// machine, so a later comment can reuse them.
	Images map[string][]string `json:"images,omitempty"`
}

// DefaultSessionPath is ~/.config/ecuwatch/session.json.
func DefaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ecuwatch", "session.json"), nil
}

func lockFor(path string) *flock.Flock {
	return flock.New(path + ".lock")
}

// LoadSession reads the session file. A missing file yields an empty session.
func LoadSession(path string) (*Session, error) {
	lock := lockFor(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Session{Images: map[string][]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	if s.Images == nil {
		s.Images = map[string][]string{}
	}
	return &s, nil
}

// Save writes the session with 0600 permissions under an exclusive lock.
func (s *Session) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	lock := lockFor(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock session: %w", err)
	}
	defer lock.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return os.Rename(tmp, path)
}

// RememberImage records an attached image path for fileID, once.
func (s *Session) RememberImage(fileID, path string) {
	if s.Images == nil {
		s.Images = map[string][]string{}
	}
	for _, p := range s.Images[fileID] {
		if p == path {
			return
		}
	}
	s.Images[fileID] = append(s.Images[fileID], path)
}

// Client builds an API client from the session.
func (s *Session) Client() (*Client, error) {
	if s.BaseURL == "" {
		return nil, errors.New("not logged in: run ecuwatch login first")
	}
	return New(s.BaseURL, s.Token, DefaultTimeout), nil
}
