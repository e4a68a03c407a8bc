package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State stores the caller identity between CLI sessions.
type State struct {
	BaseURL     string `json:"base_url,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	// UserID is sent as X-User-Id when the service trusts a gateway header.
	UserID int64 `json:"user_id,omitempty"`
}

func Load(path string) (State, error) {
	var st State
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read cli state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse cli state failed: %w", err)
	}
	return st, nil
}

func Save(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cli state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cli state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cli state failed: %w", err)
	}
	return nil
}

func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cli state failed: %w", err)
	}
	return nil
}
