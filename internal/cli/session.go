package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Identity is who the CLI acts as. A token is used when present, otherwise the bare user id.
type Identity struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token,omitempty"`
	// LastSession remembers the session id of the last command so it can be omitted.
	LastSession int64 `json:"last_session,omitempty"`
}

func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".cbk")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

func identityPath() (string, error) {
	dir, err := baseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "identity.json"), nil
}

func SaveIdentity(id Identity) error {
	path, err := identityPath()
	if err != nil {
		return err
	}
	body, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, body, 0o600)
}

func LoadIdentity() (Identity, error) {
	path, err := identityPath()
	if err != nil {
		return Identity{}, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Identity{}, fmt.Errorf("no identity saved, run `cbk use <user-id>` first")
		}
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal(body, &id); err != nil {
		return Identity{}, err
	}
	if strings.TrimSpace(id.UserID) == "" && strings.TrimSpace(id.AccessToken) == "" {
		return Identity{}, fmt.Errorf("saved identity is empty")
	}
	return id, nil
}

func ClearIdentity() error {
	path, err := identityPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Remove(path)
}
