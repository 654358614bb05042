// Package settings provides storage for modlate credentials: the translation
// provider API key and the tracking-store token.
//
// Credentials live in the XDG data directory:
//
//	$XDG_DATA_HOME/modlate/auth.json  (default: ~/.local/share/modlate/)
//
// The file is a JSON object keyed by provider ID ("openai-chat", "gemini",
// "github") with 0600 permissions. Environment variables named in
// .modlate.yaml take precedence over this store.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirName = "modlate"
	fileName    = "auth.json"
)

// Info is one stored credential.
type Info struct {
	// Key is the API key or token.
	Key string `json:"key"`
}

// Store holds all credentials, keyed by provider ID.
type Store map[string]*Info

// dataDir returns the XDG data directory for modlate. Respects
// $XDG_DATA_HOME, falls back to ~/.local/share.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// Load reads the credential store. Returns an empty store if the file does
// not exist or cannot be parsed.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}
	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// SetAPIKey stores a key for a provider (upsert).
func SetAPIKey(providerID, key string) error {
	store := Load()
	store[providerID] = &Info{Key: key}
	return Save(store)
}

// GetAPIKey retrieves the stored key for a provider, or "".
func GetAPIKey(providerID string) string {
	info := Load()[providerID]
	if info == nil {
		return ""
	}
	return info.Key
}

// Remove deletes credentials for a provider.
func Remove(providerID string) error {
	store := Load()
	if _, ok := store[providerID]; !ok {
		return nil
	}
	delete(store, providerID)
	return Save(store)
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
