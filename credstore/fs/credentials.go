// Package fs provides a file system-based credential store.
package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/panyam/authbridge/credstore"
)

// DefaultDebounce is how long Watch waits for writes to settle
const DefaultDebounce = 100 * time.Millisecond

// Store stores credentials as a JSON file on the filesystem
type Store struct {
	mu       sync.RWMutex
	path     string
	servers  map[string]*credstore.Credential
	modified bool

	// Debounce is the quiet period before Watch reloads.
	Debounce time.Duration
	Logger   *slog.Logger
}

// credentialFile is the JSON structure stored on disk
type credentialFile struct {
	Servers map[string]*credstore.Credential `json:"servers"`
}

// New creates a file backed store.
// If path is empty, defaults to ~/.config/<appName>/credentials.json
func New(path string, appName string) (*Store, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		if appName == "" {
			appName = "authbridge"
		}
		path = filepath.Join(configDir, appName, "credentials.json")
	}

	store := &Store{
		path:     path,
		servers:  make(map[string]*credstore.Credential),
		Debounce: DefaultDebounce,
		Logger:   slog.Default(),
	}

	if err := store.Reload(); err != nil {
		return nil, err
	}
	return store, nil
}

// Reload rereads the file, discarding unsaved changes. A missing file is an
// empty store.
func (s *Store) Reload() error {
	servers, err := s.read()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers = servers
	s.modified = false
	return nil
}

func (s *Store) read() (map[string]*credstore.Credential, error) {
	servers := make(map[string]*credstore.Credential)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return servers, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	for k, v := range file.Servers {
		servers[k] = v
	}
	return servers, nil
}

// normalizeURL reduces a server URL to scheme://host for use as a key
func normalizeURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme == "" {
		u, err = url.Parse("https://" + serverURL)
		if err != nil {
			return "", fmt.Errorf("invalid server URL: %w", err)
		}
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host), nil
}

// GetCredential retrieves a credential for a server URL
func (s *Store) GetCredential(serverURL string) (*credstore.Credential, error) {
	key, err := normalizeURL(serverURL)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.servers[key], nil
}

// SetCredential stores a credential for a server URL
func (s *Store) SetCredential(serverURL string, cred *credstore.Credential) error {
	key, err := normalizeURL(serverURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.servers[key] = cred
	s.modified = true
	return nil
}

// RemoveCredential removes a credential for a server URL
func (s *Store) RemoveCredential(serverURL string) error {
	key, err := normalizeURL(serverURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, key)
	s.modified = true
	return nil
}

// ListServers returns all server URLs with stored credentials
func (s *Store) ListServers() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make([]string, 0, len(s.servers))
	for k := range s.servers {
		servers = append(servers, k)
	}
	return servers, nil
}

// Save persists credentials to disk
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.modified {
		return nil
	}

	// Ensure directory exists with restricted permissions
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(credentialFile{Servers: s.servers}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}

	// Owner read/write only
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}

	s.modified = false
	return nil
}

// Path returns the path to the credentials file
func (s *Store) Path() string {
	return s.path
}
