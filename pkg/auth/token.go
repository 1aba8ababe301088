package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Token is one stored VK access token under a user-chosen label. The
// label exists so several tokens (personal, admin, service) can live
// side by side.
type Token struct {
	Label        string    `json:"label"`
	AccessToken  string    `json:"access_token"`
	LastModified time.Time `json:"last_modified"`
}

// TokenStore is the interface for storing and retrieving access tokens.
type TokenStore interface {
	Store(token *Token) error
	Retrieve(label string) (*Token, error)
	List() ([]*Token, error)
	Delete(label string) error
	Exists(label string) bool
}

// DefaultLabel names the token used when none is specified.
const DefaultLabel = "default"

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrStoreUnavailable = errors.New("token store unavailable")
)

// Manager layers token stores: system keychain when available, an
// encrypted file as fallback, environment variables as last resort.
type Manager struct {
	stores []TokenStore
}

// NewManager creates a token manager with every backend this system
// supports.
func NewManager() (*Manager, error) {
	var stores []TokenStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "tokens.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// newManagerWithStores exists for tests.
func newManagerWithStores(stores ...TokenStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves a token using the first store that accepts it.
func (m *Manager) Store(token *Token) error {
	if token == nil || token.AccessToken == "" {
		return ErrInvalidToken
	}
	if token.Label == "" {
		token.Label = DefaultLabel
	}
	token.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(token); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store token: %w", lastErr)
	}
	return errors.New("no available token stores")
}

// Retrieve gets a token from the first store that has it.
func (m *Manager) Retrieve(label string) (*Token, error) {
	if label == "" {
		label = DefaultLabel
	}
	for _, store := range m.stores {
		if token, err := store.Retrieve(label); err == nil && token != nil {
			return token, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, label)
}

// RetrieveDefault returns the default token, falling back to any stored
// one.
func (m *Manager) RetrieveDefault() (*Token, error) {
	if token, err := m.Retrieve(DefaultLabel); err == nil {
		return token, nil
	}

	tokens, err := m.List()
	if err == nil && len(tokens) > 0 {
		return tokens[0], nil
	}
	return nil, ErrTokenNotFound
}

// List merges the tokens of every store, preferring the most recently
// modified copy of each label.
func (m *Manager) List() ([]*Token, error) {
	byLabel := make(map[string]*Token)

	for _, store := range m.stores {
		tokens, err := store.List()
		if err != nil {
			continue
		}
		for _, token := range tokens {
			if existing, ok := byLabel[token.Label]; !ok || token.LastModified.After(existing.LastModified) {
				byLabel[token.Label] = token
			}
		}
	}

	var result []*Token
	for _, token := range byLabel {
		result = append(result, token)
	}
	return result, nil
}

// Delete removes a token from every store that holds it.
func (m *Manager) Delete(label string) error {
	if label == "" {
		label = DefaultLabel
	}

	var deleted bool
	var lastErr error
	for _, store := range m.stores {
		if err := store.Delete(label); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete token: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrTokenNotFound, label)
	}
	return nil
}

// getConfigDir returns the per-user configuration directory.
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "vkdump")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "vkdump")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "vkdump")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "vkdump")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// Sanitize returns a copy of the token safe for display and logs.
func Sanitize(token *Token) *Token {
	if token == nil {
		return nil
	}
	return &Token{
		Label:        token.Label,
		AccessToken:  maskString(token.AccessToken),
		LastModified: token.LastModified,
	}
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
