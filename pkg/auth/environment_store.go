package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads the token from VKDUMP_ACCESS_TOKEN. It cannot
// write, which makes it the last-resort read-only backend in the chain.
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-variable token store.
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(token *Token) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(label string) (*Token, error) {
	accessToken := os.Getenv("VKDUMP_ACCESS_TOKEN")
	if accessToken == "" {
		return nil, ErrTokenNotFound
	}

	if label == "" {
		label = DefaultLabel
	}
	return &Token{
		Label:        label,
		AccessToken:  accessToken,
		LastModified: time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Token, error) {
	token, err := e.Retrieve("")
	if err != nil {
		return []*Token{}, nil
	}
	return []*Token{token}, nil
}

func (e *EnvironmentStore) Delete(label string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(label string) bool {
	return os.Getenv("VKDUMP_ACCESS_TOKEN") != ""
}
