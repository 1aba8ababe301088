package auth

import "sync"

// MockStore is an in-memory token store for tests.
type MockStore struct {
	mu       sync.RWMutex
	tokens   map[string]*Token
	failWith error
}

// NewMockStore creates an empty in-memory store.
func NewMockStore() *MockStore {
	return &MockStore{tokens: make(map[string]*Token)}
}

// FailWith makes every operation return err. Pass nil to recover.
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *MockStore) Store(token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if token == nil || token.Label == "" {
		return ErrInvalidToken
	}
	copied := *token
	m.tokens[token.Label] = &copied
	return nil
}

func (m *MockStore) Retrieve(label string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	token, ok := m.tokens[label]
	if !ok {
		return nil, ErrTokenNotFound
	}
	copied := *token
	return &copied, nil
}

func (m *MockStore) List() ([]*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var tokens []*Token
	for _, token := range m.tokens {
		copied := *token
		tokens = append(tokens, &copied)
	}
	return tokens, nil
}

func (m *MockStore) Delete(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, ok := m.tokens[label]; !ok {
		return ErrTokenNotFound
	}
	delete(m.tokens, label)
	return nil
}

func (m *MockStore) Exists(label string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tokens[label]
	return ok
}
