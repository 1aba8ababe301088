package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := NewMockStore()
	broken.FailWith(ErrStoreUnavailable)
	working := NewMockStore()

	m := newManagerWithStores(broken, working)

	require.NoError(t, m.Store(&Token{Label: "main", AccessToken: "vk1.a.secret"}))
	assert.False(t, broken.Exists("main"))
	assert.True(t, working.Exists("main"))

	token, err := m.Retrieve("main")
	require.NoError(t, err)
	assert.Equal(t, "vk1.a.secret", token.AccessToken)
}

func TestManagerDefaultsLabel(t *testing.T) {
	store := NewMockStore()
	m := newManagerWithStores(store)

	require.NoError(t, m.Store(&Token{AccessToken: "vk1.a.secret"}))
	assert.True(t, store.Exists(DefaultLabel))

	token, err := m.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, DefaultLabel, token.Label)
}

func TestManagerRejectsEmptyToken(t *testing.T) {
	m := newManagerWithStores(NewMockStore())
	assert.ErrorIs(t, m.Store(&Token{Label: "x"}), ErrInvalidToken)
	assert.ErrorIs(t, m.Store(nil), ErrInvalidToken)
}

func TestManagerListMergesStores(t *testing.T) {
	first := NewMockStore()
	second := NewMockStore()
	m := newManagerWithStores(first, second)

	require.NoError(t, first.Store(&Token{Label: "a", AccessToken: "t1"}))
	require.NoError(t, second.Store(&Token{Label: "b", AccessToken: "t2"}))

	tokens, err := m.List()
	require.NoError(t, err)
	assert.Len(t, tokens, 2)
}

func TestManagerDeleteRemovesEverywhere(t *testing.T) {
	first := NewMockStore()
	second := NewMockStore()
	m := newManagerWithStores(first, second)

	require.NoError(t, first.Store(&Token{Label: "a", AccessToken: "t1"}))
	require.NoError(t, second.Store(&Token{Label: "a", AccessToken: "t1"}))

	require.NoError(t, m.Delete("a"))
	assert.False(t, first.Exists("a"))
	assert.False(t, second.Exists("a"))

	assert.Error(t, m.Delete("a"))
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	t.Setenv("VKDUMP_PASSPHRASE", "test-passphrase")

	path := filepath.Join(t.TempDir(), "tokens.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Store(&Token{Label: "main", AccessToken: "vk1.a.verysecret"}))

	// A fresh store over the same file and passphrase can read it back.
	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	token, err := reopened.Retrieve("main")
	require.NoError(t, err)
	assert.Equal(t, "vk1.a.verysecret", token.AccessToken)

	// The token must not sit in the file as plaintext.
	content := readFile(t, path)
	assert.NotContains(t, content, "verysecret")
}

func TestEncryptedStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.enc")

	t.Setenv("VKDUMP_PASSPHRASE", "correct")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Token{Label: "main", AccessToken: "secret-token"}))

	t.Setenv("VKDUMP_PASSPHRASE", "wrong")
	intruder, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = intruder.Retrieve("main")
	assert.Error(t, err)
}

func TestEncryptedStoreDeleteLastTokenRemovesFile(t *testing.T) {
	t.Setenv("VKDUMP_PASSPHRASE", "test-passphrase")

	path := filepath.Join(t.TempDir(), "tokens.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Store(&Token{Label: "only", AccessToken: "t"}))
	require.NoError(t, store.Delete("only"))

	assert.False(t, store.Exists("only"))
	assert.ErrorIs(t, store.Delete("only"), ErrTokenNotFound)
}

func TestEnvironmentStoreReadsToken(t *testing.T) {
	t.Setenv("VKDUMP_ACCESS_TOKEN", "env-token")

	store := NewEnvironmentStore()
	token, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "env-token", token.AccessToken)
	assert.Equal(t, DefaultLabel, token.Label)

	assert.ErrorIs(t, store.Store(&Token{Label: "x", AccessToken: "y"}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
}

func TestSanitizeMasksToken(t *testing.T) {
	token := &Token{Label: "main", AccessToken: "vk1.a.0123456789abcdef"}
	safe := Sanitize(token)

	assert.Equal(t, "main", safe.Label)
	assert.NotEqual(t, token.AccessToken, safe.AccessToken)
	assert.Contains(t, safe.AccessToken, "...")

	assert.Equal(t, "********", Sanitize(&Token{AccessToken: "short"}).AccessToken)
	assert.Nil(t, Sanitize(nil))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
