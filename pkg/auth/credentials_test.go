package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/config"
)

func TestManagerStoreRetrieveDelete(t *testing.T) {
	mock := newMemStore()
	manager := NewManagerWithStores(mock)

	require.NoError(t, manager.Store(&Secret{Username: "acct_a", Password: "s3cret"}))
	assert.Equal(t, 1, len(mock.secrets))

	secret, err := manager.Retrieve("acct_a")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", secret.Password)
	assert.False(t, secret.LastModified.IsZero())

	require.NoError(t, manager.Delete("acct_a"))
	_, err = manager.Retrieve("acct_a")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, manager.Delete("acct_a"), ErrCredentialsNotFound)
}

func TestManagerValidation(t *testing.T) {
	manager := NewManagerWithStores(newMemStore())
	assert.Error(t, manager.Store(&Secret{Password: "x"}))
	assert.Error(t, manager.Store(&Secret{Username: "x"}))
}

func TestManagerFallsThroughStores(t *testing.T) {
	failing := newMemStore()
	failing.storeErr = errors.New("keyring locked")
	fallback := newMemStore()
	manager := NewManagerWithStores(failing, fallback)

	require.NoError(t, manager.Store(&Secret{Username: "acct_b", Password: "pw"}))
	assert.Equal(t, 0, len(failing.secrets))
	assert.True(t, fallback.Exists("acct_b"))
}

func TestResolvePasswords(t *testing.T) {
	mock := newMemStore()
	require.NoError(t, mock.Store(&Secret{Username: "from_store", Password: "stored"}))
	manager := NewManagerWithStores(mock)

	accounts := []config.AccountConfig{
		{Username: "inline", Password: "given"},
		{Username: "from_store"},
		{Username: "nowhere"},
	}
	missing := manager.ResolvePasswords(accounts)

	assert.Equal(t, "given", accounts[0].Password)
	assert.Equal(t, "stored", accounts[1].Password)
	assert.Equal(t, []string{"nowhere"}, missing)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv("IGLEADS_PASSPHRASE", "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "creds.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Store(&Secret{Username: "acct_a", Password: "hunter2"}))
	require.NoError(t, store.Store(&Secret{Username: "acct_b", Password: "pw_b"}))
	assert.True(t, store.Exists("acct_a"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hunter2")

	reopened, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	secret, err := reopened.Retrieve("acct_a")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret.Password)

	require.NoError(t, reopened.Delete("acct_a"))
	require.NoError(t, reopened.Delete("acct_b"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "empty store removes its file")
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")
	t.Setenv("IGLEADS_PASSPHRASE", "right")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Secret{Username: "acct_a", Password: "pw"}))

	t.Setenv("IGLEADS_PASSPHRASE", "wrong")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("acct_a")
	assert.Error(t, err)
}

func TestEnvironmentStore(t *testing.T) {
	store := NewEnvironmentStore()
	t.Setenv("IGLEADS_PASSWORD_LOJA_BELLA", "env_pw")

	assert.Equal(t, "IGLEADS_PASSWORD_LOJA_BELLA", EnvKey("loja.bella"))
	secret, err := store.Retrieve("loja.bella")
	require.NoError(t, err)
	assert.Equal(t, "env_pw", secret.Password)
	assert.True(t, store.Exists("loja.bella"))
	assert.ErrorIs(t, store.Store(secret), ErrStoreUnavailable)

	_, err = store.Retrieve("unknown")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "******", MaskSecret("short"))
	assert.Equal(t, "hu...r2", MaskSecret("hunter2"))
}

// memStore is an in-memory CredentialStore
type memStore struct {
	secrets  map[string]Secret
	storeErr error
}

func newMemStore() *memStore {
	return &memStore{secrets: make(map[string]Secret)}
}

func (m *memStore) Store(secret *Secret) error {
	if m.storeErr != nil {
		return m.storeErr
	}
	m.secrets[secret.Username] = *secret
	return nil
}

func (m *memStore) Retrieve(username string) (*Secret, error) {
	s, ok := m.secrets[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &s, nil
}

func (m *memStore) Delete(username string) error {
	if _, ok := m.secrets[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(m.secrets, username)
	return nil
}

func (m *memStore) Exists(username string) bool {
	_, ok := m.secrets[username]
	return ok
}
