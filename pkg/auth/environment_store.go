package auth

import (
	"os"
	"strings"
	"time"
)

// EnvironmentStore reads passwords from IGLEADS_PASSWORD_<USERNAME>.
// Dots in usernames become underscores. It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// EnvKey returns the variable consulted for username
func EnvKey(username string) string {
	key := strings.ToUpper(strings.ReplaceAll(username, ".", "_"))
	return "IGLEADS_PASSWORD_" + key
}

func (e *EnvironmentStore) Store(secret *Secret) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(username string) (*Secret, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	password := os.Getenv(EnvKey(username))
	if password == "" {
		return nil, ErrCredentialsNotFound
	}
	return &Secret{Username: username, Password: password, LastModified: time.Now()}, nil
}

func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(username string) bool {
	return username != "" && os.Getenv(EnvKey(username)) != ""
}
