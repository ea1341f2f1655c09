package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"igleads/pkg/config"
)

// Secret is a stored login password for one account
type Secret struct {
	Username     string    `json:"username"`
	Password     string    `json:"password"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving passwords
type CredentialStore interface {
	Store(secret *Secret) error
	Retrieve(username string) (*Secret, error)
	Delete(username string) error
	Exists(username string) bool
}

// Manager looks passwords up across stores in order: system keyring,
// encrypted file, environment
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager with every available backend
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}
	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit stores
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the password in the first store that accepts it
func (m *Manager) Store(secret *Secret) error {
	if secret == nil || secret.Username == "" {
		return errors.New("username is required")
	}
	if secret.Password == "" {
		return errors.New("password is required")
	}
	secret.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(secret)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the password from the first store that has it
func (m *Manager) Retrieve(username string) (*Secret, error) {
	for _, store := range m.stores {
		if secret, err := store.Retrieve(username); err == nil && secret != nil {
			return secret, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, username)
}

// Delete removes the password from all stores
func (m *Manager) Delete(username string) error {
	deleted := false
	for _, store := range m.stores {
		if err := store.Delete(username); err == nil {
			deleted = true
		}
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, username)
	}
	return nil
}

// ResolvePasswords fills in missing account passwords from the stores.
// Accounts that already carry a password are left alone; accounts without
// one in any store are returned so the caller can warn about them.
func (m *Manager) ResolvePasswords(accounts []config.AccountConfig) []string {
	var missing []string
	for i := range accounts {
		if accounts[i].Password != "" {
			continue
		}
		secret, err := m.Retrieve(accounts[i].Username)
		if err != nil {
			missing = append(missing, accounts[i].Username)
			continue
		}
		accounts[i].Password = secret.Password
	}
	return missing
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "igleads")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "igleads")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "igleads")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "igleads")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return configDir, nil
}

// MaskSecret masks all but the first and last two characters
func MaskSecret(s string) string {
	if len(s) <= 6 {
		return "******"
	}
	return s[:2] + "..." + s[len(s)-2:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
