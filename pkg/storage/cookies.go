package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"igleads/pkg/models"
)

// CookieStore keeps one JSON cookie file per account
type CookieStore struct {
	dir string
	mu  sync.Mutex
}

// NewCookieStore creates a cookie store rooted at dir
func NewCookieStore(dir string) (*CookieStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cookie directory: %w", err)
	}
	return &CookieStore{dir: dir}, nil
}

// PathFor returns the cookie file of an account. An explicit path from the
// account configuration wins over the store directory.
func (s *CookieStore) PathFor(username, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(s.dir, username+".cookies.json")
}

// Load reads the cookies at path. A missing file yields no cookies and no error.
func (s *CookieStore) Load(path string) ([]models.Cookie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	var cookies []models.Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode cookie file %s: %w", filepath.Base(path), err)
	}
	return cookies, nil
}

// Save writes the cookies to path atomically with owner-only permissions
func (s *CookieStore) Save(path string, cookies []models.Cookie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return WriteJSONAtomic(path, cookies, 0600)
}

// Delete removes the cookie file at path. Deleting a missing file is not an error.
func (s *CookieStore) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cookie file: %w", err)
	}
	return nil
}

// Exists reports whether a cookie file is present at path
func (s *CookieStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Dir returns the store directory
func (s *CookieStore) Dir() string {
	return s.dir
}
