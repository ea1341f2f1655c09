package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"igleads/pkg/logger"
	"igleads/pkg/storage"
)

const currentVersion = 1

var unsafeName = regexp.MustCompile(`[^a-z0-9_.-]+`)

// Checkpoint is the resumable state of one scrape target
type Checkpoint struct {
	Target string `json:"target"`
	// VisitedPosts holds normalized post URLs already opened for this target
	VisitedPosts map[string]time.Time `json:"visited_posts"`
	// ProcessedProfiles holds usernames already run through the gates
	ProcessedProfiles map[string]bool `json:"processed_profiles"`
	Collected         int             `json:"collected"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Version           int             `json:"version"`
}

// HasVisited reports whether a post was already opened
func (c *Checkpoint) HasVisited(postURL string) bool {
	_, ok := c.VisitedPosts[postURL]
	return ok
}

// HasProcessed reports whether a profile was already evaluated
func (c *Checkpoint) HasProcessed(username string) bool {
	return c.ProcessedProfiles[strings.ToLower(username)]
}

// Manager persists checkpoints for one target
type Manager struct {
	checkpointPath string
	logger         logger.Logger
	mu             sync.Mutex
}

// NewManager creates a checkpoint manager for target. dataDir overrides the
// platform data directory when set.
func NewManager(dataDir, target string) (*Manager, error) {
	if dataDir == "" {
		dir, err := DataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dataDir = dir
	}

	checkpointsDir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(checkpointsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	name := unsafeName.ReplaceAllString(strings.ToLower(target), "_")
	return &Manager{
		checkpointPath: filepath.Join(checkpointsDir, fmt.Sprintf("%s.checkpoint.json", name)),
		logger:         logger.GetLogger().WithField("component", "checkpoint"),
	}, nil
}

// Open loads the existing checkpoint or starts a fresh one
func (m *Manager) Open(target string) (*Checkpoint, error) {
	cp, err := m.Load()
	if err != nil {
		return nil, err
	}
	if cp != nil {
		return cp, nil
	}
	return &Checkpoint{
		Target:            target,
		VisitedPosts:      make(map[string]time.Time),
		ProcessedProfiles: make(map[string]bool),
		CreatedAt:         time.Now(),
		Version:           currentVersion,
	}, nil
}

// Load loads an existing checkpoint; nil when none exists
func (m *Manager) Load() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.VisitedPosts == nil {
		cp.VisitedPosts = make(map[string]time.Time)
	}
	if cp.ProcessedProfiles == nil {
		cp.ProcessedProfiles = make(map[string]bool)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"target":     cp.Target,
		"visited":    len(cp.VisitedPosts),
		"processed":  len(cp.ProcessedProfiles),
		"updated_at": cp.UpdatedAt,
	})
	return &cp, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp.UpdatedAt = time.Now()
	if err := storage.WriteJSONAtomic(m.checkpointPath, cp, 0644); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"target":  cp.Target,
		"visited": len(cp.VisitedPosts),
	})
	return nil
}

// RecordPost marks a post as visited and saves
func (m *Manager) RecordPost(cp *Checkpoint, postURL string) error {
	cp.VisitedPosts[postURL] = time.Now()
	return m.Save(cp)
}

// RecordProfile marks a profile as processed and saves
func (m *Manager) RecordProfile(cp *Checkpoint, username string, accepted bool) error {
	cp.ProcessedProfiles[strings.ToLower(username)] = true
	if accepted {
		cp.Collected++
	}
	return m.Save(cp)
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.logger.Info("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// DataDirectory returns the platform data directory for igleads
func DataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "igleads")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "igleads")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "igleads")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "igleads")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
