// Package leadstore persists accepted leads and hashtag statistics.
//
// The store is an external collaborator of the engine: the pipeline only
// upserts and reads by username, the orchestrator only increments hashtag
// counters. Downstream-owned lead fields (contact status, qualification
// notes) are never overwritten by an upsert.
package leadstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"igleads/pkg/config"
	"igleads/pkg/models"
)

// ErrNotFound is returned by Get when no lead exists for the username
var ErrNotFound = errors.New("lead not found")

// Store is the persistence surface used by the engine
type Store interface {
	Upsert(ctx context.Context, lead *models.Lead) error
	Get(ctx context.Context, username string) (*models.Lead, error)
	UpdateHashtagStats(ctx context.Context, hashtag string, scrapeInc, leadsInc int) error
	SaveVariations(ctx context.Context, variations []models.HashtagVariation) error
	Variation(ctx context.Context, hashtag string) (*models.HashtagVariation, error)
	Close() error
}

// Open returns the store described by cfg. Dry runs and the "memory"
// driver keep everything in process.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	driver := strings.ToLower(cfg.Driver)
	if cfg.DryRun || driver == "memory" {
		return NewMemoryStore(), nil
	}
	switch driver {
	case "sqlite3", "sqlite":
		return NewSQLStore(ctx, "sqlite3", cfg.DSN)
	case "postgres", "postgresql":
		return NewSQLStore(ctx, "postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}
