package scraper

import (
	"context"

	"igleads/pkg/accounts"
	errs "igleads/pkg/errors"
	"igleads/pkg/models"
	"igleads/pkg/session"
	"igleads/pkg/traversal"
)

// Sessions owns the browser session and its recovery
type Sessions interface {
	EnsureLoggedSession(ctx context.Context) (*session.Session, error)
	UseAccount(ctx context.Context, username string) error
	HandleSessionError(ctx context.Context, reason error) (bool, error)
	RotateAfterBlock(ctx context.Context, kind errs.Kind, detail string) (accounts.Account, error)
	AccountName() string
	Close(ctx context.Context) error
}

// Discoverer expands a seed into an ordered hashtag list
type Discoverer interface {
	Discover(ctx context.Context, seed string) ([]models.HashtagVariation, error)
}

// Traverser walks one post grid
type Traverser interface {
	Traverse(ctx context.Context, target traversal.Target) (*traversal.Pass, error)
}

// StatsStore receives per-hashtag counters after a successful run
type StatsStore interface {
	UpdateHashtagStats(ctx context.Context, hashtag string, scrapeInc, leadsInc int) error
	Close() error
}

// AccountRecorder resets the current account after a confirmed success
type AccountRecorder interface {
	RecordSuccess()
}
