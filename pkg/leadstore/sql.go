package leadstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"igleads/pkg/instagram"
	"igleads/pkg/models"
)

const (
	defaultMaxOpenConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

var schemas = map[string][]string{
	"sqlite3": {
		`CREATE TABLE IF NOT EXISTS leads (
			username TEXT PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			follower_count INTEGER NOT NULL DEFAULT 0,
			following_count INTEGER NOT NULL DEFAULT 0,
			post_count INTEGER NOT NULL DEFAULT 0,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			whatsapp TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			neighborhood TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			zip TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			activity_score REAL NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			hashtags_bio TEXT NOT NULL DEFAULT '[]',
			hashtags_posts TEXT NOT NULL DEFAULT '[]',
			source_hashtag TEXT NOT NULL DEFAULT '',
			auto_approved BOOLEAN NOT NULL DEFAULT FALSE,
			needs_enrichment BOOLEAN NOT NULL DEFAULT TRUE,
			contact_status TEXT NOT NULL DEFAULT '',
			qualification_notes TEXT NOT NULL DEFAULT '',
			first_seen_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS hashtag_variations (
			hashtag TEXT PRIMARY KEY,
			post_count INTEGER NOT NULL DEFAULT 0,
			priority_score REAL NOT NULL DEFAULT 0,
			volume_category TEXT NOT NULL DEFAULT 'low',
			scrape_count INTEGER NOT NULL DEFAULT 0,
			leads_found INTEGER NOT NULL DEFAULT 0,
			discovered_from TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL
		)`,
	},
	"postgres": {
		`CREATE TABLE IF NOT EXISTS leads (
			username TEXT PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			follower_count INTEGER NOT NULL DEFAULT 0,
			following_count INTEGER NOT NULL DEFAULT 0,
			post_count INTEGER NOT NULL DEFAULT 0,
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			website TEXT NOT NULL DEFAULT '',
			whatsapp TEXT NOT NULL DEFAULT '',
			region TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			neighborhood TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			zip TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			activity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			hashtags_bio TEXT NOT NULL DEFAULT '[]',
			hashtags_posts TEXT NOT NULL DEFAULT '[]',
			source_hashtag TEXT NOT NULL DEFAULT '',
			auto_approved BOOLEAN NOT NULL DEFAULT FALSE,
			needs_enrichment BOOLEAN NOT NULL DEFAULT TRUE,
			contact_status TEXT NOT NULL DEFAULT '',
			qualification_notes TEXT NOT NULL DEFAULT '',
			first_seen_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS hashtag_variations (
			hashtag TEXT PRIMARY KEY,
			post_count INTEGER NOT NULL DEFAULT 0,
			priority_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			volume_category TEXT NOT NULL DEFAULT 'low',
			scrape_count INTEGER NOT NULL DEFAULT 0,
			leads_found INTEGER NOT NULL DEFAULT 0,
			discovered_from TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
}

// leadRow is the flat table shape of a lead. Tag sets are JSON arrays.
type leadRow struct {
	Username           string    `db:"username"`
	FullName           string    `db:"full_name"`
	Bio                string    `db:"bio"`
	FollowerCount      int       `db:"follower_count"`
	FollowingCount     int       `db:"following_count"`
	PostCount          int       `db:"post_count"`
	Email              string    `db:"email"`
	Phone              string    `db:"phone"`
	Website            string    `db:"website"`
	WhatsApp           string    `db:"whatsapp"`
	Region             string    `db:"region"`
	City               string    `db:"city"`
	State              string    `db:"state"`
	Neighborhood       string    `db:"neighborhood"`
	Address            string    `db:"address"`
	Zip                string    `db:"zip"`
	Language           string    `db:"language"`
	ActivityScore      float64   `db:"activity_score"`
	IsActive           bool      `db:"is_active"`
	HashtagsBio        string    `db:"hashtags_bio"`
	HashtagsPosts      string    `db:"hashtags_posts"`
	SourceHashtag      string    `db:"source_hashtag"`
	AutoApproved       bool      `db:"auto_approved"`
	NeedsEnrichment    bool      `db:"needs_enrichment"`
	ContactStatus      string    `db:"contact_status"`
	QualificationNotes string    `db:"qualification_notes"`
	FirstSeenAt        time.Time `db:"first_seen_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func toRow(l *models.Lead) (leadRow, error) {
	bioTags, err := json.Marshal(nonNil(l.HashtagsBio))
	if err != nil {
		return leadRow{}, err
	}
	postTags, err := json.Marshal(nonNil(l.HashtagsPosts))
	if err != nil {
		return leadRow{}, err
	}
	return leadRow{
		Username:           normalizeUsername(l.Username),
		FullName:           l.FullName,
		Bio:                l.Bio,
		FollowerCount:      l.FollowerCount,
		FollowingCount:     l.FollowingCount,
		PostCount:          l.PostCount,
		Email:              l.Contact.Email,
		Phone:              l.Contact.Phone,
		Website:            l.Contact.Website,
		WhatsApp:           l.Contact.WhatsApp,
		Region:             l.Contact.Region,
		City:               l.Location.City,
		State:              l.Location.State,
		Neighborhood:       l.Location.Neighborhood,
		Address:            l.Location.Address,
		Zip:                l.Location.Zip,
		Language:           l.Language,
		ActivityScore:      l.ActivityScore,
		IsActive:           l.IsActive,
		HashtagsBio:        string(bioTags),
		HashtagsPosts:      string(postTags),
		SourceHashtag:      l.SourceHashtag,
		AutoApproved:       l.AutoApproved,
		NeedsEnrichment:    l.NeedsEnrichment,
		ContactStatus:      l.ContactStatus,
		QualificationNotes: l.QualificationNotes,
		FirstSeenAt:        l.FirstSeenAt.UTC(),
		UpdatedAt:          l.UpdatedAt.UTC(),
	}, nil
}

func (r leadRow) lead() (*models.Lead, error) {
	l := &models.Lead{
		Username:       r.Username,
		FullName:       r.FullName,
		Bio:            r.Bio,
		FollowerCount:  r.FollowerCount,
		FollowingCount: r.FollowingCount,
		PostCount:      r.PostCount,
		Contact: models.Contact{
			Email:    r.Email,
			Phone:    r.Phone,
			Website:  r.Website,
			WhatsApp: r.WhatsApp,
			Region:   r.Region,
		},
		Location: models.Location{
			City:         r.City,
			State:        r.State,
			Neighborhood: r.Neighborhood,
			Address:      r.Address,
			Zip:          r.Zip,
		},
		Language:           r.Language,
		ActivityScore:      r.ActivityScore,
		IsActive:           r.IsActive,
		SourceHashtag:      r.SourceHashtag,
		AutoApproved:       r.AutoApproved,
		NeedsEnrichment:    r.NeedsEnrichment,
		ContactStatus:      r.ContactStatus,
		QualificationNotes: r.QualificationNotes,
		FirstSeenAt:        r.FirstSeenAt,
		UpdatedAt:          r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.HashtagsBio), &l.HashtagsBio); err != nil {
		return nil, fmt.Errorf("decode hashtags_bio: %w", err)
	}
	if err := json.Unmarshal([]byte(r.HashtagsPosts), &l.HashtagsPosts); err != nil {
		return nil, fmt.Errorf("decode hashtags_posts: %w", err)
	}
	return l, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// SQLStore persists leads through database/sql with sqlx
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore connects and bootstraps the schema
func NewSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open lead store: %w", err)
	}
	if driver == "sqlite3" {
		// one writer avoids "database is locked"
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(defaultMaxOpenConns)
	}
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping lead store: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to bootstrap schema: %w", err)
		}
	}
	return &SQLStore{db: db}, nil
}

// NewSQLStoreFromDB wraps an existing connection without touching the schema
func NewSQLStoreFromDB(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Upsert inserts or updates a lead keyed by username. Downstream-owned
// columns and first_seen_at are left as stored.
func (s *SQLStore) Upsert(ctx context.Context, lead *models.Lead) error {
	now := time.Now().UTC()
	if lead.FirstSeenAt.IsZero() {
		lead.FirstSeenAt = now
	}
	lead.UpdatedAt = now
	row, err := toRow(lead)
	if err != nil {
		return fmt.Errorf("failed to encode lead: %w", err)
	}

	query := `
		INSERT INTO leads (
			username, full_name, bio, follower_count, following_count, post_count,
			email, phone, website, whatsapp, region,
			city, state, neighborhood, address, zip,
			language, activity_score, is_active, hashtags_bio, hashtags_posts,
			source_hashtag, auto_approved, needs_enrichment,
			contact_status, qualification_notes, first_seen_at, updated_at
		) VALUES (
			:username, :full_name, :bio, :follower_count, :following_count, :post_count,
			:email, :phone, :website, :whatsapp, :region,
			:city, :state, :neighborhood, :address, :zip,
			:language, :activity_score, :is_active, :hashtags_bio, :hashtags_posts,
			:source_hashtag, :auto_approved, :needs_enrichment,
			:contact_status, :qualification_notes, :first_seen_at, :updated_at
		)
		ON CONFLICT (username) DO UPDATE SET
			full_name = excluded.full_name,
			bio = excluded.bio,
			follower_count = excluded.follower_count,
			following_count = excluded.following_count,
			post_count = excluded.post_count,
			email = excluded.email,
			phone = excluded.phone,
			website = excluded.website,
			whatsapp = excluded.whatsapp,
			region = excluded.region,
			city = excluded.city,
			state = excluded.state,
			neighborhood = excluded.neighborhood,
			address = excluded.address,
			zip = excluded.zip,
			language = excluded.language,
			activity_score = excluded.activity_score,
			is_active = excluded.is_active,
			hashtags_bio = excluded.hashtags_bio,
			hashtags_posts = excluded.hashtags_posts,
			source_hashtag = excluded.source_hashtag,
			auto_approved = excluded.auto_approved,
			needs_enrichment = excluded.needs_enrichment,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to upsert lead %s: %w", row.Username, err)
	}
	return nil
}

// Get returns the lead for username or ErrNotFound
func (s *SQLStore) Get(ctx context.Context, username string) (*models.Lead, error) {
	var row leadRow
	query := s.db.Rebind(`SELECT * FROM leads WHERE username = ?`)
	if err := s.db.GetContext(ctx, &row, query, normalizeUsername(username)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return row.lead()
}

// UpdateHashtagStats increments the scrape and lead counters of a hashtag,
// creating its row when missing. Counters only grow.
func (s *SQLStore) UpdateHashtagStats(ctx context.Context, hashtag string, scrapeInc, leadsInc int) error {
	query := s.db.Rebind(`
		INSERT INTO hashtag_variations (hashtag, scrape_count, leads_found, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (hashtag) DO UPDATE SET
			scrape_count = hashtag_variations.scrape_count + excluded.scrape_count,
			leads_found = hashtag_variations.leads_found + excluded.leads_found,
			updated_at = excluded.updated_at
	`)
	_, err := s.db.ExecContext(ctx, query,
		instagram.NormalizeHashtag(hashtag), max(scrapeInc, 0), max(leadsInc, 0), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update hashtag stats: %w", err)
	}
	return nil
}

// SaveVariations upserts discovered hashtags without touching counters
func (s *SQLStore) SaveVariations(ctx context.Context, variations []models.HashtagVariation) error {
	if len(variations) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO hashtag_variations (
			hashtag, post_count, priority_score, volume_category, discovered_from, updated_at
		) VALUES (
			:hashtag, :post_count, :priority_score, :volume_category, :discovered_from, :updated_at
		)
		ON CONFLICT (hashtag) DO UPDATE SET
			post_count = excluded.post_count,
			priority_score = excluded.priority_score,
			volume_category = excluded.volume_category,
			discovered_from = excluded.discovered_from,
			updated_at = excluded.updated_at
	`
	now := time.Now().UTC()
	for _, v := range variations {
		v.Hashtag = instagram.NormalizeHashtag(v.Hashtag)
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = now
		}
		if _, err := tx.NamedExecContext(ctx, query, v); err != nil {
			return fmt.Errorf("failed to save variation %s: %w", v.Hashtag, err)
		}
	}
	return tx.Commit()
}

// Variation returns the stored row of a hashtag or ErrNotFound
func (s *SQLStore) Variation(ctx context.Context, hashtag string) (*models.HashtagVariation, error) {
	var v models.HashtagVariation
	query := s.db.Rebind(`SELECT * FROM hashtag_variations WHERE hashtag = ?`)
	if err := s.db.GetContext(ctx, &v, query, instagram.NormalizeHashtag(hashtag)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get variation: %w", err)
	}
	return &v, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
