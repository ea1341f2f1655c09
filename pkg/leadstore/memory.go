package leadstore

import (
	"context"
	"sync"
	"time"

	"igleads/pkg/instagram"
	"igleads/pkg/models"
)

// MemoryStore keeps leads in process. Used for dry runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	leads      map[string]models.Lead
	variations map[string]models.HashtagVariation
	upserts    int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:      make(map[string]models.Lead),
		variations: make(map[string]models.HashtagVariation),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeUsername(lead.Username)
	stored := *lead
	if existing, ok := s.leads[key]; ok {
		stored.ContactStatus = existing.ContactStatus
		stored.QualificationNotes = existing.QualificationNotes
		if !existing.FirstSeenAt.IsZero() {
			stored.FirstSeenAt = existing.FirstSeenAt
		}
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}
	s.leads[key] = stored
	s.upserts++
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, username string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lead, ok := s.leads[normalizeUsername(username)]
	if !ok {
		return nil, ErrNotFound
	}
	return &lead, nil
}

func (s *MemoryStore) UpdateHashtagStats(ctx context.Context, hashtag string, scrapeInc, leadsInc int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := instagram.NormalizeHashtag(hashtag)
	v, ok := s.variations[tag]
	if !ok {
		v = models.HashtagVariation{Hashtag: tag, VolumeCategory: models.VolumeLow}
	}
	v.ScrapeCount += max(scrapeInc, 0)
	v.LeadsFound += max(leadsInc, 0)
	v.UpdatedAt = time.Now()
	s.variations[tag] = v
	return nil
}

func (s *MemoryStore) SaveVariations(ctx context.Context, variations []models.HashtagVariation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range variations {
		tag := instagram.NormalizeHashtag(v.Hashtag)
		if existing, ok := s.variations[tag]; ok {
			v.ScrapeCount = existing.ScrapeCount
			v.LeadsFound = existing.LeadsFound
		} else {
			v.ScrapeCount, v.LeadsFound = 0, 0
		}
		v.Hashtag = tag
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = time.Now()
		}
		s.variations[tag] = v
	}
	return nil
}

func (s *MemoryStore) Variation(ctx context.Context, hashtag string) (*models.HashtagVariation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variations[instagram.NormalizeHashtag(hashtag)]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Leads returns a copy of every stored lead
func (s *MemoryStore) Leads() []models.Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		out = append(out, l)
	}
	return out
}

// UpsertCount reports how many upserts were performed
func (s *MemoryStore) UpsertCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}
