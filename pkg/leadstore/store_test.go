package leadstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/config"
	"igleads/pkg/models"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlStore, err := NewSQLStore(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
	}
}

func sampleLead() *models.Lead {
	return &models.Lead{
		Username:      "Loja_Bella",
		FullName:      "Loja Bella",
		Bio:           "Moda feminina em São Paulo",
		FollowerCount: 1200,
		Contact:       models.Contact{Email: "contato@lojabella.com.br", Phone: "+5511987654321", Region: "SP"},
		Location:      models.Location{City: "São Paulo", State: "SP"},
		Language:      "por",
		HashtagsBio:   []string{"moda"},
		HashtagsPosts: []string{"modafeminina"},
		SourceHashtag: "modafeminina",
		AutoApproved:  true,
		IsActive:      true,
		ActivityScore: 72.5,
	}
}

func TestUpsertAndGet(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Upsert(ctx, sampleLead()))

			got, err := store.Get(ctx, "@loja_bella")
			require.NoError(t, err)
			assert.Equal(t, "Loja Bella", got.FullName)
			assert.Equal(t, 1200, got.FollowerCount)
			assert.Equal(t, "+5511987654321", got.Contact.Phone)
			assert.Equal(t, "São Paulo", got.Location.City)
			assert.Equal(t, []string{"modafeminina"}, got.HashtagsPosts)
			assert.True(t, got.AutoApproved)
			assert.InDelta(t, 72.5, got.ActivityScore, 0.001)
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(context.Background(), "nobody")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUpsertKeepsDownstreamFields(t *testing.T) {
	sqlStore, err := NewSQLStore(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	defer sqlStore.Close()
	ctx := context.Background()

	require.NoError(t, sqlStore.Upsert(ctx, sampleLead()))
	_, err = sqlStore.db.ExecContext(ctx,
		`UPDATE leads SET contact_status = 'contacted', qualification_notes = 'hot' WHERE username = 'loja_bella'`)
	require.NoError(t, err)

	first, err := sqlStore.Get(ctx, "loja_bella")
	require.NoError(t, err)

	fresh := sampleLead()
	fresh.FollowerCount = 1500
	fresh.ContactStatus = ""
	require.NoError(t, sqlStore.Upsert(ctx, fresh))

	got, err := sqlStore.Get(ctx, "loja_bella")
	require.NoError(t, err)
	assert.Equal(t, 1500, got.FollowerCount)
	assert.Equal(t, "contacted", got.ContactStatus)
	assert.Equal(t, "hot", got.QualificationNotes)
	assert.WithinDuration(t, first.FirstSeenAt, got.FirstSeenAt, time.Second)
}

func TestHashtagStatsOnlyGrow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.SaveVariations(ctx, []models.HashtagVariation{{
				Hashtag:        "ModaFeminina",
				PostCount:      2_500_000,
				PriorityScore:  95,
				VolumeCategory: models.VolumeVeryHigh,
				DiscoveredFrom: "moda",
			}}))
			require.NoError(t, store.UpdateHashtagStats(ctx, "modafeminina", 1, 4))
			require.NoError(t, store.UpdateHashtagStats(ctx, "modafeminina", 1, -3))

			// rediscovery refreshes metadata but keeps counters
			require.NoError(t, store.SaveVariations(ctx, []models.HashtagVariation{{
				Hashtag:        "modafeminina",
				PostCount:      2_600_000,
				PriorityScore:  96,
				VolumeCategory: models.VolumeVeryHigh,
			}}))

			v, err := store.Variation(ctx, "#modafeminina")
			require.NoError(t, err)
			assert.Equal(t, 2, v.ScrapeCount)
			assert.Equal(t, 4, v.LeadsFound)
			assert.Equal(t, 2_600_000, v.PostCount)
			assert.Equal(t, models.VolumeVeryHigh, v.VolumeCategory)
		})
	}
}

func TestUpdateHashtagStatsCreatesRow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.UpdateHashtagStats(ctx, "brechó", 1, 2))

			v, err := store.Variation(ctx, "brecho")
			require.NoError(t, err)
			assert.Equal(t, 1, v.ScrapeCount)
			assert.Equal(t, 2, v.LeadsFound)
		})
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.StoreConfig
		memory  bool
		wantErr bool
	}{
		{"dry run", config.StoreConfig{Driver: "sqlite3", DryRun: true}, true, false},
		{"memory driver", config.StoreConfig{Driver: "memory"}, true, false},
		{"sqlite", config.StoreConfig{Driver: "sqlite3", DSN: filepath.Join(t.TempDir(), "x.db")}, false, false},
		{"unknown", config.StoreConfig{Driver: "mongo"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			_, isMemory := store.(*MemoryStore)
			assert.Equal(t, tt.memory, isMemory)
		})
	}
}
