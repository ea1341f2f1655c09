package report

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/models"
	"igleads/pkg/scraper"
)

func sampleResult(start time.Time) *scraper.Result {
	return &scraper.Result{
		RunID:          "run-1",
		Target:         "confeitaria",
		Account:        "Alice Shop",
		Requested:      4,
		Collected:      2,
		CompletionRate: 0.5,
		IsPartial:      true,
		AbortReason:    "circuit_breaker",
		StartedAt:      start,
		FinishedAt:     start.Add(90 * time.Second),
		Hashtags:       []scraper.HashtagReport{{Hashtag: "confeitaria", Attempts: 1, Collected: 2, Completed: true}},
		Profiles: []models.Lead{
			{Username: "doceria.ana", FollowerCount: 1520, Contact: models.Contact{WhatsApp: "5511987654321", Region: "SP"}, SourceHashtag: "confeitaria"},
			{Username: "bolos_da_bia", FollowerCount: 310, SourceHashtag: "confeitaria"},
		},
	}
}

func TestFromResult(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	r := FromResult(sampleResult(start), errors.New("rotation failed"))

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "rotation failed", r.Error)
	assert.Equal(t, 90.0, r.Seconds)
	require.Len(t, r.Leads, 2)
	assert.Equal(t, "SP", r.Leads[0].Region)
	assert.Equal(t, 0.5, r.ContactRate())
	assert.Equal(t, "confeitaria-20260301T100000Z.json", r.Filename())

	empty := FromResult(nil, errors.New("no session"))
	assert.Equal(t, "no session", empty.Error)
	assert.Zero(t, empty.ContactRate())
}

func TestSaveLoadAndList(t *testing.T) {
	dir := t.TempDir()
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	older, err := FromResult(sampleResult(first), nil).Save(dir)
	require.NoError(t, err)

	res := sampleResult(first.Add(time.Hour))
	res.Target = "explore"
	newer, err := FromResult(res, nil).Save(dir)
	require.NoError(t, err)

	loaded, err := Load(older)
	require.NoError(t, err)
	assert.Equal(t, "confeitaria", loaded.Target)
	assert.Len(t, loaded.Leads, 2)
	assert.Equal(t, "circuit_breaker", loaded.AbortReason)

	files, err := List(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{newer, older}, files)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
