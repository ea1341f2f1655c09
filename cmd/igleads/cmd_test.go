package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"igleads/internal/queue"
)

func TestScrapeFlags(t *testing.T) {
	defer func() { dryRun, noDiscovery, headful, storeDSN, language = false, false, false, "", "" }()

	assert.Empty(t, scrapeFlags())

	dryRun, noDiscovery, headful = true, true, true
	storeDSN, language = "postgres://leads", "spa"
	assert.Equal(t, map[string]interface{}{
		"dry-run":   true,
		"discover":  false,
		"headless":  false,
		"store-dsn": "postgres://leads",
		"language":  "spa",
	}, scrapeFlags())
}

func TestScheduleTasks(t *testing.T) {
	defer func() { scheduleTags, scheduleFeed, scheduleMax, scheduleAcct = nil, false, 30, "" }()

	scheduleTags = []string{"confeitaria", " ", "bolos"}
	scheduleFeed = true
	scheduleMax = 15
	scheduleAcct = "alice"

	tasks := scheduleTasks()
	assert.Equal(t, []queue.Task{
		{Kind: queue.KindHashtag, Term: "confeitaria", MaxProfiles: 15, Account: "alice"},
		{Kind: queue.KindHashtag, Term: "bolos", MaxProfiles: 15, Account: "alice"},
		{Kind: queue.KindExplore, MaxProfiles: 15, Account: "alice"},
	}, tasks)
}

func TestTaskLabel(t *testing.T) {
	assert.Equal(t, "#confeitaria", taskLabel(queue.Task{Kind: queue.KindHashtag, Term: "confeitaria"}))
	assert.Equal(t, "explore feed", taskLabel(queue.Task{Kind: queue.KindExplore}))
}

func TestCronLoggerPairs(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"entry": 1, "now": "x"}, pairs([]interface{}{"entry", 1, "now", "x", "dangling"}))
	assert.Empty(t, pairs(nil))
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"scrape", "hashtag"},
		{"scrape", "explore"},
		{"accounts", "list"},
		{"accounts", "set-password"},
		{"accounts", "forget"},
		{"config", "init"},
		{"config", "show"},
		{"config", "validate"},
		{"schedule"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if assert.NoError(t, err, path) {
			assert.Equal(t, path[len(path)-1], cmd.Name())
		}
	}
}
