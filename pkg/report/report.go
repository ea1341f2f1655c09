// Package report writes run reports: one JSON file per scrape run with
// the counters, per-hashtag outcomes and a contact summary of each lead.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"igleads/pkg/scraper"
	"igleads/pkg/storage"
)

// RunReport is the persisted summary of one run
type RunReport struct {
	RunID          string  `json:"run_id"`
	Target         string  `json:"target"`
	Account        string  `json:"account"`
	Requested      int     `json:"requested"`
	Collected      int     `json:"collected"`
	CompletionRate float64 `json:"completion_rate"`
	IsPartial      bool    `json:"is_partial"`
	AbortReason    string  `json:"abort_reason,omitempty"`
	Error          string  `json:"error,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Seconds    float64   `json:"duration_seconds"`

	Hashtags []scraper.HashtagReport `json:"hashtags"`
	Leads    []LeadSummary           `json:"leads"`
}

// LeadSummary is the contact view of a lead
type LeadSummary struct {
	Username      string  `json:"username"`
	FullName      string  `json:"full_name,omitempty"`
	FollowerCount int     `json:"follower_count"`
	Email         string  `json:"email,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	WhatsApp      string  `json:"whatsapp,omitempty"`
	Website       string  `json:"website,omitempty"`
	Region        string  `json:"region,omitempty"`
	SourceHashtag string  `json:"source_hashtag,omitempty"`
	ActivityScore float64 `json:"activity_score"`
	AutoApproved  bool    `json:"auto_approved"`
}

// FromResult converts a run result and its error into a report
func FromResult(res *scraper.Result, runErr error) *RunReport {
	r := &RunReport{}
	if runErr != nil {
		r.Error = runErr.Error()
	}
	if res == nil {
		return r
	}

	r.RunID = res.RunID
	r.Target = res.Target
	r.Account = res.Account
	r.Requested = res.Requested
	r.Collected = res.Collected
	r.CompletionRate = res.CompletionRate
	r.IsPartial = res.IsPartial
	r.AbortReason = res.AbortReason
	r.StartedAt = res.StartedAt
	r.FinishedAt = res.FinishedAt
	r.Seconds = res.Duration().Seconds()
	r.Hashtags = res.Hashtags

	for _, lead := range res.Profiles {
		r.Leads = append(r.Leads, LeadSummary{
			Username:      lead.Username,
			FullName:      lead.FullName,
			FollowerCount: lead.FollowerCount,
			Email:         lead.Contact.Email,
			Phone:         lead.Contact.Phone,
			WhatsApp:      lead.Contact.WhatsApp,
			Website:       lead.Contact.Website,
			Region:        lead.Contact.Region,
			SourceHashtag: lead.SourceHashtag,
			ActivityScore: lead.ActivityScore,
			AutoApproved:  lead.AutoApproved,
		})
	}
	return r
}

// Filename returns target-timestamp.json, sortable by start time
func (r *RunReport) Filename() string {
	target := strings.ReplaceAll(r.Target, string(filepath.Separator), "_")
	if target == "" {
		target = "run"
	}
	started := r.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return fmt.Sprintf("%s-%s.json", target, started.UTC().Format("20060102T150405Z"))
}

// Save writes the report into dir and returns its path
func (r *RunReport) Save(dir string) (string, error) {
	path := filepath.Join(dir, r.Filename())
	if err := storage.WriteJSONAtomic(path, r, 0644); err != nil {
		return "", fmt.Errorf("failed to save run report: %w", err)
	}
	return path, nil
}

// ContactRate returns the share of leads with at least one contact channel
func (r *RunReport) ContactRate() float64 {
	if len(r.Leads) == 0 {
		return 0
	}
	n := 0
	for _, l := range r.Leads {
		if l.Email != "" || l.Phone != "" || l.WhatsApp != "" || l.Website != "" {
			n++
		}
	}
	return float64(n) / float64(len(r.Leads))
}

// Load reads a report file
func Load(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run report: %w", err)
	}

	var r RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run report: %w", err)
	}
	return &r, nil
}

// List returns the report files in dir, newest first
func List(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool {
		return reportStamp(matches[i]) > reportStamp(matches[j])
	})
	return matches, nil
}

func reportStamp(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".json")
	if i := strings.LastIndex(base, "-"); i >= 0 {
		return base[i+1:]
	}
	return base
}
