package scraper

import (
	"time"

	"igleads/pkg/models"
	"igleads/pkg/resilience"
	"igleads/pkg/traversal"
)

// Abort reasons reported in Result.AbortReason besides error kinds
const (
	AbortCircuitBreaker        = "circuit_breaker"
	AbortSessionInvalidCeiling = "session_invalid_ceiling"
	AbortCanceled              = "canceled"
)

// HashtagReport summarizes one hashtag of a run
type HashtagReport struct {
	Hashtag   string            `json:"hashtag"`
	Attempts  int               `json:"attempts"`
	Collected int               `json:"collected"`
	Stats     traversal.Stats   `json:"stats"`
	Completed bool              `json:"completed"`
	Action    resilience.Action `json:"action,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Result is the outcome of one scrape invocation. It is returned even when
// the run fails.
type Result struct {
	RunID          string             `json:"run_id"`
	Target         string             `json:"target"`
	Account        string             `json:"account"`
	Profiles       []models.Lead      `json:"profiles"`
	IsPartial      bool               `json:"is_partial"`
	Requested      int                `json:"requested"`
	Collected      int                `json:"collected"`
	CompletionRate float64            `json:"completion_rate"`
	Hashtags       []HashtagReport    `json:"hashtags"`
	AbortReason    string             `json:"abort_reason,omitempty"`
	Resilience     resilience.Metrics `json:"resilience"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}

// Duration returns how long the run took
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Result) remaining() int {
	return r.Requested - r.Collected
}

// newReport starts the report of a hashtag. The explore feed reports an
// empty hashtag.
func (r *Result) newReport(tag string) *HashtagReport {
	r.Hashtags = append(r.Hashtags, HashtagReport{Hashtag: tag})
	return &r.Hashtags[len(r.Hashtags)-1]
}

// absorb adds the leads and counters of a traversal pass
func (r *Result) absorb(rep *HashtagReport, pass *traversal.Pass) {
	if pass == nil {
		return
	}
	rep.Stats = pass.Stats
	rep.Collected += pass.Stats.Collected
	r.Collected += pass.Stats.Collected
	r.Profiles = append(r.Profiles, pass.Leads...)
}

// seal computes the derived fields
func (r *Result) seal(now time.Time, m resilience.Metrics) {
	r.FinishedAt = now
	r.Resilience = m
	r.IsPartial = r.Collected < r.Requested
	if r.Requested > 0 {
		r.CompletionRate = float64(r.Collected) / float64(r.Requested)
		if r.CompletionRate > 1 {
			r.CompletionRate = 1
		}
	}
}
