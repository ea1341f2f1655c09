package extract

import (
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"

	"igleads/pkg/config"
)

// Rejection reasons
const (
	ReasonLanguage    = "language"
	ReasonInactive    = "inactive"
	ReasonUnavailable = "unavailable"
	ReasonDuplicate   = "duplicate"
)

// Acceptance reasons
const (
	ReasonAutoApproved = "auto_approved"
	ReasonActive       = "active"
)

// candidateLanguages limits detection to the languages seen in practice.
// Short bios otherwise drift into unrelated scripts.
var candidateLanguages = map[whatlanggo.Lang]bool{
	whatlanggo.Por: true,
	whatlanggo.Spa: true,
	whatlanggo.Eng: true,
}

// Verdict is the outcome of the quality gates
type Verdict struct {
	Accepted      bool
	Reason        string
	Language      string
	AutoApproved  bool
	ActivityScore float64
	IsActive      bool
}

// Gates applies language, auto-approval and activity checks in that order
type Gates struct {
	cfg config.ValidationConfig
}

// NewGates creates the gate chain
func NewGates(cfg config.ValidationConfig) *Gates {
	return &Gates{cfg: cfg}
}

// DetectLanguage returns the ISO 639-3 code of text, or "" when it cannot
// be classified
func DetectLanguage(text string) string {
	text = hashtagRe.ReplaceAllString(text, " ")
	if strings.TrimSpace(text) == "" {
		return ""
	}
	info := whatlanggo.DetectWithOptions(text, whatlanggo.Options{Whitelist: candidateLanguages})
	if info.Confidence <= 0 {
		return ""
	}
	return info.Lang.Iso6393()
}

// Evaluate runs the gates. The first failing gate decides; auto-approval
// skips the activity gate but the score is still computed.
func (g *Gates) Evaluate(bio, website string, posts []time.Time, now time.Time) Verdict {
	v := Verdict{
		Language:      DetectLanguage(bio),
		ActivityScore: ActivityScore(posts, now, g.cfg),
	}
	v.IsActive = v.ActivityScore >= g.cfg.ActivityThreshold

	if v.Language == "" || v.Language != g.cfg.TargetLanguage {
		v.Reason = ReasonLanguage
		return v
	}

	if !IsPlaceholderLink(website) || len([]rune(bio)) >= g.cfg.AutoApproveBioLength {
		v.Accepted = true
		v.AutoApproved = true
		v.Reason = ReasonAutoApproved
		return v
	}

	if !v.IsActive {
		v.Reason = ReasonInactive
		return v
	}
	v.Accepted = true
	v.Reason = ReasonActive
	return v
}

// recencyScore rates how recent the latest post is, 0-100
func recencyScore(days float64) float64 {
	switch {
	case days <= 7:
		return 100
	case days <= 30:
		return 75
	case days <= 90:
		return 40
	case days <= 180:
		return 15
	default:
		return 0
	}
}

// ActivityScore blends recency of the latest post with posting frequency
// inside the configured window. Both components are on a 0-100 scale.
func ActivityScore(posts []time.Time, now time.Time, cfg config.ValidationConfig) float64 {
	if len(posts) == 0 {
		return 0
	}
	latest := posts[0]
	for _, p := range posts[1:] {
		if p.After(latest) {
			latest = p
		}
	}
	days := now.Sub(latest).Hours() / 24
	if days < 0 {
		days = 0
	}

	window := cfg.FrequencyWindowDays
	if window <= 0 {
		window = 30
	}
	cutoff := now.AddDate(0, 0, -window)
	recent := 0
	for _, p := range posts {
		if p.After(cutoff) {
			recent++
		}
	}
	frequency := float64(recent) * 20
	if frequency > 100 {
		frequency = 100
	}

	return recencyScore(days)*cfg.RecencyWeight + frequency*cfg.FrequencyWeight
}
