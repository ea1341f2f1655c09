package models

import (
	"sort"
	"strings"
	"time"
)

// Contact holds the reachable channels of a lead
type Contact struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Website  string `json:"website,omitempty"`
	WhatsApp string `json:"whatsapp,omitempty"`
	// Region is a coarse state code derived from the phone area code
	Region string `json:"region,omitempty"`
}

// Location holds the address fields found in a profile
type Location struct {
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	Address      string `json:"address,omitempty"`
	Zip          string `json:"zip,omitempty"`
}

// Lead is an extracted, validated profile
type Lead struct {
	Username       string   `json:"username"`
	FullName       string   `json:"full_name"`
	Bio            string   `json:"bio"`
	FollowerCount  int      `json:"follower_count"`
	FollowingCount int      `json:"following_count"`
	PostCount      int      `json:"post_count"`
	Contact        Contact  `json:"contact"`
	Location       Location `json:"location"`
	Language       string   `json:"language"`
	ActivityScore  float64  `json:"activity_score"`
	IsActive       bool     `json:"is_active"`
	HashtagsBio    []string `json:"hashtags_bio"`
	HashtagsPosts  []string `json:"hashtags_posts"`
	SourceHashtag  string   `json:"source_hashtag"`
	AutoApproved   bool     `json:"auto_approved"`
	// NeedsEnrichment tells downstream processors to revisit the lead
	NeedsEnrichment bool `json:"needs_enrichment"`

	// Owned by downstream collaborators. The extraction pipeline never writes them.
	ContactStatus      string `json:"contact_status,omitempty"`
	QualificationNotes string `json:"qualification_notes,omitempty"`

	FirstSeenAt time.Time `json:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Merge folds a fresh extraction into an existing stored lead. Hashtag sets
// are unioned, dynamic fields are overwritten and the enrichment flag is
// raised again. Downstream-owned fields of existing are preserved.
func Merge(existing, fresh Lead) Lead {
	merged := fresh
	merged.HashtagsBio = UnionTags(existing.HashtagsBio, fresh.HashtagsBio)
	merged.HashtagsPosts = UnionTags(existing.HashtagsPosts, fresh.HashtagsPosts)
	merged.ContactStatus = existing.ContactStatus
	merged.QualificationNotes = existing.QualificationNotes
	merged.NeedsEnrichment = true
	if !existing.FirstSeenAt.IsZero() {
		merged.FirstSeenAt = existing.FirstSeenAt
	}
	return merged
}

// UnionTags returns the sorted, lower-cased union of two hashtag sets
func UnionTags(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#"))
			if t != "" {
				set[t] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// VolumeCategory buckets a hashtag by its post count
type VolumeCategory string

const (
	VolumeVeryHigh VolumeCategory = "very_high"
	VolumeHigh     VolumeCategory = "high"
	VolumeMedium   VolumeCategory = "medium"
	VolumeLow      VolumeCategory = "low"
)

// CategorizeVolume maps a post count to its volume category
func CategorizeVolume(postCount int) VolumeCategory {
	switch {
	case postCount > 1_000_000:
		return VolumeVeryHigh
	case postCount > 100_000:
		return VolumeHigh
	case postCount > 10_000:
		return VolumeMedium
	default:
		return VolumeLow
	}
}

// HashtagVariation is a discovered hashtag with its prioritization data.
// ScrapeCount and LeadsFound only ever grow.
type HashtagVariation struct {
	Hashtag        string         `json:"hashtag" db:"hashtag"`
	PostCount      int            `json:"post_count" db:"post_count"`
	PriorityScore  float64        `json:"priority_score" db:"priority_score"`
	VolumeCategory VolumeCategory `json:"volume_category" db:"volume_category"`
	ScrapeCount    int            `json:"scrape_count" db:"scrape_count"`
	LeadsFound     int            `json:"leads_found" db:"leads_found"`
	DiscoveredFrom string         `json:"discovered_from" db:"discovered_from"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// Cookie is a browser cookie as persisted between sessions
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
	SameSite string  `json:"sameSite,omitempty"`
}

// FindCookie returns the named cookie with a non-empty value
func FindCookie(cookies []Cookie, name string) (Cookie, bool) {
	for _, c := range cookies {
		if c.Name == name && c.Value != "" {
			return c, true
		}
	}
	return Cookie{}, false
}
