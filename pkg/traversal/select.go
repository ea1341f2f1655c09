package traversal

import (
	"sort"

	"igleads/pkg/browser"
	"igleads/pkg/config"
	"igleads/pkg/instagram"
)

// postAnchors matches post and reel links on a grid
const postAnchors = `a[href*="/p/"], a[href*="/reel/"]`

// Candidate is a rendered post link with its permanent URL
type Candidate struct {
	URL     string
	Element browser.Element
}

// Candidates turns rendered anchors into selectable posts. Anchors scrolled
// further above the viewport than tolerance are dropped; the rest are
// ordered top to bottom, then left to right.
func Candidates(elements []browser.Element, tolerance float64) []Candidate {
	out := make([]Candidate, 0, len(elements))
	seen := make(map[string]bool, len(elements))
	for _, el := range elements {
		if el.Top < -tolerance || el.Width <= 0 || el.Height <= 0 {
			continue
		}
		u := instagram.NormalizePostURL(el.Href)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, Candidate{URL: u, Element: el})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Element, out[j].Element
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		return a.Left < b.Left
	})
	return out
}

// SelectNext returns the first candidate not yet visited
func SelectNext(candidates []Candidate, visited map[string]bool) (Candidate, bool) {
	for _, c := range candidates {
		if !visited[c.URL] {
			return c, true
		}
	}
	return Candidate{}, false
}

// ShouldScroll reports whether the grid may be scrolled yet
func ShouldScroll(duplicates, clicks int, cfg config.TraversalConfig) bool {
	return duplicates >= cfg.ScrollDuplicateThreshold || clicks >= cfg.ScrollClickThreshold
}
