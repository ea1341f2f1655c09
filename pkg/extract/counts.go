package extract

import (
	"regexp"
	"strconv"
	"strings"
)

var countRe = regexp.MustCompile(`(\d[\d.,]*)(?:\s*(mil|mi|k|m|b)\b)?`)

var multipliers = map[string]float64{
	"k":   1e3,
	"mil": 1e3,
	"m":   1e6,
	"mi":  1e6,
	"b":   1e9,
}

// ParseCount parses a displayed count such as "1,234", "1.234", "12,5 mil"
// or "3.4M". Without a suffix both separators are thousands separators.
func ParseCount(text string) (int, bool) {
	m := countRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(text)))
	if m == nil {
		return 0, false
	}
	digits, suffix := m[1], m[2]
	digits = strings.TrimRight(digits, ".,")

	if mult, ok := multipliers[suffix]; ok {
		f, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", "."), 64)
		if err != nil {
			return 0, false
		}
		return int(f*mult + 0.5), true
	}

	n, err := strconv.Atoi(strings.NewReplacer(".", "", ",", "").Replace(digits))
	if err != nil {
		return 0, false
	}
	return n, true
}

type countKind int

const (
	countNone countKind = iota
	countPosts
	countFollowers
	countFollowing
)

var countKeywords = []struct {
	kind     countKind
	keywords []string
}{
	{countFollowers, []string{"followers", "follower", "seguidores", "seguidor"}},
	{countFollowing, []string{"following", "seguindo"}},
	{countPosts, []string{"publicações", "publicação", "publicacoes", "posts", "post"}},
}

func classifyCountText(text string) countKind {
	lower := strings.ToLower(text)
	for _, ck := range countKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(lower, kw) {
				return ck.kind
			}
		}
	}
	return countNone
}

// Counts holds the three profile counters
type Counts struct {
	Posts     int
	Followers int
	Following int
	found     map[countKind]bool
}

func (c *Counts) set(kind countKind, n int) {
	if c.found == nil {
		c.found = make(map[countKind]bool)
	}
	if c.found[kind] {
		return
	}
	c.found[kind] = true
	switch kind {
	case countPosts:
		c.Posts = n
	case countFollowers:
		c.Followers = n
	case countFollowing:
		c.Following = n
	}
}

// Complete reports whether all three counters were found
func (c *Counts) Complete() bool {
	return len(c.found) == 3
}

// CountsFromTexts picks one value per counter from text runs. Each text is
// assigned by keyword; the first value per counter wins.
func CountsFromTexts(texts []string) Counts {
	var c Counts
	for _, t := range texts {
		kind := classifyCountText(t)
		if kind == countNone {
			continue
		}
		if n, ok := ParseCount(t); ok {
			c.set(kind, n)
		}
	}
	return c
}
