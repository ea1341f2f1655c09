package extract

import (
	"encoding/json"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"igleads/pkg/instagram"
)

// Field sources, recorded so a reviewer can see where each value came from
const (
	SourceOGTitle       = "og:title"
	SourceOGDescription = "og:description"
	SourceJSON          = "embedded_json"
	SourceDOM           = "rendered_dom"
)

var (
	ogTitleRe   = regexp.MustCompile(`^(.*?)\s*\(@([A-Za-z0-9._]+)\)`)
	ogBioRe     = regexp.MustCompile(`\(@[A-Za-z0-9._]+\)[^"“]*["“](.+)["”]\s*$`)
	hashtagRe   = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	takenAtRe   = regexp.MustCompile(`"taken_at(?:_timestamp)?"\s*:\s*(\d{9,11})`)
	ogCountRe   = regexp.MustCompile(`(?i)\d[\d.,]*(?:\s*(?:mil|mi|k|m|b)\b)?\s+(?:followers|following|posts|seguidores|seguindo|publicações|publicacoes)`)
	brTagRe     = regexp.MustCompile(`(?i)<br\s*/?>`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

var (
	nameSelectors = []string{
		`header section span[dir="auto"]`,
		`header section h2 + span`,
	}
	bioSelectors = []string{
		`header section h1`,
		`header section div._aa_c`,
		`header section div.-vDIg > span`,
		`[data-testid="user-bio"]`,
	}
	countSelectors = []string{
		`header section ul li`,
		`header a[href$="/followers/"], header a[href$="/following/"]`,
	}
)

// Raw is what a profile page yields before gating
type Raw struct {
	Username string

	FullName   string
	NameSource string
	Bio        string
	BioSource  string

	Counts      Counts
	CountSource string

	ExternalURL string
	PublicEmail string
	PublicPhone string
	City        string
	Zip         string
	Address     string
	IsPrivate   bool

	WhatsAppLinks  []string
	PostTimestamps []time.Time
}

// sanitizer strips markup from text pulled out of the page
var sanitizer = bluemonday.StrictPolicy()

// PlainText reduces an HTML fragment to plain text. Line breaks survive.
func PlainText(fragment string) string {
	fragment = brTagRe.ReplaceAllString(fragment, "\n")
	text := html.UnescapeString(sanitizer.Sanitize(fragment))
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRunsRe.ReplaceAllString(text, "\n\n"))
}

// ParseProfile reads a rendered profile page. Each field comes from the
// first source in its priority chain that yields a value.
func ParseProfile(page, username string) (*Raw, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	username = instagram.SanitizeUsername(username)
	raw := &Raw{Username: username}

	ogTitle := metaContent(doc, "og:title")
	ogDesc := metaContent(doc, "og:description")
	info := embeddedProfile(doc, username)

	// display name: og:title > embedded JSON > rendered header
	if m := ogTitleRe.FindStringSubmatch(ogTitle); m != nil && strings.TrimSpace(m[1]) != "" {
		raw.FullName, raw.NameSource = PlainText(m[1]), SourceOGTitle
	} else if info != nil && strings.TrimSpace(info.FullName) != "" {
		raw.FullName, raw.NameSource = PlainText(info.FullName), SourceJSON
	} else if name := firstText(doc, nameSelectors, username); name != "" {
		raw.FullName, raw.NameSource = name, SourceDOM
	}

	// bio: rendered DOM > og:description > embedded JSON
	if bio := renderedBio(doc); bio != "" {
		raw.Bio, raw.BioSource = bio, SourceDOM
	} else if m := ogBioRe.FindStringSubmatch(ogDesc); m != nil {
		raw.Bio, raw.BioSource = PlainText(m[1]), SourceOGDescription
	} else if info != nil && strings.TrimSpace(info.Biography) != "" {
		raw.Bio, raw.BioSource = PlainText(info.Biography), SourceJSON
	}

	// counts: rendered DOM > og:description > embedded JSON
	raw.Counts, raw.CountSource = renderedCounts(doc), SourceDOM
	if len(raw.Counts.found) == 0 {
		if c := CountsFromTexts(ogCountRe.FindAllString(ogDesc, -1)); len(c.found) > 0 {
			raw.Counts, raw.CountSource = c, SourceOGDescription
		} else if info != nil {
			raw.Counts = Counts{}
			raw.Counts.set(countFollowers, info.EdgeFollowedBy.Count)
			raw.Counts.set(countFollowing, info.EdgeFollow.Count)
			raw.CountSource = SourceJSON
		}
	}

	if info != nil {
		raw.ExternalURL = info.ExternalURL
		raw.PublicEmail = firstNonEmpty(info.PublicEmail, info.BusinessEmail)
		raw.PublicPhone = firstNonEmpty(info.PublicPhone, info.ContactPhone, info.BusinessPhone)
		raw.City = info.CityName
		raw.Zip = info.Zip
		raw.Address = info.Address
		raw.IsPrivate = info.IsPrivate
	}
	if raw.ExternalURL == "" {
		raw.ExternalURL = renderedExternalLink(doc)
	}

	raw.WhatsAppLinks = whatsAppFromDocument(doc, raw.Bio, raw.ExternalURL)
	raw.PostTimestamps = postTimestamps(doc, page)
	return raw, nil
}

func metaContent(doc *goquery.Document, property string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		p, _ := s.Attr("property")
		if p == "" {
			p, _ = s.Attr("name")
		}
		if p != property {
			return true
		}
		content, _ = s.Attr("content")
		content = html.UnescapeString(strings.TrimSpace(content))
		return false
	})
	return content
}

// embeddedProfile finds the profile object in inline script payloads
func embeddedProfile(doc *goquery.Document, username string) *instagram.ProfileInfo {
	var found *instagram.ProfileInfo
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := s.Text()
		for offset := 0; ; {
			idx := strings.Index(text[offset:], `"user":{`)
			if idx < 0 {
				return true
			}
			start := offset + idx + len(`"user":`)
			var info instagram.ProfileInfo
			dec := json.NewDecoder(strings.NewReader(text[start:]))
			if err := dec.Decode(&info); err == nil && strings.EqualFold(info.Username, username) {
				found = &info
				return false
			}
			offset = start
		}
	})
	return found
}

func firstText(doc *goquery.Document, selectors []string, exclude string) string {
	for _, sel := range selectors {
		var text string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			t := strings.TrimSpace(s.Text())
			if t == "" || strings.EqualFold(t, exclude) || classifyCountText(t) != countNone {
				return true
			}
			text = t
			return false
		})
		if text != "" {
			return text
		}
	}
	return ""
}

func renderedBio(doc *goquery.Document) string {
	for _, sel := range bioSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		fragment, err := s.Html()
		if err != nil {
			continue
		}
		if bio := PlainText(fragment); bio != "" {
			return bio
		}
	}
	return ""
}

func renderedCounts(doc *goquery.Document) Counts {
	for _, sel := range countSelectors {
		var texts []string
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			// exact follower numbers live in the title attribute
			if title, ok := s.Find("span[title]").Attr("title"); ok && classifyCountText(s.Text()) == countFollowers {
				texts = append(texts, title+" followers")
				return
			}
			texts = append(texts, strings.Join(strings.Fields(s.Text()), " "))
		})
		if c := CountsFromTexts(texts); len(c.found) > 0 {
			return c
		}
	}
	return Counts{}
}

func renderedExternalLink(doc *goquery.Document) string {
	var link string
	doc.Find("header a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		target := unwrapRedirect(href)
		if target == href && !hasRel(s, "me") {
			return true
		}
		link = target
		return false
	})
	return link
}

func hasRel(s *goquery.Selection, value string) bool {
	for _, r := range strings.Fields(s.AttrOr("rel", "")) {
		if r == value {
			return true
		}
	}
	return false
}

func whatsAppFromDocument(doc *goquery.Document, bio, external string) []string {
	seen := make(map[string]bool)
	var links []string
	add := func(candidates ...string) {
		for _, c := range candidates {
			for _, l := range WhatsAppLinks(c) {
				if !seen[l] {
					seen[l] = true
					links = append(links, l)
				}
			}
		}
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		add(unwrapRedirect(href))
	})
	add(bio, external)
	return links
}

func postTimestamps(doc *goquery.Document, page string) []time.Time {
	seen := make(map[int64]bool)
	var out []time.Time
	add := func(t time.Time) {
		if t.IsZero() || seen[t.Unix()] {
			return
		}
		seen[t.Unix()] = true
		out = append(out, t.UTC())
	}

	doc.Find("time[datetime]").Each(func(_ int, s *goquery.Selection) {
		if t, err := time.Parse(time.RFC3339, s.AttrOr("datetime", "")); err == nil {
			add(t)
		}
	})
	for _, m := range takenAtRe.FindAllStringSubmatch(page, -1) {
		if sec, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			add(time.Unix(sec, 0))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out
}

// BioHashtags returns the lower-cased hashtags mentioned in a bio
func BioHashtags(bio string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, m := range hashtagRe.FindAllStringSubmatch(bio, -1) {
		tag := instagram.NormalizeHashtag(m[1])
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	return tags
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
