package traversal

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"igleads/pkg/instagram"
)

var (
	ownerRe      = regexp.MustCompile(`"owner"\s*:\s*\{[^{}]*?"username"\s*:\s*"([A-Za-z0-9._]+)"`)
	captionTagRe = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
)

var authorSelectors = []string{
	`article header a[href]`,
	`header a[href]`,
	`main a[role="link"][href]`,
}

// Post is what an opened post page tells us
type Post struct {
	Author   string
	Hashtags []string
}

// ParsePost resolves the author and hashtags of an opened post
func ParsePost(page string) (Post, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return Post{}, err
	}
	return Post{
		Author:   postAuthor(doc, page),
		Hashtags: postHashtags(doc),
	}, nil
}

func postAuthor(doc *goquery.Document, page string) string {
	for _, sel := range authorSelectors {
		var author string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, _ := s.Attr("href")
			author = instagram.UsernameFromProfileURL(href)
			return author == ""
		})
		if author != "" {
			return strings.ToLower(author)
		}
	}
	if m := ownerRe.FindStringSubmatch(page); m != nil {
		return strings.ToLower(m[1])
	}
	return ""
}

func postHashtags(doc *goquery.Document) []string {
	set := make(map[string]bool)
	doc.Find(`a[href*="/explore/tags/"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 3 && parts[0] == "explore" && parts[1] == "tags" {
			if tag := instagram.NormalizeHashtag(parts[2]); tag != "" {
				set[tag] = true
			}
		}
	})

	caption := doc.Find("article h1").First().Text()
	if caption == "" {
		caption, _ = doc.Find(`meta[property="og:description"]`).Attr("content")
	}
	for _, m := range captionTagRe.FindAllStringSubmatch(caption, -1) {
		if tag := instagram.NormalizeHashtag(m[1]); tag != "" {
			set[tag] = true
		}
	}

	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
