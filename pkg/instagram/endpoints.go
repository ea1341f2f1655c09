package instagram

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// BaseURL is the base URL for Instagram
	BaseURL = "https://www.instagram.com"

	// LoginPath is the login form location
	LoginPath = "/accounts/login/"

	// TopSearchEndpoint returns users, places and hashtags for a query
	TopSearchEndpoint = "/web/search/topsearch/"

	// SessionCookie is present only while a login is valid
	SessionCookie = "sessionid"

	// UserIDCookie carries the numeric id of the logged-in account
	UserIDCookie = "ds_user_id"
)

var (
	postPathRe = regexp.MustCompile(`^/(?:[A-Za-z0-9._]+/)?(p|reel)/([A-Za-z0-9_-]+)/?`)
	tagCleanRe = regexp.MustCompile(`[^\p{L}\p{N}_]`)
)

// HomeURL returns the feed root
func HomeURL() string {
	return BaseURL + "/"
}

// LoginURL returns the login form URL
func LoginURL() string {
	return BaseURL + LoginPath
}

// ExploreURL returns the explore grid URL
func ExploreURL() string {
	return BaseURL + "/explore/"
}

// HashtagURL returns the grid URL for a hashtag
func HashtagURL(tag string) string {
	return fmt.Sprintf("%s/explore/tags/%s/", BaseURL, url.PathEscape(NormalizeHashtag(tag)))
}

// TopSearchURL returns the top-search JSON endpoint for a query
func TopSearchURL(query string) string {
	params := url.Values{}
	params.Set("context", "blended")
	params.Set("query", "#"+NormalizeHashtag(query))
	params.Set("include_reel", "false")
	return fmt.Sprintf("%s%s?%s", BaseURL, TopSearchEndpoint, params.Encode())
}

// ProfileURL constructs the public profile URL for a user
func ProfileURL(username string) string {
	username = SanitizeUsername(username)
	if username == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/", BaseURL, username)
}

// PostURL constructs the URL for a specific post
func PostURL(shortcode string) string {
	if shortcode == "" {
		return ""
	}
	return fmt.Sprintf("%s/p/%s/", BaseURL, shortcode)
}

// IsPostURL reports whether raw points at an individual post or reel
func IsPostURL(raw string) bool {
	return NormalizePostURL(raw) != ""
}

// NormalizePostURL reduces a post link to its permanent form
// (https://www.instagram.com/p/<shortcode>/). Grid links may carry an
// author prefix, a query string or a reel path; all map to the same key.
// Returns "" when raw is not a post link.
func NormalizePostURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if u.Host != "" && !IsInstagramHost(u.Host) {
		return ""
	}
	m := postPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return PostURL(m[2])
}

// IsInstagramHost reports whether host belongs to the network
func IsInstagramHost(host string) bool {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	return host == "instagram.com" || strings.HasSuffix(host, ".instagram.com") ||
		host == "instagr.am"
}

// IsLoginURL reports whether the browser was sent to the login form
func IsLoginURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/accounts/login")
}

// IsChallengeURL reports whether the browser landed on a verification flow
func IsChallengeURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/challenge") ||
		strings.HasPrefix(u.Path, "/accounts/suspended") ||
		strings.Contains(u.Path, "/auth_platform/")
}

// IsSuspendedURL reports whether the account was suspended or disabled
func IsSuspendedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, "/accounts/suspended") ||
		strings.HasPrefix(u.Path, "/accounts/disabled")
}

// NormalizeHashtag lower-cases a term, strips '#', accents and any
// character Instagram does not allow in tags
func NormalizeHashtag(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	tag = strings.TrimLeft(tag, "#")
	decomposed := norm.NFD.String(tag)
	var b strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return tagCleanRe.ReplaceAllString(b.String(), "")
}

// IsValidUsername checks if a username is valid according to Instagram rules
func IsValidUsername(username string) bool {
	if username == "" || len(username) > 30 {
		return false
	}
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '.' || char == '_') {
			return false
		}
	}
	return true
}

// SanitizeUsername strips a leading '@' and trailing slashes or spaces
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.TrimRight(username, "/ ")
}

// reservedPaths are first path segments that are never usernames
var reservedPaths = map[string]bool{
	"p": true, "reel": true, "reels": true, "explore": true, "accounts": true,
	"stories": true, "direct": true, "about": true, "legal": true, "challenge": true,
	"web": true, "api": true, "developer": true, "tv": true,
}

// UsernameFromProfileURL extracts the username from a profile link, or ""
func UsernameFromProfileURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if u.Host != "" && !IsInstagramHost(u.Host) {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 1 || reservedPaths[parts[0]] {
		return ""
	}
	if !IsValidUsername(parts[0]) {
		return ""
	}
	return parts[0]
}
