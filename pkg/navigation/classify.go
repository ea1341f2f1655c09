package navigation

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "igleads/pkg/errors"
	"igleads/pkg/instagram"
)

// Outcome is the classification of a landed page
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeLoginRedirect Outcome = "login_redirect"
	OutcomeChallenge     Outcome = "challenge"
	OutcomeSuspended     Outcome = "suspended"
	OutcomeRateLimited   Outcome = "rate_limited"
	OutcomeNoResults     Outcome = "no_results"
	OutcomeUnavailable   Outcome = "unavailable"
	OutcomeDetachedFrame Outcome = "detached_frame"
	OutcomeFailed        Outcome = "failed"
)

// Kind returns the error kind an outcome maps to, or "" for OK
func (o Outcome) Kind() errs.Kind {
	switch o {
	case OutcomeOK:
		return ""
	case OutcomeLoginRedirect:
		return errs.KindSessionInvalid
	case OutcomeChallenge:
		return errs.KindChallengeRequired
	case OutcomeSuspended:
		return errs.KindSuspended
	case OutcomeRateLimited:
		return errs.KindRateLimited
	case OutcomeNoResults, OutcomeUnavailable:
		return errs.KindNoResults
	case OutcomeDetachedFrame:
		return errs.KindDetachedFrame
	default:
		return errs.KindNavigation
	}
}

// softBlockPhrases appear on the interstitial shown instead of content when
// the account is throttled
var softBlockPhrases = []string{
	"please wait a few minutes before you try again",
	"aguarde alguns minutos antes de tentar novamente",
}

// noResultsPhrases mark an existing page that simply has no posts
var noResultsPhrases = []string{
	"no posts yet",
	"nenhuma publicação",
	"ainda não há publicações",
}

// unavailablePhrases mark a page that does not exist or was removed
var unavailablePhrases = []string{
	"sorry, this page isn't available",
	"esta página não está disponível",
}

var challengePhrases = []string{
	"confirm it's you",
	"confirme que é você",
	"we detected an unusual login attempt",
	"detectamos uma tentativa de login incomum",
}

// Classify maps the landed URL and page content to an outcome. It never
// looks at status codes; network-level blocks surface as navigation
// errors and are classified from the error instead.
func Classify(finalURL, html string) Outcome {
	switch {
	case instagram.IsSuspendedURL(finalURL):
		return OutcomeSuspended
	case instagram.IsChallengeURL(finalURL):
		return OutcomeChallenge
	case instagram.IsLoginURL(finalURL):
		return OutcomeLoginRedirect
	}

	if strings.TrimSpace(html) == "" {
		return OutcomeOK
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return OutcomeOK
	}

	text := strings.ToLower(doc.Find("body").Text())
	if containsAny(text, challengePhrases) {
		return OutcomeChallenge
	}
	if containsAny(text, softBlockPhrases) {
		return OutcomeRateLimited
	}
	if doc.Find(`form#loginForm, input[name="password"]`).Length() > 0 && CountPostAnchors(doc) == 0 {
		return OutcomeLoginRedirect
	}
	if CountPostAnchors(doc) > 0 {
		return OutcomeOK
	}
	if containsAny(text, unavailablePhrases) {
		return OutcomeUnavailable
	}
	if containsAny(text, noResultsPhrases) {
		return OutcomeNoResults
	}
	return OutcomeOK
}

// CountPostAnchors returns the number of post links in the document
func CountPostAnchors(doc *goquery.Document) int {
	n := 0
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, _ := s.Attr("href"); instagram.IsPostURL(href) {
			n++
		}
	})
	return n
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
