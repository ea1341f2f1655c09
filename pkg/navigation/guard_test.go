package navigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/browser"
	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/logger"
	"igleads/pkg/ratelimit"
)

type staticSource struct {
	page browser.Page
	err  error
}

func (s *staticSource) ActivePage() (browser.Page, error) { return s.page, s.err }
func (s *staticSource) AccountName() string               { return "alice" }

const gridHTML = `<html><body><main>
<a href="/p/AAA/"><img></a><a href="/p/BBB/"><img></a>
</main></body></html>`

func newGuard(page *browser.FakePage) *Guard {
	cfg := config.DefaultConfig()
	pacer := ratelimit.NewPacer(cfg.Pacing, nil).WithSleep(ratelimit.NoSleep)
	return NewGuard(&staticSource{page: page}, cfg.Navigation, pacer, logger.NewNopLogger())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		url  string
		html string
		want Outcome
	}{
		{"grid", "https://www.instagram.com/explore/tags/organic/", gridHTML, OutcomeOK},
		{"login redirect", "https://www.instagram.com/accounts/login/?next=/explore/", "", OutcomeLoginRedirect},
		{"challenge url", "https://www.instagram.com/challenge/123/", "", OutcomeChallenge},
		{"suspended url", "https://www.instagram.com/accounts/suspended/", "", OutcomeSuspended},
		{"login wall", "https://www.instagram.com/someone/",
			`<html><body><form id="loginForm"><input name="username"><input name="password"></form></body></html>`, OutcomeLoginRedirect},
		{"challenge text", "https://www.instagram.com/",
			`<html><body><h1>Confirm it's you</h1></body></html>`, OutcomeChallenge},
		{"soft block", "https://www.instagram.com/explore/",
			`<html><body><p>Please wait a few minutes before you try again.</p></body></html>`, OutcomeRateLimited},
		{"empty hashtag", "https://www.instagram.com/explore/tags/zzzz/",
			`<html><body><h2>No posts yet</h2></body></html>`, OutcomeNoResults},
		{"unavailable pt", "https://www.instagram.com/explore/tags/zzzz/",
			`<html><body><h2>Esta página não está disponível.</h2></body></html>`, OutcomeUnavailable},
		{"unavailable en", "https://www.instagram.com/gone_user/",
			`<html><body><h2>Sorry, this page isn't available.</h2></body></html>`, OutcomeUnavailable},
		{"empty body", "https://www.instagram.com/", "", OutcomeOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.url, tt.html))
		})
	}
}

func TestOutcomeKind(t *testing.T) {
	assert.Equal(t, errs.Kind(""), OutcomeOK.Kind())
	assert.Equal(t, errs.KindSessionInvalid, OutcomeLoginRedirect.Kind())
	assert.Equal(t, errs.KindRateLimited, OutcomeRateLimited.Kind())
	assert.Equal(t, errs.KindNoResults, OutcomeNoResults.Kind())
	assert.Equal(t, errs.KindNoResults, OutcomeUnavailable.Kind())
	assert.Equal(t, errs.KindNavigation, OutcomeFailed.Kind())
}

func TestGotoOK(t *testing.T) {
	page := browser.NewFakePage()
	page.NavigateFunc = func(url string) (string, string, error) {
		return url, gridHTML, nil
	}
	g := newGuard(page)

	res, err := g.Goto(context.Background(), "https://www.instagram.com/explore/tags/organic/")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Contains(t, res.HTML, "/p/AAA/")
	assert.Equal(t, 1, g.Count())
}

func TestGotoRateLimitedSignatureIsNotRetried(t *testing.T) {
	page := browser.NewFakePage()
	page.NavigateFunc = func(url string) (string, string, error) {
		return "", "", errors.New("page load error net::ERR_HTTP_RESPONSE_CODE_FAILURE")
	}
	g := newGuard(page)

	res, err := g.Goto(context.Background(), "https://www.instagram.com/explore/tags/organic/")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindRateLimited))
	assert.Equal(t, OutcomeRateLimited, res.Outcome)
	assert.Equal(t, 1, page.NavigationCount())
}

func TestGotoDetachedFrame(t *testing.T) {
	page := browser.NewFakePage()
	page.NavigateFunc = func(url string) (string, string, error) {
		return "", "", errors.New("frame was detached")
	}
	g := newGuard(page)

	res, err := g.Goto(context.Background(), "https://www.instagram.com/")
	assert.True(t, errs.Is(err, errs.KindDetachedFrame))
	assert.Equal(t, OutcomeDetachedFrame, res.Outcome)
}

func TestGotoLoginRedirectBecomesSessionInvalid(t *testing.T) {
	page := browser.NewFakePage()
	page.NavigateFunc = func(url string) (string, string, error) {
		return "https://www.instagram.com/accounts/login/", "<html></html>", nil
	}
	g := newGuard(page)

	res, err := g.Goto(context.Background(), "https://www.instagram.com/explore/")
	assert.True(t, errs.Is(err, errs.KindSessionInvalid))
	assert.Equal(t, OutcomeLoginRedirect, res.Outcome)
}

func TestGotoNoSource(t *testing.T) {
	g := NewGuard(&staticSource{err: errs.New(errs.KindSessionInvalid, "no session")}, config.NavigationConfig{}, nil, logger.NewNopLogger())
	_, err := g.Goto(context.Background(), "https://www.instagram.com/")
	assert.True(t, errs.Is(err, errs.KindSessionInvalid))
}

func TestGotoCancelledContext(t *testing.T) {
	page := browser.NewFakePage()
	g := newGuard(page)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := g.Goto(ctx, "https://www.instagram.com/")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, page.NavigationCount())
}

func TestGotoBudget(t *testing.T) {
	page := browser.NewFakePage()
	cfg := config.DefaultConfig().Navigation
	cfg.MaxPerMinute = 2
	g := NewGuard(&staticSource{page: page}, cfg, nil, logger.NewNopLogger())

	for i := 0; i < 2; i++ {
		_, err := g.Goto(context.Background(), "https://www.instagram.com/")
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Goto(ctx, "https://www.instagram.com/")
	assert.Error(t, err)
	assert.Equal(t, 2, page.NavigationCount())
}

func TestCheckIgnoresNoResults(t *testing.T) {
	page := browser.NewFakePage()
	page.SetPage("https://www.instagram.com/p/AAA/", "<html><body>No posts yet</body></html>")
	g := newGuard(page)

	res, err := g.Check(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoResults, res.Outcome)

	page.SetPage("https://www.instagram.com/challenge/", "")
	_, err = g.Check(context.Background(), page)
	assert.True(t, errs.Is(err, errs.KindChallengeRequired))
}
