package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/accounts"
	"igleads/pkg/browser"
	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/instagram"
	"igleads/pkg/logger"
	"igleads/pkg/models"
	"igleads/pkg/ratelimit"
	"igleads/pkg/storage"
)

const (
	homeHTML  = `<html><body><main><a href="/p/AAA/">post</a></main></body></html>`
	loginHTML = `<html><body><form id="loginForm"><input name="username"><input name="password"><button type="submit">Log in</button></form></body></html>`
)

var userIDs = map[string]string{"alice": "111", "bob": "222"}

// newSitePage scripts a page that redirects to the login form until a
// session cookie exists. Submitting credentials succeeds when loginOK.
func newSitePage(loginOK bool) *browser.FakePage {
	page := browser.NewFakePage()
	page.NavigateFunc = func(url string) (string, string, error) {
		if _, ok := models.FindCookie(page.Jar, instagram.SessionCookie); ok {
			return url, homeHTML, nil
		}
		return instagram.LoginURL(), loginHTML, nil
	}
	page.ClickSelectorFunc = func(url, selector string) (string, string, bool) {
		if selector != submitButton {
			return "", "", false
		}
		if !loginOK {
			return url, loginHTML, true
		}
		user := page.Typed[usernameInput]
		page.Jar = append(page.Jar,
			models.Cookie{Name: instagram.SessionCookie, Value: "sess-" + user, Domain: ".instagram.com", Path: "/"},
			models.Cookie{Name: instagram.UserIDCookie, Value: userIDs[user], Domain: ".instagram.com", Path: "/"},
		)
		return instagram.HomeURL(), homeHTML, true
	}
	return page
}

type harness struct {
	manager  *Manager
	pool     *accounts.Pool
	store    *storage.CookieStore
	launcher *browser.FakeLauncher
	sleeps   []time.Duration
}

func newHarness(t *testing.T, loginOK bool) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Accounts = []config.AccountConfig{
		{Username: "alice", Password: "pw-a", Handle: "Alice Shop", UserID: "111"},
		{Username: "bob", Password: "pw-b", Handle: "Bob Store", UserID: "222"},
	}

	store, err := storage.NewCookieStore(t.TempDir())
	require.NoError(t, err)
	pool, err := accounts.NewPool(cfg.Accounts, store, cfg.Resilience, logger.NewNopLogger())
	require.NoError(t, err)

	launcher := &browser.FakeLauncher{
		NewPage: func(browser.LaunchOptions) *browser.FakePage { return newSitePage(loginOK) },
	}
	pacer := ratelimit.NewPacer(cfg.Pacing, nil).WithSleep(ratelimit.NoSleep)
	h := &harness{
		manager:  NewManager(cfg, pool, launcher, store, pacer, logger.NewNopLogger()),
		pool:     pool,
		store:    store,
		launcher: launcher,
	}
	h.manager.SetSleep(func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	})
	return h
}

func lastPage(t *testing.T, l *browser.FakeLauncher) *browser.FakePage {
	t.Helper()
	b := l.Last()
	require.NotNil(t, b)
	return b.Page().(*browser.FakePage)
}

func TestCredentialLoginPersistsCookies(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	s, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice Shop", s.LoggedUsername)
	assert.Equal(t, StateLoggedIn, h.manager.State())

	page := lastPage(t, h.launcher)
	assert.Equal(t, "alice", page.Typed[usernameInput])
	assert.Equal(t, "pw-a", page.Typed[passwordInput])

	saved, err := h.store.Load(h.pool.Current().CookieFile)
	require.NoError(t, err)
	_, ok := models.FindCookie(saved, instagram.SessionCookie)
	assert.True(t, ok)
}

func TestCookieRestoreSkipsCredentials(t *testing.T) {
	h := newHarness(t, true)
	require.NoError(t, h.store.Save(h.pool.Current().CookieFile, []models.Cookie{
		{Name: instagram.SessionCookie, Value: "saved", Domain: ".instagram.com", Path: "/"},
	}))

	_, err := h.manager.EnsureLoggedSession(context.Background())
	require.NoError(t, err)
	assert.Empty(t, lastPage(t, h.launcher).Typed)
}

func TestEnsureLoggedSessionIsIdempotent(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.manager.EnsureLoggedSession(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.launcher.LaunchCount())
}

func TestLoginFailureClosesBrowser(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.manager.EnsureLoggedSession(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindSessionInvalid))
	assert.Equal(t, StateInvalid, h.manager.State())
	assert.True(t, h.launcher.Last().Closed())

	_, err = h.manager.ActivePage()
	assert.True(t, errs.Is(err, errs.KindSessionInvalid))
}

func TestThreeSessionFailuresRotateAccount(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)
	aliceCookies := h.pool.Current().CookieFile
	require.True(t, h.store.Exists(aliceCookies))

	for i := 0; i < 2; i++ {
		recovered, err := h.manager.HandleSessionError(ctx, errs.New(errs.KindSessionInvalid, "login redirect"))
		require.NoError(t, err)
		assert.True(t, recovered)
		assert.Equal(t, "alice", h.pool.Current().Username)
		assert.True(t, h.store.Exists(aliceCookies), "cookies must survive failure %d", i+1)
	}
	assert.Equal(t, 1, h.launcher.LaunchCount())

	recovered, err := h.manager.HandleSessionError(ctx, errs.New(errs.KindSessionInvalid, "login redirect"))
	require.NoError(t, err)
	assert.True(t, recovered)

	assert.False(t, h.store.Exists(aliceCookies))
	assert.Equal(t, "bob", h.pool.Current().Username)
	assert.Equal(t, 2, h.launcher.LaunchCount())
	assert.True(t, h.launcher.Browsers[0].Closed())
	assert.Equal(t, "Bob Store", h.manager.AccountName())

	alice := h.pool.Snapshot()[0]
	assert.True(t, alice.IsBlocked)
	assert.Equal(t, 3, alice.FailureCount)
}

func TestSessionFailuresKeepCookiesWhenRotationFails(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.pool.Select(1))
	h.pool.Block(errs.KindRateLimited, "blocked", time.Hour)
	require.NoError(t, h.pool.Select(0))

	_, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)
	aliceCookies := h.pool.Current().CookieFile

	for i := 0; i < 2; i++ {
		_, err := h.manager.HandleSessionError(ctx, errs.New(errs.KindSessionInvalid, "login redirect"))
		require.NoError(t, err)
	}
	recovered, err := h.manager.HandleSessionError(ctx, errs.New(errs.KindSessionInvalid, "login redirect"))
	assert.False(t, recovered)
	assert.True(t, errs.Is(err, errs.KindAccountUnavailable))

	assert.True(t, h.store.Exists(aliceCookies))
	assert.Equal(t, "alice", h.pool.Current().Username)
}

func TestHandleSessionErrorRepairsDrift(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)

	// someone logged in as bob by hand in the same browser
	page := lastPage(t, h.launcher)
	require.NoError(t, page.ClearCookies(ctx))
	require.NoError(t, page.SetCookies(ctx, []models.Cookie{
		{Name: instagram.SessionCookie, Value: "manual"},
		{Name: instagram.UserIDCookie, Value: "222"},
	}))

	_, err = h.manager.HandleSessionError(ctx, errs.New(errs.KindSessionInvalid, "x"))
	require.NoError(t, err)

	snap := h.pool.Snapshot()
	assert.Equal(t, "bob", h.pool.Current().Username)
	assert.Equal(t, 0, snap[0].FailureCount)
	assert.Equal(t, 1, snap[1].FailureCount)
}

func TestRotateAfterBlockDoesNotNavigate(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)
	page := lastPage(t, h.launcher)
	navigations := page.NavigationCount()
	aliceCookies := h.pool.Current().CookieFile

	next, err := h.manager.RotateAfterBlock(ctx, errs.KindRateLimited, "net::ERR_HTTP_RESPONSE_CODE_FAILURE")
	require.NoError(t, err)
	assert.Equal(t, "bob", next.Username)
	assert.Equal(t, navigations, page.NavigationCount())
	assert.Equal(t, StateUninitialized, h.manager.State())
	assert.True(t, h.launcher.Last().Closed())
	assert.True(t, h.store.Exists(aliceCookies))
	assert.InDelta(t, float64(30*time.Minute), float64(h.pool.IPCooldownRemaining()), float64(time.Second))

	// the next initialization sleeps the cooldown exactly once, then gives up
	_, err = h.manager.EnsureLoggedSession(ctx)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAccountUnavailable))
	require.Len(t, h.sleeps, 1)
	assert.InDelta(t, float64(30*time.Minute), float64(h.sleeps[0]), float64(time.Second))
	assert.Equal(t, 1, h.launcher.LaunchCount())
}

func TestResumeInterstitialIsNotALogin(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	page := browser.NewFakePage()
	page.SetPage(instagram.HomeURL(), "")
	page.ElementsFunc = func(url, selector string) []browser.Element {
		return []browser.Element{
			{Text: "Use another profile", Left: 10, Top: 10, Width: 100, Height: 30},
			{Text: "Continue as alice", Left: 10, Top: 60, Width: 100, Height: 30},
		}
	}

	dismissed, err := h.manager.dismissResumeInterstitial(ctx, page)
	require.NoError(t, err)
	assert.True(t, dismissed)
	require.Len(t, page.Clicks, 1)
	assert.InDelta(t, 75, page.Clicks[0].Y, 15)

	ok, err := h.manager.verify(ctx, page)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyReportsChallenge(t *testing.T) {
	h := newHarness(t, true)
	page := browser.NewFakePage()
	page.SetPage("https://www.instagram.com/challenge/abc/", "")

	_, err := h.manager.verify(context.Background(), page)
	assert.True(t, errs.Is(err, errs.KindChallengeRequired))
}

func TestUseAccountTearsDownOtherSession(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)

	require.NoError(t, h.manager.UseAccount(ctx, "bob"))
	assert.Nil(t, h.manager.Current())
	assert.True(t, h.launcher.Last().Closed())

	s, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.AccountID)
	assert.Error(t, h.manager.UseAccount(ctx, "nobody"))
}

func TestProxyPerAccountSlot(t *testing.T) {
	h := newHarness(t, true)
	h.manager.cfg.Proxies = []config.ProxyConfig{{Host: "p1", Port: 1}, {Host: "p2", Port: 2}}

	_, err := h.manager.EnsureLoggedSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, h.launcher.Launches[0].Proxy)
	assert.Equal(t, "p1", h.launcher.Launches[0].Proxy.Host)
	assert.Equal(t, "p2", h.manager.proxyFor(1).Host)
}

func TestCloseTearsDown(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	_, err := h.manager.EnsureLoggedSession(ctx)
	require.NoError(t, err)

	require.NoError(t, h.manager.Close(ctx))
	assert.Equal(t, StateUninitialized, h.manager.State())
	assert.True(t, h.launcher.Last().Closed())
}
