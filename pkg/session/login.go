package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"igleads/pkg/accounts"
	"igleads/pkg/browser"
	errs "igleads/pkg/errors"
	"igleads/pkg/instagram"
	"igleads/pkg/models"
	"igleads/pkg/ratelimit"
	"igleads/pkg/retry"
)

const (
	usernameInput = `input[name="username"]`
	passwordInput = `input[name="password"]`
	submitButton  = `button[type="submit"]`
	consentButton = `button._a9--._a9_1`
	buttonLike    = `button, div[role="button"], a[role="button"]`

	// submit polls for the session cookie this many times
	loginPollAttempts = 10
	manualPollEvery   = 2 * time.Second
)

// resumePhrases mark the "continue as" interstitial shown when the browser
// remembers a previous login
var resumePhrases = []string{
	"continue as",
	"continuar como",
	"resume session",
	"retomar sessão",
}

// dismissPhrases close the post-login prompts
var dismissPhrases = []string{
	"not now",
	"agora não",
}

// login authenticates page as acc. Persisted cookies are tried first, then
// credentials, then a bounded manual window when the browser is visible.
func (m *Manager) login(ctx context.Context, page browser.Page, acc accounts.Account) error {
	log := m.logger.WithField("account", acc.Username)

	cookies, err := m.jar.Load(acc.CookieFile)
	if err != nil {
		log.WithError(err).Warn("Ignoring unreadable cookie file")
	}
	if len(cookies) > 0 {
		if err := page.SetCookies(ctx, cookies); err != nil {
			return errs.ClassifyBrowserError(err, m.cfg.Navigation.RateLimitSignatures)
		}
	}

	if err := m.gotoExpectingLogin(ctx, page, instagram.HomeURL()); err != nil {
		return err
	}
	if _, err := m.dismissResumeInterstitial(ctx, page); err != nil {
		return err
	}
	if ok, err := m.verify(ctx, page); err != nil {
		return err
	} else if ok {
		log.Info("Session restored from cookies")
		return m.persistCookies(ctx, page, acc)
	}

	if acc.Password != "" {
		if err := m.loginWithCredentials(ctx, page, acc); err != nil {
			return err
		}
		if ok, err := m.waitForSession(ctx, page, loginPollAttempts); err != nil {
			return err
		} else if ok {
			log.Info("Logged in with credentials")
			return m.persistCookies(ctx, page, acc)
		}
	}

	if !m.cfg.Browser.Headless && m.cfg.Browser.ManualLoginWindow > 0 {
		log.InfoWithFields("Waiting for manual login", map[string]interface{}{
			"window": m.cfg.Browser.ManualLoginWindow.String(),
		})
		if ok, err := m.waitManualLogin(ctx, page); err != nil {
			return err
		} else if ok {
			log.Info("Manual login detected")
			return m.persistCookies(ctx, page, acc)
		}
	}

	return errs.New(errs.KindSessionInvalid, fmt.Sprintf("login failed for %s", acc.Username))
}

// gotoExpectingLogin navigates while treating a login redirect as normal
func (m *Manager) gotoExpectingLogin(ctx context.Context, page browser.Page, url string) error {
	_, err := m.guard.GotoPage(ctx, page, url)
	if err != nil && !errs.Is(err, errs.KindSessionInvalid) {
		return err
	}
	return nil
}

// verify checks for the session cookie. Challenge and suspension pages are
// reported as errors.
func (m *Manager) verify(ctx context.Context, page browser.Page) (bool, error) {
	if current, err := page.URL(ctx); err == nil {
		switch {
		case instagram.IsSuspendedURL(current):
			return false, errs.New(errs.KindSuspended, "account suspended")
		case instagram.IsChallengeURL(current):
			return false, errs.New(errs.KindChallengeRequired, "verification required")
		}
	}
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return false, errs.ClassifyBrowserError(err, m.cfg.Navigation.RateLimitSignatures)
	}
	_, ok := models.FindCookie(cookies, instagram.SessionCookie)
	return ok, nil
}

func (m *Manager) loginWithCredentials(ctx context.Context, page browser.Page, acc accounts.Account) error {
	if err := m.gotoExpectingLogin(ctx, page, instagram.LoginURL()); err != nil {
		return err
	}

	// The form renders after the page is ready
	waitCfg := retry.DefaultConfig()
	waitCfg.RetryIf = retry.TransientOnly
	waitCfg.Logger = m.logger
	err := retry.Do(ctx, func(ctx context.Context) error {
		if err := page.WaitVisible(ctx, usernameInput); err != nil {
			return errs.Wrap(errs.KindTransient, err, "login form not rendered")
		}
		return nil
	}, waitCfg)
	if err != nil {
		return err
	}

	if _, err := page.ClickSelector(ctx, consentButton); err != nil {
		m.logger.WithError(err).Debug("Cookie consent not dismissed")
	}

	if err := m.typeHuman(ctx, page, usernameInput, acc.Username); err != nil {
		return err
	}
	if err := m.pacer.Pause(ctx, ratelimit.PauseAction); err != nil {
		return err
	}
	if err := m.typeHuman(ctx, page, passwordInput, acc.Password); err != nil {
		return err
	}
	if err := m.pacer.Pause(ctx, ratelimit.PauseAction); err != nil {
		return err
	}

	clicked, err := page.ClickSelector(ctx, submitButton)
	if err != nil {
		return errs.ClassifyBrowserError(err, m.cfg.Navigation.RateLimitSignatures)
	}
	if !clicked {
		return errs.New(errs.KindTransient, "login submit button missing")
	}
	return nil
}

// typeHuman enters text one key at a time with jittered pauses
func (m *Manager) typeHuman(ctx context.Context, page browser.Page, selector, text string) error {
	for _, r := range text {
		if err := page.Type(ctx, selector, string(r)); err != nil {
			return errs.ClassifyBrowserError(err, m.cfg.Navigation.RateLimitSignatures)
		}
		if err := m.pacer.Pause(ctx, ratelimit.PauseTyping); err != nil {
			return err
		}
	}
	return nil
}

// waitForSession polls for the session cookie after a submit, clearing
// interstitials along the way
func (m *Manager) waitForSession(ctx context.Context, page browser.Page, attempts int) (bool, error) {
	for i := 0; i < attempts; i++ {
		if err := m.pacer.Pause(ctx, ratelimit.PauseAction); err != nil {
			return false, err
		}
		if _, err := m.dismissResumeInterstitial(ctx, page); err != nil {
			return false, err
		}
		ok, err := m.verify(ctx, page)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *Manager) waitManualLogin(ctx context.Context, page browser.Page) (bool, error) {
	deadline := time.Now().Add(m.cfg.Browser.ManualLoginWindow)
	for time.Now().Before(deadline) {
		ok, err := m.verify(ctx, page)
		if err != nil || ok {
			return ok, err
		}
		if err := m.sleep(ctx, manualPollEvery); err != nil {
			return false, err
		}
	}
	return false, nil
}

// dismissResumeInterstitial clicks through the "continue as" screen and the
// post-login prompts. Dismissing is not a login: callers still verify.
func (m *Manager) dismissResumeInterstitial(ctx context.Context, page browser.Page) (bool, error) {
	elements, err := page.Elements(ctx, buttonLike)
	if err != nil {
		return false, errs.ClassifyBrowserError(err, m.cfg.Navigation.RateLimitSignatures)
	}

	for _, phrases := range [][]string{resumePhrases, dismissPhrases} {
		el, ok := findByText(elements, phrases)
		if !ok {
			continue
		}
		m.logger.DebugWithFields("Dismissing interstitial", map[string]interface{}{
			"button": el.Text,
		})
		if err := m.pacer.Pause(ctx, ratelimit.PauseAction); err != nil {
			return false, err
		}
		if err := m.pointer.Click(ctx, page, el); err != nil {
			return false, errs.ClassifyBrowserError(err, m.cfg.Navigation.RateLimitSignatures)
		}
		return true, nil
	}
	return false, nil
}

func findByText(elements []browser.Element, phrases []string) (browser.Element, bool) {
	for _, el := range elements {
		text := strings.ToLower(strings.TrimSpace(el.Text))
		if el.Width <= 0 || el.Height <= 0 {
			continue
		}
		for _, p := range phrases {
			if strings.HasPrefix(text, p) {
				return el, true
			}
		}
	}
	return browser.Element{}, false
}

func (m *Manager) persistCookies(ctx context.Context, page browser.Page, acc accounts.Account) error {
	cookies, err := page.Cookies(ctx)
	if err != nil {
		return errs.ClassifyBrowserError(err, m.cfg.Navigation.RateLimitSignatures)
	}
	if err := m.jar.Save(acc.CookieFile, cookies); err != nil {
		m.logger.WithError(err).Warn("Failed to persist cookies")
	}
	return nil
}
