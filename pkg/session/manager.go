package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"igleads/pkg/accounts"
	"igleads/pkg/browser"
	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/instagram"
	"igleads/pkg/logger"
	"igleads/pkg/models"
	"igleads/pkg/navigation"
	"igleads/pkg/ratelimit"
	"igleads/pkg/retry"
)

// State is the lifecycle state of the session
type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoggingIn     State = "logging_in"
	StateLoggedIn      State = "logged_in"
	StateInvalid       State = "invalid"
)

// Session is the live browser and the account logged into it
type Session struct {
	Browser        browser.Browser
	Page           browser.Page
	LoggedUsername string
	AccountID      int
	StartedAt      time.Time
}

// CookieJar persists per-account cookie files
type CookieJar interface {
	Load(path string) ([]models.Cookie, error)
	Save(path string, cookies []models.Cookie) error
	Delete(path string) error
}

// Manager owns the single browser session and its recovery
type Manager struct {
	mu      sync.Mutex
	state   State
	session *Session

	cfg      *config.Config
	pool     *accounts.Pool
	launcher browser.Launcher
	jar      CookieJar
	pacer    *ratelimit.Pacer
	guard    *navigation.Guard
	pointer  *browser.Pointer
	logger   logger.Logger

	group singleflight.Group
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a session manager. The navigation guard is built on
// top of it and available through Guard.
func NewManager(cfg *config.Config, pool *accounts.Pool, launcher browser.Launcher, jar CookieJar, pacer *ratelimit.Pacer, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	if pacer == nil {
		pacer = ratelimit.NewPacer(cfg.Pacing, nil)
	}
	m := &Manager{
		state:    StateUninitialized,
		cfg:      cfg,
		pool:     pool,
		launcher: launcher,
		jar:      jar,
		pacer:    pacer,
		pointer:  browser.NewPointer(browser.Point{X: 200, Y: 200}, time.Now().UnixNano()),
		logger:   log.WithField("component", "session"),
		sleep:    retry.Wait,
	}
	m.guard = navigation.NewGuard(m, cfg.Navigation, pacer, log)
	return m
}

// SetSleep replaces the function used to wait out account cooldowns
func (m *Manager) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	m.sleep = fn
}

// Guard returns the navigation guard bound to this session
func (m *Manager) Guard() *navigation.Guard {
	return m.guard
}

// Pointer returns the simulated mouse shared by every component
func (m *Manager) Pointer() *browser.Pointer {
	return m.pointer
}

// Pacer returns the pacing source
func (m *Manager) Pacer() *ratelimit.Pacer {
	return m.pacer
}

// Pool returns the account pool
func (m *Manager) Pool() *accounts.Pool {
	return m.pool
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != s {
		m.logger.DebugWithFields("Session state changed", map[string]interface{}{
			"from": string(m.state),
			"to":   string(s),
		})
	}
	m.state = s
}

// Current returns the live session, or nil
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// ActivePage returns the page of a logged-in session
func (m *Manager) ActivePage() (browser.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateLoggedIn || m.session == nil {
		return nil, errs.New(errs.KindSessionInvalid, "no logged-in session")
	}
	return m.session.Page, nil
}

// AccountName returns the username of the session account
func (m *Manager) AccountName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return m.session.LoggedUsername
	}
	return ""
}

// EnsureLoggedSession returns a logged-in session, creating one when
// needed. Concurrent callers share a single initialization.
func (m *Manager) EnsureLoggedSession(ctx context.Context) (*Session, error) {
	if s := m.loggedIn(); s != nil {
		return s, nil
	}
	v, err, shared := m.group.Do("session", func() (interface{}, error) {
		return m.initialize(ctx)
	})
	if shared {
		m.logger.Debug("Joined in-flight session initialization")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) loggedIn() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateLoggedIn && m.session != nil {
		s := *m.session
		return &s
	}
	return nil
}

func (m *Manager) initialize(ctx context.Context) (*Session, error) {
	if s := m.loggedIn(); s != nil {
		return s, nil
	}
	// A session left invalid by a failed re-verification still owns a browser
	if m.Current() != nil {
		m.teardown()
	}

	// Cooldowns are checked before a browser exists
	av := m.pool.EnsureAvailable()
	if !av.OK {
		m.logger.WarnWithFields("Waiting for account cooldown", map[string]interface{}{
			"wait": av.Wait.Round(time.Second).String(),
		})
		if err := m.sleep(ctx, av.Wait); err != nil {
			return nil, err
		}
		av = m.pool.EnsureAvailable()
		if !av.OK {
			return nil, errs.Unavailable(av.Wait, "no account available after cooldown")
		}
	}
	acc := av.Account

	m.setState(StateLoggingIn)
	b, err := m.launcher.Launch(ctx, browser.OptionsFromConfig(m.cfg.Browser, m.proxyFor(acc.ID)))
	if err != nil {
		m.setState(StateUninitialized)
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	page := b.Page()
	if err := m.login(ctx, page, acc); err != nil {
		m.closeBrowser(b)
		m.setState(StateInvalid)
		return nil, err
	}

	s := &Session{
		Browser:        b,
		Page:           page,
		LoggedUsername: loggedName(acc),
		AccountID:      acc.ID,
		StartedAt:      time.Now(),
	}
	m.mu.Lock()
	m.session = s
	m.state = StateLoggedIn
	m.mu.Unlock()

	logger.LogAccountEvent(m.logger, acc.Username, "logged_in", map[string]interface{}{
		"handle": s.LoggedUsername,
	})
	cp := *s
	return &cp, nil
}

// loggedName resolves the identity from configuration, never from the page
func loggedName(acc accounts.Account) string {
	if acc.Handle != "" {
		return acc.Handle
	}
	return acc.Username
}

func (m *Manager) proxyFor(accountID int) *config.ProxyConfig {
	if len(m.cfg.Proxies) == 0 {
		return nil
	}
	p := m.cfg.Proxies[accountID%len(m.cfg.Proxies)]
	return &p
}

// UseAccount makes the named account current, tearing down a session
// that belongs to another account
func (m *Manager) UseAccount(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}
	if err := m.pool.SelectByUsername(username); err != nil {
		return err
	}
	current := m.pool.Current()
	if s := m.Current(); s != nil && s.AccountID != current.ID {
		m.teardown()
	}
	return nil
}

// HandleSessionError reacts to a lost login. The pool is first synced with
// the account the browser is really authenticated as, then a failure is
// recorded. Below the failure ceiling the session is re-verified in place;
// at the ceiling it is torn down, rotated and logged in again. The old
// account's cookies are deleted only once the rotation has succeeded.
func (m *Manager) HandleSessionError(ctx context.Context, reason error) (bool, error) {
	m.syncCurrentAccount(ctx)

	kind := errs.KindOf(reason)
	if !errs.RequiresRecovery(kind) {
		kind = errs.KindSessionInvalid
	}
	detail := ""
	if reason != nil {
		detail = reason.Error()
	}

	out := m.pool.RecordFailure(kind, detail)
	if !out.RotationRequired {
		return m.reverify(ctx)
	}

	m.teardown()
	next, deleted, err := m.pool.RotateAfterFailures()
	if err != nil {
		return false, err
	}
	m.logger.InfoWithFields("Rotated account after repeated session failures", map[string]interface{}{
		"account":         next.Username,
		"cookies_deleted": deleted,
	})
	if _, err := m.EnsureLoggedSession(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// syncCurrentAccount repairs drift between the pool and the browser, e.g.
// after an out-of-band manual login with a different account
func (m *Manager) syncCurrentAccount(ctx context.Context) {
	s := m.Current()
	if s == nil {
		return
	}
	current := m.pool.Current()

	if cookies, err := s.Page.Cookies(ctx); err == nil {
		if c, ok := models.FindCookie(cookies, instagram.UserIDCookie); ok {
			if acc, found := m.pool.FindByUserID(c.Value); found {
				if acc.ID != current.ID {
					m.logger.WarnWithFields("Pool drifted from authenticated account", map[string]interface{}{
						"pool":          current.Username,
						"authenticated": acc.Username,
					})
					_ = m.pool.Select(acc.ID)
				}
				return
			}
		}
	}
	if s.AccountID != current.ID {
		_ = m.pool.Select(s.AccountID)
	}
}

// reverify checks the existing session in place and logs in again on the
// same browser when the session cookie is gone
func (m *Manager) reverify(ctx context.Context) (bool, error) {
	s := m.Current()
	if s == nil {
		m.setState(StateInvalid)
		if _, err := m.EnsureLoggedSession(ctx); err != nil {
			return false, err
		}
		return true, nil
	}

	m.setState(StateLoggingIn)
	acc := m.pool.Current()
	if err := m.login(ctx, s.Page, acc); err != nil {
		m.setState(StateInvalid)
		if errs.RequiresRotation(errs.KindOf(err)) {
			return false, err
		}
		m.logger.WithError(err).Warn("Session could not be re-verified")
		return false, nil
	}
	m.setState(StateLoggedIn)
	return true, nil
}

// RotateAfterBlock reacts to detection signals that burn the account
// without confirming the login is gone: the session is torn down, the
// account blocked and the pool rotated. Cookies are kept. Rate limits also
// put the network address on cooldown. No navigation happens here.
func (m *Manager) RotateAfterBlock(ctx context.Context, kind errs.Kind, detail string) (accounts.Account, error) {
	m.teardown()
	m.pool.Block(kind, detail, m.cfg.Resilience.AccountCooldown)
	if kind == errs.KindRateLimited {
		m.pool.ApplyIPCooldown(m.cfg.Resilience.IPCooldown)
	}
	return m.pool.RotateToNext()
}

// Close shuts the browser down
func (m *Manager) Close(ctx context.Context) error {
	m.teardown()
	return nil
}

// teardown closes the browser and forgets the session
func (m *Manager) teardown() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.state = StateUninitialized
	m.mu.Unlock()

	if s != nil && s.Browser != nil {
		m.closeBrowser(s.Browser)
	}
}

func (m *Manager) closeBrowser(b browser.Browser) {
	timeout := m.cfg.Browser.CloseTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	killed, err := browser.CloseWithTimeout(b, timeout)
	if err != nil {
		m.logger.WithError(err).Warn("Browser did not shut down cleanly")
		return
	}
	if killed {
		m.logger.Warn("Browser close timed out, process killed")
	}
}
