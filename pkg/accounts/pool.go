package accounts

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/logger"
)

// Account is one credential set and its failure bookkeeping
type Account struct {
	ID         int
	Username   string
	Password   string
	Handle     string
	UserID     string
	CookieFile string

	FailureCount      int
	IsBlocked         bool
	CooldownUntil     time.Time
	LastFailure       time.Time
	LastFailureKind   errs.Kind
	LastFailureDetail string
}

// CooldownRemaining returns how long the account stays blocked
func (a Account) CooldownRemaining(now time.Time) time.Duration {
	if !a.IsBlocked || !now.Before(a.CooldownUntil) {
		return 0
	}
	return a.CooldownUntil.Sub(now)
}

// CookieFiles resolves and removes per-account cookie files
type CookieFiles interface {
	PathFor(username, explicit string) string
	Delete(path string) error
}

// FailureOutcome reports what a recorded failure did to the account
type FailureOutcome struct {
	FailureCount     int
	RotationRequired bool
}

// Availability is the answer to EnsureAvailable
type Availability struct {
	OK      bool
	Wait    time.Duration
	Account Account
}

// Pool holds the configured accounts and tracks which one is current
type Pool struct {
	mu              sync.Mutex
	accounts        []*Account
	current         int
	ipCooldownUntil time.Time

	cfg     config.ResilienceConfig
	cookies CookieFiles
	logger  logger.Logger
	now     func() time.Time
}

// NewPool builds a pool from configuration. The first account starts current.
func NewPool(list []config.AccountConfig, cookies CookieFiles, cfg config.ResilienceConfig, log logger.Logger) (*Pool, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("no accounts configured")
	}
	if cfg.MaxAccountFailures <= 0 {
		cfg.MaxAccountFailures = 3
	}
	if log == nil {
		log = logger.GetLogger()
	}

	p := &Pool{
		cfg:     cfg,
		cookies: cookies,
		logger:  log.WithField("component", "accounts"),
		now:     time.Now,
	}
	for i, ac := range list {
		cookieFile := ac.CookieFile
		if cookies != nil {
			cookieFile = cookies.PathFor(ac.Username, ac.CookieFile)
		}
		p.accounts = append(p.accounts, &Account{
			ID:         i,
			Username:   ac.Username,
			Password:   ac.Password,
			Handle:     ac.Handle,
			UserID:     ac.UserID,
			CookieFile: cookieFile,
		})
	}
	return p, nil
}

// SetClock replaces the time source
func (p *Pool) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

// Len returns the number of accounts
func (p *Pool) Len() int {
	return len(p.accounts)
}

// Current returns a copy of the current account
func (p *Pool) Current() Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.accounts[p.current]
}

// RecordFailure increments the current account's failure count. Only when
// the count reaches the ceiling is the account blocked and a rotation
// required; its cookies stay on disk until RotateAfterFailures has moved to
// another account.
func (p *Pool) RecordFailure(kind errs.Kind, detail string) FailureOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	acc := p.accounts[p.current]
	acc.FailureCount++
	acc.LastFailure = now
	acc.LastFailureKind = kind
	acc.LastFailureDetail = detail

	out := FailureOutcome{FailureCount: acc.FailureCount}
	logger.LogAccountEvent(p.logger, acc.Username, "failure", map[string]interface{}{
		"kind":          string(kind),
		"detail":        detail,
		"failure_count": acc.FailureCount,
	})

	if acc.FailureCount < p.cfg.MaxAccountFailures {
		return out
	}
	p.block(acc, now, p.cfg.AccountCooldown)
	out.RotationRequired = true
	return out
}

// RotateAfterFailures leaves an account that hit the failure ceiling. The
// old account's cookie file is deleted only after another account has been
// selected; when every account is hot nothing is discarded.
func (p *Pool) RotateAfterFailures() (Account, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.accounts[p.current]
	next, err := p.rotate()
	if err != nil {
		return next, false, err
	}
	if p.cookies == nil || prev.CookieFile == "" || prev.ID == next.ID {
		return next, false, nil
	}
	if err := p.cookies.Delete(prev.CookieFile); err != nil {
		p.logger.WithError(err).WarnWithFields("Failed to delete cookies", map[string]interface{}{
			"username": prev.Username,
		})
		return next, false, nil
	}
	logger.LogAccountEvent(p.logger, prev.Username, "cookies_deleted", nil)
	return next, true, nil
}

// RecordSuccess resets the current account's failure count
func (p *Pool) RecordSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc := p.accounts[p.current]
	if acc.FailureCount > 0 {
		logger.LogAccountEvent(p.logger, acc.Username, "failures_reset", map[string]interface{}{
			"previous": acc.FailureCount,
		})
	}
	acc.FailureCount = 0
	acc.LastFailureDetail = ""
}

// Block puts the current account on cooldown without touching its cookies
func (p *Pool) Block(kind errs.Kind, detail string, cooldown time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc := p.accounts[p.current]
	now := p.now()
	acc.LastFailure = now
	acc.LastFailureKind = kind
	acc.LastFailureDetail = detail
	if cooldown <= 0 {
		cooldown = p.cfg.AccountCooldown
	}
	p.block(acc, now, cooldown)
}

func (p *Pool) block(acc *Account, now time.Time, cooldown time.Duration) {
	acc.IsBlocked = true
	acc.CooldownUntil = now.Add(cooldown)
	logger.LogAccountEvent(p.logger, acc.Username, "blocked", map[string]interface{}{
		"cooldown_until": acc.CooldownUntil.Format(time.RFC3339),
	})
}

// release unblocks accounts whose cooldown has expired. A released account
// starts over with a clean failure count.
func (p *Pool) release(now time.Time) {
	for _, acc := range p.accounts {
		if acc.IsBlocked && !now.Before(acc.CooldownUntil) {
			acc.IsBlocked = false
			acc.FailureCount = 0
			acc.CooldownUntil = time.Time{}
			logger.LogAccountEvent(p.logger, acc.Username, "released", nil)
		}
	}
}

// EnsureAvailable makes sure the current account can be used. When it is
// blocked a cooler account is selected; when none is usable the minimum
// wait is returned instead of an error.
func (p *Pool) EnsureAvailable() Availability {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	p.release(now)

	if now.Before(p.ipCooldownUntil) {
		return Availability{Wait: p.ipCooldownUntil.Sub(now), Account: *p.accounts[p.current]}
	}

	if !p.accounts[p.current].IsBlocked {
		return Availability{OK: true, Account: *p.accounts[p.current]}
	}
	if idx, ok := p.nextUsable(); ok {
		p.switchTo(idx)
		return Availability{OK: true, Account: *p.accounts[idx]}
	}
	return Availability{Wait: p.minWait(now), Account: *p.accounts[p.current]}
}

// RotateToNext advances to the next non-blocked account. When every account
// is hot an IP-level cooldown is applied and account_unavailable is returned
// carrying the required wait.
func (p *Pool) RotateToNext() (Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotate()
}

func (p *Pool) rotate() (Account, error) {
	now := p.now()
	p.release(now)

	if idx, ok := p.nextUsable(); ok {
		p.switchTo(idx)
		return *p.accounts[idx], nil
	}

	p.applyIPCooldown(now, p.cfg.IPCooldown)
	wait := p.ipCooldownUntil.Sub(now)
	if w := p.minWait(now); w > wait {
		wait = w
	}
	p.logger.WarnWithFields("All accounts are cooling down", map[string]interface{}{
		"wait": wait.Round(time.Second).String(),
	})
	return *p.accounts[p.current], errs.Unavailable(wait, "all accounts are cooling down")
}

// nextUsable scans forward from the current account. The current account
// itself is the last candidate.
func (p *Pool) nextUsable() (int, bool) {
	n := len(p.accounts)
	for step := 1; step <= n; step++ {
		idx := (p.current + step) % n
		if !p.accounts[idx].IsBlocked {
			return idx, true
		}
	}
	return 0, false
}

func (p *Pool) switchTo(idx int) {
	if idx == p.current {
		return
	}
	from := p.accounts[p.current].Username
	p.current = idx
	logger.LogAccountEvent(p.logger, p.accounts[idx].Username, "selected", map[string]interface{}{
		"previous": from,
	})
}

func (p *Pool) minWait(now time.Time) time.Duration {
	var shortest time.Duration
	for _, acc := range p.accounts {
		w := acc.CooldownRemaining(now)
		if w > 0 && (shortest == 0 || w < shortest) {
			shortest = w
		}
	}
	return shortest
}

// ApplyIPCooldown blocks all navigation for d. An existing longer cooldown
// is kept.
func (p *Pool) ApplyIPCooldown(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyIPCooldown(p.now(), d)
}

func (p *Pool) applyIPCooldown(now time.Time, d time.Duration) {
	until := now.Add(d)
	if until.After(p.ipCooldownUntil) {
		p.ipCooldownUntil = until
		logger.LogAccountEvent(p.logger, p.accounts[p.current].Username, "ip_cooldown", map[string]interface{}{
			"until": until.Format(time.RFC3339),
		})
	}
}

// IPCooldownRemaining returns the remaining IP-level cooldown
func (p *Pool) IPCooldownRemaining() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Before(p.ipCooldownUntil) {
		return p.ipCooldownUntil.Sub(now)
	}
	return 0
}

// Select makes the account with the given id current
func (p *Pool) Select(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id < 0 || id >= len(p.accounts) {
		return fmt.Errorf("unknown account id %d", id)
	}
	p.switchTo(id)
	return nil
}

// SelectByUsername makes the named account current
func (p *Pool) SelectByUsername(username string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, acc := range p.accounts {
		if strings.EqualFold(acc.Username, username) || strings.EqualFold(acc.Handle, username) {
			p.switchTo(i)
			return nil
		}
	}
	return fmt.Errorf("unknown account %q", username)
}

// FindByUserID returns the account whose configured user id matches
func (p *Pool) FindByUserID(userID string) (Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if userID == "" {
		return Account{}, false
	}
	for _, acc := range p.accounts {
		if acc.UserID == userID {
			return *acc, true
		}
	}
	return Account{}, false
}

// Snapshot returns copies of every account with expired cooldowns released
func (p *Pool) Snapshot() []Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.release(p.now())
	out := make([]Account, len(p.accounts))
	for i, acc := range p.accounts {
		out[i] = *acc
	}
	return out
}
