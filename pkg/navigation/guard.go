package navigation

import (
	"context"
	"fmt"
	"time"

	"igleads/pkg/browser"
	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/logger"
	"igleads/pkg/ratelimit"
)

// PageSource hands out the page of the live session
type PageSource interface {
	ActivePage() (browser.Page, error)
	AccountName() string
}

// Result describes one guarded navigation
type Result struct {
	RequestedURL string
	FinalURL     string
	HTML         string
	Outcome      Outcome
	Duration     time.Duration
}

// Guard wraps every navigation with a timeout, a navigation budget and
// outcome classification. It never retries.
type Guard struct {
	source PageSource
	cfg    config.NavigationConfig
	budget *ratelimit.SlidingWindow
	pacer  *ratelimit.Pacer
	logger logger.Logger
	count  int
}

// NewGuard creates a guard. pacer may be nil.
func NewGuard(source PageSource, cfg config.NavigationConfig, pacer *ratelimit.Pacer, log logger.Logger) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxPerMinute <= 0 {
		cfg.MaxPerMinute = 12
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Guard{
		source: source,
		cfg:    cfg,
		budget: ratelimit.NewSlidingWindow(cfg.MaxPerMinute, time.Minute),
		pacer:  pacer,
		logger: log.WithField("component", "navigation"),
	}
}

// Count returns how many navigations were attempted
func (g *Guard) Count() int {
	return g.count
}

// Goto navigates the session page to url
func (g *Guard) Goto(ctx context.Context, url string) (*Result, error) {
	if g.source == nil {
		return nil, fmt.Errorf("navigation guard has no page source")
	}
	page, err := g.source.ActivePage()
	if err != nil {
		return nil, err
	}
	return g.GotoPage(ctx, page, url)
}

// GotoPage navigates an explicit page. The session uses it while logging in,
// before the page is handed out.
func (g *Guard) GotoPage(ctx context.Context, page browser.Page, url string) (*Result, error) {
	if err := g.budget.Wait(ctx); err != nil {
		return nil, err
	}
	if g.pacer != nil {
		if err := g.pacer.Pause(ctx, ratelimit.PauseNavigation); err != nil {
			return nil, err
		}
	}

	g.count++
	start := time.Now()
	res := &Result{RequestedURL: url}

	navCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	navErr := page.Navigate(navCtx, url)
	cancel()
	res.Duration = time.Since(start)

	account := ""
	if g.source != nil {
		account = g.source.AccountName()
	}

	if navErr != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		typed := errs.ClassifyBrowserError(navErr, g.cfg.RateLimitSignatures)
		switch typed.Kind {
		case errs.KindRateLimited:
			res.Outcome = OutcomeRateLimited
		case errs.KindDetachedFrame:
			res.Outcome = OutcomeDetachedFrame
		default:
			res.Outcome = OutcomeFailed
		}
		logger.LogNavigation(g.logger, account, url, res.Duration, typed)
		return res, typed
	}

	if res.FinalURL, navErr = page.URL(ctx); navErr != nil {
		typed := errs.ClassifyBrowserError(navErr, g.cfg.RateLimitSignatures)
		logger.LogNavigation(g.logger, account, url, res.Duration, typed)
		return res, typed
	}
	if res.HTML, navErr = page.Content(ctx); navErr != nil {
		typed := errs.ClassifyBrowserError(navErr, g.cfg.RateLimitSignatures)
		logger.LogNavigation(g.logger, account, url, res.Duration, typed)
		return res, typed
	}

	res.Outcome = Classify(res.FinalURL, res.HTML)
	if kind := res.Outcome.Kind(); kind != "" {
		err := errs.New(kind, fmt.Sprintf("navigation to %s ended in %s", url, res.Outcome))
		logger.LogNavigation(g.logger, account, url, res.Duration, err)
		return res, err
	}

	logger.LogNavigation(g.logger, account, url, res.Duration, nil)
	return res, nil
}

// Check classifies the page the session currently shows without navigating.
// Used after clicks, which change location without going through Goto.
func (g *Guard) Check(ctx context.Context, page browser.Page) (*Result, error) {
	res := &Result{}
	var err error
	if res.FinalURL, err = page.URL(ctx); err != nil {
		return res, errs.ClassifyBrowserError(err, g.cfg.RateLimitSignatures)
	}
	if res.HTML, err = page.Content(ctx); err != nil {
		return res, errs.ClassifyBrowserError(err, g.cfg.RateLimitSignatures)
	}
	res.Outcome = Classify(res.FinalURL, res.HTML)
	if kind := res.Outcome.Kind(); kind != "" && kind != errs.KindNoResults {
		return res, errs.New(kind, fmt.Sprintf("page %s shows %s", res.FinalURL, res.Outcome))
	}
	return res, nil
}
