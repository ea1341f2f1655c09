package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"igleads/pkg/logger"
	"igleads/pkg/models"
)

// ChromeLauncher starts Chrome through chromedp
type ChromeLauncher struct {
	logger logger.Logger
}

// NewChromeLauncher creates a launcher
func NewChromeLauncher(log logger.Logger) *ChromeLauncher {
	if log == nil {
		log = logger.GetLogger()
	}
	return &ChromeLauncher{logger: log.WithField("component", "browser")}
}

// AllocatorOptions converts launch options into chromedp flags
func AllocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "VizDisplayCompositor"),
		chromedp.Flag("no-first-run", true),
	)
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.WindowWidth, opts.WindowHeight))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}
	if opts.Locale != "" {
		allocOpts = append(allocOpts, chromedp.Flag("lang", opts.Locale))
	}
	if opts.Proxy != nil && opts.Proxy.Host != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy.Address()))
	}
	return allocOpts
}

// Launch starts a browser process with one tab
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	// The process outlives the launch call, so it hangs off Background
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if opts.Proxy != nil && opts.Proxy.Username != "" {
		listenProxyAuth(tabCtx, opts.Proxy.Username, opts.Proxy.Password)
	}

	startCtx, cancel := withCaller(tabCtx, ctx)
	defer cancel()

	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := evaluateOnNewDocument(ctx, hideWebdriverScript)
			return err
		}),
	}
	if opts.Proxy != nil && opts.Proxy.Username != "" {
		actions = append(actions, fetch.Enable().WithHandleAuthRequests(true))
	}
	if err := chromedp.Run(startCtx, actions...); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	fields := map[string]interface{}{"headless": opts.Headless}
	if opts.Proxy != nil {
		fields["proxy"] = opts.Proxy.Address()
	}
	l.logger.InfoWithFields("Browser launched", fields)

	b := &chromeBrowser{allocCancel: allocCancel, tabCtx: tabCtx, tabCancel: tabCancel}
	b.page = &chromePage{tabCtx: tabCtx}
	return b, nil
}

const hideWebdriverScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});`

func evaluateOnNewDocument(ctx context.Context, script string) (page.ScriptIdentifier, error) {
	return page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
}

// sameSite maps a persisted SameSite value onto the protocol enum
func sameSite(v string) (network.CookieSameSite, bool) {
	switch strings.ToLower(v) {
	case "strict":
		return network.CookieSameSiteStrict, true
	case "lax":
		return network.CookieSameSiteLax, true
	case "none":
		return network.CookieSameSiteNone, true
	}
	return "", false
}

// listenProxyAuth answers proxy credential challenges for the tab
func listenProxyAuth(tabCtx context.Context, username, password string) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				_ = chromedp.Run(tabCtx, fetch.ContinueRequest(e.RequestID))
			}()
		case *fetch.EventAuthRequired:
			go func() {
				_ = chromedp.Run(tabCtx, fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}))
			}()
		}
	})
}

// withCaller derives a chromedp context from tabCtx that also ends when the
// caller's ctx ends or hits its deadline
func withCaller(tabCtx, ctx context.Context) (context.Context, context.CancelFunc) {
	var runCtx context.Context
	var cancel context.CancelFunc
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(tabCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(tabCtx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

type chromeBrowser struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	page        *chromePage
}

func (b *chromeBrowser) Page() Page {
	return b.page
}

func (b *chromeBrowser) Close(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(b.tabCtx) }()
	select {
	case err := <-done:
		b.allocCancel()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *chromeBrowser) Kill() error {
	b.tabCancel()
	b.allocCancel()
	return nil
}

type chromePage struct {
	tabCtx context.Context
}

func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := withCaller(p.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var location string
	err := p.run(ctx, chromedp.Location(&location))
	return location, err
}

func (p *chromePage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out interface{}) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

const elementsScript = `(() => {
	return Array.from(document.querySelectorAll(%s)).map(el => {
		const r = el.getBoundingClientRect();
		return {
			href: el.getAttribute('href') || '',
			text: (el.innerText || '').trim().slice(0, 500),
			top: r.top, left: r.left, width: r.width, height: r.height
		};
	});
})()`

func (p *chromePage) Elements(ctx context.Context, selector string) ([]Element, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	var elements []Element
	err = p.run(ctx, chromedp.Evaluate(fmt.Sprintf(elementsScript, quoted), &elements))
	return elements, err
}

func (p *chromePage) MouseMove(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y))
}

func (p *chromePage) MouseClick(ctx context.Context, x, y float64) error {
	return p.run(ctx, chromedp.MouseClickXY(x, y))
}

func (p *chromePage) ClickSelector(ctx context.Context, selector string) (bool, error) {
	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, err
	}
	var clicked bool
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); if (!el) return false; el.click(); return true; })()`, quoted)
	err = p.run(ctx, chromedp.Evaluate(script, &clicked))
	return clicked, err
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Scroll(ctx context.Context, dy float64) error {
	return p.run(ctx, chromedp.Evaluate(fmt.Sprintf(`window.scrollBy({top: %f, behavior: 'smooth'})`, dy), nil))
}

func (p *chromePage) Cookies(ctx context.Context) ([]models.Cookie, error) {
	var raw []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	cookies := make([]models.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}
	return cookies, nil
}

func (p *chromePage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				params = params.WithExpires(&expires)
			}
			if ss, ok := sameSite(c.SameSite); ok {
				params = params.WithSameSite(ss)
			}
			if err := params.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

func (p *chromePage) ClearCookies(ctx context.Context) error {
	return p.run(ctx, network.ClearBrowserCookies())
}
