package browser

import (
	"context"
	"time"

	"igleads/pkg/config"
	"igleads/pkg/models"
)

// Element is a rendered DOM element with its viewport rectangle
type Element struct {
	Href   string  `json:"href"`
	Text   string  `json:"text"`
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle of the element
func (e Element) Center() Point {
	return Point{X: e.Left + e.Width/2, Y: e.Top + e.Height/2}
}

// Page is the single tab the engine drives
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Content(ctx context.Context) (string, error)
	Evaluate(ctx context.Context, script string, out interface{}) error
	// Elements lists elements matching a CSS selector with viewport rects
	Elements(ctx context.Context, selector string) ([]Element, error)
	MouseMove(ctx context.Context, x, y float64) error
	MouseClick(ctx context.Context, x, y float64) error
	// ClickSelector dispatches a programmatic click on the first match.
	// It reports false when nothing matched.
	ClickSelector(ctx context.Context, selector string) (bool, error)
	Type(ctx context.Context, selector, text string) error
	WaitVisible(ctx context.Context, selector string) error
	Scroll(ctx context.Context, dy float64) error
	Cookies(ctx context.Context) ([]models.Cookie, error)
	SetCookies(ctx context.Context, cookies []models.Cookie) error
	ClearCookies(ctx context.Context) error
}

// Browser owns the browser process and its page
type Browser interface {
	Page() Page
	// Close closes pages and the process gracefully
	Close(ctx context.Context) error
	// Kill terminates the process without waiting
	Kill() error
}

// Launcher starts browsers
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// LaunchOptions configures one browser process
type LaunchOptions struct {
	Headless     bool
	ExecPath     string
	UserAgent    string
	UserDataDir  string
	Locale       string
	WindowWidth  int
	WindowHeight int
	Proxy        *config.ProxyConfig
}

// OptionsFromConfig builds launch options from configuration
func OptionsFromConfig(cfg config.BrowserConfig, proxy *config.ProxyConfig) LaunchOptions {
	return LaunchOptions{
		Headless:     cfg.Headless,
		ExecPath:     cfg.ExecPath,
		UserAgent:    cfg.UserAgent,
		UserDataDir:  cfg.UserDataDir,
		Locale:       cfg.Locale,
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
		Proxy:        proxy,
	}
}

// CloseWithTimeout closes b gracefully and kills the process when the
// close does not finish within timeout
func CloseWithTimeout(b Browser, timeout time.Duration) (killed bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.Close(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			return false, nil
		}
		return true, b.Kill()
	case <-ctx.Done():
		return true, b.Kill()
	}
}
