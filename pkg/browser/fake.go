package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"igleads/pkg/models"
)

// FakePage is a scriptable Page for tests. Behaviour is supplied through the
// hook fields; anything left nil behaves as a no-op.
type FakePage struct {
	mu sync.Mutex

	CurrentURL string
	HTML       string
	Jar        []models.Cookie

	// NavigateFunc returns the landed URL and page content for a request
	NavigateFunc func(url string) (landed, html string, err error)
	// ElementsFunc returns the elements matching selector on the current page
	ElementsFunc func(url, selector string) []Element
	// ClickFunc handles a pointer click. A non-empty landed URL changes page.
	ClickFunc func(url string, x, y float64) (landed, html string)
	// ClickSelectorFunc handles a programmatic click
	ClickSelectorFunc func(url, selector string) (landed, html string, ok bool)
	// EvaluateFunc returns a value that is JSON round-tripped into out
	EvaluateFunc func(url, script string) (interface{}, error)
	// VisibleFunc reports whether selector is visible
	VisibleFunc func(url, selector string) bool

	Navigations []string
	Clicks      []Point
	Moves       int
	Scrolls     int
	Typed       map[string]string
}

// NewFakePage creates an empty fake page
func NewFakePage() *FakePage {
	return &FakePage{Typed: make(map[string]string)}
}

func (f *FakePage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Navigations = append(f.Navigations, url)
	if f.NavigateFunc == nil {
		f.CurrentURL = url
		return nil
	}
	landed, html, err := f.NavigateFunc(url)
	if err != nil {
		return err
	}
	if landed == "" {
		landed = url
	}
	f.CurrentURL = landed
	f.HTML = html
	return nil
}

func (f *FakePage) URL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.CurrentURL, nil
}

func (f *FakePage) Content(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.HTML, nil
}

func (f *FakePage) Evaluate(ctx context.Context, script string, out interface{}) error {
	f.mu.Lock()
	fn, url := f.EvaluateFunc, f.CurrentURL
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	v, err := fn(url, script)
	if err != nil || out == nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *FakePage) Elements(ctx context.Context, selector string) ([]Element, error) {
	f.mu.Lock()
	fn, url := f.ElementsFunc, f.CurrentURL
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(url, selector), nil
}

func (f *FakePage) MouseMove(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Moves++
	return nil
}

func (f *FakePage) MouseClick(ctx context.Context, x, y float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Clicks = append(f.Clicks, Point{X: x, Y: y})
	if f.ClickFunc == nil {
		return nil
	}
	if landed, html := f.ClickFunc(f.CurrentURL, x, y); landed != "" {
		f.CurrentURL = landed
		f.HTML = html
	}
	return nil
}

func (f *FakePage) ClickSelector(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ClickSelectorFunc == nil {
		return false, nil
	}
	landed, html, ok := f.ClickSelectorFunc(f.CurrentURL, selector)
	if landed != "" {
		f.CurrentURL = landed
		f.HTML = html
	}
	return ok, nil
}

func (f *FakePage) Type(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Typed == nil {
		f.Typed = make(map[string]string)
	}
	f.Typed[selector] += text
	return nil
}

func (f *FakePage) WaitVisible(ctx context.Context, selector string) error {
	f.mu.Lock()
	fn, url := f.VisibleFunc, f.CurrentURL
	f.mu.Unlock()
	if fn == nil || fn(url, selector) {
		return nil
	}
	return fmt.Errorf("selector %q not visible", selector)
}

func (f *FakePage) Scroll(ctx context.Context, dy float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Scrolls++
	return nil
}

func (f *FakePage) Cookies(ctx context.Context) ([]models.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Cookie(nil), f.Jar...), nil
}

func (f *FakePage) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Jar = append(f.Jar, cookies...)
	return nil
}

func (f *FakePage) ClearCookies(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Jar = nil
	return nil
}

// SetPage replaces the current location and content
func (f *FakePage) SetPage(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CurrentURL = url
	f.HTML = html
}

// NavigationCount returns how many navigations were requested
func (f *FakePage) NavigationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Navigations)
}

// FakeBrowser wraps a FakePage
type FakeBrowser struct {
	mu         sync.Mutex
	page       *FakePage
	CloseDelay time.Duration
	CloseErr   error
	closed     bool
	killed     bool
}

// NewFakeBrowser creates a browser around page
func NewFakeBrowser(page *FakePage) *FakeBrowser {
	return &FakeBrowser{page: page}
}

func (b *FakeBrowser) Page() Page {
	return b.page
}

func (b *FakeBrowser) Close(ctx context.Context) error {
	if b.CloseDelay > 0 {
		select {
		case <-time.After(b.CloseDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CloseErr != nil {
		return b.CloseErr
	}
	b.closed = true
	return nil
}

func (b *FakeBrowser) Kill() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.killed = true
	return nil
}

// Closed reports whether the browser closed gracefully
func (b *FakeBrowser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Killed reports whether the process was killed
func (b *FakeBrowser) Killed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.killed
}

// FakeLauncher hands out fake browsers
type FakeLauncher struct {
	mu sync.Mutex
	// NewPage builds the page for each launch. Defaults to NewFakePage.
	NewPage  func(opts LaunchOptions) *FakePage
	Err      error
	Launches []LaunchOptions
	Browsers []*FakeBrowser
}

func (l *FakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Launches = append(l.Launches, opts)
	if l.Err != nil {
		return nil, l.Err
	}
	page := NewFakePage()
	if l.NewPage != nil {
		page = l.NewPage(opts)
	}
	b := NewFakeBrowser(page)
	l.Browsers = append(l.Browsers, b)
	return b, nil
}

// LaunchCount returns how many launches were attempted
func (l *FakeLauncher) LaunchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Launches)
}

// Last returns the most recent browser, or nil
func (l *FakeLauncher) Last() *FakeBrowser {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Browsers) == 0 {
		return nil
	}
	return l.Browsers[len(l.Browsers)-1]
}
