package browser

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/config"
)

func TestBezierPath(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	from := Point{X: 10, Y: 10}
	to := Point{X: 400, Y: 300}

	path := BezierPath(from, to, 20, rnd)

	require.Len(t, path, 20)
	assert.Equal(t, to, path[len(path)-1])
	for _, p := range path {
		assert.False(t, p == from, "path should leave the origin")
	}
}

func TestBezierPathMinimumSteps(t *testing.T) {
	path := BezierPath(Point{}, Point{X: 5, Y: 5}, 0, rand.New(rand.NewSource(1)))
	assert.Len(t, path, 2)
}

func TestPointerClickStaysInsideElement(t *testing.T) {
	page := NewFakePage()
	ptr := NewPointer(Point{X: 0, Y: 0}, 42)
	el := Element{Left: 100, Top: 200, Width: 50, Height: 80}

	for i := 0; i < 20; i++ {
		require.NoError(t, ptr.Click(context.Background(), page, el))
	}

	require.Len(t, page.Clicks, 20)
	for _, c := range page.Clicks {
		assert.GreaterOrEqual(t, c.X, el.Left)
		assert.LessOrEqual(t, c.X, el.Left+el.Width)
		assert.GreaterOrEqual(t, c.Y, el.Top)
		assert.LessOrEqual(t, c.Y, el.Top+el.Height)
	}
	assert.Greater(t, page.Moves, 20)
	assert.Equal(t, page.Clicks[len(page.Clicks)-1], ptr.Position())
}

func TestCloseWithTimeout(t *testing.T) {
	tests := []struct {
		name       string
		delay      time.Duration
		closeErr   error
		wantKilled bool
	}{
		{name: "graceful", wantKilled: false},
		{name: "hangs", delay: time.Second, wantKilled: true},
		{name: "close error", closeErr: assert.AnError, wantKilled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewFakeBrowser(NewFakePage())
			b.CloseDelay = tt.delay
			b.CloseErr = tt.closeErr

			killed, err := CloseWithTimeout(b, 50*time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKilled, killed)
			assert.Equal(t, tt.wantKilled, b.Killed())
		})
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig().Browser
	proxy := &config.ProxyConfig{Host: "10.0.0.1", Port: 8080}

	opts := OptionsFromConfig(cfg, proxy)

	assert.Equal(t, cfg.Headless, opts.Headless)
	assert.Equal(t, cfg.UserAgent, opts.UserAgent)
	assert.Equal(t, cfg.WindowWidth, opts.WindowWidth)
	assert.Same(t, proxy, opts.Proxy)
	assert.NotEmpty(t, AllocatorOptions(opts))
}

func TestSameSite(t *testing.T) {
	tests := []struct {
		in   string
		want network.CookieSameSite
		ok   bool
	}{
		{"Lax", network.CookieSameSiteLax, true},
		{"strict", network.CookieSameSiteStrict, true},
		{"NONE", network.CookieSameSiteNone, true},
		{"", "", false},
		{"bogus", "", false},
	}
	for _, tt := range tests {
		got, ok := sameSite(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestFakePageNavigationAndCookies(t *testing.T) {
	ctx := context.Background()
	page := NewFakePage()
	page.NavigateFunc = func(url string) (string, string, error) {
		return "https://www.instagram.com/accounts/login/", "<html>login</html>", nil
	}

	require.NoError(t, page.Navigate(ctx, "https://www.instagram.com/"))
	u, _ := page.URL(ctx)
	assert.Equal(t, "https://www.instagram.com/accounts/login/", u)
	assert.Equal(t, 1, page.NavigationCount())

	var out []Element
	page.EvaluateFunc = func(url, script string) (interface{}, error) {
		return []map[string]interface{}{{"href": "/p/abc/", "width": 10}}, nil
	}
	require.NoError(t, page.Evaluate(ctx, "x", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "/p/abc/", out[0].Href)
}

func TestFakeLauncher(t *testing.T) {
	l := &FakeLauncher{}
	b, err := l.Launch(context.Background(), LaunchOptions{Headless: true})
	require.NoError(t, err)
	require.NotNil(t, b.Page())
	assert.Equal(t, 1, l.LaunchCount())
	assert.NotNil(t, l.Last())

	l.Err = assert.AnError
	_, err = l.Launch(context.Background(), LaunchOptions{})
	assert.Error(t, err)
}
