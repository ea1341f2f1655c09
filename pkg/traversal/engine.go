package traversal

import (
	"context"
	"fmt"
	"strings"

	"igleads/pkg/browser"
	"igleads/pkg/checkpoint"
	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/extract"
	"igleads/pkg/instagram"
	"igleads/pkg/logger"
	"igleads/pkg/models"
	"igleads/pkg/navigation"
	"igleads/pkg/ratelimit"
)

// StopReason tells why a traversal pass ended
type StopReason string

const (
	StopTargetReached      StopReason = "target_reached"
	StopMaxClicks          StopReason = "max_clicks"
	StopDuplicateAuthors   StopReason = "duplicate_authors"
	StopLanguageRejections StopReason = "language_rejections"
	StopNoNewPosts         StopReason = "no_new_posts"
)

// Stats counts what happened during one pass over a grid
type Stats struct {
	Clicks             int        `json:"clicks"`
	Duplicates         int        `json:"duplicates"`
	NoNewPasses        int        `json:"no_new_passes"`
	LanguageRejections int        `json:"language_rejections"`
	Collected          int        `json:"collected"`
	Scrolls            int        `json:"scrolls"`
	ProfilesVisited    int        `json:"profiles_visited"`
	StopReason         StopReason `json:"stop_reason"`
}

// Pass is the outcome of a traversal: counters plus accepted leads
type Pass struct {
	Stats Stats
	Leads []models.Lead
}

// Navigator performs guarded navigation
type Navigator interface {
	Goto(ctx context.Context, url string) (*navigation.Result, error)
	Check(ctx context.Context, page browser.Page) (*navigation.Result, error)
}

// PageSource hands out the live page
type PageSource interface {
	ActivePage() (browser.Page, error)
}

// ProfileHandler runs a resolved author through extraction and the gates
type ProfileHandler interface {
	Process(ctx context.Context, req extract.Request) (*extract.Outcome, error)
}

// Target describes one grid to traverse
type Target struct {
	// Hashtag is recorded as the lead source. Empty for the explore feed.
	Hashtag     string
	GridURL     string
	MaxProfiles int

	// Optional resumable state
	Checkpoint  *checkpoint.Checkpoint
	Checkpoints *checkpoint.Manager

	// Authors, when set, is shared between passes of one run and updated
	// in place, so an author is processed at most once per run.
	Authors map[string]bool
}

// Engine walks a post grid one post at a time
type Engine struct {
	nav     Navigator
	pages   PageSource
	pointer *browser.Pointer
	pacer   *ratelimit.Pacer
	handler ProfileHandler
	cfg     config.TraversalConfig
	logger  logger.Logger

	signatures []string
}

// NewEngine creates a traversal engine
func NewEngine(nav Navigator, pages PageSource, pointer *browser.Pointer, pacer *ratelimit.Pacer, handler ProfileHandler, cfg config.TraversalConfig, log logger.Logger) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		nav:     nav,
		pages:   pages,
		pointer: pointer,
		pacer:   pacer,
		handler: handler,
		cfg:     cfg,
		logger:  log.WithField("component", "traversal"),
	}
}

// pass holds the mutable state of one traversal
type pass struct {
	target  Target
	visited map[string]bool
	authors map[string]bool
	stats   Stats
	leads   []models.Lead
}

func (p *pass) stopReason(cfg config.TraversalConfig) StopReason {
	switch {
	case p.target.MaxProfiles > 0 && p.stats.Collected >= p.target.MaxProfiles:
		return StopTargetReached
	case p.stats.Clicks >= cfg.MaxClicks:
		return StopMaxClicks
	case p.stats.Duplicates >= cfg.MaxConsecutiveDuplicates:
		return StopDuplicateAuthors
	case p.stats.LanguageRejections >= cfg.MaxLanguageRejections:
		return StopLanguageRejections
	case p.stats.NoNewPasses >= cfg.MaxNoNewPostPasses:
		return StopNoNewPosts
	}
	return ""
}

// Traverse opens posts on the grid until a stop condition holds. Errors
// from navigation or the profile handler end the pass immediately and are
// returned with the partial result.
func (e *Engine) Traverse(ctx context.Context, target Target) (*Pass, error) {
	p := &pass{
		target:  target,
		visited: make(map[string]bool),
		authors: target.Authors,
	}
	if p.authors == nil {
		p.authors = make(map[string]bool)
	}
	if cp := target.Checkpoint; cp != nil {
		for u := range cp.VisitedPosts {
			p.visited[u] = true
		}
		for name := range cp.ProcessedProfiles {
			p.authors[name] = true
		}
	}
	log := e.logger.WithField("hashtag", target.Hashtag)

	if _, err := e.nav.Goto(ctx, target.GridURL); err != nil {
		return p.result(), err
	}

	for {
		if reason := p.stopReason(e.cfg); reason != "" {
			p.stats.StopReason = reason
			logger.LogTraversalStop(log, target.Hashtag, string(reason), p.stats.Collected, p.stats.Clicks)
			return p.result(), nil
		}
		if err := ctx.Err(); err != nil {
			return p.result(), err
		}
		if err := e.step(ctx, p, log); err != nil {
			return p.result(), err
		}
	}
}

func (p *pass) result() *Pass {
	return &Pass{Stats: p.stats, Leads: p.leads}
}

// step selects and handles at most one post
func (e *Engine) step(ctx context.Context, p *pass, log logger.Logger) error {
	page, err := e.pages.ActivePage()
	if err != nil {
		return err
	}
	elements, err := page.Elements(ctx, postAnchors)
	if err != nil {
		return e.classify(err)
	}

	next, ok := SelectNext(Candidates(elements, e.cfg.EvictionTolerance), p.visited)
	if !ok {
		p.stats.NoNewPasses++
		if ShouldScroll(p.stats.Duplicates, p.stats.Clicks, e.cfg) {
			p.stats.Scrolls++
			if err := page.Scroll(ctx, e.cfg.ScrollDistance); err != nil {
				return e.classify(err)
			}
			return e.pause(ctx, ratelimit.PauseScroll)
		}
		return e.pause(ctx, ratelimit.PauseAction)
	}
	p.stats.NoNewPasses = 0

	p.visited[next.URL] = true
	if p.target.Checkpoints != nil && p.target.Checkpoint != nil {
		if err := p.target.Checkpoints.RecordPost(p.target.Checkpoint, next.URL); err != nil {
			log.WithError(err).Warn("Failed to checkpoint post")
		}
	}

	res, err := e.open(ctx, page, next, p)
	if err != nil {
		return err
	}
	if res == nil {
		log.DebugWithFields("Post did not open", map[string]interface{}{"post": next.URL})
		return e.backToGrid(ctx, page, p)
	}

	post, err := ParsePost(res.HTML)
	if err != nil || post.Author == "" {
		log.DebugWithFields("Post author not found", map[string]interface{}{"post": next.URL})
		return e.backToGrid(ctx, page, p)
	}

	if p.authors[post.Author] {
		p.stats.Duplicates++
		log.DebugWithFields("Duplicate author", map[string]interface{}{
			"author":     post.Author,
			"duplicates": p.stats.Duplicates,
		})
		return e.backToGrid(ctx, page, p)
	}
	p.stats.Duplicates = 0
	p.authors[post.Author] = true

	if err := e.pause(ctx, ratelimit.PauseBetweenProfiles); err != nil {
		return err
	}
	out, err := e.handler.Process(ctx, extract.Request{
		Username:      post.Author,
		SourceHashtag: p.target.Hashtag,
		PostHashtags:  post.Hashtags,
	})
	if err != nil {
		return err
	}
	p.stats.ProfilesVisited++
	if p.target.Checkpoints != nil && p.target.Checkpoint != nil {
		if err := p.target.Checkpoints.RecordProfile(p.target.Checkpoint, post.Author, out.Accepted); err != nil {
			log.WithError(err).Warn("Failed to checkpoint profile")
		}
	}

	switch {
	case out.Accepted:
		p.stats.Collected++
		if out.Lead != nil {
			p.leads = append(p.leads, *out.Lead)
		}
	case out.Reason == extract.ReasonLanguage:
		p.stats.LanguageRejections++
	}

	// the profile page replaced the grid; reload it
	if _, err := e.nav.Goto(ctx, p.target.GridURL); err != nil {
		return err
	}
	return nil
}

// open clicks a post like a person would and falls back to one
// programmatic click. It never navigates to the post URL. A nil result
// means the post did not open.
func (e *Engine) open(ctx context.Context, page browser.Page, c Candidate, p *pass) (*navigation.Result, error) {
	p.stats.Clicks++
	if err := e.pause(ctx, ratelimit.PauseAction); err != nil {
		return nil, err
	}
	if err := e.pointer.Click(ctx, page, c.Element); err != nil {
		return nil, e.classify(err)
	}
	if err := e.pause(ctx, ratelimit.PauseAction); err != nil {
		return nil, err
	}

	res, err := e.nav.Check(ctx, page)
	if err != nil {
		return nil, err
	}
	if instagram.IsPostURL(res.FinalURL) {
		return res, nil
	}

	clicked, err := page.ClickSelector(ctx, selectorFor(c.URL))
	if err != nil {
		return nil, e.classify(err)
	}
	if !clicked {
		return nil, nil
	}
	if err := e.pause(ctx, ratelimit.PauseAction); err != nil {
		return nil, err
	}
	if res, err = e.nav.Check(ctx, page); err != nil {
		return nil, err
	}
	if instagram.IsPostURL(res.FinalURL) {
		return res, nil
	}
	return nil, nil
}

// backToGrid returns from a post to the grid. The grid is reloaded only
// when the page actually left it.
func (e *Engine) backToGrid(ctx context.Context, page browser.Page, p *pass) error {
	current, err := page.URL(ctx)
	if err == nil && sameLocation(current, p.target.GridURL) {
		return nil
	}
	_, err = e.nav.Goto(ctx, p.target.GridURL)
	return err
}

// WithRateLimitSignatures sets the browser error texts that mean a block
func (e *Engine) WithRateLimitSignatures(sigs []string) *Engine {
	e.signatures = sigs
	return e
}

func (e *Engine) classify(err error) error {
	return errs.ClassifyBrowserError(err, e.signatures)
}

func (e *Engine) pause(ctx context.Context, kind ratelimit.Pause) error {
	if e.pacer == nil {
		return ctx.Err()
	}
	return e.pacer.Pause(ctx, kind)
}

// selectorFor matches the grid anchor of a normalized post URL
func selectorFor(postURL string) string {
	code := strings.Trim(strings.TrimPrefix(postURL, instagram.BaseURL+"/p/"), "/")
	return fmt.Sprintf(`a[href*="/p/%s/"], a[href*="/reel/%s/"]`, code, code)
}

func sameLocation(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
