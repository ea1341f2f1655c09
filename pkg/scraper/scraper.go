package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"igleads/pkg/accounts"
	"igleads/pkg/browser"
	"igleads/pkg/checkpoint"
	"igleads/pkg/config"
	"igleads/pkg/discovery"
	errs "igleads/pkg/errors"
	"igleads/pkg/extract"
	"igleads/pkg/instagram"
	"igleads/pkg/leadstore"
	"igleads/pkg/logger"
	"igleads/pkg/models"
	"igleads/pkg/ratelimit"
	"igleads/pkg/resilience"
	"igleads/pkg/session"
	"igleads/pkg/storage"
	"igleads/pkg/traversal"
)

const (
	// maxHashtagAttempts bounds retries of one hashtag within a run
	maxHashtagAttempts = 2

	exploreTarget = "explore"
)

// Options customizes the stack built by New
type Options struct {
	// Launcher defaults to a local Chrome
	Launcher browser.Launcher
	// Store defaults to leadstore.Open on the configured store
	Store leadstore.Store
	// Registerer receives the resilience metrics; nil disables them
	Registerer prometheus.Registerer
	Logger     logger.Logger
	// Resume continues from saved checkpoints instead of starting fresh
	Resume bool
	// Sleep replaces every pacing and cooldown wait
	Sleep func(ctx context.Context, d time.Duration) error
}

// Components are the collaborators of a Scraper
type Components struct {
	Sessions   Sessions
	Discovery  Discoverer
	Traversal  Traverser
	Store      StatsStore
	Accounts   AccountRecorder
	Controller *resilience.Controller
	Pacer      *ratelimit.Pacer

	machine *machine
}

// Scraper orchestrates scrape runs over one browser session
type Scraper struct {
	sessions   Sessions
	discovery  Discoverer
	traversal  Traverser
	store      StatsStore
	accounts   AccountRecorder
	controller *resilience.Controller
	pacer      *ratelimit.Pacer
	machine    *machine

	config  *config.Config
	logger  logger.Logger
	resume  bool
	dataDir string
	now     func() time.Time
}

// New builds the full stack from configuration: cookie store, account pool,
// resilience controller, session manager, lead store, extraction pipeline,
// traversal and discovery
func New(ctx context.Context, cfg *config.Config, opts Options) (*Scraper, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	cookies, err := storage.NewCookieStore(cfg.Storage.CookieDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie store: %w", err)
	}
	pool, err := accounts.NewPool(cfg.Accounts, cookies, cfg.Resilience, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create account pool: %w", err)
	}

	controller := resilience.NewController(cfg.Resilience, opts.Registerer, log)
	pacer := ratelimit.NewPacer(cfg.Pacing, controller.DelayMultiplier)
	if opts.Sleep != nil {
		pacer = pacer.WithSleep(opts.Sleep)
	}

	launcher := opts.Launcher
	if launcher == nil {
		launcher = browser.NewChromeLauncher(log)
	}
	sessions := session.NewManager(cfg, pool, launcher, cookies, pacer, log)
	if opts.Sleep != nil {
		sessions.SetSleep(opts.Sleep)
	}

	store := opts.Store
	if store == nil {
		if store, err = leadstore.Open(ctx, cfg.Store); err != nil {
			return nil, fmt.Errorf("failed to open lead store: %w", err)
		}
	}

	m := newMachine(log.WithField("component", "scraper"))
	pipeline := extract.NewPipeline(sessions.Guard(), store, cfg.Validation, log)
	pipeline.SetPhaseObserver(m.enterPhase)
	engine := traversal.NewEngine(
		sessions.Guard(),
		sessions,
		sessions.Pointer(),
		pacer,
		&trackedHandler{machine: m, next: pipeline},
		cfg.Traversal,
		log,
	).WithRateLimitSignatures(cfg.Navigation.RateLimitSignatures)

	s := NewWithComponents(cfg, Components{
		Sessions:   sessions,
		Discovery:  discovery.NewEngine(sessions.Guard(), store, cfg.Discovery, log),
		Traversal:  engine,
		Store:      store,
		Accounts:   pool,
		Controller: controller,
		Pacer:      pacer,
		machine:    m,
	}, log)
	s.resume = opts.Resume

	logger.LogComponentStart("scraper", map[string]interface{}{
		"accounts":  pool.Len(),
		"store":     cfg.Store.Driver,
		"dry_run":   cfg.Store.DryRun,
		"discovery": cfg.Discovery.Enabled,
		"resume":    opts.Resume,
	})
	return s, nil
}

// NewWithComponents assembles a Scraper from prebuilt collaborators
func NewWithComponents(cfg *config.Config, c Components, log logger.Logger) *Scraper {
	if log == nil {
		log = logger.GetLogger()
	}
	log = log.WithField("component", "scraper")
	if c.Controller == nil {
		c.Controller = resilience.NewController(cfg.Resilience, nil, log)
	}
	if c.Pacer == nil {
		c.Pacer = ratelimit.NewPacer(cfg.Pacing, c.Controller.DelayMultiplier)
	}
	if c.machine == nil {
		c.machine = newMachine(log)
	}
	return &Scraper{
		sessions:   c.Sessions,
		discovery:  c.Discovery,
		traversal:  c.Traversal,
		store:      c.Store,
		accounts:   c.Accounts,
		controller: c.Controller,
		pacer:      c.Pacer,
		machine:    c.machine,
		config:     cfg,
		logger:     log,
		dataDir:    cfg.Storage.DataDir,
		now:        time.Now,
	}
}

// SetResume toggles checkpoint resumption for later runs
func (s *Scraper) SetResume(resume bool) {
	s.resume = resume
}

// State returns the current orchestration phase
func (s *Scraper) State() State {
	return s.machine.current()
}

// Controller returns the resilience controller
func (s *Scraper) Controller() *resilience.Controller {
	return s.controller
}

// Pool returns the account pool when the scraper was built by New
func (s *Scraper) Pool() *accounts.Pool {
	pool, _ := s.accounts.(*accounts.Pool)
	return pool
}

// Close shuts down the browser session and the lead store
func (s *Scraper) Close(ctx context.Context) error {
	var errList []error
	if s.sessions != nil {
		errList = append(errList, s.sessions.Close(ctx))
	}
	if s.store != nil {
		errList = append(errList, s.store.Close())
	}
	return errors.Join(errList...)
}

// target is one grid to traverse
type target struct {
	hashtag string
	gridURL string
	key     string
}

// run is the state of one invocation
type run struct {
	res     *Result
	log     logger.Logger
	authors map[string]bool
	rotated bool

	checkpoints map[string]runCheckpoint
}

type runCheckpoint struct {
	mgr *checkpoint.Manager
	cp  *checkpoint.Checkpoint
}

// ScrapeByHashtag expands term into hashtags and collects up to maxProfiles
// accepted profiles. accountOverride selects a configured account by
// username for this and later runs.
func (s *Scraper) ScrapeByHashtag(ctx context.Context, term string, maxProfiles int, accountOverride string) (*Result, error) {
	seed := instagram.NormalizeHashtag(term)
	if seed == "" {
		return nil, fmt.Errorf("invalid hashtag %q", term)
	}
	if maxProfiles <= 0 {
		return nil, fmt.Errorf("max profiles must be positive, got %d", maxProfiles)
	}
	r := s.begin(seed, maxProfiles)
	if stop, err := s.prepare(ctx, r, accountOverride); stop {
		return s.finish(r, err)
	}

	variations, stop, err := s.discover(ctx, r, seed)
	if stop {
		return s.finish(r, err)
	}

	targets := make([]target, 0, len(variations))
	for _, v := range variations {
		targets = append(targets, target{
			hashtag: v.Hashtag,
			gridURL: instagram.HashtagURL(v.Hashtag),
			key:     "hashtag-" + v.Hashtag,
		})
	}
	return s.finish(r, s.traverse(ctx, r, targets))
}

// ScrapeExploreFeed collects up to maxProfiles accepted profiles from the
// explore feed
func (s *Scraper) ScrapeExploreFeed(ctx context.Context, maxProfiles int, accountOverride string) (*Result, error) {
	if maxProfiles <= 0 {
		return nil, fmt.Errorf("max profiles must be positive, got %d", maxProfiles)
	}
	r := s.begin(exploreTarget, maxProfiles)
	if stop, err := s.prepare(ctx, r, accountOverride); stop {
		return s.finish(r, err)
	}
	return s.finish(r, s.traverse(ctx, r, []target{{
		gridURL: instagram.ExploreURL(),
		key:     exploreTarget,
	}}))
}

func (s *Scraper) begin(name string, maxProfiles int) *run {
	s.controller.Reset()
	id := uuid.NewString()
	r := &run{
		res: &Result{
			RunID:     id,
			Target:    name,
			Requested: maxProfiles,
			StartedAt: s.now(),
		},
		log:         s.logger.WithFields(map[string]interface{}{"run_id": id, "target": name}),
		authors:     make(map[string]bool),
		checkpoints: make(map[string]runCheckpoint),
	}
	r.log.InfoWithFields("Scrape started", map[string]interface{}{
		"requested": maxProfiles,
		"resume":    s.resume,
	})
	return r
}

// prepare applies the account override and logs the session in. stop
// reports that the run ended during the login.
func (s *Scraper) prepare(ctx context.Context, r *run, accountOverride string) (stop bool, err error) {
	if err := s.machine.advance(StateNavigating); err != nil {
		return true, err
	}
	if accountOverride != "" {
		if err := s.sessions.UseAccount(ctx, accountOverride); err != nil {
			r.res.AbortReason = string(errs.KindAccountUnavailable)
			return true, fmt.Errorf("failed to select account %s: %w", accountOverride, err)
		}
	}
	for attempt := 1; ; attempt++ {
		_, err := s.sessions.EnsureLoggedSession(ctx)
		if err == nil {
			r.res.Account = s.sessions.AccountName()
			return false, nil
		}
		retry, stop, herr := s.react(ctx, r, "", err, attempt)
		if stop {
			return true, herr
		}
		if !retry {
			// nothing can be scraped without a session
			if r.res.AbortReason == "" {
				r.res.AbortReason = string(errs.KindOf(err))
			}
			return true, fmt.Errorf("failed to establish session: %w", err)
		}
	}
}

// discover expands the seed. Failures fall back to the seed alone unless
// the reaction ends the run.
func (s *Scraper) discover(ctx context.Context, r *run, seed string) ([]models.HashtagVariation, bool, error) {
	only := []models.HashtagVariation{{Hashtag: seed}}
	if s.discovery == nil {
		return only, false, nil
	}
	for attempt := 1; ; attempt++ {
		variations, err := s.discovery.Discover(ctx, seed)
		if err == nil {
			return variations, false, nil
		}
		retry, stop, herr := s.react(ctx, r, seed, err, attempt)
		if stop {
			return nil, true, herr
		}
		if !retry {
			return only, false, nil
		}
	}
}

// traverse walks the targets in order until the request is satisfied or a
// reaction ends the run
func (s *Scraper) traverse(ctx context.Context, r *run, targets []target) error {
	for i, t := range targets {
		if r.res.remaining() <= 0 {
			break
		}
		if i > 0 {
			if err := s.pacer.Pause(ctx, ratelimit.PauseBetweenHashtags); err != nil {
				r.res.AbortReason = AbortCanceled
				return err
			}
		}

		rep := r.res.newReport(t.hashtag)
		for {
			rep.Attempts++
			pass, err := s.traverseOne(ctx, r, t)
			r.res.absorb(rep, pass)
			if err == nil {
				rep.Completed = true
				s.controller.RecordSuccess()
				break
			}

			rep.Error = err.Error()
			rep.Action = resilience.Policy(errs.KindOf(err))
			retry, stop, herr := s.react(ctx, r, t.hashtag, err, rep.Attempts)
			if stop {
				return herr
			}
			if !retry || r.res.remaining() <= 0 {
				break
			}
		}
	}
	return nil
}

func (s *Scraper) traverseOne(ctx context.Context, r *run, t target) (*traversal.Pass, error) {
	if _, err := s.sessions.EnsureLoggedSession(ctx); err != nil {
		return nil, err
	}
	if err := s.machine.advance(StateNavigating); err != nil {
		return nil, err
	}

	cps, cp := s.openCheckpoint(r, t.key)
	return s.traversal.Traverse(ctx, traversal.Target{
		Hashtag:     t.hashtag,
		GridURL:     t.gridURL,
		MaxProfiles: r.res.remaining(),
		Checkpoint:  cp,
		Checkpoints: cps,
		Authors:     r.authors,
	})
}

// openCheckpoint loads or starts the checkpoint of a target once per run.
// Without resume an existing checkpoint is discarded. Checkpoint problems
// never fail a run.
func (s *Scraper) openCheckpoint(r *run, key string) (*checkpoint.Manager, *checkpoint.Checkpoint) {
	if o, ok := r.checkpoints[key]; ok {
		return o.mgr, o.cp
	}
	var o runCheckpoint
	defer func() { r.checkpoints[key] = o }()

	mgr, err := checkpoint.NewManager(s.dataDir, key)
	if err != nil {
		r.log.WithError(err).Warn("Checkpoints disabled")
		return nil, nil
	}
	if !s.resume && mgr.Exists() {
		if err := mgr.Delete(); err != nil {
			r.log.WithError(err).Warn("Failed to discard checkpoint")
		}
	}
	cp, err := mgr.Open(key)
	if err != nil {
		r.log.WithError(err).Warn("Ignoring unreadable checkpoint")
		return nil, nil
	}
	if s.resume && len(cp.VisitedPosts) > 0 {
		r.log.InfoWithFields("Resuming from checkpoint", map[string]interface{}{
			"checkpoint": key,
			"visited":    len(cp.VisitedPosts),
			"processed":  len(cp.ProcessedProfiles),
		})
	}
	o = runCheckpoint{mgr: mgr, cp: cp}
	return mgr, cp
}

// react applies the resilience policy for err. It reports whether the
// failed step should be retried and whether the run must stop; the error is
// the hard failure to return when stopping.
func (s *Scraper) react(ctx context.Context, r *run, tag string, err error, attempt int) (retry, stop bool, hard error) {
	if ctx.Err() != nil {
		r.res.AbortReason = AbortCanceled
		return false, true, ctx.Err()
	}

	kind := errs.KindOf(err)
	action := resilience.Policy(kind)
	s.controller.RecordError(kind)
	r.log.WithError(err).WarnWithFields("Step failed", map[string]interface{}{
		"hashtag": tag,
		"kind":    string(kind),
		"action":  string(action),
		"attempt": attempt,
	})

	switch action {
	case resilience.ActionAbort:
		r.res.AbortReason = string(kind)
		return false, true, err

	case resilience.ActionRotate:
		// Blocks are never retried in place; the run ends once rotation is done
		r.rotated = true
		r.res.AbortReason = string(kind)
		next, rerr := s.sessions.RotateAfterBlock(ctx, kind, err.Error())
		if rerr != nil {
			return false, true, fmt.Errorf("rotation after %s failed: %w", kind, rerr)
		}
		logger.LogAccountEvent(r.log, next.Username, "rotated_after_block", map[string]interface{}{
			"kind": string(kind),
		})
		return false, true, nil

	case resilience.ActionRecoverSession:
		// the account records every strike, and rotates on its last, before
		// the run ceiling is consulted
		recovered, rerr := s.sessions.HandleSessionError(ctx, err)
		if rerr != nil {
			rkind := errs.KindOf(rerr)
			if rkind == errs.KindAccountUnavailable {
				r.res.AbortReason = string(rkind)
				return false, true, rerr
			}
			if errs.RequiresRotation(rkind) {
				return s.react(ctx, r, tag, rerr, attempt)
			}
			r.log.WithError(rerr).Warn("Session recovery failed")
		}
		if s.controller.SessionInvalidCeilingReached() {
			r.res.AbortReason = AbortSessionInvalidCeiling
			return false, true, errs.Wrap(errs.KindSessionInvalid, err, "consecutive session failures ceiling reached")
		}
		if s.breaks(r) {
			return false, true, nil
		}
		if !recovered || attempt >= maxHashtagAttempts {
			s.skip(tag)
			return false, false, nil
		}
		return true, false, nil

	case resilience.ActionRetryHashtag:
		if s.breaks(r) {
			return false, true, nil
		}
		if attempt >= maxHashtagAttempts {
			s.skip(tag)
			return false, false, nil
		}
		if perr := s.pacer.Pause(ctx, ratelimit.PauseNavigation); perr != nil {
			r.res.AbortReason = AbortCanceled
			return false, true, perr
		}
		return true, false, nil

	default:
		s.skip(tag)
		if s.breaks(r) {
			return false, true, nil
		}
		return false, false, nil
	}
}

func (s *Scraper) skip(tag string) {
	if tag != "" {
		s.controller.SkipHashtag(tag)
	}
}

// breaks trips the circuit breaker when the error run is too long
func (s *Scraper) breaks(r *run) bool {
	if !s.controller.ShouldCircuitBreak() {
		return false
	}
	s.controller.NoteCircuitBreak()
	r.res.AbortReason = AbortCircuitBreaker
	return true
}

// finish records the outcome of a run. A run that collected anything
// resets the account failure count, unless the account was rotated away,
// and adds to the hashtag counters.
func (s *Scraper) finish(r *run, err error) (*Result, error) {
	_ = s.machine.advance(StateIdle)
	res := r.res

	if res.Collected > 0 {
		if s.accounts != nil && !r.rotated {
			s.accounts.RecordSuccess()
		}
		s.updateStats(r)
	}

	res.seal(s.now(), s.controller.Snapshot())
	fields := map[string]interface{}{
		"collected":       res.Collected,
		"requested":       res.Requested,
		"completion_rate": res.CompletionRate,
		"partial":         res.IsPartial,
		"duration":        res.Duration().Round(time.Second).String(),
	}
	if res.AbortReason != "" {
		fields["abort_reason"] = res.AbortReason
	}
	if err != nil {
		r.log.WithError(err).ErrorWithFields("Scrape failed", fields)
		return res, err
	}
	r.log.InfoWithFields("Scrape finished", fields)
	return res, nil
}

func (s *Scraper) updateStats(r *run) {
	if s.store == nil {
		return
	}
	// Stats are written even after a cancellation
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, rep := range r.res.Hashtags {
		if rep.Hashtag == "" || rep.Attempts == 0 {
			continue
		}
		if err := s.store.UpdateHashtagStats(ctx, rep.Hashtag, 1, rep.Collected); err != nil {
			r.log.WithError(err).WithField("hashtag", rep.Hashtag).Warn("Failed to update hashtag stats")
		}
	}
}
