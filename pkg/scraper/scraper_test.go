package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/accounts"
	"igleads/pkg/checkpoint"
	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/instagram"
	"igleads/pkg/leadstore"
	"igleads/pkg/logger"
	"igleads/pkg/models"
	"igleads/pkg/ratelimit"
	"igleads/pkg/resilience"
	"igleads/pkg/session"
	"igleads/pkg/traversal"
)

type fakeSessions struct {
	ensureErrs  []error
	ensureCalls int

	recovered   bool
	recoverErr  error
	handleCalls int

	rotations []errs.Kind
	rotateErr error

	used   string
	useErr error
	closed bool
}

func (f *fakeSessions) EnsureLoggedSession(ctx context.Context) (*session.Session, error) {
	f.ensureCalls++
	if len(f.ensureErrs) > 0 {
		err := f.ensureErrs[0]
		f.ensureErrs = f.ensureErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &session.Session{LoggedUsername: "Alice Shop"}, nil
}

func (f *fakeSessions) UseAccount(ctx context.Context, username string) error {
	if f.useErr != nil {
		return f.useErr
	}
	f.used = username
	return nil
}

func (f *fakeSessions) HandleSessionError(ctx context.Context, reason error) (bool, error) {
	f.handleCalls++
	return f.recovered, f.recoverErr
}

func (f *fakeSessions) RotateAfterBlock(ctx context.Context, kind errs.Kind, detail string) (accounts.Account, error) {
	f.rotations = append(f.rotations, kind)
	return accounts.Account{Username: "bob"}, f.rotateErr
}

func (f *fakeSessions) AccountName() string { return "Alice Shop" }

func (f *fakeSessions) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

type step struct {
	leads []string
	err   error
}

// fakeTraverser replays steps in order and repeats the last one
type fakeTraverser struct {
	steps   []step
	targets []traversal.Target
}

func (f *fakeTraverser) Traverse(ctx context.Context, t traversal.Target) (*traversal.Pass, error) {
	f.targets = append(f.targets, t)
	st := step{}
	if len(f.steps) > 0 {
		st = f.steps[0]
		if len(f.steps) > 1 {
			f.steps = f.steps[1:]
		}
	}
	pass := &traversal.Pass{}
	for _, name := range st.leads {
		if len(pass.Leads) >= t.MaxProfiles {
			break
		}
		pass.Leads = append(pass.Leads, models.Lead{Username: name, SourceHashtag: t.Hashtag})
		pass.Stats.Collected++
		t.Authors[name] = true
	}
	return pass, st.err
}

type fakeDiscoverer struct {
	tags  []string
	err   error
	calls int
}

func (f *fakeDiscoverer) Discover(ctx context.Context, seed string) ([]models.HashtagVariation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := []models.HashtagVariation{{Hashtag: seed}}
	for _, t := range f.tags {
		out = append(out, models.HashtagVariation{Hashtag: t})
	}
	return out, nil
}

type fakeAccounts struct{ successes int }

func (f *fakeAccounts) RecordSuccess() { f.successes++ }

type harness struct {
	scraper   *Scraper
	sessions  *fakeSessions
	traverser *fakeTraverser
	discovery *fakeDiscoverer
	accounts  *fakeAccounts
	store     *leadstore.MemoryStore
}

func newHarness(t *testing.T, steps ...step) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()

	h := &harness{
		sessions:  &fakeSessions{recovered: true},
		traverser: &fakeTraverser{steps: steps},
		discovery: &fakeDiscoverer{},
		accounts:  &fakeAccounts{},
		store:     leadstore.NewMemoryStore(),
	}
	controller := resilience.NewController(cfg.Resilience, nil, logger.NewNopLogger())
	h.scraper = NewWithComponents(cfg, Components{
		Sessions:   h.sessions,
		Discovery:  h.discovery,
		Traversal:  h.traverser,
		Store:      h.store,
		Accounts:   h.accounts,
		Controller: controller,
		Pacer:      ratelimit.NewPacer(cfg.Pacing, controller.DelayMultiplier).WithSleep(ratelimit.NoSleep),
	}, logger.NewNopLogger())
	return h
}

func usernames(leads []models.Lead) []string {
	out := make([]string, len(leads))
	for i, l := range leads {
		out[i] = l.Username
	}
	return out
}

func TestScrapeByHashtagCollectsAcrossVariations(t *testing.T) {
	h := newHarness(t,
		step{leads: []string{"ana", "bia"}},
		step{leads: []string{"caio", "duda"}},
	)
	h.discovery.tags = []string{"confeitariaartesanal", "bolosdecorados"}

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "#Confeitaria", 3, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"ana", "bia", "caio"}, usernames(res.Profiles))
	assert.Equal(t, 3, res.Collected)
	assert.Equal(t, 3, res.Requested)
	assert.False(t, res.IsPartial)
	assert.Equal(t, 1.0, res.CompletionRate)
	assert.Empty(t, res.AbortReason)
	assert.Equal(t, "confeitaria", res.Target)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, StateIdle, h.scraper.State())

	// the third hashtag is never reached
	require.Len(t, h.traverser.targets, 2)
	assert.Equal(t, instagram.HashtagURL("confeitaria"), h.traverser.targets[0].GridURL)
	assert.Equal(t, 3, h.traverser.targets[0].MaxProfiles)
	assert.Equal(t, "confeitariaartesanal", h.traverser.targets[1].Hashtag)
	assert.Equal(t, 1, h.traverser.targets[1].MaxProfiles)
	assert.True(t, h.traverser.targets[1].Authors["ana"], "authors are shared across hashtags")

	assert.Equal(t, 1, h.accounts.successes)
	v, err := h.store.Variation(context.Background(), "confeitaria")
	require.NoError(t, err)
	assert.Equal(t, 1, v.ScrapeCount)
	assert.Equal(t, 2, v.LeadsFound)
	v, err = h.store.Variation(context.Background(), "confeitariaartesanal")
	require.NoError(t, err)
	assert.Equal(t, 1, v.LeadsFound)
}

func TestScrapeReturnsPartialResult(t *testing.T) {
	h := newHarness(t, step{leads: []string{"ana"}}, step{})
	h.discovery.tags = []string{"doces"}

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 10, "")
	require.NoError(t, err)
	assert.True(t, res.IsPartial)
	assert.Equal(t, 1, res.Collected)
	assert.InDelta(t, 0.1, res.CompletionRate, 1e-9)
	require.Len(t, res.Hashtags, 2)
	assert.True(t, res.Hashtags[0].Completed)
	assert.True(t, res.Hashtags[1].Completed)
}

func TestRateLimitRotatesAndReturnsImmediately(t *testing.T) {
	h := newHarness(t,
		step{leads: []string{"ana"}, err: errs.New(errs.KindRateLimited, "soft block")},
		step{leads: []string{"never"}},
	)
	h.discovery.tags = []string{"doces", "bolos"}

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 5, "")
	require.NoError(t, err)

	assert.Equal(t, string(errs.KindRateLimited), res.AbortReason)
	assert.Equal(t, []errs.Kind{errs.KindRateLimited}, h.sessions.rotations)
	assert.Len(t, h.traverser.targets, 1, "nothing runs after a block")
	assert.Equal(t, 2, h.sessions.ensureCalls, "no new session is opened after rotation")
	assert.Equal(t, []string{"ana"}, usernames(res.Profiles))
	assert.True(t, res.IsPartial)

	// the rotated-to account is not credited with this run
	assert.Zero(t, h.accounts.successes)
	v, err := h.store.Variation(context.Background(), "confeitaria")
	require.NoError(t, err)
	assert.Equal(t, 1, v.LeadsFound)
}

func TestRotationFailureIsHardError(t *testing.T) {
	h := newHarness(t, step{err: errs.New(errs.KindDetachedFrame, "frame detached")})
	h.sessions.rotateErr = errs.Unavailable(30*time.Minute, "all accounts are cooling down")

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 5, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAccountUnavailable))
	require.NotNil(t, res)
	assert.Equal(t, string(errs.KindDetachedFrame), res.AbortReason)
}

func TestDiscoveryRateLimitStopsBeforeTraversal(t *testing.T) {
	h := newHarness(t)
	h.discovery.err = errs.New(errs.KindRateLimited, "net::ERR_HTTP_RESPONSE_CODE_FAILURE")

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 5, "")
	require.NoError(t, err)
	assert.Equal(t, string(errs.KindRateLimited), res.AbortReason)
	assert.Empty(t, h.traverser.targets)
	assert.Equal(t, 1, h.discovery.calls)
}

func TestSessionInvalidRecoversAndRetries(t *testing.T) {
	h := newHarness(t,
		step{err: errs.New(errs.KindSessionInvalid, "login redirect")},
		step{leads: []string{"ana"}},
	)

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 1, "")
	require.NoError(t, err)
	assert.Equal(t, 1, h.sessions.handleCalls)
	assert.Len(t, h.traverser.targets, 2)
	assert.Equal(t, 1, res.Collected)
	assert.Equal(t, 2, res.Hashtags[0].Attempts)
	assert.Equal(t, 0, res.Resilience.ConsecutiveSessionInvalid)
}

func TestSessionInvalidCeilingAborts(t *testing.T) {
	h := newHarness(t, step{err: errs.New(errs.KindSessionInvalid, "login redirect")})
	h.discovery.tags = []string{"doces", "bolos"}

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 5, "")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindSessionInvalid))
	assert.Equal(t, AbortSessionInvalidCeiling, res.AbortReason)
	// two attempts on the first hashtag, the third failure hits the ceiling
	// after the session manager has seen it
	assert.Len(t, h.traverser.targets, 3)
	assert.Equal(t, 3, h.sessions.handleCalls)
	assert.Equal(t, 3, res.Resilience.ConsecutiveSessionInvalid)
}

func TestNoResultsSkipsHashtag(t *testing.T) {
	h := newHarness(t,
		step{err: errs.New(errs.KindNoResults, "no posts yet")},
		step{leads: []string{"ana"}},
	)
	h.discovery.tags = []string{"doces"}

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 1, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Collected)
	assert.Equal(t, []string{"confeitaria"}, res.Resilience.SkippedHashtags)
	assert.Zero(t, res.Resilience.TotalErrors)
	assert.Equal(t, resilience.ActionSkip, res.Hashtags[0].Action)
	assert.False(t, res.Hashtags[0].Completed)
}

func TestCircuitBreakerStopsRun(t *testing.T) {
	h := newHarness(t, step{err: errs.New(errs.KindTransient, "element not rendered")})
	h.discovery.tags = []string{"a1", "a2", "a3", "a4"}

	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 5, "")
	require.NoError(t, err)
	assert.Equal(t, AbortCircuitBreaker, res.AbortReason)
	assert.Len(t, h.traverser.targets, 5)
	assert.Equal(t, 5, res.Resilience.ConsecutiveErrors)
	assert.Greater(t, h.scraper.Controller().DelayMultiplier(), 1.0)
}

func TestAccountOverride(t *testing.T) {
	h := newHarness(t, step{leads: []string{"ana"}})

	_, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 1, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", h.sessions.used)

	h.sessions.useErr = errors.New("unknown account ghost")
	res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 1, "ghost")
	require.Error(t, err)
	assert.Equal(t, string(errs.KindAccountUnavailable), res.AbortReason)
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantErr   bool
		wantKind  errs.Kind
		traversed int
	}{
		{
			name:     "accounts exhausted",
			errs:     []error{errs.Unavailable(time.Hour, "no account available after cooldown")},
			wantErr:  true,
			wantKind: errs.KindAccountUnavailable,
		},
		{
			name:      "recovered after one session failure",
			errs:      []error{errs.New(errs.KindSessionInvalid, "login failed for alice"), nil},
			traversed: 1,
		},
		{
			name:     "browser does not start",
			errs:     []error{fmt.Errorf("failed to launch browser: exec: not found")},
			wantErr:  true,
			wantKind: errs.KindUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, step{leads: []string{"ana"}})
			h.sessions.ensureErrs = tt.errs

			res, err := h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 1, "")
			require.NotNil(t, res)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, errs.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, h.traverser.targets, tt.traversed)
		})
	}
}

func TestScrapeExploreFeed(t *testing.T) {
	h := newHarness(t, step{leads: []string{"ana", "bia"}})

	res, err := h.scraper.ScrapeExploreFeed(context.Background(), 2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Collected)
	assert.Equal(t, "explore", res.Target)
	assert.Zero(t, h.discovery.calls)
	require.Len(t, h.traverser.targets, 1)
	assert.Equal(t, instagram.ExploreURL(), h.traverser.targets[0].GridURL)
	assert.Empty(t, h.traverser.targets[0].Hashtag)

	_, err = h.store.Variation(context.Background(), "explore")
	assert.ErrorIs(t, err, leadstore.ErrNotFound)
}

func TestInvalidArguments(t *testing.T) {
	h := newHarness(t)
	_, err := h.scraper.ScrapeByHashtag(context.Background(), "#", 5, "")
	assert.Error(t, err)
	_, err = h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 0, "")
	assert.Error(t, err)
	_, err = h.scraper.ScrapeExploreFeed(context.Background(), -1, "")
	assert.Error(t, err)
	assert.Zero(t, h.sessions.ensureCalls)
}

func TestCanceledRun(t *testing.T) {
	h := newHarness(t, step{err: context.Canceled})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.scraper.ScrapeByHashtag(ctx, "confeitaria", 5, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, AbortCanceled, res.AbortReason)
}

func TestCheckpointResume(t *testing.T) {
	h := newHarness(t, step{})
	dataDir := h.scraper.dataDir

	mgr, err := checkpoint.NewManager(dataDir, "hashtag-confeitaria")
	require.NoError(t, err)
	cp, err := mgr.Open("hashtag-confeitaria")
	require.NoError(t, err)
	require.NoError(t, mgr.RecordPost(cp, "https://www.instagram.com/p/SEEN/"))

	h.scraper.SetResume(true)
	_, err = h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 1, "")
	require.NoError(t, err)
	require.NotNil(t, h.traverser.targets[0].Checkpoint)
	assert.True(t, h.traverser.targets[0].Checkpoint.HasVisited("https://www.instagram.com/p/SEEN/"))

	h.scraper.SetResume(false)
	_, err = h.scraper.ScrapeByHashtag(context.Background(), "confeitaria", 1, "")
	require.NoError(t, err)
	require.NotNil(t, h.traverser.targets[1].Checkpoint)
	assert.False(t, h.traverser.targets[1].Checkpoint.HasVisited("https://www.instagram.com/p/SEEN/"))
}

func TestCloseReleasesSessionAndStore(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.scraper.Close(context.Background()))
	assert.True(t, h.sessions.closed)
}
