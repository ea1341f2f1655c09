package accounts

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/logger"
	"igleads/pkg/storage"
)

type fakeCookies struct {
	deleted []string
}

func (f *fakeCookies) PathFor(username, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return "/cookies/" + username + ".json"
}

func (f *fakeCookies) Delete(path string) error {
	f.deleted = append(f.deleted, path)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestPool(t *testing.T, usernames ...string) (*Pool, *fakeCookies, *clock) {
	t.Helper()
	var list []config.AccountConfig
	for _, u := range usernames {
		list = append(list, config.AccountConfig{Username: u, Password: "pw", Handle: u})
	}
	cookies := &fakeCookies{}
	pool, err := NewPool(list, cookies, config.DefaultConfig().Resilience, logger.NewNopLogger())
	require.NoError(t, err)
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	pool.SetClock(c.now)
	return pool, cookies, c
}

func TestNewPoolRequiresAccounts(t *testing.T) {
	_, err := NewPool(nil, nil, config.DefaultConfig().Resilience, logger.NewNopLogger())
	assert.Error(t, err)
}

func TestThirdFailureDeletesCookiesAndRotates(t *testing.T) {
	pool, cookies, _ := newTestPool(t, "alice", "bob")

	for i := 1; i <= 2; i++ {
		out := pool.RecordFailure(errs.KindSessionInvalid, "login redirect")
		assert.Equal(t, i, out.FailureCount)
		assert.False(t, out.RotationRequired, "failure %d must not rotate", i)
	}

	out := pool.RecordFailure(errs.KindSessionInvalid, "login redirect")
	assert.Equal(t, 3, out.FailureCount)
	assert.True(t, out.RotationRequired)
	assert.True(t, pool.Current().IsBlocked)
	assert.Empty(t, cookies.deleted, "cookies must survive until rotation succeeds")

	next, deleted, err := pool.RotateAfterFailures()
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"/cookies/alice.json"}, cookies.deleted)
	assert.Equal(t, "bob", next.Username)
	assert.Equal(t, "bob", pool.Current().Username)
	assert.Equal(t, 0, pool.Current().FailureCount)
}

func TestFailedRotationKeepsCookies(t *testing.T) {
	pool, cookies, _ := newTestPool(t, "alice")

	for i := 0; i < 3; i++ {
		pool.RecordFailure(errs.KindSessionInvalid, "x")
	}
	_, deleted, err := pool.RotateAfterFailures()
	require.Error(t, err)
	assert.Equal(t, errs.KindAccountUnavailable, errs.KindOf(err))
	assert.False(t, deleted)
	assert.Empty(t, cookies.deleted)
	assert.Equal(t, "alice", pool.Current().Username)
}

func TestSuccessResetsFailures(t *testing.T) {
	pool, cookies, _ := newTestPool(t, "alice")

	pool.RecordFailure(errs.KindSessionInvalid, "x")
	pool.RecordFailure(errs.KindSessionInvalid, "x")
	pool.RecordSuccess()
	assert.Equal(t, 0, pool.Current().FailureCount)

	// two more failures after a reset are still below the ceiling
	pool.RecordFailure(errs.KindSessionInvalid, "x")
	out := pool.RecordFailure(errs.KindSessionInvalid, "x")
	assert.False(t, out.RotationRequired)
	assert.Empty(t, cookies.deleted)
}

func TestEnsureAvailableSelectsCoolerAccount(t *testing.T) {
	pool, _, _ := newTestPool(t, "alice", "bob")

	pool.Block(errs.KindRateLimited, "blocked", time.Hour)
	av := pool.EnsureAvailable()
	assert.True(t, av.OK)
	assert.Equal(t, "bob", av.Account.Username)
	assert.Equal(t, "bob", pool.Current().Username)
}

func TestEnsureAvailableReturnsMinimumWait(t *testing.T) {
	pool, _, _ := newTestPool(t, "alice", "bob")

	pool.Block(errs.KindRateLimited, "x", 40*time.Minute)
	require.NoError(t, pool.Select(1))
	pool.Block(errs.KindRateLimited, "x", 10*time.Minute)

	av := pool.EnsureAvailable()
	assert.False(t, av.OK)
	assert.Equal(t, 10*time.Minute, av.Wait)
}

func TestCooldownExpiryReleasesAccount(t *testing.T) {
	pool, _, c := newTestPool(t, "alice")

	for i := 0; i < 3; i++ {
		pool.RecordFailure(errs.KindSessionInvalid, "x")
	}
	assert.False(t, pool.EnsureAvailable().OK)

	c.advance(61 * time.Minute)
	av := pool.EnsureAvailable()
	assert.True(t, av.OK)
	assert.False(t, av.Account.IsBlocked)
	assert.Equal(t, 0, av.Account.FailureCount)
}

func TestRotateToNextAllHotAppliesIPCooldown(t *testing.T) {
	pool, _, c := newTestPool(t, "alice", "bob")

	pool.Block(errs.KindRateLimited, "x", 5*time.Minute)
	require.NoError(t, pool.Select(1))
	pool.Block(errs.KindRateLimited, "x", 5*time.Minute)

	_, err := pool.RotateToNext()
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAccountUnavailable))
	assert.Equal(t, 30*time.Minute, errs.WaitOf(err))
	assert.Equal(t, 30*time.Minute, pool.IPCooldownRemaining())

	// accounts are released before the IP cooldown ends
	c.advance(10 * time.Minute)
	av := pool.EnsureAvailable()
	assert.False(t, av.OK)
	assert.Equal(t, 20*time.Minute, av.Wait)

	c.advance(20 * time.Minute)
	assert.True(t, pool.EnsureAvailable().OK)
}

func TestApplyIPCooldownKeepsLonger(t *testing.T) {
	pool, _, _ := newTestPool(t, "alice")
	pool.ApplyIPCooldown(time.Hour)
	pool.ApplyIPCooldown(time.Minute)
	assert.Equal(t, time.Hour, pool.IPCooldownRemaining())
}

func TestSelectByUsernameAndUserID(t *testing.T) {
	list := []config.AccountConfig{
		{Username: "alice", Handle: "Alice Shop", UserID: "111"},
		{Username: "bob", Handle: "Bob Store", UserID: "222"},
	}
	pool, err := NewPool(list, nil, config.DefaultConfig().Resilience, logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, pool.SelectByUsername("BOB"))
	assert.Equal(t, "bob", pool.Current().Username)
	assert.Error(t, pool.SelectByUsername("carol"))
	assert.Error(t, pool.Select(7))

	acc, ok := pool.FindByUserID("111")
	require.True(t, ok)
	assert.Equal(t, "alice", acc.Username)
	_, ok = pool.FindByUserID("")
	assert.False(t, ok)
}

func TestPoolWithCookieStore(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewCookieStore(dir)
	require.NoError(t, err)

	list := []config.AccountConfig{{Username: "alice"}}
	pool, err := NewPool(list, store, config.DefaultConfig().Resilience, logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "alice.cookies.json"), pool.Current().CookieFile)

	for i := 0; i < 3; i++ {
		pool.RecordFailure(errs.KindSessionInvalid, "x")
	}
	assert.True(t, pool.Snapshot()[0].IsBlocked)
}
