package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igleads/pkg/config"
)

func TestSlidingWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	sw := NewSlidingWindow(3, time.Minute)
	sw.now = func() time.Time { return now }

	assert.True(t, sw.Allow())
	assert.True(t, sw.Allow())
	assert.True(t, sw.Allow())
	assert.False(t, sw.Allow())
	assert.Equal(t, 3, sw.Used())

	now = now.Add(61 * time.Second)
	assert.True(t, sw.Allow())
	assert.Equal(t, 1, sw.Used())

	sw.Reset()
	assert.Equal(t, 0, sw.Used())
}

func TestSlidingWindowWaitCancelled(t *testing.T) {
	sw := NewSlidingWindow(1, time.Hour)
	require.True(t, sw.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, sw.Wait(ctx), context.DeadlineExceeded)
}

func TestSlidingWindowWaitAllows(t *testing.T) {
	sw := NewSlidingWindow(2, time.Hour)
	assert.NoError(t, sw.Wait(context.Background()))
	assert.NoError(t, sw.Wait(context.Background()))
}

func TestPacerScalesWithMultiplier(t *testing.T) {
	cfg := config.DefaultConfig().Pacing
	cfg.Action = config.DelayWindow{Min: time.Second, Max: time.Second}

	multiplier := 1.0
	p := NewPacer(cfg, func() float64 { return multiplier })
	assert.Equal(t, time.Second, p.Delay(PauseAction))

	multiplier = 2.5
	assert.Equal(t, 2500*time.Millisecond, p.Delay(PauseAction))

	// never faster than the configured window
	multiplier = 0.2
	assert.Equal(t, time.Second, p.Delay(PauseAction))
}

func TestPacerPauseUsesSleep(t *testing.T) {
	cfg := config.DefaultConfig().Pacing
	var slept []time.Duration
	p := NewPacer(cfg, nil).WithSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	require.NoError(t, p.Pause(context.Background(), PauseScroll))
	require.NoError(t, p.Pause(context.Background(), PauseBetweenProfiles))
	require.Len(t, slept, 2)
	assert.GreaterOrEqual(t, slept[0], cfg.Scroll.Min)
	assert.LessOrEqual(t, slept[0], cfg.Scroll.Max)
	assert.GreaterOrEqual(t, slept[1], cfg.BetweenProfiles.Min)
}

func TestNoSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, NoSleep(ctx, time.Hour))
	cancel()
	assert.Error(t, NoSleep(ctx, time.Hour))
}
