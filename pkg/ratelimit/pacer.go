package ratelimit

import (
	"context"
	"time"

	"igleads/pkg/config"
	"igleads/pkg/retry"
)

// Pause names a pacing window
type Pause string

const (
	PauseAction          Pause = "action"
	PauseNavigation      Pause = "navigation"
	PauseTyping          Pause = "typing"
	PauseScroll          Pause = "scroll"
	PauseBetweenProfiles Pause = "between_profiles"
	PauseBetweenHashtags Pause = "between_hashtags"
)

// Pacer sleeps for jittered, human-looking intervals. Every pause is scaled
// by the current delay multiplier so pacing slows down after errors.
type Pacer struct {
	windows    map[Pause]config.DelayWindow
	multiplier func() float64
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewPacer builds a pacer from the configured windows. multiplier may be nil.
func NewPacer(cfg config.PacingConfig, multiplier func() float64) *Pacer {
	if multiplier == nil {
		multiplier = func() float64 { return 1 }
	}
	return &Pacer{
		windows: map[Pause]config.DelayWindow{
			PauseAction:          cfg.Action,
			PauseNavigation:      cfg.Navigation,
			PauseTyping:          cfg.Typing,
			PauseScroll:          cfg.Scroll,
			PauseBetweenProfiles: cfg.BetweenProfiles,
			PauseBetweenHashtags: cfg.BetweenHashtags,
		},
		multiplier: multiplier,
		sleep:      retry.Wait,
	}
}

// Delay returns the next pause length without sleeping
func (p *Pacer) Delay(kind Pause) time.Duration {
	w := p.windows[kind]
	d := retry.Window(w.Min, w.Max)
	m := p.multiplier()
	if m < 1 {
		m = 1
	}
	return time.Duration(float64(d) * m)
}

// Pause sleeps for one jittered interval of the given kind
func (p *Pacer) Pause(ctx context.Context, kind Pause) error {
	return p.sleep(ctx, p.Delay(kind))
}

// SetMultiplier replaces the multiplier source
func (p *Pacer) SetMultiplier(fn func() float64) {
	if fn != nil {
		p.multiplier = fn
	}
}

// WithSleep returns a copy of the pacer using fn instead of real sleeps
func (p *Pacer) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Pacer {
	cp := *p
	cp.sleep = fn
	return &cp
}

// NoSleep is a sleep func that returns immediately unless ctx is done
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
