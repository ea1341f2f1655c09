// Package ratelimit paces browser activity.
//
// SlidingWindow caps how many page loads a session may issue per window.
// Pacer produces the jittered pauses between actions, scrolls, profiles
// and hashtags, scaled by the resilience controller's delay multiplier:
//
//	pacer := ratelimit.NewPacer(cfg.Pacing, controller.DelayMultiplier)
//	if err := pacer.Pause(ctx, ratelimit.PauseScroll); err != nil {
//		return err
//	}
package ratelimit
