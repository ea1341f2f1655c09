// Package retry provides backoff strategies and an in-place retry loop for
// browser interactions that fail transiently (an element not yet rendered,
// a click that landed during a re-layout).
//
// Only errors of kind transient are retried by default. Everything else is
// returned immediately so the resilience layer can rotate or recover:
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		_, err := page.ClickSelector(ctx, "article a")
//		return err
//	}, retry.DefaultConfig())
//
// Wait and Window are also used by the pacing code for context-aware sleeps.
package retry
