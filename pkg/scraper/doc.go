// Package scraper orchestrates lead collection runs.
//
// A run selects an account, makes sure a logged-in browser session exists,
// expands the requested term into hashtags and traverses each hashtag grid
// one post at a time. Every profile found goes through extraction and the
// validation gates; accepted profiles are persisted to the lead store.
//
// Architecture:
//
// The Scraper moves through an explicit state machine:
//
//	Idle → Navigating → Extracting → Validating → Persisting
//
// Failures surface as typed errors (see pkg/errors). The reaction to each
// kind is a table lookup in pkg/resilience:
//
//   - rate_limited, detached_frame, suspended: the account is blocked and
//     rotated, then the run returns at once with what it collected
//   - session_invalid, challenge_required: the session is recovered and the
//     hashtag retried, up to the consecutive ceiling
//   - no_results: the hashtag is skipped
//   - account_unavailable: the run fails
//
// A circuit breaker stops the run after a series of consecutive errors of
// any kind.
//
// Usage:
//
//	s, err := scraper.New(ctx, cfg, scraper.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close(ctx)
//
//	res, err := s.ScrapeByHashtag(ctx, "confeitaria", 30, "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d/%d leads\n", res.Collected, res.Requested)
//
// Results:
//
// Partial results are always returned. Only account exhaustion and the
// session_invalid ceiling produce an error, and even then the Result holds
// everything collected before the failure.
package scraper
