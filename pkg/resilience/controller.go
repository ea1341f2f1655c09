package resilience

import (
	"math"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"igleads/pkg/config"
	errs "igleads/pkg/errors"
	"igleads/pkg/logger"
)

// Action is what the orchestrator does after an error of a given kind
type Action string

const (
	ActionRetryHashtag   Action = "retry_hashtag"
	ActionRecoverSession Action = "recover_session"
	ActionRotate         Action = "rotate"
	ActionSkip           Action = "skip"
	ActionAbort          Action = "abort"
)

var policies = map[errs.Kind]Action{
	errs.KindTransient:          ActionRetryHashtag,
	errs.KindNavigation:         ActionRetryHashtag,
	errs.KindSessionInvalid:     ActionRecoverSession,
	errs.KindChallengeRequired:  ActionRecoverSession,
	errs.KindRateLimited:        ActionRotate,
	errs.KindDetachedFrame:      ActionRotate,
	errs.KindSuspended:          ActionRotate,
	errs.KindNoResults:          ActionSkip,
	errs.KindUnknown:            ActionSkip,
	errs.KindAccountUnavailable: ActionAbort,
}

// Policy returns the reaction for an error kind
func Policy(kind errs.Kind) Action {
	if a, ok := policies[kind]; ok {
		return a
	}
	return ActionSkip
}

// Metrics are the per-run resilience counters
type Metrics struct {
	ConsecutiveErrors         int      `json:"consecutive_errors"`
	TotalErrors               int      `json:"total_errors"`
	TotalSuccess              int      `json:"total_success"`
	ConsecutiveSessionInvalid int      `json:"consecutive_session_invalid"`
	AdaptiveDelayMultiplier   float64  `json:"adaptive_delay_multiplier"`
	SkippedHashtags           []string `json:"skipped_hashtags"`
}

// Controller tracks outcomes for one scrape invocation and decides when
// the batch has to stop
type Controller struct {
	mu      sync.Mutex
	cfg     config.ResilienceConfig
	m       Metrics
	metrics *collectors
	logger  logger.Logger
}

// NewController creates a controller. reg may be nil.
func NewController(cfg config.ResilienceConfig, reg prometheus.Registerer, log logger.Logger) *Controller {
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = 5
	}
	if cfg.MaxSessionInvalid <= 0 {
		cfg.MaxSessionInvalid = 3
	}
	if cfg.DelayMultiplierStep <= 1 {
		cfg.DelayMultiplierStep = 1.5
	}
	if cfg.MaxDelayMultiplier < 1 {
		cfg.MaxDelayMultiplier = 4
	}
	if log == nil {
		log = logger.GetLogger()
	}
	c := &Controller{
		cfg:     cfg,
		metrics: newCollectors(reg),
		logger:  log.WithField("component", "resilience"),
	}
	c.Reset()
	return c
}

// Reset clears all counters. Called at the start of every scrape.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = Metrics{AdaptiveDelayMultiplier: 1}
	c.metrics.observe(c.m)
}

// RecordSuccess clears the consecutive counters and relaxes pacing
func (c *Controller) RecordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.TotalSuccess++
	c.m.ConsecutiveErrors = 0
	c.m.ConsecutiveSessionInvalid = 0
	c.m.AdaptiveDelayMultiplier = math.Max(1, c.m.AdaptiveDelayMultiplier*0.9)
	if c.metrics != nil {
		c.metrics.successTotal.Inc()
	}
	c.metrics.observe(c.m)
}

// RecordError counts a failure and slows pacing down. no_results is a
// legitimate empty result and is not counted.
func (c *Controller) RecordError(kind errs.Kind) {
	if kind == errs.KindNoResults {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.TotalErrors++
	c.m.ConsecutiveErrors++
	if errs.RequiresRecovery(kind) {
		c.m.ConsecutiveSessionInvalid++
	}
	c.m.AdaptiveDelayMultiplier = math.Min(c.cfg.MaxDelayMultiplier, c.m.AdaptiveDelayMultiplier*c.cfg.DelayMultiplierStep)

	c.logger.WarnWithFields("Error recorded", map[string]interface{}{
		"kind":               string(kind),
		"consecutive_errors": c.m.ConsecutiveErrors,
		"delay_multiplier":   c.m.AdaptiveDelayMultiplier,
	})
	if c.metrics != nil {
		c.metrics.errorsTotal.WithLabelValues(string(kind)).Inc()
	}
	c.metrics.observe(c.m)
}

// ShouldCircuitBreak reports whether the consecutive error run is long
// enough to halt the batch, whatever the error kinds were
func (c *Controller) ShouldCircuitBreak() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.ConsecutiveErrors >= c.cfg.MaxConsecutiveErrors
}

// SessionInvalidCeilingReached reports whether the run must abort to avoid a ban
func (c *Controller) SessionInvalidCeilingReached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.ConsecutiveSessionInvalid >= c.cfg.MaxSessionInvalid
}

// NoteCircuitBreak records that a batch was halted
func (c *Controller) NoteCircuitBreak() {
	c.logger.WarnWithFields("Circuit breaker tripped", map[string]interface{}{
		"consecutive_errors": c.Snapshot().ConsecutiveErrors,
	})
	if c.metrics != nil {
		c.metrics.circuitBreaks.Inc()
	}
}

// DelayMultiplier returns the current pacing multiplier
func (c *Controller) DelayMultiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m.AdaptiveDelayMultiplier
}

// SkipHashtag records a hashtag abandoned during this run
func (c *Controller) SkipHashtag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m.SkippedHashtags = append(c.m.SkippedHashtags, tag)
	if c.metrics != nil {
		c.metrics.skippedHashtags.Inc()
	}
}

// Snapshot returns a copy of the counters
func (c *Controller) Snapshot() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.m
	m.SkippedHashtags = append([]string(nil), c.m.SkippedHashtags...)
	return m
}
