package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// collectors exports the controller counters. A nil *collectors is valid and
// records nothing.
type collectors struct {
	errorsTotal       *prometheus.CounterVec
	successTotal      prometheus.Counter
	consecutiveErrors prometheus.Gauge
	sessionInvalid    prometheus.Gauge
	delayMultiplier   prometheus.Gauge
	skippedHashtags   prometheus.Counter
	circuitBreaks     prometheus.Counter
}

func newCollectors(reg prometheus.Registerer) *collectors {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &collectors{
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "igleads_errors_total",
				Help: "Errors observed by the resilience controller",
			},
			[]string{"kind"},
		),
		successTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "igleads_success_total",
			Help: "Successful profile extractions",
		}),
		consecutiveErrors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "igleads_consecutive_errors",
			Help: "Current run of consecutive errors",
		}),
		sessionInvalid: factory.NewGauge(prometheus.GaugeOpts{
			Name: "igleads_consecutive_session_invalid",
			Help: "Current run of consecutive session-invalid errors",
		}),
		delayMultiplier: factory.NewGauge(prometheus.GaugeOpts{
			Name: "igleads_delay_multiplier",
			Help: "Adaptive pacing multiplier",
		}),
		skippedHashtags: factory.NewCounter(prometheus.CounterOpts{
			Name: "igleads_skipped_hashtags_total",
			Help: "Hashtags skipped after errors",
		}),
		circuitBreaks: factory.NewCounter(prometheus.CounterOpts{
			Name: "igleads_circuit_breaks_total",
			Help: "Batches halted by the circuit breaker",
		}),
	}
}

func (c *collectors) observe(m Metrics) {
	if c == nil {
		return
	}
	c.consecutiveErrors.Set(float64(m.ConsecutiveErrors))
	c.sessionInvalid.Set(float64(m.ConsecutiveSessionInvalid))
	c.delayMultiplier.Set(m.AdaptiveDelayMultiplier)
}
