package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records outcomes for payment initiation and callbacks.
type PaymentMetrics struct {
	pushDuration    *prometheus.HistogramVec
	pushOutcome     *prometheus.CounterVec
	callbackOutcome *prometheus.CounterVec
	callbackReplays prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	pushDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_push_duration_seconds",
		Help:    "Duration of STK push gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	pushOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_push_total",
		Help: "STK push initiations by outcome.",
	}, []string{"outcome"})
	callbackOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_callback_total",
		Help: "Gateway callbacks by resulting payment status.",
	}, []string{"status"})
	callbackReplays := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_callback_replays_total",
		Help: "Callbacks ignored because the payment was already terminal.",
	})
	reg.MustRegister(pushDuration, pushOutcome, callbackOutcome, callbackReplays)
	return &PaymentMetrics{
		pushDuration:    pushDuration,
		pushOutcome:     pushOutcome,
		callbackOutcome: callbackOutcome,
		callbackReplays: callbackReplays,
	}
}

// ObservePush records one gateway call with its duration.
func (p *PaymentMetrics) ObservePush(outcome string, duration time.Duration) {
	if p == nil || p.pushDuration == nil {
		return
	}
	label := normalizeLabel(outcome)
	p.pushDuration.WithLabelValues(label).Observe(duration.Seconds())
	p.pushOutcome.WithLabelValues(label).Inc()
}

// IncCallback counts a processed callback by resulting status.
func (p *PaymentMetrics) IncCallback(status string) {
	if p == nil || p.callbackOutcome == nil {
		return
	}
	p.callbackOutcome.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncCallbackReplay counts a duplicate callback that was ignored.
func (p *PaymentMetrics) IncCallbackReplay() {
	if p == nil || p.callbackReplays == nil {
		return
	}
	p.callbackReplays.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
