package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewPaymentMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.ObservePush("ok", 250*time.Millisecond)
	m.IncCallback("confirmed")
	m.IncCallbackReplay()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	for _, want := range []string{
		"payment_push_duration_seconds",
		"payment_push_total",
		"payment_callback_total",
		"payment_callback_replays_total",
	} {
		if !names[want] {
			t.Fatalf("metric %s not registered", want)
		}
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	m := NewPaymentMetrics(nil)
	m.ObservePush("", time.Second)
	m.IncCallback("")
	m.IncCallbackReplay()

	var nilMetrics *PaymentMetrics
	nilMetrics.ObservePush("ok", time.Second)
	nilMetrics.IncCallback("confirmed")
	nilMetrics.IncCallbackReplay()
}
