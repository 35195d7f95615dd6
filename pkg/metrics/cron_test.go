package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCronJobMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.IncSuccess("payout")
	m.IncSuccess("payout")
	m.IncFailure("payout")
	m.ObserveDuration("payout", 150*time.Millisecond)

	if got := testutil.ToFloat64(m.success.WithLabelValues("payout")); got != 2 {
		t.Fatalf("unexpected success count: %v", got)
	}
	if got := testutil.ToFloat64(m.failure.WithLabelValues("payout")); got != 1 {
		t.Fatalf("unexpected failure count: %v", got)
	}
}

func TestCronJobMetrics_NilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("payout")
	m.IncFailure("payout")
	m.ObserveDuration("payout", time.Second)

	empty := NewCronJobMetrics(nil)
	empty.IncSuccess("")
}
