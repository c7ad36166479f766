package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRecord(t *testing.T) {
	t.Parallel()

	m := New()
	m.TickStarted()
	m.TickStarted()
	m.TickFinished(time.Second, 3)
	m.RenderAttempt("update", "transient")
	m.RenderAttempt("update", "transient")
	m.Removal("expired")

	if got := testutil.ToFloat64(m.ticks); got != 2 {
		t.Fatalf("ticks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.activeSessions); got != 3 {
		t.Fatalf("active = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.renderAttempts.WithLabelValues("update", "transient")); got != 2 {
		t.Fatalf("render attempts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.removals.WithLabelValues("expired")); got != 1 {
		t.Fatalf("removals = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.TickStarted()
	m.FetchResult("ok")
	m.Command("leaderboard", "ok")
}
