package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncRepository("ON_TIME")
	metrics.IncRepository("ON_TIME")
	metrics.IncRepository("CLONE_FAILED")
	metrics.IncRun("completed")
	metrics.IncInFlight()
	metrics.DecInFlight()
	metrics.ObserveSync("clone", 300*time.Millisecond)
	metrics.ObserveRequest("/api/v1/runs/:id", 404)

	if got := testutil.ToFloat64(metrics.repositoriesTotal.WithLabelValues("ON_TIME")); got != 2 {
		t.Fatalf("repositories_total{ON_TIME} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.repositoriesTotal.WithLabelValues("CLONE_FAILED")); got != 1 {
		t.Fatalf("repositories_total{CLONE_FAILED} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.runsTotal.WithLabelValues("completed")); got != 1 {
		t.Fatalf("runs_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.inflight); got != 0 {
		t.Fatalf("units_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/api/v1/runs/:id", "404")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsNilReceiver(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncRepository("LATE")
	metrics.IncRun("failed")
	metrics.ObserveSync("reuse", time.Second)
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.IncRepository("LATE")

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `classroom_sync_repositories_total{outcome="LATE"} 1`) {
		t.Fatalf("metrics output missing counter:\n%s", rec.Body.String())
	}
}
