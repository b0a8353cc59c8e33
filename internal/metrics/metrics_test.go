package metrics

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordGeneratorRequest("model", time.Second, true)
	c.RecordRateLimiterWait("provider", time.Millisecond)
	c.RecordCatalogCall("list_products", 200)
	c.IncrementProduct("completed")
	c.IncrementImage("error")
	c.RecordBreakerTrip()
	c.JobStarted()
	c.JobFinished("completed", time.Second)
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector(slog.New(slog.NewTextHandler(io.Discard, nil)))

	before := testutil.ToFloat64(catalogCalls.WithLabelValues("delete_image", "404"))
	c.RecordCatalogCall("delete_image", 404)
	if got := testutil.ToFloat64(catalogCalls.WithLabelValues("delete_image", "404")); got != before+1 {
		t.Errorf("catalog calls = %v, want %v", got, before+1)
	}

	beforeTransport := testutil.ToFloat64(catalogCalls.WithLabelValues("list_products", "transport_error"))
	c.RecordCatalogCall("list_products", 0)
	if got := testutil.ToFloat64(catalogCalls.WithLabelValues("list_products", "transport_error")); got != beforeTransport+1 {
		t.Errorf("transport errors = %v, want %v", got, beforeTransport+1)
	}

	beforeTrips := testutil.ToFloat64(breakerTrips)
	c.RecordBreakerTrip()
	if got := testutil.ToFloat64(breakerTrips); got != beforeTrips+1 {
		t.Errorf("breaker trips = %v, want %v", got, beforeTrips+1)
	}

	beforeActive := testutil.ToFloat64(activeJobs)
	c.JobStarted()
	if got := testutil.ToFloat64(activeJobs); got != beforeActive+1 {
		t.Errorf("active jobs = %v, want %v", got, beforeActive+1)
	}
	c.JobFinished("", time.Second)
	if got := testutil.ToFloat64(activeJobs); got != beforeActive {
		t.Errorf("active jobs after finish = %v, want %v", got, beforeActive)
	}
}
