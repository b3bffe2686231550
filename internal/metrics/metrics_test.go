package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector()

	c.ObserveRun("success", 250*time.Millisecond)
	c.ObserveRun("success", time.Second)
	c.ObserveRun("cancelled", time.Millisecond)
	c.AddRelationship("routes_to")
	c.AddRelationship("routes_to")
	c.AddRelationship("connects_to")
	c.ExtractorFailed("lambda", "timeout")
	c.GroupLookups(5, 2)
	c.ObserveRequest("/api/v1/topology", "200")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runsTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.relationships.WithLabelValues("routes_to")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.extractorFailures.WithLabelValues("lambda", "timeout")))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.groupLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.groupLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("/api/v1/topology", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.AddRelationship("triggers")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `topograph_relationships_discovered_total{type="triggers"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveRun("success", time.Second)
		c.AddRelationship("routes_to")
		c.ExtractorFailed("ec2", "lookup")
		c.GroupLookups(1, 1)
		c.ObserveRequest("/health", "200")
	})
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
