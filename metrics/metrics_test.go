package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weisyn/collection-sdk-go/metrics"
)

func TestObserveWorkflow(t *testing.T) {
	m := metrics.New()
	m.ObserveWorkflow("create", metrics.ResultSuccess, time.Second)
	m.ObserveWorkflow("create", metrics.ResultFailure, time.Second)
	m.ObserveWorkflow("create", metrics.ResultSuccess, 2*time.Second)

	count, err := testutil.GatherAndCount(m.Registry(), "collection_workflows_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per result label")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveWorkflow("mint", metrics.ResultSuccess, time.Millisecond)
		m.IncEvent("TokenMinted")
		m.IncTransaction("mint", "confirmed")
	})
}

func TestHandler(t *testing.T) {
	m := metrics.New()
	m.IncEvent("CollectionCreated")
	m.IncTransaction("createCollection", "confirmed")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `collection_events_indexed_total{event="CollectionCreated"} 1`)
	assert.Contains(t, string(body), `collection_transactions_total{method="createCollection",status="confirmed"} 1`)
}
