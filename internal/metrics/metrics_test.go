package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLegLifecycle(t *testing.T) {
	c := NewCollector(5)

	c.LegQueued()
	c.LegQueued()
	c.LegStarted()
	c.LegStarted()
	c.LegFinished("committed", 20*time.Millisecond, 3, 12)
	c.LegFinished("failed", 5*time.Millisecond, 0, 0)
	c.LegFinished("failed", 0, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.LegsQueued))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.LegsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.LegsFinished.WithLabelValues("committed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.LegsFinished.WithLabelValues("failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.JourneysWritten))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.EventsWritten))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.Workers))
	assert.Equal(t, 1, testutil.CollectAndCount(c.LegDuration))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector(1)
	c.LegQueued()

	srv := httptest.NewServer(c.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "importer_legs_queued_total 1")
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(NewCollector(1).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/metrics", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestPush(t *testing.T) {
	var path string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	c := NewCollector(2)
	require.NoError(t, c.Push(context.Background(), gw.URL, "timetable_importer"))
	assert.True(t, strings.HasPrefix(path, "/metrics/job/timetable_importer"), path)
}
