package sdkperf

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"gotest.tools/v3/assert"
)

func TestPushMetrics(t *testing.T) {
	lock := sync.Mutex{}
	paths := []string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lock.Lock()
		defer lock.Unlock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	submissionsTotal.WithLabelValues(Succeeded.String()).Inc()

	err := PushMetrics(server.URL, 42)

	assert.NilError(t, err)
	assert.DeepEqual(t, paths, []string{"PUT /metrics/job/sdkperf/test_run/42"})
}

func TestPushMetrics_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := PushMetrics(server.URL, 42)

	assert.ErrorContains(t, err, "could not push metrics")
}
