package sdkperf

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "sdkperf"

// MetricsRegistry holds the counters of one pipeline run. A batch process has
// no scrape endpoint, so they are pushed once at the end.
var MetricsRegistry = prometheus.NewRegistry()

var (
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_total",
			Help:      "number of test submissions, by terminal status",
		},
		[]string{"status"},
	)
	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "samples_total",
			Help:      "number of raw samples extracted, by sample kind",
		},
		[]string{"kind"},
	)
	skippedRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "skipped_runs_total",
			Help:      "number of test runs dropped because their data could not be read",
		},
		[]string{"kind"},
	)
	recordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "number of aggregated records produced, by record kind",
		},
		[]string{"kind"},
	)
)

const (
	networkKind   = "network_latency"
	executionKind = "execution_latency"
	sizeKind      = "binary_size"
)

func init() {
	MetricsRegistry.MustRegister(submissionsTotal, samplesTotal, skippedRunsTotal, recordsTotal)
}

func PushMetrics(gatewayURL string, testRun int64) error {
	err := push.New(gatewayURL, metricsNamespace).
		Gatherer(MetricsRegistry).
		Grouping("test_run", strconv.FormatInt(testRun, 10)).
		Push()
	return errors.Wrapf(err, "could not push metrics to %s", gatewayURL)
}
