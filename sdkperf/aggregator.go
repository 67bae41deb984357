package sdkperf

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
)

// ResultsAggregator reduces raw samples of one test run to one record per
// combination of dimension values, averaging each metric over the matching
// samples. A combination that lacks any required metric yields no record.
type ResultsAggregator struct {
	testRun int64
	version string
}

func NewResultsAggregator(testRun int64, version string) *ResultsAggregator {
	return &ResultsAggregator{
		testRun: testRun,
		version: version,
	}
}

type networkKey struct {
	subject      Subject
	device       string
	cdn          Cdn
	connectivity Connectivity
}

type executionKey struct {
	subject Subject
	device  string
}

type metricValues map[Metric]stats.Float64Data

func groupSamples[S any, K comparable](samples []S, keyOf func(S) K, sampleOf func(S) MeasurementSample) ([]K, map[K]metricValues) {
	keys := []K{}
	groups := map[K]metricValues{}

	for _, s := range samples {
		key := keyOf(s)
		values, ok := groups[key]
		if !ok {
			values = metricValues{}
			groups[key] = values
			keys = append(keys, key)
		}
		sample := sampleOf(s)
		values[sample.Metric] = append(values[sample.Metric], sample.Value)
	}

	return keys, groups
}

// means averages each required metric, reporting false when any of them has
// no sample at all.
func (v metricValues) means(required ...Metric) ([]float64, bool) {
	ret := make([]float64, 0, len(required))

	for _, metric := range required {
		values := v[metric]
		if len(values) == 0 {
			return nil, false
		}
		mean, err := stats.Mean(values)
		if err != nil {
			return nil, false
		}
		ret = append(ret, mean)
	}

	return ret, true
}

// firstBrowserVersions assumes every sample of a device shares the browser
// version of the first one seen.
func firstBrowserVersions[S any](samples []S, deviceOf func(S) (string, string)) map[string]string {
	ret := map[string]string{}

	for _, s := range samples {
		device, version := deviceOf(s)
		if _, ok := ret[device]; !ok {
			ret[device] = version
		}
	}

	return ret
}

func (a *ResultsAggregator) NetworkLatencies(samples []NetworkLatencySample) []NetworkLatencyRecord {
	logrus.Infof("Aggregating [%d] network latency samples ...", len(samples))

	keys, groups := groupSamples(samples,
		func(s NetworkLatencySample) networkKey {
			return networkKey{subject: s.Subject, device: s.Device, cdn: s.Cdn, connectivity: s.Connectivity}
		},
		func(s NetworkLatencySample) MeasurementSample { return s.MeasurementSample },
	)
	sort.Slice(keys, func(i, j int) bool {
		x, y := keys[i], keys[j]
		if x.subject != y.subject {
			return x.subject < y.subject
		}
		if x.device != y.device {
			return x.device < y.device
		}
		if x.cdn != y.cdn {
			return x.cdn < y.cdn
		}
		return x.connectivity < y.connectivity
	})
	browserVersions := firstBrowserVersions(samples, func(s NetworkLatencySample) (string, string) {
		return s.Device, s.BrowserVersion
	})

	records := []NetworkLatencyRecord{}
	for _, key := range keys {
		means, ok := groups[key].means(TimeToFirstByte, Download)
		if !ok {
			continue
		}
		records = append(records, NetworkLatencyRecord{
			TestRun:        a.testRun,
			Version:        a.version,
			Subject:        string(key.subject),
			Cdn:            string(key.cdn),
			Connectivity:   string(key.connectivity),
			Device:         key.device,
			BrowserVersion: browserVersions[key.device],
			TTFBMs:         means[0],
			DownloadMs:     means[1],
		})
	}

	recordsTotal.WithLabelValues(networkKind).Add(float64(len(records)))
	logrus.Info("Network latency aggregation done.")
	return records
}

func (a *ResultsAggregator) ExecutionLatencies(samples []ExecutionLatencySample) []ExecutionLatencyRecord {
	logrus.Infof("Aggregating [%d] execution latency samples ...", len(samples))

	keys, groups := groupSamples(samples,
		func(s ExecutionLatencySample) executionKey {
			return executionKey{subject: s.Subject, device: s.Device}
		},
		func(s ExecutionLatencySample) MeasurementSample { return s.MeasurementSample },
	)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].subject != keys[j].subject {
			return keys[i].subject < keys[j].subject
		}
		return keys[i].device < keys[j].device
	})
	browserVersions := firstBrowserVersions(samples, func(s ExecutionLatencySample) (string, string) {
		return s.Device, s.BrowserVersion
	})

	records := []ExecutionLatencyRecord{}
	for _, key := range keys {
		means, ok := groups[key].means(Parse, Execute)
		if !ok {
			continue
		}
		records = append(records, ExecutionLatencyRecord{
			TestRun:        a.testRun,
			Version:        a.version,
			Subject:        string(key.subject),
			Device:         key.device,
			BrowserVersion: browserVersions[key.device],
			ParseMs:        means[0],
			ExecMs:         means[1],
		})
	}

	recordsTotal.WithLabelValues(executionKind).Add(float64(len(records)))
	logrus.Info("Execution latency samples aggregation done.")
	return records
}

func (a *ResultsAggregator) BinarySizes(samples []BinarySizeSample) []BinarySizeRecord {
	logrus.Info("Aggregating binary size samples ...")

	keys, groups := groupSamples(samples,
		func(s BinarySizeSample) Subject { return s.Subject },
		func(s BinarySizeSample) MeasurementSample { return s.MeasurementSample },
	)
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})

	records := []BinarySizeRecord{}
	for _, key := range keys {
		means, ok := groups[key].means(Size)
		if !ok {
			continue
		}
		records = append(records, BinarySizeRecord{
			TestRun:  a.testRun,
			Version:  a.version,
			Subject:  string(key),
			SizeByte: int64(math.Round(means[0])),
		})
	}

	recordsTotal.WithLabelValues(sizeKind).Add(float64(len(records)))
	logrus.Info("Aggregating binary size samples done.")
	return records
}
