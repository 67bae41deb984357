package sdkperf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// The result schema belongs to WebPageTest. Only the fields read below are
// declared, and every run is decoded on its own so that one malformed run
// cannot spoil its siblings.

type resultEnvelope struct {
	Data *struct {
		ID   string                     `json:"id"`
		Runs map[string]json.RawMessage `json:"runs"`
	} `json:"data"`
}

type runView struct {
	FirstView *firstView `json:"firstView"`
}

type firstView struct {
	BrowserVersion     string          `json:"browserVersion"`
	Requests           []requestRecord `json:"requests"`
	UserTimingMeasures timingMeasures  `json:"userTimingMeasures"`
}

type requestRecord struct {
	URL        string   `json:"url"`
	TTFBMs     *float64 `json:"ttfb_ms"`
	DownloadMs *float64 `json:"download_ms"`
}

type timingMeasure struct {
	Name     *string  `json:"name"`
	Duration *float64 `json:"duration"`
}

// timingMeasures accepts both the keyed object and the plain list form.
type timingMeasures []timingMeasure

func (m *timingMeasures) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}

	if len(data) > 0 && data[0] == '[' {
		list := []timingMeasure{}
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*m = list
		return nil
	}

	keyed := map[string]timingMeasure{}
	if err := json.Unmarshal(data, &keyed); err != nil {
		return err
	}
	keys := make([]string, 0, len(keyed))
	for key := range keyed {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	list := make([]timingMeasure, 0, len(keyed))
	for _, key := range keys {
		list = append(list, keyed[key])
	}
	*m = list
	return nil
}

type resultRun struct {
	id  string
	raw json.RawMessage
}

func decodeRuns(result RawResult) ([]resultRun, error) {
	envelope := resultEnvelope{}
	if err := json.Unmarshal(result, &envelope); err != nil {
		return nil, errors.Wrap(err, "could not parse result")
	}
	if envelope.Data == nil {
		return nil, fmt.Errorf("result carries no data")
	}

	runs := make([]resultRun, 0, len(envelope.Data.Runs))
	for id, raw := range envelope.Data.Runs {
		runs = append(runs, resultRun{id: id, raw: raw})
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].id < runs[j].id
	})

	return runs, nil
}

func decodeFirstView(run resultRun) (*firstView, error) {
	view := runView{}
	if err := json.Unmarshal(run.raw, &view); err != nil {
		return nil, err
	}
	if view.FirstView == nil {
		return nil, fmt.Errorf("no first view")
	}
	return view.FirstView, nil
}

type networkTarget struct {
	device       Device
	cdn          Cdn
	connectivity Connectivity
}

// extractNetworkLatencySamples turns every subject request of every run into a
// time-to-first-byte and a download sample. Requests for anything that is not
// a subject are ignored.
func extractNetworkLatencySamples(result RawResult, target networkTarget) ([]NetworkLatencySample, []*PerRunParseError, error) {
	runs, err := decodeRuns(result)
	if err != nil {
		return nil, nil, err
	}

	samples := []NetworkLatencySample{}
	runErrs := []*PerRunParseError{}
	for _, run := range runs {
		runSamples, err := extractNetworkLatencyRun(run, target)
		if err != nil {
			runErrs = append(runErrs, &PerRunParseError{RunID: run.id, Err: err})
			continue
		}
		samples = append(samples, runSamples...)
	}

	return samples, runErrs, nil
}

func extractNetworkLatencyRun(run resultRun, target networkTarget) ([]NetworkLatencySample, error) {
	view, err := decodeFirstView(run)
	if err != nil {
		return nil, err
	}
	if view.Requests == nil {
		return nil, fmt.Errorf("no requests")
	}

	samples := []NetworkLatencySample{}
	for index, request := range view.Requests {
		subject, ok := subjectFromURL(request.URL)
		if !ok {
			continue
		}
		if request.TTFBMs == nil || request.DownloadMs == nil {
			return nil, fmt.Errorf("request %d for %s lacks timings", index, request.URL)
		}

		base := NetworkLatencySample{
			RunID:          run.id,
			Device:         target.device.ID,
			BrowserVersion: view.BrowserVersion,
			Cdn:            target.cdn,
			Connectivity:   target.connectivity,
		}
		ttfb, download := base, base
		ttfb.MeasurementSample = MeasurementSample{Subject: subject, Metric: TimeToFirstByte, Value: *request.TTFBMs}
		download.MeasurementSample = MeasurementSample{Subject: subject, Metric: Download, Value: *request.DownloadMs}
		samples = append(samples, ttfb, download)
	}

	return samples, nil
}

// extractExecutionLatencySamples reads the "<subject>___<metric>" user timing
// measures of every run. A measure naming an unknown subject or metric is
// skipped on its own.
func extractExecutionLatencySamples(result RawResult, device Device) ([]ExecutionLatencySample, []*PerRunParseError, error) {
	runs, err := decodeRuns(result)
	if err != nil {
		return nil, nil, err
	}

	samples := []ExecutionLatencySample{}
	runErrs := []*PerRunParseError{}
	for _, run := range runs {
		runSamples, err := extractExecutionLatencyRun(run, device)
		if err != nil {
			runErrs = append(runErrs, &PerRunParseError{RunID: run.id, Err: err})
			continue
		}
		samples = append(samples, runSamples...)
	}

	return samples, runErrs, nil
}

func extractExecutionLatencyRun(run resultRun, device Device) ([]ExecutionLatencySample, error) {
	view, err := decodeFirstView(run)
	if err != nil {
		return nil, err
	}
	if view.UserTimingMeasures == nil {
		return nil, fmt.Errorf("no user timing measures")
	}

	samples := []ExecutionLatencySample{}
	for index, measure := range view.UserTimingMeasures {
		if measure.Name == nil {
			return nil, fmt.Errorf("measure %d has no name", index)
		}
		subject, metric, ok := parseMeasureName(*measure.Name)
		if !ok {
			continue
		}
		if measure.Duration == nil {
			return nil, fmt.Errorf("measure %s has no duration", *measure.Name)
		}

		samples = append(samples, ExecutionLatencySample{
			MeasurementSample: MeasurementSample{Subject: subject, Metric: metric, Value: *measure.Duration},
			RunID:             run.id,
			Device:            device.ID,
			BrowserVersion:    view.BrowserVersion,
		})
	}

	return samples, nil
}
