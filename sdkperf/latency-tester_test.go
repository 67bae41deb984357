package sdkperf

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"gotest.tools/v3/assert"
	clocktesting "k8s.io/utils/clock/testing"
)

type fakeDeployer struct {
	err error
}

func (d fakeDeployer) DeployPages(ctx context.Context, subjects []Subject, version string) ([]NetworkLatencyPage, []ExecutionLatencyPage, error) {
	if d.err != nil {
		return nil, nil, d.err
	}
	return []NetworkLatencyPage{{Path: fastlyCdnPage, Cdn: Fastly}, {Path: googleCdnPage, Cdn: Google}},
		[]ExecutionLatencyPage{{Path: instrumentPage}},
		nil
}

const networkResult = `{"data": {"runs": {"1": {"firstView": {"browserVersion": "76.0", "requests": [
	{"url": "https://host/7.0.0/firebase-app.js", "ttfb_ms": 100, "download_ms": 20}
]}}}}}`

const executionResult = `{"data": {"runs": {"1": {"firstView": {"browserVersion": "76.0", "userTimingMeasures": [
	{"name": "firebase-app.js___parse_ms", "duration": 3},
	{"name": "firebase-app.js___exec_ms", "duration": 7}
]}}}}}`

func newTestLatencyTester(service TestService, deployer PageDeployer) *LatencyTester {
	registry := NewTestSubmissionRegistry(clocktesting.NewFakeClock(registryEpoch))
	client := NewRemoteTestClient(service, registry, TestOptions{Runs: 1})
	return NewLatencyTester(client, deployer, "https://pages.example.com/", 0)
}

func TestLatencyTester_Run(t *testing.T) {
	service := &fakeTestService{results: map[string]RawResult{
		"https://pages.example.com/fastly-cdn.html": RawResult(networkResult),
		"https://pages.example.com/google-cdn.html": RawResult(networkResult),
		"https://pages.example.com/index.html":      RawResult(executionResult),
	}}
	tester := newTestLatencyTester(service, fakeDeployer{})
	devices := []Device{testDevice, {ID: "Moto G4 - Chrome", Location: "Dulles_MotoG4", Browser: "Moto G4 - Chrome"}}

	networkSamples, executionSamples, err := tester.Run(context.Background(), []Subject{App}, "7.0.0", devices, []Connectivity{Cable, ThreeG})

	assert.NilError(t, err)
	// 2 pages x 2 devices x 2 connectivities, two samples each
	assert.Equal(t, len(networkSamples), 16)
	// 1 page x 2 devices, two measures each
	assert.Equal(t, len(executionSamples), 4)
	assert.Equal(t, len(service.locations), 10)
	assert.Equal(t, tester.client.Registry().Len(), 10)
	for _, sample := range executionSamples {
		assert.Equal(t, sample.Subject, App)
	}
}

func TestLatencyTester_FailedSubmissionsAreDropped(t *testing.T) {
	hook := logrustest.NewGlobal()
	service := &fakeTestService{
		results: map[string]RawResult{
			"https://pages.example.com/fastly-cdn.html": RawResult(networkResult),
		},
		failures: map[string]error{
			"https://pages.example.com/google-cdn.html": errors.New("service unavailable"),
			"https://pages.example.com/index.html":      errors.New("service unavailable"),
		},
	}
	tester := newTestLatencyTester(service, fakeDeployer{})

	networkSamples, executionSamples, err := tester.Run(context.Background(), []Subject{App}, "7.0.0", []Device{testDevice}, []Connectivity{Cable})

	assert.NilError(t, err)
	assert.Equal(t, len(networkSamples), 2)
	for _, sample := range networkSamples {
		assert.Equal(t, sample.Cdn, Fastly)
	}
	assert.Equal(t, len(executionSamples), 0)
	assert.Equal(t, len(service.locations), 3)

	warnings := []string{}
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings = append(warnings, entry.Message)
		}
	}
	assert.DeepEqual(t, warnings, []string{"Network latency test errored, test skipped", "Execution latency test errored, test skipped"}, cmpopts.SortSlices(func(a, b string) bool { return a < b }))
}

func TestLatencyTester_UnreadableResultIsDropped(t *testing.T) {
	service := &fakeTestService{results: map[string]RawResult{
		"https://pages.example.com/fastly-cdn.html": RawResult(`<html>`),
		"https://pages.example.com/google-cdn.html": RawResult(networkResult),
	}}
	tester := newTestLatencyTester(service, fakeDeployer{})

	networkSamples, _, err := tester.Run(context.Background(), []Subject{App}, "7.0.0", []Device{testDevice}, []Connectivity{Cable})

	assert.NilError(t, err)
	assert.Equal(t, len(networkSamples), 2)
	assert.Equal(t, networkSamples[0].Cdn, Google)
}

func TestLatencyTester_DeploymentFailure(t *testing.T) {
	service := &fakeTestService{}
	tester := newTestLatencyTester(service, fakeDeployer{err: errors.New("no credentials")})

	_, _, err := tester.Run(context.Background(), []Subject{App}, "7.0.0", []Device{testDevice}, []Connectivity{Cable})

	assert.ErrorContains(t, err, "no credentials")
	assert.Equal(t, len(service.locations), 0)
}

func TestLatencyTester_ExecutionRunsOnCable(t *testing.T) {
	service := &fakeTestService{}
	tester := newTestLatencyTester(service, fakeDeployer{})

	_, _, err := tester.Run(context.Background(), []Subject{App}, "7.0.0", []Device{testDevice}, []Connectivity{ThreeGSlow})

	assert.NilError(t, err)
	_, ok := tester.client.Registry().Get(SubmissionID{URL: "https://pages.example.com/index.html", DeviceID: testDevice.ID, Connectivity: Cable})
	assert.Assert(t, ok)
}
