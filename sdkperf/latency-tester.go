package sdkperf

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// PageDeployer publishes the test pages for one version of the subjects.
type PageDeployer interface {
	DeployPages(ctx context.Context, subjects []Subject, version string) ([]NetworkLatencyPage, []ExecutionLatencyPage, error)
}

// executionConnectivity is the only profile execution latency is measured on;
// parse and execute time do not depend on the network.
const executionConnectivity = Cable

type LatencyTester struct {
	client         *RemoteTestClient
	deployer       PageDeployer
	pagesBaseURL   string
	statusInterval time.Duration
}

func NewLatencyTester(client *RemoteTestClient, deployer PageDeployer, pagesBaseURL string, statusInterval time.Duration) *LatencyTester {
	return &LatencyTester{
		client:         client,
		deployer:       deployer,
		pagesBaseURL:   strings.TrimSuffix(pagesBaseURL, "/"),
		statusInterval: statusInterval,
	}
}

// sweepOutcome is what one submission contributes to a sweep: samples, or the
// error that was logged in their place.
type sweepOutcome[T any] struct {
	samples []T
	err     error
}

// sweep starts every task before waiting on any of them. Tasks never fail the
// group; their errors travel in the outcome.
func sweep[T any](ctx context.Context, tasks []func(context.Context) ([]T, error)) []sweepOutcome[T] {
	outcomes := make([]sweepOutcome[T], len(tasks))
	group := &errgroup.Group{}

	for index, task := range tasks {
		index, task := index, task
		group.Go(func() error {
			samples, err := task(ctx)
			outcomes[index] = sweepOutcome[T]{samples: samples, err: err}
			return nil
		})
	}
	_ = group.Wait()

	return outcomes
}

func joinOutcomes[T any](label string, outcomes []sweepOutcome[T]) []T {
	ret := []T{}

	for _, outcome := range outcomes {
		if outcome.err != nil {
			logrus.WithError(outcome.err).Warnf("%s test errored, test skipped", label)
			continue
		}
		ret = append(ret, outcome.samples...)
	}

	return ret
}

// Run deploys the test pages and measures them on every device. Only a
// deployment failure is returned; failed submissions shrink the sample sets.
func (t *LatencyTester) Run(ctx context.Context, subjects []Subject, version string, devices []Device, connectivities []Connectivity) ([]NetworkLatencySample, []ExecutionLatencySample, error) {
	logrus.Info("Start to measure sdk startup latencies ...")

	networkPages, executionPages, err := t.deployer.DeployPages(ctx, subjects, version)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not deploy test pages")
	}

	if t.statusInterval > 0 {
		t.client.Registry().Start(t.statusInterval)
		defer t.client.Registry().Stop()
	}

	var networkSamples []NetworkLatencySample
	var executionSamples []ExecutionLatencySample

	group := &errgroup.Group{}
	group.Go(func() error {
		networkSamples = t.testNetworkLatencyPages(ctx, networkPages, devices, connectivities)
		return nil
	})
	group.Go(func() error {
		executionSamples = t.testExecutionLatencyPages(ctx, executionPages, devices)
		return nil
	})
	_ = group.Wait()

	samplesTotal.WithLabelValues(networkKind).Add(float64(len(networkSamples)))
	samplesTotal.WithLabelValues(executionKind).Add(float64(len(executionSamples)))
	logrus.WithFields(logrus.Fields{
		"network":   len(networkSamples),
		"execution": len(executionSamples),
	}).Info("Sdk startup latency measurements finished.")

	return networkSamples, executionSamples, nil
}

func (t *LatencyTester) pageURL(path string) string {
	return t.pagesBaseURL + "/" + strings.TrimPrefix(path, "/")
}

func (t *LatencyTester) testNetworkLatencyPages(ctx context.Context, pages []NetworkLatencyPage, devices []Device, connectivities []Connectivity) []NetworkLatencySample {
	tasks := []func(context.Context) ([]NetworkLatencySample, error){}

	for _, page := range pages {
		for _, device := range devices {
			for _, connectivity := range connectivities {
				pageURL := t.pageURL(page.Path)
				target := networkTarget{device: device, cdn: page.Cdn, connectivity: connectivity}
				tasks = append(tasks, func(ctx context.Context) ([]NetworkLatencySample, error) {
					return t.testNetworkLatencyPage(ctx, pageURL, target)
				})
			}
		}
	}

	return joinOutcomes("Network latency", sweep(ctx, tasks))
}

func (t *LatencyTester) testNetworkLatencyPage(ctx context.Context, pageURL string, target networkTarget) ([]NetworkLatencySample, error) {
	result, err := t.client.Submit(ctx, pageURL, target.device, target.connectivity)
	if err != nil {
		return nil, err
	}

	samples, runErrs, err := extractNetworkLatencySamples(result, target)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read result for %s on %s with %s", pageURL, target.device.ID, target.connectivity)
	}
	for _, runErr := range runErrs {
		skippedRunsTotal.WithLabelValues(networkKind).Inc()
		logrus.WithFields(logrus.Fields{
			"url":          pageURL,
			"device":       target.device.ID,
			"connectivity": target.connectivity,
		}).WithError(runErr).Warn("Failed to extract run data, skipping the run")
	}

	return samples, nil
}

func (t *LatencyTester) testExecutionLatencyPages(ctx context.Context, pages []ExecutionLatencyPage, devices []Device) []ExecutionLatencySample {
	tasks := []func(context.Context) ([]ExecutionLatencySample, error){}

	for _, page := range pages {
		for _, device := range devices {
			device := device
			pageURL := t.pageURL(page.Path)
			tasks = append(tasks, func(ctx context.Context) ([]ExecutionLatencySample, error) {
				return t.testExecutionLatencyPage(ctx, pageURL, device)
			})
		}
	}

	return joinOutcomes("Execution latency", sweep(ctx, tasks))
}

func (t *LatencyTester) testExecutionLatencyPage(ctx context.Context, pageURL string, device Device) ([]ExecutionLatencySample, error) {
	result, err := t.client.Submit(ctx, pageURL, device, executionConnectivity)
	if err != nil {
		return nil, err
	}

	samples, runErrs, err := extractExecutionLatencySamples(result, device)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read result for %s on %s", pageURL, device.ID)
	}
	for _, runErr := range runErrs {
		skippedRunsTotal.WithLabelValues(executionKind).Inc()
		logrus.WithFields(logrus.Fields{
			"url":    pageURL,
			"device": device.ID,
		}).WithError(runErr).Warn("Failed to extract run data, skipping the run")
	}

	return samples, nil
}
