package sdkperf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Status codes below wptStatusOK mean the test is still queued or running.
const wptStatusOK = 200

// RawResult is a test result payload exactly as the service returned it.
type RawResult []byte

type TestOptions struct {
	Runs          int
	Timeout       time.Duration
	FirstViewOnly bool
}

// TestService runs one test and blocks until the service reports it finished.
type TestService interface {
	RunTest(ctx context.Context, testURL, location string, options TestOptions) (RawResult, error)
}

type wptEnvelope struct {
	StatusCode int             `json:"statusCode"`
	StatusText string          `json:"statusText"`
	Data       json.RawMessage `json:"data"`
}

type wptSubmission struct {
	TestID string `json:"testId"`
}

// WebPageTest talks to a WebPageTest server over its JSON API.
type WebPageTest struct {
	server       string
	apiKey       string
	pollInterval time.Duration

	submitClient *http.Client
	pollClient   *http.Client
}

// NewWebPageTest builds a client. Submissions are sent exactly once; result
// polls are idempotent reads and are retried up to pollRetries times on
// transport errors.
func NewWebPageTest(server, apiKey string, pollInterval time.Duration, pollRetries int) *WebPageTest {
	return &WebPageTest{
		server:       strings.TrimSuffix(server, "/"),
		apiKey:       apiKey,
		pollInterval: pollInterval,
		submitClient: newHTTPClient(0),
		pollClient:   newHTTPClient(pollRetries),
	}
}

func (w *WebPageTest) RunTest(ctx context.Context, testURL, location string, options TestOptions) (RawResult, error) {
	testID, err := w.submit(ctx, testURL, location, options)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"test": testID, "url": testURL, "location": location}).Debug("Test accepted")

	for {
		result, done, err := w.poll(ctx, testID)
		if err != nil {
			return nil, err
		}
		if done {
			return result, nil
		}

		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (w *WebPageTest) submit(ctx context.Context, testURL, location string, options TestOptions) (string, error) {
	query := url.Values{}
	query.Set("url", testURL)
	query.Set("location", location)
	query.Set("runs", strconv.Itoa(options.Runs))
	query.Set("timeout", strconv.Itoa(int(options.Timeout.Seconds())))
	query.Set("f", "json")
	if options.FirstViewOnly {
		query.Set("fvonly", "1")
	}
	if w.apiKey != "" {
		query.Set("k", w.apiKey)
	}

	envelope, _, err := w.get(ctx, w.submitClient, "/runtest.php", query)
	if err != nil {
		return "", errors.Wrap(err, "could not submit test")
	}
	if envelope.StatusCode != wptStatusOK {
		return "", fmt.Errorf("test rejected with status %d: %s", envelope.StatusCode, envelope.StatusText)
	}

	submission := wptSubmission{}
	if err := json.Unmarshal(envelope.Data, &submission); err != nil {
		return "", errors.Wrap(err, "could not parse submission response")
	}
	if submission.TestID == "" {
		return "", fmt.Errorf("submission response carries no test id")
	}

	return submission.TestID, nil
}

func (w *WebPageTest) poll(ctx context.Context, testID string) (RawResult, bool, error) {
	query := url.Values{}
	query.Set("test", testID)
	query.Set("requests", "1")

	envelope, body, err := w.get(ctx, w.pollClient, "/jsonResult.php", query)
	if err != nil {
		return nil, false, errors.Wrapf(err, "could not fetch result of test %s", testID)
	}

	switch {
	case envelope.StatusCode < wptStatusOK:
		return nil, false, nil
	case envelope.StatusCode == wptStatusOK:
		return RawResult(body), true, nil
	default:
		return nil, false, fmt.Errorf("test %s failed with status %d: %s", testID, envelope.StatusCode, envelope.StatusText)
	}
}

func (w *WebPageTest) get(ctx context.Context, client *http.Client, path string, query url.Values) (*wptEnvelope, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.server+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	body, err := readHTTPResponse(resp)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("unexpected http %d status code: %s", resp.StatusCode, string(body))
	}

	envelope := &wptEnvelope{}
	if err := json.Unmarshal(body, envelope); err != nil {
		return nil, nil, errors.Wrap(err, "could not parse response")
	}

	return envelope, body, nil
}

func readHTTPResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return body, resp.Body.Close()
}

// RemoteTestClient submits one (url, device, connectivity) combination at a
// time and records its lifecycle in a shared registry.
type RemoteTestClient struct {
	service  TestService
	registry *TestSubmissionRegistry
	options  TestOptions
}

func NewRemoteTestClient(service TestService, registry *TestSubmissionRegistry, options TestOptions) *RemoteTestClient {
	return &RemoteTestClient{
		service:  service,
		registry: registry,
		options:  options,
	}
}

func (c *RemoteTestClient) Registry() *TestSubmissionRegistry {
	return c.registry
}

func Location(device Device, connectivity Connectivity) string {
	return fmt.Sprintf("%s:%s.%s", device.Location, device.Browser, connectivity)
}

// Submit blocks until the service reports the test finished. The configured
// timeout is handed to the service and shown in progress reports; the client
// itself never abandons a submission.
func (c *RemoteTestClient) Submit(ctx context.Context, testURL string, device Device, connectivity Connectivity) (RawResult, error) {
	id := SubmissionID{URL: testURL, DeviceID: device.ID, Connectivity: connectivity}
	now := c.registry.Now()
	c.registry.Register(id, TestSubmissionRecord{
		Status:       Pending,
		URL:          testURL,
		DeviceID:     device.ID,
		Connectivity: connectivity,
		Runs:         c.options.Runs,
		Start:        now,
		Timeout:      now.Add(c.options.Timeout),
	})

	log := logrus.WithFields(logrus.Fields{"url": testURL, "device": device.ID, "connectivity": connectivity})
	log.Infof("Submitting WebPageTest for %d total runs ...", c.options.Runs)

	result, err := c.service.RunTest(ctx, testURL, Location(device, connectivity), c.options)
	if err != nil {
		c.registry.UpdateStatus(id, Failed)
		submissionsTotal.WithLabelValues(Failed.String()).Inc()
		return nil, &RemoteSubmissionError{ID: id, Err: err}
	}

	c.registry.UpdateStatus(id, Succeeded)
	submissionsTotal.WithLabelValues(Succeeded.String()).Inc()
	log.Info("Received WebPageTest result")
	return result, nil
}

type retryLogger struct{}

func (retryLogger) format(s string, i ...interface{}) string {
	builder := strings.Builder{}
	builder.WriteString(s)
	for _, x := range i {
		builder.WriteString(" ")
		builder.WriteString(fmt.Sprintf("%v", x))
	}
	return builder.String()
}

func (l retryLogger) Error(s string, i ...interface{}) {
	logrus.Error(l.format(s, i...))
}

func (l retryLogger) Info(s string, i ...interface{}) {
	logrus.Debug(l.format(s, i...))
}

func (l retryLogger) Debug(s string, i ...interface{}) {
	logrus.Trace(l.format(s, i...))
}

func (l retryLogger) Warn(s string, i ...interface{}) {
	logrus.Warn(l.format(s, i...))
}

var _ retryablehttp.LeveledLogger = retryLogger{}

func newHTTPClient(retries int) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = newTransport(transportProtocol, defaultDialTimeout)
	retryClient.RetryMax = retries
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryLogger{}
	return retryClient.StandardClient()
}
