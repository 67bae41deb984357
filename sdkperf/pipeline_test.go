package sdkperf

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/afero"
	"gotest.tools/v3/assert"
)

const combinedResult = `{"statusCode": 200, "data": {"runs": {"1": {"firstView": {
	"browserVersion": "76.0",
	"requests": [{"url": "https://host/7.0.0/firebase-app.js", "ttfb_ms": 100, "download_ms": 20}],
	"userTimingMeasures": [
		{"name": "firebase-app.js___parse_ms", "duration": 3},
		{"name": "firebase-app.js___exec_ms", "duration": 7}
	]
}}}}}`

func newPipelineServers(t *testing.T) (wpt, release *httptest.Server) {
	t.Helper()

	wpt = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/runtest.php":
			fmt.Fprint(w, `{"statusCode": 200, "data": {"testId": "T1"}}`)
		case "/jsonResult.php":
			fmt.Fprint(w, combinedResult)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(wpt.Close)

	mux := http.NewServeMux()
	mux.HandleFunc("/releases.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"current": {"version": "7.0.0"}}`)
	})
	mux.HandleFunc("/7.0.0/firebase-app.js", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 2048))
	})
	release = httptest.NewServer(mux)
	t.Cleanup(release.Close)

	return wpt, release
}

func newTestPipelineConfig(wptURL, releaseURL string) *Config {
	matrix := MatrixConfig{Devices: []Device{testDevice}, Connectivities: []Connectivity{Cable}, Database: "test"}
	return &Config{
		Subjects:       []string{string(App)},
		ReleaseBaseURL: releaseURL,
		WebPageTest: WebPageTestConfig{
			Server:       wptURL,
			Runs:         1,
			Timeout:      time.Minute,
			PollInterval: time.Millisecond,
		},
		Pages:      PagesConfig{BaseURL: "https://pages.example.com"},
		Official:   matrix,
		Trial:      matrix,
		ArchiveDir: "/archive",
	}
}

func TestPipeline_RunDryTrial(t *testing.T) {
	wpt, release := newPipelineServers(t)
	fs := afero.NewMemMapFs()
	out := &bytes.Buffer{}
	pipeline := NewPipeline(newTestPipelineConfig(wpt.URL, release.URL), fs, log.New(out, "", 0))

	err := pipeline.Run(context.Background(), RunOptions{TestRun: 42, Trial: true, DryRun: true})

	assert.NilError(t, err)
	printed := out.String()
	assert.Assert(t, strings.Contains(printed, "Version: 7.0.0"))
	assert.Assert(t, strings.Contains(printed, "Network-ttfb_ms-mean: 100.000 ms"))
	assert.Assert(t, strings.Contains(printed, "firebase-app.js: 2048 byte"))
	assert.Assert(t, strings.Contains(printed, "BULK INSERT into network_latency"))
	assert.Assert(t, strings.Contains(printed, "BULK INSERT into execution_latency"))
	assert.Assert(t, strings.Contains(printed, "BULK INSERT into binary_size"))

	exists, err := afero.Exists(fs, "/archive/runs/42/samples.json")
	assert.NilError(t, err)
	assert.Assert(t, exists)
}

func TestPipeline_Measure(t *testing.T) {
	wpt, release := newPipelineServers(t)
	config := newTestPipelineConfig(wpt.URL, release.URL)
	pipeline := NewPipeline(config, afero.NewMemMapFs(), log.New(&bytes.Buffer{}, "", 0))

	m, err := pipeline.Measure(context.Background(), []Subject{App}, "7.0.0", 42, config.Official)

	assert.NilError(t, err)
	// fastly and google pages, one device, one connectivity
	assert.Equal(t, len(m.NetworkLatencies), 2)
	assert.Equal(t, m.NetworkLatencies[0].TTFBMs, 100.0)
	assert.DeepEqual(t, m.ExecutionLatencies, []ExecutionLatencyRecord{{
		TestRun: 42, Version: "7.0.0", Subject: string(App), Device: testDevice.ID, BrowserVersion: "76.0", ParseMs: 3, ExecMs: 7,
	}})
	assert.DeepEqual(t, m.BinarySizes, []BinarySizeRecord{{TestRun: 42, Version: "7.0.0", Subject: string(App), SizeByte: 2048}})
}

func TestPipeline_RunStoresIntoDatabase(t *testing.T) {
	wpt, release := newPipelineServers(t)
	config := newTestPipelineConfig(wpt.URL, release.URL)
	config.ArchiveDir = ""
	pipeline := NewPipeline(config, afero.NewMemMapFs(), log.New(&bytes.Buffer{}, "", 0))

	db, mock, err := sqlmock.New()
	assert.NilError(t, err)
	pipeline.openDB = func(DatabaseConfig) (*sql.DB, error) {
		return db, nil
	}
	mock.ExpectExec(regexp.QuoteMeta("CREATE DATABASE IF NOT EXISTS `test`")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.MatchExpectationsInOrder(false)
	for _, table := range []string{NetworkLatencyTable, ExecutionLatencyTable, BinarySizeTable} {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `test`.`" + table + "`")).WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectClose()

	err = pipeline.Run(context.Background(), RunOptions{TestRun: 42, Version: "7.0.0"})

	assert.NilError(t, err)
	assert.NilError(t, mock.ExpectationsWereMet())
}

func TestPipeline_ResolveVersion(t *testing.T) {
	_, release := newPipelineServers(t)
	pipeline := NewPipeline(newTestPipelineConfig("", release.URL), afero.NewMemMapFs(), log.New(&bytes.Buffer{}, "", 0))

	version, err := pipeline.ResolveVersion(context.Background(), "")
	assert.NilError(t, err)
	assert.Equal(t, version, "7.0.0")

	version, err = pipeline.ResolveVersion(context.Background(), "6.6.2")
	assert.NilError(t, err)
	assert.Equal(t, version, "6.6.2")
}

func TestPipeline_Reaggregate(t *testing.T) {
	fs := afero.NewMemMapFs()
	archived := &Measurements{
		TestRun: 17,
		Version: "6.6.2",
		ExecutionSamples: []ExecutionLatencySample{
			executionSample(App, Parse, 3, "Desktop - Chrome", "76.0"),
			executionSample(App, Execute, 7, "Desktop - Chrome", "76.0"),
		},
		SizeSamples: []BinarySizeSample{
			{MeasurementSample{Subject: App, Metric: Size, Value: 2048}},
		},
	}
	archivePath, err := ArchiveSamples(fs, "/archive", archived)
	assert.NilError(t, err)

	out := &bytes.Buffer{}
	pipeline := NewPipeline(newTestPipelineConfig("", ""), fs, log.New(out, "", 0))

	err = pipeline.Reaggregate(context.Background(), archivePath, RunOptions{TestRun: 99, Trial: true, DryRun: true})

	assert.NilError(t, err)
	printed := out.String()
	assert.Assert(t, strings.Contains(printed, "TestRun: 17"))
	assert.Assert(t, strings.Contains(printed, "firebase-app.js Desktop - Chrome: parse 3.000 ms, exec 7.000 ms (76.0)"))
	assert.Assert(t, strings.Contains(printed, "firebase-app.js: 2048 byte"))
	assert.Assert(t, strings.Contains(printed, "BULK INSERT into execution_latency"))
	assert.Assert(t, !strings.Contains(printed, "BULK INSERT into network_latency"))
}

func TestPipeline_ReaggregateMissingArchive(t *testing.T) {
	pipeline := NewPipeline(newTestPipelineConfig("", ""), afero.NewMemMapFs(), log.New(&bytes.Buffer{}, "", 0))

	err := pipeline.Reaggregate(context.Background(), "/archive/runs/1/samples.json", RunOptions{DryRun: true})

	var accessErr *FileAccessError
	assert.Assert(t, errors.As(err, &accessErr))
}
