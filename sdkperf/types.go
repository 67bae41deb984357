package sdkperf

import (
	"time"
)

type Subject string

const (
	App         Subject = "firebase-app.js"
	Auth        Subject = "firebase-auth.js"
	Database    Subject = "firebase-database.js"
	Firestore   Subject = "firebase-firestore.js"
	Functions   Subject = "firebase-functions.js"
	Messaging   Subject = "firebase-messaging.js"
	Performance Subject = "firebase-performance.js"
	Storage     Subject = "firebase-storage.js"
)

// Subjects lists every subject under test, in release-note order.
var Subjects = []Subject{App, Auth, Database, Firestore, Functions, Messaging, Performance, Storage}

// Metric tags double as the user timing measure suffix and the record column.
type Metric string

const (
	TimeToFirstByte Metric = "ttfb_ms"
	Download        Metric = "download_ms"
	Parse           Metric = "parse_ms"
	Execute         Metric = "exec_ms"
	Size            Metric = "size_byte"
)

var Metrics = []Metric{TimeToFirstByte, Download, Parse, Execute, Size}

type Connectivity string

const (
	Cable      Connectivity = "Cable"
	DSL        Connectivity = "DSL"
	ThreeGFast Connectivity = "3GFast"
	ThreeG     Connectivity = "3G"
	ThreeGSlow Connectivity = "3GSlow"
	FourG      Connectivity = "4G"
	LTE        Connectivity = "LTE"
)

type Cdn string

const (
	Fastly Cdn = "fastly"
	Google Cdn = "google"
)

type Device struct {
	ID       string `mapstructure:"id"`
	Location string `mapstructure:"location"`
	Browser  string `mapstructure:"browser"`
}

type MeasurementSample struct {
	Subject Subject `json:"sdk"`
	Metric  Metric  `json:"metric_name"`
	Value   float64 `json:"metric_value"`
}

type NetworkLatencySample struct {
	MeasurementSample
	RunID          string       `json:"run_id"`
	Device         string       `json:"device"`
	BrowserVersion string       `json:"browser_version"`
	Cdn            Cdn          `json:"cdn"`
	Connectivity   Connectivity `json:"connectivity"`
}

type ExecutionLatencySample struct {
	MeasurementSample
	RunID          string `json:"run_id"`
	Device         string `json:"device"`
	BrowserVersion string `json:"browser_version"`
}

type BinarySizeSample struct {
	MeasurementSample
}

type NetworkLatencyRecord struct {
	TestRun        int64   `db:"test_run" json:"test_run"`
	Version        string  `db:"version" json:"version"`
	Subject        string  `db:"sdk" json:"sdk"`
	Cdn            string  `db:"cdn" json:"cdn"`
	Connectivity   string  `db:"connectivity" json:"connectivity"`
	Device         string  `db:"device" json:"device"`
	BrowserVersion string  `db:"browser_version" json:"browser_version"`
	TTFBMs         float64 `db:"ttfb_ms" json:"ttfb_ms"`
	DownloadMs     float64 `db:"download_ms" json:"download_ms"`
}

type ExecutionLatencyRecord struct {
	TestRun        int64   `db:"test_run" json:"test_run"`
	Version        string  `db:"version" json:"version"`
	Subject        string  `db:"sdk" json:"sdk"`
	Device         string  `db:"device" json:"device"`
	BrowserVersion string  `db:"browser_version" json:"browser_version"`
	ParseMs        float64 `db:"parse_ms" json:"parse_ms"`
	ExecMs         float64 `db:"exec_ms" json:"exec_ms"`
}

type BinarySizeRecord struct {
	TestRun  int64  `db:"test_run" json:"test_run"`
	Version  string `db:"version" json:"version"`
	Subject  string `db:"sdk" json:"sdk"`
	SizeByte int64  `db:"size_byte" json:"size_byte"`
}

type NetworkLatencyPage struct {
	Path string
	Cdn  Cdn
}

type ExecutionLatencyPage struct {
	Path string
}

type TestStatus int

const (
	Pending TestStatus = iota
	Succeeded
	Failed
)

func (s TestStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type SubmissionID struct {
	URL          string
	DeviceID     string
	Connectivity Connectivity
}

type TestSubmissionRecord struct {
	Status       TestStatus
	URL          string
	DeviceID     string
	Connectivity Connectivity
	Runs         int
	Start        time.Time
	Timeout      time.Time
}

type Stats struct {
	NSamples int
	Mean     float64
	StdDev   float64
	StdErr   float64
	Min      float64
	Max      float64
	Deciles  []float64
}
