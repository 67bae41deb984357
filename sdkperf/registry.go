package sdkperf

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

const reportRule = "============================================================"

// TestSubmissionRegistry keeps every submission made through one client so
// that progress can be reported while tests are outstanding. Entries are never
// removed and the recorded timeouts are only displayed, never enforced.
type TestSubmissionRegistry struct {
	clock clock.WithTicker

	lock    sync.Mutex
	records map[SubmissionID]*TestSubmissionRecord

	tickerLock sync.Mutex
	stop       chan struct{}
	done       chan struct{}
}

func NewTestSubmissionRegistry(c clock.WithTicker) *TestSubmissionRegistry {
	if c == nil {
		c = clock.RealClock{}
	}

	return &TestSubmissionRegistry{
		clock:   c,
		records: map[SubmissionID]*TestSubmissionRecord{},
	}
}

func (r *TestSubmissionRegistry) Now() time.Time {
	return r.clock.Now()
}

// Register inserts the record, replacing any earlier submission of the same
// (url, device, connectivity) triple.
func (r *TestSubmissionRegistry) Register(id SubmissionID, record TestSubmissionRecord) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.records[id] = &record
}

// UpdateStatus moves a submission to its terminal status. It is expected to be
// called exactly once per id; a second call simply overwrites the status.
func (r *TestSubmissionRegistry) UpdateStatus(id SubmissionID, status TestStatus) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if record, ok := r.records[id]; ok {
		record.Status = status
	}
}

func (r *TestSubmissionRegistry) Get(id SubmissionID) (TestSubmissionRecord, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	record, ok := r.records[id]
	if !ok {
		return TestSubmissionRecord{}, false
	}
	return *record, true
}

func (r *TestSubmissionRegistry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.records)
}

func (r *TestSubmissionRegistry) snapshot() []TestSubmissionRecord {
	r.lock.Lock()
	defer r.lock.Unlock()

	ret := make([]TestSubmissionRecord, 0, len(r.records))
	for _, record := range r.records {
		ret = append(ret, *record)
	}
	return ret
}

// Summary renders the progress message, or an empty string when nothing has
// been submitted yet.
func (r *TestSubmissionRegistry) Summary() string {
	records := r.snapshot()
	if len(records) == 0 {
		return ""
	}

	var succeeded, failed int
	pendings := []TestSubmissionRecord{}
	for _, record := range records {
		switch record.Status {
		case Succeeded:
			succeeded++
		case Failed:
			failed++
		default:
			pendings = append(pendings, record)
		}
	}
	sortSubmissionRecords(pendings)

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "WebPageTest progress update:\n%s [%d] tests submitted, [%d] succeeded, [%d] failed, [%d] pending. %s\n",
		reportRule, len(records), succeeded, failed, len(pendings), reportRule)
	if len(pendings) > 0 {
		now := r.clock.Now()
		sb.WriteString(">> Pending tests:\n")
		for i, p := range pendings {
			fmt.Fprintf(sb, ">> [%d/%d]: {url: %s, device: %s, connectivity: %s, runs: %d}, submitted [%.3fs] ago, timeouts in [%.3fs].\n",
				i+1, len(pendings), p.URL, p.DeviceID, p.Connectivity, p.Runs,
				now.Sub(p.Start).Seconds(), p.Timeout.Sub(now).Seconds())
		}
	}
	sb.WriteString(strings.Repeat(reportRule, 3))

	return sb.String()
}

func (r *TestSubmissionRegistry) Report() {
	if summary := r.Summary(); summary != "" {
		logrus.Info(summary)
	}
}

// Start reports progress every interval until Stop is called. Calling Start
// on a running registry restarts the ticker with the new interval.
func (r *TestSubmissionRegistry) Start(interval time.Duration) {
	r.tickerLock.Lock()
	defer r.tickerLock.Unlock()

	r.stopLocked()

	ticker := r.clock.NewTicker(interval)
	stop := make(chan struct{})
	done := make(chan struct{})
	r.stop, r.done = stop, done

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				r.Report()
			}
		}
	}()
}

func (r *TestSubmissionRegistry) Stop() {
	r.tickerLock.Lock()
	defer r.tickerLock.Unlock()

	r.stopLocked()
}

// stopLocked must be called with tickerLock held.
func (r *TestSubmissionRegistry) stopLocked() {
	if r.stop == nil {
		return
	}
	close(r.stop)
	<-r.done
	r.stop, r.done = nil, nil
}

func sortSubmissionRecords(records []TestSubmissionRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Start.Equal(records[j].Start) {
			return records[i].Start.Before(records[j].Start)
		}
		if records[i].URL != records[j].URL {
			return records[i].URL < records[j].URL
		}
		if records[i].DeviceID != records[j].DeviceID {
			return records[i].DeviceID < records[j].DeviceID
		}
		return records[i].Connectivity < records[j].Connectivity
	})
}
