package sdkperf

import (
	"fmt"
	"strings"
)

const measureNameDelimiter = "___"

var (
	subjectsByName = map[string]Subject{}
	metricsByName  = map[string]Metric{}
)

func init() {
	for _, subject := range Subjects {
		subjectsByName[string(subject)] = subject
	}
	for _, metric := range Metrics {
		metricsByName[string(metric)] = metric
	}
}

// LookupSubject resolves an exact subject file name. Anything else, including
// a path or a query-suffixed name, is not a subject.
func LookupSubject(name string) (Subject, bool) {
	subject, ok := subjectsByName[name]
	return subject, ok
}

func LookupMetric(name string) (Metric, bool) {
	metric, ok := metricsByName[name]
	return metric, ok
}

// ParseSubjects resolves a list of subject names, failing on the first unknown one.
func ParseSubjects(names []string) ([]Subject, error) {
	ret := []Subject{}

	for _, name := range names {
		subject, ok := LookupSubject(name)
		if !ok {
			return nil, fmt.Errorf("unknown subject %q", name)
		}
		ret = append(ret, subject)
	}

	return ret, nil
}

func subjectFromURL(url string) (Subject, bool) {
	return LookupSubject(url[strings.LastIndex(url, "/")+1:])
}

// MeasureName is the user timing measure name the instrumented script emits.
func MeasureName(subject Subject, metric Metric) string {
	return string(subject) + measureNameDelimiter + string(metric)
}

func parseMeasureName(name string) (Subject, Metric, bool) {
	// trailing fields are ignored
	fields := strings.Split(name, measureNameDelimiter)
	if len(fields) < 2 {
		return "", "", false
	}
	fileName, metricName := fields[0], fields[1]

	subject, ok := LookupSubject(fileName)
	if !ok {
		return "", "", false
	}
	metric, ok := LookupMetric(metricName)
	if !ok {
		return "", "", false
	}

	return subject, metric, true
}
