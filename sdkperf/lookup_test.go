package sdkperf

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestLookupSubject(t *testing.T) {
	subject, ok := LookupSubject("firebase-firestore.js")
	assert.Assert(t, ok)
	assert.Equal(t, subject, Firestore)

	for _, name := range []string{"", "firebase-firestore", "FIREBASE-APP.JS", "firebase-app.js?v=1", "/firebase-app.js"} {
		_, ok := LookupSubject(name)
		assert.Assert(t, !ok, name)
	}
}

func TestLookupMetric(t *testing.T) {
	for _, metric := range Metrics {
		found, ok := LookupMetric(string(metric))
		assert.Assert(t, ok)
		assert.Equal(t, found, metric)
	}

	_, ok := LookupMetric("ttfb")
	assert.Assert(t, !ok)
}

func TestParseSubjects(t *testing.T) {
	subjects, err := ParseSubjects([]string{"firebase-app.js", "firebase-auth.js"})
	assert.NilError(t, err)
	assert.DeepEqual(t, subjects, []Subject{App, Auth})

	_, err = ParseSubjects([]string{"firebase-app.js", "firebase-ml.js"})
	assert.ErrorContains(t, err, "firebase-ml.js")
}

func TestSubjectFromURL(t *testing.T) {
	subject, ok := subjectFromURL("https://www.gstatic.com/firebasejs/7.0.0/firebase-app.js")
	assert.Assert(t, ok)
	assert.Equal(t, subject, App)

	subject, ok = subjectFromURL("firebase-storage.js")
	assert.Assert(t, ok)
	assert.Equal(t, subject, Storage)

	_, ok = subjectFromURL("https://example.com/unrelated.js")
	assert.Assert(t, !ok)
}

func TestMeasureName(t *testing.T) {
	name := MeasureName(Auth, Parse)
	assert.Equal(t, name, "firebase-auth.js___parse_ms")

	subject, metric, ok := parseMeasureName(name)
	assert.Assert(t, ok)
	assert.Equal(t, subject, Auth)
	assert.Equal(t, metric, Parse)

	subject, metric, ok = parseMeasureName("firebase-auth.js___exec_ms___1")
	assert.Assert(t, ok)
	assert.Equal(t, subject, Auth)
	assert.Equal(t, metric, Execute)

	for _, name := range []string{"garbage___parse_ms", "firebase-auth.js___bogus", "firebase-auth.js_parse", "firebase-auth.js_start"} {
		_, _, ok := parseMeasureName(name)
		assert.Assert(t, !ok, name)
	}
}
