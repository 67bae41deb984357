package sdkperf

import (
	"encoding/json"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const archiveFileName = "samples.json"

type sampleArchive struct {
	TestRun          int64                    `json:"test_run"`
	Version          string                   `json:"version"`
	NetworkSamples   []NetworkLatencySample   `json:"network_latency"`
	ExecutionSamples []ExecutionLatencySample `json:"execution_latency"`
	SizeSamples      []BinarySizeSample       `json:"binary_size"`
}

// ArchivePath is where the raw samples of a test run are kept under root.
func ArchivePath(root string, testRun int64) string {
	return filepath.Join(root, "runs", strconv.FormatInt(testRun, 10), archiveFileName)
}

// ArchiveSamples keeps the raw samples next to the aggregated records so a
// run can be aggregated again later.
func ArchiveSamples(fs afero.Fs, root string, m *Measurements) (string, error) {
	target := ArchivePath(root, m.TestRun)
	if err := fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", &FileAccessError{Path: filepath.Dir(target), Err: err}
	}

	content, err := json.MarshalIndent(sampleArchive{
		TestRun:          m.TestRun,
		Version:          m.Version,
		NetworkSamples:   m.NetworkSamples,
		ExecutionSamples: m.ExecutionSamples,
		SizeSamples:      m.SizeSamples,
	}, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "could not encode samples")
	}

	if err := afero.WriteFile(fs, target, content, 0o644); err != nil {
		return "", &FileAccessError{Path: target, Err: err}
	}
	logrus.Infof("Raw samples archived at [%s].", target)

	return target, nil
}

// LoadArchivedSamples reads back what ArchiveSamples wrote.
func LoadArchivedSamples(fs afero.Fs, path string) (*Measurements, error) {
	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &FileAccessError{Path: path, Err: err}
	}

	archive := sampleArchive{}
	if err := json.Unmarshal(content, &archive); err != nil {
		return nil, errors.Wrapf(err, "could not decode %s", path)
	}

	return &Measurements{
		TestRun:          archive.TestRun,
		Version:          archive.Version,
		NetworkSamples:   archive.NetworkSamples,
		ExecutionSamples: archive.ExecutionSamples,
		SizeSamples:      archive.SizeSamples,
	}, nil
}
