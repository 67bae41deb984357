package sdkperf

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// BinaryFetcher places a subject's binary at dir/<subject file name>.
type BinaryFetcher interface {
	Download(ctx context.Context, subject Subject, version, dir string) error
}

type SizeTester struct {
	fs      afero.Fs
	fetcher BinaryFetcher
}

func NewSizeTester(fs afero.Fs, fetcher BinaryFetcher) *SizeTester {
	return &SizeTester{
		fs:      fs,
		fetcher: fetcher,
	}
}

// Run measures the stored size of every subject. Unlike latency, any failure
// aborts the whole measurement.
func (t *SizeTester) Run(ctx context.Context, subjects []Subject, version string) ([]BinarySizeSample, error) {
	logrus.Info("Start to measure sdk binary sizes ...")

	dir, err := afero.TempDir(t.fs, "", "sdks-")
	if err != nil {
		return nil, errors.Wrap(err, "could not create working directory")
	}
	defer func() {
		if err := t.fs.RemoveAll(dir); err != nil {
			logrus.WithError(err).Warnf("Could not remove [%s]", dir)
		}
	}()

	downloads, downloadCtx := errgroup.WithContext(ctx)
	for _, subject := range subjects {
		subject := subject
		downloads.Go(func() error {
			return t.fetcher.Download(downloadCtx, subject, version, dir)
		})
	}
	if err := downloads.Wait(); err != nil {
		return nil, err
	}

	samples, err := t.sample(subjects, dir)
	if err != nil {
		return nil, err
	}

	samplesTotal.WithLabelValues(sizeKind).Add(float64(len(samples)))
	logrus.Info("Sdk binary size measurements finished.")
	return samples, nil
}

func (t *SizeTester) sample(subjects []Subject, dir string) ([]BinarySizeSample, error) {
	samples := make([]BinarySizeSample, len(subjects))
	group := &errgroup.Group{}

	for index, subject := range subjects {
		index, subject := index, subject
		group.Go(func() error {
			path := filepath.Join(dir, string(subject))
			info, err := t.fs.Stat(path)
			if err != nil {
				return &FileAccessError{Path: path, Err: err}
			}
			samples[index] = BinarySizeSample{
				MeasurementSample: MeasurementSample{Subject: subject, Metric: Size, Value: float64(info.Size())},
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	return samples, nil
}
