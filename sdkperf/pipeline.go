package sdkperf

import (
	"context"
	"database/sql"
	"log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Measurements is everything one test run produced, raw and aggregated.
type Measurements struct {
	TestRun int64
	Version string

	NetworkSamples   []NetworkLatencySample
	ExecutionSamples []ExecutionLatencySample
	SizeSamples      []BinarySizeSample

	NetworkLatencies   []NetworkLatencyRecord
	ExecutionLatencies []ExecutionLatencyRecord
	BinarySizes        []BinarySizeRecord
}

// Aggregate fills the records from the raw samples.
func (m *Measurements) Aggregate() {
	aggregator := NewResultsAggregator(m.TestRun, m.Version)
	m.NetworkLatencies = aggregator.NetworkLatencies(m.NetworkSamples)
	m.ExecutionLatencies = aggregator.ExecutionLatencies(m.ExecutionSamples)
	m.BinarySizes = aggregator.BinarySizes(m.SizeSamples)
}

type RunOptions struct {
	TestRun int64
	Version string
	Trial   bool
	DryRun  bool
}

// Pipeline wires the testers, the aggregator and the sinks for one run.
type Pipeline struct {
	config     *Config
	fs         afero.Fs
	downloader *Downloader
	latency    *LatencyTester
	size       *SizeTester
	printer    *log.Logger
	openDB     func(DatabaseConfig) (*sql.DB, error)
}

func NewPipeline(config *Config, fs afero.Fs, printer *log.Logger) *Pipeline {
	downloader := NewDownloader(fs, config.ReleaseBaseURL, config.DownloadRetries)
	service := NewWebPageTest(config.WebPageTest.Server, config.WebPageTest.APIKey, config.WebPageTest.PollInterval, config.WebPageTest.PollRetries)
	client := NewRemoteTestClient(service, NewTestSubmissionRegistry(nil), TestOptions{
		Runs:          config.WebPageTest.Runs,
		Timeout:       config.WebPageTest.Timeout,
		FirstViewOnly: true,
	})
	deployer := NewHostingDeployer(fs, downloader, config.Pages.DeployCommand)

	return &Pipeline{
		config:     config,
		fs:         fs,
		downloader: downloader,
		latency:    NewLatencyTester(client, deployer, config.Pages.BaseURL, config.WebPageTest.StatusInterval),
		size:       NewSizeTester(fs, downloader),
		printer:    printer,
		openDB:     OpenDatabase,
	}
}

// ResolveVersion returns the requested version, or the latest release when
// none was requested.
func (p *Pipeline) ResolveVersion(ctx context.Context, requested string) (string, error) {
	latest, err := p.downloader.LatestVersion(ctx)
	if err != nil {
		if requested != "" {
			logrus.WithError(err).Warn("Could not look up the latest version")
			return requested, nil
		}
		return "", err
	}

	version := requested
	if version == "" {
		version = latest
	}
	logrus.Infof("Latest version: [%s], testing: [%s].", latest, version)
	return version, nil
}

// Measure runs the latency and the size testers side by side and aggregates
// their samples.
func (p *Pipeline) Measure(ctx context.Context, subjects []Subject, version string, testRun int64, matrix MatrixConfig) (*Measurements, error) {
	m := &Measurements{TestRun: testRun, Version: version}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		m.NetworkSamples, m.ExecutionSamples, err = p.latency.Run(groupCtx, subjects, version, matrix.Devices, matrix.Connectivities)
		return err
	})
	group.Go(func() error {
		var err error
		m.SizeSamples, err = p.size.Run(groupCtx, subjects, version)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	m.Aggregate()
	return m, nil
}

func (p *Pipeline) inserter(ctx context.Context, options RunOptions, database string) (Inserter, func(), error) {
	if options.DryRun {
		return NewDryRunInserter(p.printer.Writer()), func() {}, nil
	}

	db, err := p.openDB(p.config.SQL)
	if err != nil {
		return nil, nil, err
	}
	if err := CreateTablesIfAbsent(ctx, db, database); err != nil {
		db.Close()
		return nil, nil, err
	}

	return NewSQLInserter(db, database), func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Could not close database")
		}
	}, nil
}

func (p *Pipeline) store(ctx context.Context, options RunOptions, database string, m *Measurements) error {
	inserter, closeInserter, err := p.inserter(ctx, options, database)
	if err != nil {
		return err
	}
	defer closeInserter()

	if err := NewUploader(inserter).UploadMeasurements(ctx, m.NetworkLatencies, m.ExecutionLatencies, m.BinarySizes); err != nil {
		return errors.Wrap(err, "could not upload measurements")
	}
	return nil
}

// Reaggregate rebuilds the records of an archived test run from its raw
// samples and stores them again. The archived test run and version win over
// the ones in options.
func (p *Pipeline) Reaggregate(ctx context.Context, archivePath string, options RunOptions) error {
	m, err := LoadArchivedSamples(p.fs, archivePath)
	if err != nil {
		return err
	}
	logrus.Infof("Re-aggregating TestRun [%d], version [%s] from [%s].", m.TestRun, m.Version, archivePath)

	m.Aggregate()
	if options.Trial {
		PrintMeasurements(p.printer, m)
	}

	return p.store(ctx, options, p.config.Matrix(options.Trial).Database, m)
}

func (p *Pipeline) Run(ctx context.Context, options RunOptions) error {
	subjects, err := ParseSubjects(p.config.Subjects)
	if err != nil {
		return err
	}

	version, err := p.ResolveVersion(ctx, options.Version)
	if err != nil {
		return errors.Wrap(err, "could not resolve version")
	}

	matrix := p.config.Matrix(options.Trial)
	logrus.Info("Startup Latency and Binary Size Test started ...")
	logrus.Infof("TestRun [%d], version [%s], trial? [%t].", options.TestRun, version, options.Trial)

	m, err := p.Measure(ctx, subjects, version, options.TestRun, matrix)
	if err != nil {
		return err
	}

	if options.Trial {
		PrintMeasurements(p.printer, m)
	}

	if p.config.ArchiveDir != "" {
		if _, err := ArchiveSamples(p.fs, p.config.ArchiveDir, m); err != nil {
			logrus.WithError(err).Warn("Could not archive raw samples")
		}
	}

	if err := p.store(ctx, options, matrix.Database, m); err != nil {
		return err
	}

	if p.config.PushGateway != "" {
		if err := PushMetrics(p.config.PushGateway, options.TestRun); err != nil {
			logrus.WithError(err).Warn("Could not push metrics")
		}
	}

	logrus.Info("Startup Latency and Binary Size Test finished.")
	return nil
}
