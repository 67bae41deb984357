package sdkperf

import (
	"bytes"
	"context"
	"html/template"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	texttemplate "text/template"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	fastlyCdnPrefix = "/__/firebase"
	googleCdnPrefix = DefaultReleaseBaseURL

	fastlyCdnPage   = "fastly-cdn.html"
	googleCdnPage   = "google-cdn.html"
	instrumentPage  = "index.html"
	scriptsDir      = "scripts"
	originalDir     = "original"
	hostingConfig   = "firebase.json"
	defaultHostJSON = `{"hosting":{"public":".","ignore":["firebase.json","scripts/original/**"]}}`
)

var testPageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head>{{range .}}<script src="{{.}}"></script>{{end}}</head><body></body></html>
`))

var instrumentTemplate = texttemplate.Must(texttemplate.New("instrument").Funcs(texttemplate.FuncMap{
	"js": texttemplate.JSEscapeString,
}).Parse(`(function() {
  performance.mark('{{js .Name}}_start');
  const func = new Function('{{js .Script}}');
  performance.mark('{{js .Name}}_parse');
  func();
  performance.mark('{{js .Name}}_exec');
  performance.measure('{{js .ParseMeasure}}', '{{js .Name}}_start', '{{js .Name}}_parse');
  performance.measure('{{js .ExecMeasure}}', '{{js .Name}}_parse', '{{js .Name}}_exec');

  console.log(performance.getEntriesByType('measure'));
})();
`))

// HostingDeployer builds the three test pages in a staging directory and
// publishes them with an external deploy command run from that directory.
type HostingDeployer struct {
	fs            afero.Fs
	fetcher       BinaryFetcher
	deployCommand string
}

func NewHostingDeployer(fs afero.Fs, fetcher BinaryFetcher, deployCommand string) *HostingDeployer {
	return &HostingDeployer{
		fs:            fs,
		fetcher:       fetcher,
		deployCommand: deployCommand,
	}
}

func (d *HostingDeployer) DeployPages(ctx context.Context, subjects []Subject, version string) ([]NetworkLatencyPage, []ExecutionLatencyPage, error) {
	dir, err := afero.TempDir(d.fs, "", "test-pages-")
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not create staging directory")
	}
	logrus.Infof("Temp directory created at [%s].", dir)

	networkPages, executionPages, err := d.BuildPages(ctx, subjects, version, dir)
	if err != nil {
		return nil, nil, err
	}
	if err := d.deploy(ctx, dir); err != nil {
		return nil, nil, err
	}
	if d.deployed() {
		if err := d.fs.RemoveAll(dir); err != nil {
			logrus.WithError(err).Warnf("Could not remove [%s]", dir)
		}
	}

	return networkPages, executionPages, nil
}

// BuildPages writes the CDN pages and the instrumented page into dir.
func (d *HostingDeployer) BuildPages(ctx context.Context, subjects []Subject, version, dir string) ([]NetworkLatencyPage, []ExecutionLatencyPage, error) {
	if err := d.instrumentSubjects(ctx, subjects, version, filepath.Join(dir, scriptsDir)); err != nil {
		return nil, nil, err
	}

	fastlyScripts := []string{}
	googleScripts := []string{}
	localScripts := []string{}
	for _, subject := range subjects {
		fastlyScripts = append(fastlyScripts, path.Join(fastlyCdnPrefix, version, string(subject)))
		googleScripts = append(googleScripts, googleCdnPrefix+"/"+version+"/"+string(subject))
		localScripts = append(localScripts, path.Join(scriptsDir, string(subject)))
	}

	for name, scripts := range map[string][]string{
		fastlyCdnPage:  fastlyScripts,
		googleCdnPage:  googleScripts,
		instrumentPage: localScripts,
	} {
		if err := d.writePage(filepath.Join(dir, name), scripts); err != nil {
			return nil, nil, err
		}
	}

	if err := afero.WriteFile(d.fs, filepath.Join(dir, hostingConfig), []byte(defaultHostJSON), 0o644); err != nil {
		return nil, nil, &FileAccessError{Path: filepath.Join(dir, hostingConfig), Err: err}
	}

	networkPages := []NetworkLatencyPage{
		{Path: fastlyCdnPage, Cdn: Fastly},
		{Path: googleCdnPage, Cdn: Google},
	}
	executionPages := []ExecutionLatencyPage{
		{Path: instrumentPage},
	}

	return networkPages, executionPages, nil
}

func (d *HostingDeployer) instrumentSubjects(ctx context.Context, subjects []Subject, version, dir string) error {
	sourceDir := filepath.Join(dir, originalDir)
	if err := d.fs.MkdirAll(sourceDir, 0o755); err != nil {
		return &FileAccessError{Path: sourceDir, Err: err}
	}

	downloads, downloadCtx := errgroup.WithContext(ctx)
	for _, subject := range subjects {
		subject := subject
		downloads.Go(func() error {
			return d.fetcher.Download(downloadCtx, subject, version, sourceDir)
		})
	}
	if err := downloads.Wait(); err != nil {
		return err
	}

	instruments := &errgroup.Group{}
	for _, subject := range subjects {
		subject := subject
		instruments.Go(func() error {
			return d.Instrument(filepath.Join(sourceDir, string(subject)), filepath.Join(dir, string(subject)))
		})
	}

	return instruments.Wait()
}

// Instrument wraps the script at source so that loading target records the
// parse and execute durations as user timing measures named after the file.
func (d *HostingDeployer) Instrument(source, target string) error {
	logrus.Infof("Instrumenting sdk [%s] to [%s] ...", source, target)

	script, err := afero.ReadFile(d.fs, source)
	if err != nil {
		return &FileAccessError{Path: source, Err: err}
	}

	name := filepath.Base(source)
	content := &bytes.Buffer{}
	err = instrumentTemplate.Execute(content, map[string]string{
		"Name":         name,
		"Script":       string(script),
		"ParseMeasure": MeasureName(Subject(name), Parse),
		"ExecMeasure":  MeasureName(Subject(name), Execute),
	})
	if err != nil {
		return errors.Wrapf(err, "could not instrument %s", source)
	}

	if err := afero.WriteFile(d.fs, target, content.Bytes(), 0o644); err != nil {
		return &FileAccessError{Path: target, Err: err}
	}
	return nil
}

func (d *HostingDeployer) writePage(target string, scripts []string) error {
	logrus.Infof("Creating test page [%s] ...", target)

	content := &bytes.Buffer{}
	if err := testPageTemplate.Execute(content, scripts); err != nil {
		return errors.Wrapf(err, "could not render %s", target)
	}
	if err := afero.WriteFile(d.fs, target, content.Bytes(), 0o644); err != nil {
		return &FileAccessError{Path: target, Err: err}
	}
	return nil
}

// deployed reports whether pages are published elsewhere, leaving the staging
// directory disposable.
func (d *HostingDeployer) deployed() bool {
	return strings.TrimSpace(d.deployCommand) != ""
}

func (d *HostingDeployer) deploy(ctx context.Context, dir string) error {
	if !d.deployed() {
		logrus.Warn("No deploy command configured, assuming pages are served from the staging directory")
		return nil
	}

	logrus.WithField("dir", dir).Infof("Deploying pages with [%s] ...", d.deployCommand)
	cmd := exec.CommandContext(ctx, "sh", "-c", d.deployCommand)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "deploy command failed: %s", strings.TrimSpace(string(output)))
	}
	logrus.Debug(string(output))

	return nil
}
