package sdkperf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	DefaultReleaseBaseURL = "https://www.gstatic.com/firebasejs"
	releaseNotePath       = "releases.json"
)

// Downloader fetches released subject binaries onto a filesystem.
type Downloader struct {
	fs      afero.Fs
	baseURL string
	client  *http.Client
}

func NewDownloader(fs afero.Fs, baseURL string, retries int) *Downloader {
	return &Downloader{
		fs:      fs,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  newHTTPClient(retries),
	}
}

func (d *Downloader) SubjectURL(subject Subject, version string) string {
	return fmt.Sprintf("%s/%s/%s", d.baseURL, version, subject)
}

// Download stores the subject at dir/<subject file name>.
func (d *Downloader) Download(ctx context.Context, subject Subject, version, dir string) error {
	subjectURL := d.SubjectURL(subject, version)
	logrus.WithField("url", subjectURL).Infof("Downloading %s ...", subject)

	resp, err := d.fetch(ctx, subjectURL)
	if err != nil {
		return errors.Wrapf(err, "could not download %s", subject)
	}
	defer resp.Body.Close()

	target := filepath.Join(dir, string(subject))
	file, err := d.fs.Create(target)
	if err != nil {
		return &FileAccessError{Path: target, Err: err}
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return errors.Wrapf(err, "could not write %s", target)
	}

	return errors.Wrapf(file.Close(), "could not write %s", target)
}

type releaseNote struct {
	Current struct {
		Version string `json:"version"`
	} `json:"current"`
}

// LatestVersion reads the current release from the release note.
func (d *Downloader) LatestVersion(ctx context.Context) (string, error) {
	resp, err := d.fetch(ctx, d.baseURL+"/"+releaseNotePath)
	if err != nil {
		return "", errors.Wrap(err, "could not fetch release note")
	}
	body, err := readHTTPResponse(resp)
	if err != nil {
		return "", errors.Wrap(err, "could not read release note")
	}

	note := releaseNote{}
	if err := json.Unmarshal(body, &note); err != nil {
		return "", errors.Wrap(err, "could not parse release note")
	}
	if note.Current.Version == "" {
		return "", fmt.Errorf("release note names no current version")
	}

	logrus.Infof("Latest version of JavaScript SDK: [%s].", note.Current.Version)
	return note.Current.Version, nil
}

func (d *Downloader) fetch(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected http %d status code from %s", resp.StatusCode, target)
	}

	return resp, nil
}
