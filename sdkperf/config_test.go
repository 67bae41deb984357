package sdkperf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	assert.NilError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")

	assert.NilError(t, err)
	assert.Equal(t, len(config.Subjects), len(Subjects))
	assert.Equal(t, config.ReleaseBaseURL, DefaultReleaseBaseURL)
	assert.Equal(t, config.WebPageTest.Runs, 9)
	assert.Equal(t, config.WebPageTest.StatusInterval, time.Minute)
	assert.DeepEqual(t, config.Official.Devices, officialDevices)
	assert.Equal(t, config.Official.Database, "measurement")
	assert.DeepEqual(t, config.Trial.Devices, []Device{desktopChrome})
	assert.DeepEqual(t, config.Trial.Connectivities, []Connectivity{Cable})
	assert.Equal(t, config.Trial.Database, "test")
	assert.Equal(t, config.SQL.Port, 3306)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfigFile(t, `
subjects: [firebase-app.js, firebase-auth.js]
webPageTest:
  runs: 3
  timeout: 5m
pages:
  baseURL: https://perf.example.com
trial:
  devices:
    - id: Moto G4 - Chrome
      location: Dulles_MotoG4
      browser: Moto G4 - Chrome
  connectivities: [3G, 4G]
`)

	config, err := LoadConfig(path)

	assert.NilError(t, err)
	assert.DeepEqual(t, config.Subjects, []string{"firebase-app.js", "firebase-auth.js"})
	assert.Equal(t, config.WebPageTest.Runs, 3)
	assert.Equal(t, config.WebPageTest.Timeout, 5*time.Minute)
	assert.Equal(t, config.Pages.BaseURL, "https://perf.example.com")
	assert.DeepEqual(t, config.Trial.Devices, []Device{{ID: "Moto G4 - Chrome", Location: "Dulles_MotoG4", Browser: "Moto G4 - Chrome"}})
	assert.DeepEqual(t, config.Trial.Connectivities, []Connectivity{ThreeG, FourG})
	assert.DeepEqual(t, config.Matrix(true), config.Trial)
	assert.DeepEqual(t, config.Matrix(false), config.Official)
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("SDKPERF_WEBPAGETEST_APIKEY", "secret")
	t.Setenv("SDKPERF_SQL_USER", "perf")
	t.Setenv("SDKPERF_WEBPAGETEST_RUNS", "5")

	config, err := LoadConfig("")

	assert.NilError(t, err)
	assert.Equal(t, config.WebPageTest.APIKey, "secret")
	assert.Equal(t, config.SQL.User, "perf")
	assert.Equal(t, config.WebPageTest.Runs, 5)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, "subjects: [firebase-ml.js]\n"))
	assert.ErrorContains(t, err, "firebase-ml.js")

	_, err = LoadConfig(writeConfigFile(t, "webPageTest:\n  runs: 0\n"))
	assert.ErrorContains(t, err, "runs must be positive")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "could not read config")
}
