package sdkperf

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envPrefix = "SDKPERF"

type WebPageTestConfig struct {
	Server         string        `mapstructure:"server"`
	APIKey         string        `mapstructure:"apiKey"`
	Runs           int           `mapstructure:"runs"`
	Timeout        time.Duration `mapstructure:"timeout"`
	PollInterval   time.Duration `mapstructure:"pollInterval"`
	PollRetries    int           `mapstructure:"pollRetries"`
	StatusInterval time.Duration `mapstructure:"statusInterval"`
}

type PagesConfig struct {
	BaseURL       string `mapstructure:"baseURL"`
	DeployCommand string `mapstructure:"deployCommand"`
}

// MatrixConfig is one set of devices and connectivity profiles to sweep.
type MatrixConfig struct {
	Devices        []Device       `mapstructure:"devices"`
	Connectivities []Connectivity `mapstructure:"connectivities"`
	Database       string         `mapstructure:"database"`
}

type Config struct {
	Subjects        []string          `mapstructure:"subjects"`
	ReleaseBaseURL  string            `mapstructure:"releaseBaseURL"`
	DownloadRetries int               `mapstructure:"downloadRetries"`
	WebPageTest     WebPageTestConfig `mapstructure:"webPageTest"`
	Pages           PagesConfig       `mapstructure:"pages"`
	Official        MatrixConfig      `mapstructure:"official"`
	Trial           MatrixConfig      `mapstructure:"trial"`
	SQL             DatabaseConfig    `mapstructure:"sql"`
	ArchiveDir      string            `mapstructure:"archiveDir"`
	PushGateway     string            `mapstructure:"pushGateway"`
}

var desktopChrome = Device{ID: "Desktop - Chrome", Location: "Dulles", Browser: "Chrome"}

var officialDevices = []Device{
	desktopChrome,
	{ID: "Desktop - Firefox", Location: "Dulles", Browser: "Firefox"},
	{ID: "Desktop - Edge", Location: "Dulles_Edge", Browser: "Microsoft Edge"},
	{ID: "Desktop - IE11", Location: "Dulles_IE11", Browser: "IE 11"},
	{ID: "Moto G4 - Chrome", Location: "Dulles_MotoG4", Browser: "Moto G4 - Chrome"},
	{ID: "Moto G - Chrome", Location: "Dulles_MotoG", Browser: "Moto G - Chrome"},
	{ID: "Nexus 5 - Chrome", Location: "Dulles_Nexus5", Browser: "Nexus 5 - Chrome"},
	{ID: "iPhone6 - Safari", Location: "Dulles_iPhone6", Browser: "iPhone 6 iOS 12"},
	{ID: "Galaxy S7 - Chrome", Location: "Dulles_GalaxyS7", Browser: "Galaxy S7 - Chrome"},
}

func devicesToMaps(devices []Device) []map[string]interface{} {
	ret := []map[string]interface{}{}
	for _, device := range devices {
		ret = append(ret, map[string]interface{}{
			"id":       device.ID,
			"location": device.Location,
			"browser":  device.Browser,
		})
	}
	return ret
}

func setDefaults(v *viper.Viper) {
	subjects := []string{}
	for _, subject := range Subjects {
		subjects = append(subjects, string(subject))
	}
	v.SetDefault("subjects", subjects)
	v.SetDefault("releaseBaseURL", DefaultReleaseBaseURL)
	v.SetDefault("downloadRetries", 3)

	v.SetDefault("webPageTest.server", "https://www.webpagetest.org")
	v.SetDefault("webPageTest.runs", 9)
	v.SetDefault("webPageTest.timeout", 30*time.Minute)
	v.SetDefault("webPageTest.pollInterval", 10*time.Second)
	v.SetDefault("webPageTest.pollRetries", 3)
	v.SetDefault("webPageTest.statusInterval", time.Minute)

	v.SetDefault("official.devices", devicesToMaps(officialDevices))
	v.SetDefault("official.connectivities", []string{string(Cable), string(DSL), string(ThreeGFast), string(ThreeG), string(FourG), string(LTE)})
	v.SetDefault("official.database", "measurement")
	v.SetDefault("trial.devices", devicesToMaps([]Device{desktopChrome}))
	v.SetDefault("trial.connectivities", []string{string(Cable)})
	v.SetDefault("trial.database", "test")

	v.SetDefault("sql.host", "127.0.0.1")
	v.SetDefault("sql.port", 3306)
}

// LoadConfig reads defaults, then the optional file at path, then SDKPERF_
// prefixed environment variables (SDKPERF_WEBPAGETEST_APIKEY and so on).
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "could not bind %s", key)
		}
	}
	for _, key := range []string{"webPageTest.apiKey", "pages.baseURL", "pages.deployCommand", "sql.user", "sql.password", "archiveDir", "pushGateway"} {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "could not bind %s", key)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "could not read config %s", path)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "could not decode config")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if _, err := ParseSubjects(c.Subjects); err != nil {
		return err
	}
	if c.WebPageTest.Runs <= 0 {
		return fmt.Errorf("webPageTest.runs must be positive, got %d", c.WebPageTest.Runs)
	}
	for _, matrix := range []MatrixConfig{c.Official, c.Trial} {
		if len(matrix.Devices) == 0 {
			return fmt.Errorf("at least one device is required")
		}
		if len(matrix.Connectivities) == 0 {
			return fmt.Errorf("at least one connectivity is required")
		}
	}
	return nil
}

// Matrix picks the trial or the official sweep.
func (c *Config) Matrix(trial bool) MatrixConfig {
	if trial {
		return c.Trial
	}
	return c.Official
}
