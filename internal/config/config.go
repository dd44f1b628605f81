package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/railisac/reporting/internal/faults"
)

// MISP describes one threat-intel instance. The secondary instance uses
// the same shape and is simply skipped when URL or APIKey is empty.
type MISP struct {
	URL          string        `mapstructure:"url" yaml:"url"`
	APIKey       string        `mapstructure:"api_key" yaml:"api_key"`
	VerifySSL    bool          `mapstructure:"verify_ssl" yaml:"verify_ssl"`
	Org          string        `mapstructure:"org" yaml:"org"`
	Label        string        `mapstructure:"label" yaml:"label"`
	CategoryTags []string      `mapstructure:"category_tags" yaml:"category_tags"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Enabled reports whether the instance is configured at all.
func (m MISP) Enabled() bool { return m.URL != "" && m.APIKey != "" }

// Channel maps a human label to a Mattermost channel id.
type Channel struct {
	ID    string `mapstructure:"id" yaml:"id"`
	Label string `mapstructure:"label" yaml:"label"`
}

type Mattermost struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	Token            string        `mapstructure:"token" yaml:"token"`
	VerifySSL        bool          `mapstructure:"verify_ssl" yaml:"verify_ssl"`
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WorklogChannel   Channel       `mapstructure:"worklog_channel" yaml:"worklog_channel"`
	ActivityChannels []Channel     `mapstructure:"activity_channels" yaml:"activity_channels"`
	ReportChannels   []Channel     `mapstructure:"report_channels" yaml:"report_channels"`
}

func (m Mattermost) Enabled() bool { return m.URL != "" && m.Token != "" }

type Dashboard struct {
	Title      string `mapstructure:"title" yaml:"title"`
	TLP        string `mapstructure:"tlp" yaml:"tlp"`
	Days       int    `mapstructure:"days" yaml:"days"`
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`
	OutputFile string `mapstructure:"output_file" yaml:"output_file"`
}

type Metrics struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
	Job            string `mapstructure:"job" yaml:"job"`
}

// Config is immutable after Load; the file contains credentials and must
// never be logged raw (use Redacted for the debug dump).
type Config struct {
	MISP       MISP       `mapstructure:"misp" yaml:"misp"`
	Secondary  MISP       `mapstructure:"secondary_misp" yaml:"secondary_misp"`
	Mattermost Mattermost `mapstructure:"mattermost" yaml:"mattermost"`
	Dashboard  Dashboard  `mapstructure:"dashboard" yaml:"dashboard"`
	Metrics    Metrics    `mapstructure:"metrics" yaml:"metrics"`
}

// Load reads the JSON config at path. Values can be overridden through the
// environment, e.g. RAILREPORT_MISP_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix("RAILREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about; the
	// credentials must work env-only, so bind them explicitly.
	v.MustBindEnv("misp.api_key")
	v.MustBindEnv("secondary_misp.api_key")
	v.MustBindEnv("mattermost.token")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, faults.E(faults.KindConfig, errors.Wrap(err, "read config"))
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, faults.E(faults.KindConfig, errors.Wrap(err, "parse config"))
	}
	if err := c.validate(); err != nil {
		return nil, faults.E(faults.KindConfig, err)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("misp.verify_ssl", true)
	v.SetDefault("misp.label", "misp")
	v.SetDefault("misp.timeout", time.Minute)
	v.SetDefault("secondary_misp.verify_ssl", true)
	v.SetDefault("secondary_misp.label", "misp-secondary")
	v.SetDefault("secondary_misp.timeout", time.Minute)
	v.SetDefault("mattermost.verify_ssl", true)
	v.SetDefault("mattermost.timeout", time.Minute)
	v.SetDefault("dashboard.title", "MISP Information published by Rail ISAC")
	v.SetDefault("dashboard.days", 30)
	v.SetDefault("dashboard.output_dir", "/var/www/reporting")
	v.SetDefault("dashboard.output_file", "misp_dashboard_last30d.pdf")
	v.SetDefault("metrics.job", "railreport")
}

func (c *Config) validate() error {
	if !c.MISP.Enabled() {
		return errors.New("misp.url and misp.api_key are required")
	}
	if c.Dashboard.OutputFile == "" {
		return errors.New("dashboard.output_file is required")
	}
	if c.Dashboard.Days < 1 {
		return errors.New("dashboard.days must be >= 1")
	}
	return nil
}

const mask = "********"

// Redacted returns a copy safe for logging: every credential is masked,
// everything else is untouched.
func (c Config) Redacted() Config {
	out := c
	if out.MISP.APIKey != "" {
		out.MISP.APIKey = mask
	}
	if out.Secondary.APIKey != "" {
		out.Secondary.APIKey = mask
	}
	if out.Mattermost.Token != "" {
		out.Mattermost.Token = mask
	}
	return out
}

// DumpYAML renders the redacted config for the -debug dump.
func (c Config) DumpYAML() string {
	b, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return ""
	}
	return string(b)
}
