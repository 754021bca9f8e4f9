package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wesm/gerrit-issue-sync/internal/api"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. GERRIT_SYNC_GITHUB_TOKEN
	EnvPrefix = "GERRIT_SYNC"

	// DefaultGerritPort is the Gerrit SSH port
	DefaultGerritPort = 29418

	// DefaultTimezone is used to render comment timestamps
	DefaultTimezone = "America/Chicago"

	// DefaultMaintainers is the team named when an /assign request is declined
	DefaultMaintainers = "@airshipit/airship-cores"
)

// ErrConfiguration is returned when the configuration cannot drive a sync
var ErrConfiguration = errors.New("invalid configuration")

// GerritConfig locates the Gerrit project to read changes from
type GerritConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	User      string `mapstructure:"user"`
	Project   string `mapstructure:"project"`
	ChangeAge string `mapstructure:"change_age"`
}

// GitHubConfig locates the repository and credentials for issue updates
type GitHubConfig struct {
	Repository string `mapstructure:"repository"`
	Token      string `mapstructure:"token"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	BotLogin   string `mapstructure:"bot_login"`
	ProjectID  int64  `mapstructure:"project_id"`
}

// Config represents the application configuration
type Config struct {
	Gerrit        GerritConfig `mapstructure:"gerrit"`
	GitHub        GitHubConfig `mapstructure:"github"`
	SkipApprovals bool         `mapstructure:"skip_approvals"`
	SkipAssign    bool         `mapstructure:"skip_assign"`
	Maintainers   string       `mapstructure:"maintainers"`
	Timezone      string       `mapstructure:"timezone"`
	JournalPath   string       `mapstructure:"journal_path"`
	LogFile       string       `mapstructure:"log_file"`
	LogJSON       bool         `mapstructure:"log_json"`
	LogLevel      string       `mapstructure:"log_level"`
	Verbose       bool         `mapstructure:"verbose"`
}

// keys lists every configuration key
var keys = []string{
	"gerrit.host",
	"gerrit.port",
	"gerrit.user",
	"gerrit.project",
	"gerrit.change_age",
	"github.repository",
	"github.token",
	"github.user",
	"github.password",
	"github.bot_login",
	"github.project_id",
	"skip_approvals",
	"skip_assign",
	"maintainers",
	"timezone",
	"journal_path",
	"log_file",
	"log_json",
	"log_level",
	"verbose",
}

// legacyEnv maps config keys to the environment variables older
// deployments set without the prefix
var legacyEnv = map[string]string{
	"gerrit.host":     "GERRIT_URL",
	"github.user":     "GITHUB_USER",
	"github.password": "GITHUB_PW",
	"github.token":    "GITHUB_TOKEN",
}

// FlagKeys maps command-line flag names to config keys
var FlagKeys = map[string]string{
	"gerrit-url":      "gerrit.host",
	"gerrit-port":     "gerrit.port",
	"gerrit-user":     "gerrit.user",
	"change-age":      "gerrit.change_age",
	"github-user":     "github.user",
	"github-password": "github.password",
	"github-token":    "github.token",
	"bot-login":       "github.bot_login",
	"project-id":      "github.project_id",
	"skip-approvals":  "skip_approvals",
	"skip-assign":     "skip_assign",
	"maintainers":     "maintainers",
	"timezone":        "timezone",
	"journal":         "journal_path",
	"log-file":        "log_file",
	"log-json":        "log_json",
	"log-level":       "log_level",
	"verbose":         "verbose",
}

// Load reads configuration from an optional file, the environment and
// flags, in increasing order of precedence. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("gerrit.port", DefaultGerritPort)
	v.SetDefault("maintainers", DefaultMaintainers)
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("log_level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, key := range keys {
		names := []string{key, EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is complete enough to run a sync
func (c *Config) Validate() error {
	var missing []string
	if c.Gerrit.Host == "" {
		missing = append(missing, "gerrit host")
	}
	if c.Gerrit.Project == "" {
		missing = append(missing, "gerrit project")
	}
	if c.GitHub.Repository == "" {
		missing = append(missing, "github repository")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	if c.GitHub.Token == "" && (c.GitHub.User == "" || c.GitHub.Password == "") {
		return fmt.Errorf("%w: a github token or both a github user and password are required", ErrConfiguration)
	}

	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// Credentials returns the GitHub credentials, preferring a token
func (c *Config) Credentials() api.Credentials {
	if c.GitHub.Token != "" {
		return api.Credentials{Token: c.GitHub.Token}
	}
	return api.Credentials{Username: c.GitHub.User, Password: c.GitHub.Password}
}

// Location loads the timezone comment timestamps are rendered in
func (c *Config) Location() (*time.Location, error) {
	name := c.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}
