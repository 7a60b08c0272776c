// Package config resolves settings from defaults, an optional config file,
// a .env file, the environment and command-line flags, in rising priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix       = "SLACKARCHIVE"
	DefaultOutput   = "slack_data.json"
	DefaultPageSize = 200
	maxPageSize     = 1000
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Token             string        `mapstructure:"token"`
	BaseURL           string        `mapstructure:"base_url"`
	PageSize          int           `mapstructure:"page_size"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`

	Input      string   `mapstructure:"input"`
	Output     string   `mapstructure:"output"`
	All        bool     `mapstructure:"all"`
	Channels   []string `mapstructure:"channels"`
	EmojiTable string   `mapstructure:"emoji_table"`

	Schedule    string  `mapstructure:"schedule"`
	Jitter      float64 `mapstructure:"jitter"`
	MetricsFile string  `mapstructure:"metrics_file"`

	RenderDir string `mapstructure:"render_dir"`
	Title     string `mapstructure:"title"`

	Log LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"token":               "token",
	"base-url":            "base_url",
	"page-size":           "page_size",
	"requests-per-minute": "requests_per_minute",
	"input":               "input",
	"output":              "output",
	"all":                 "all",
	"channel":             "channels",
	"emoji-table":         "emoji_table",
	"schedule":            "schedule",
	"jitter":              "jitter",
	"metrics-file":        "metrics_file",
	"out":                 "render_dir",
	"title":               "title",
	"log-level":           "log.level",
	"log-format":          "log.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("token", "")
	v.SetDefault("base_url", "https://slack.com/api")
	v.SetDefault("page_size", DefaultPageSize)
	v.SetDefault("requests_per_minute", 0)
	v.SetDefault("http_timeout", 30*time.Second)
	v.SetDefault("input", "")
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("all", false)
	v.SetDefault("channels", []string{})
	v.SetDefault("emoji_table", "")
	v.SetDefault("schedule", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("render_dir", "site")
	v.SetDefault("title", "Workspace archive")
	v.SetDefault("jitter", 0.0)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "console")
}

// Load builds the configuration. path may be empty; flags may be nil. Only
// flags the user actually set override lower layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("token", EnvPrefix+"_TOKEN", "SLACK_BOT_TOKEN"); err != nil {
		return nil, err
	}

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Token = strings.TrimSpace(c.Token)
	c.Input = strings.TrimSpace(c.Input)
	c.Output = strings.TrimSpace(c.Output)
	if c.Input == "" {
		c.Input = c.Output
	}
	channels := c.Channels[:0]
	for _, raw := range c.Channels {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				channels = append(channels, name)
			}
		}
	}
	c.Channels = channels
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	var problems []string
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		problems = append(problems, fmt.Sprintf("page_size must be between 1 and %d", maxPageSize))
	}
	if c.RequestsPerMinute < 0 {
		problems = append(problems, "requests_per_minute must not be negative")
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		problems = append(problems, "jitter must be between 0 and 1")
	}
	if c.Schedule != "" && !gronx.IsValid(c.Schedule) {
		problems = append(problems, fmt.Sprintf("schedule %q is not a valid cron expression", c.Schedule))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("log format %q must be console or json", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ValidateRemote additionally requires a credential.
func (c *Config) ValidateRemote() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Token == "" {
		return fmt.Errorf("%w: a token is required (--token, %s_TOKEN or SLACK_BOT_TOKEN)", ErrInvalidConfig, EnvPrefix)
	}
	return nil
}

// ValidateSync additionally requires a channel selection and an output.
func (c *Config) ValidateSync() error {
	if err := c.ValidateRemote(); err != nil {
		return err
	}
	if !c.All && len(c.Channels) == 0 {
		return fmt.Errorf("%w: pass --all or at least one --channel", ErrInvalidConfig)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: an output archive is required", ErrInvalidConfig)
	}
	return nil
}
