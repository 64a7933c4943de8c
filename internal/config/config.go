// Package config loads defaults for rip-stream from an optional YAML file and RIPSTREAM_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	rip_stream "github.com/alanbriolat/rip-stream"
)

const (
	AppName   = "rip-stream"
	EnvPrefix = "RIPSTREAM"
)

type Config struct {
	OutputDir        string            `mapstructure:"output_dir" yaml:"output_dir"`
	Concurrency      int               `mapstructure:"concurrency" yaml:"concurrency"`
	Retries          int               `mapstructure:"retries" yaml:"retries"`
	RetryDelay       time.Duration     `mapstructure:"retry_delay" yaml:"retry_delay"`
	Timeout          time.Duration     `mapstructure:"timeout" yaml:"timeout"`
	UserAgent        string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers          map[string]string `mapstructure:"headers" yaml:"headers"`
	Container        string            `mapstructure:"container" yaml:"container"`
	Codec            string            `mapstructure:"codec" yaml:"codec"`
	Format           string            `mapstructure:"format" yaml:"format"`
	FFmpeg           string            `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	KeepIntermediate bool              `mapstructure:"keep_intermediate" yaml:"keep_intermediate"`
	Cleanup          bool              `mapstructure:"cleanup" yaml:"cleanup"`
	Resume           bool              `mapstructure:"resume" yaml:"resume"`
	Notify           NotifyConfig      `mapstructure:"notify" yaml:"notify"`
	StateDB          string            `mapstructure:"state_db" yaml:"state_db"`
	Log              LogConfig         `mapstructure:"log" yaml:"log"`
}

type NotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Priority int    `mapstructure:"priority" yaml:"priority"`
	Pushover string `mapstructure:"pushover" yaml:"pushover"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultStateDBPath is the session database under the user's config directory.
func DefaultStateDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, AppName, "state.db")
}

func setDefaults(v *viper.Viper) {
	d := rip_stream.DefaultConfig
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("retries", d.Retries)
	v.SetDefault("retry_delay", d.RetryDelay)
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("user_agent", "")
	v.SetDefault("headers", map[string]string{})
	v.SetDefault("container", d.Container)
	v.SetDefault("codec", rip_stream.DefaultCodec)
	v.SetDefault("format", "")
	v.SetDefault("ffmpeg", "ffmpeg")
	v.SetDefault("keep_intermediate", false)
	v.SetDefault("cleanup", false)
	v.SetDefault("resume", d.Resume)
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.priority", 0)
	v.SetDefault("notify.pushover", "")
	v.SetDefault("state_db", DefaultStateDBPath())
	v.SetDefault("log.level", "info")
}

// Load reads path (if not empty) over the defaults, then applies environment variables such as RIPSTREAM_OUTPUT_DIR
// or RIPSTREAM_NOTIFY_PRIORITY.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var result *multierror.Error
	if c.Notify.Priority < -2 || c.Notify.Priority > 2 {
		result = multierror.Append(result, fmt.Errorf("notify.priority must be between -2 and 2, got %d", c.Notify.Priority))
	}
	if c.Concurrency < 0 {
		result = multierror.Append(result, fmt.Errorf("concurrency must not be negative"))
	}
	if c.Concurrency == 0 {
		c.Concurrency = 1
	}
	if c.Container != "" && !strings.HasPrefix(c.Container, ".") {
		c.Container = "." + c.Container
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return result.ErrorOrNil()
}

// Session builds the session configuration from these defaults; the caller fills in the per-video fields.
func (c *Config) Session() rip_stream.Config {
	s := rip_stream.DefaultConfig
	s.OutputDir = c.OutputDir
	s.Concurrency = c.Concurrency
	s.Retries = c.Retries
	s.RetryDelay = c.RetryDelay
	s.Container = c.Container
	s.KeepIntermediate = c.KeepIntermediate
	s.Cleanup = c.Cleanup
	s.Resume = c.Resume
	return s
}
