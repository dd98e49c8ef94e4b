// Package config loads fieldsync settings from the user's config file,
// environment, and defaults, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// Remote data API.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key"`

	// Blob store for photo binaries.
	Blob BlobConfig `mapstructure:"blob" yaml:"blob"`

	// DataDir holds the mirror database and session file.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// StagingDir is watched for photo files dropped by capture tools.
	StagingDir string `mapstructure:"staging_dir" yaml:"staging_dir"`

	Daemon DaemonConfig `mapstructure:"daemon" yaml:"daemon"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

// BlobConfig holds object-store connection settings.
type BlobConfig struct {
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey     string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey     string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket        string `mapstructure:"bucket" yaml:"bucket"`
	UseSSL        bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url"`
}

// DaemonConfig tunes the background sync daemon.
type DaemonConfig struct {
	// ProbeIntervalSecs is how often reachability is probed.
	ProbeIntervalSecs int `mapstructure:"probe_interval_secs" yaml:"probe_interval_secs"`

	// PurgeIntervalSecs is how often completed queue items are purged.
	PurgeIntervalSecs int `mapstructure:"purge_interval_secs" yaml:"purge_interval_secs"`

	// DashboardAddr serves the live status dashboard; empty disables it.
	DashboardAddr string `mapstructure:"dashboard_addr" yaml:"dashboard_addr"`
}

// LogConfig controls daemon log rotation.
type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// Dir returns the fieldsync config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "fieldsync"), nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads configuration from the given file (or the default location
// when path is empty), overlaying FIELDSYNC_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.AddConfigPath(dir)
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("FIELDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file is fine; env and defaults carry it.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.RemoteURL == "" {
		return nil, fmt.Errorf("remote_url is not set; run `fieldsync init` or set FIELDSYNC_REMOTE_URL")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".local", "share", "fieldsync"))
	v.SetDefault("staging_dir", "")
	v.SetDefault("blob.bucket", "photos")
	v.SetDefault("blob.use_ssl", true)
	v.SetDefault("daemon.probe_interval_secs", 30)
	v.SetDefault("daemon.purge_interval_secs", 3600)
	v.SetDefault("daemon.dashboard_addr", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
}

// WriteDefault writes a starter config file, refusing to overwrite an
// existing one.
func WriteDefault(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	buf, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DBPath returns the mirror database path under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "fieldsync.db")
}

// SessionPath returns the cached session file path under DataDir.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}
