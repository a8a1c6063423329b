// Package config loads the qrpay configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/harrylevesque/qrpay/internal/utils"
)

const (
	// FileName is the configuration file inside the data directory.
	FileName = "config.yaml"

	EnvServer   = "QRPAY_SERVER"
	EnvDataDir  = "QRPAY_DATA_DIR"
	EnvLogLevel = "QRPAY_LOG_LEVEL"

	DefaultServerURL      = "http://localhost:8080"
	DefaultRequestTimeout = "30s"
	DefaultListenAddr     = ":8080"
	DefaultTokenTTL       = "24h"
)

// LogSection configures logging.
type LogSection struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Path   string `yaml:"path"`
}

// ServerSection configures the development backend.
type ServerSection struct {
	ListenAddr string `yaml:"listen_addr"`
	// TokenTTL uses Go duration format, e.g. "24h".
	TokenTTL string `yaml:"token_ttl"`
	// SeedFile is an optional YAML file of users and merchants loaded at start.
	SeedFile string `yaml:"seed_file"`
}

// Config is the contents of config.yaml.
type Config struct {
	// ServerURL is the base URL of the payment service.
	ServerURL string `yaml:"server_url"`
	// RequestTimeout bounds one API call. Go duration format, e.g. "30s".
	RequestTimeout string `yaml:"request_timeout"`
	// DataDir holds the master key, sealed credential and receipts.
	DataDir string `yaml:"data_dir"`
	// CADir optionally adds trusted CA certificates for the service.
	CADir string `yaml:"ca_dir"`
	// MetricsFile, when set, receives client metrics in text format on exit.
	MetricsFile string `yaml:"metrics_file"`

	Log    LogSection    `yaml:"log"`
	Server ServerSection `yaml:"server"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ServerURL:      DefaultServerURL,
		RequestTimeout: DefaultRequestTimeout,
		DataDir:        utils.DefaultDataDir(),
		Log:            LogSection{Level: "info", Format: "text"},
		Server:         ServerSection{ListenAddr: DefaultListenAddr, TokenTTL: DefaultTokenTTL},
	}
}

// DefaultPath returns ~/.qrpay/config.yaml.
func DefaultPath() string {
	return filepath.Join(utils.DefaultDataDir(), FileName)
}

// Load reads the file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.DataDir = utils.ExpandHome(cfg.DataDir)
	cfg.CADir = utils.ExpandHome(cfg.CADir)
	cfg.Log.Path = utils.ExpandHome(cfg.Log.Path)
	cfg.MetricsFile = utils.ExpandHome(cfg.MetricsFile)
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// ApplyEnv overrides fields from QRPAY_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvServer); v != "" {
		c.ServerURL = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = utils.ExpandHome(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// Validate checks the fields the client depends on.
func (c Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url %q must be an absolute http(s) URL", c.ServerURL)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.DataDir == "" {
		return errors.New("data_dir must be set")
	}
	if _, err := utils.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Server.TokenTTL != "" {
		if _, err := c.TokenTTL(); err != nil {
			return err
		}
	}
	return nil
}

// Timeout parses RequestTimeout.
func (c Config) Timeout() (time.Duration, error) {
	return positiveDuration("request_timeout", c.RequestTimeout, DefaultRequestTimeout)
}

// TokenTTL parses Server.TokenTTL.
func (c Config) TokenTTL() (time.Duration, error) {
	return positiveDuration("server.token_ttl", c.Server.TokenTTL, DefaultTokenTTL)
}

func positiveDuration(field, value, fallback string) (time.Duration, error) {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return d, nil
}
