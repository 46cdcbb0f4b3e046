// Package config loads stdfdb settings from an optional YAML file and the
// STDF_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/zxspring21/AISEMITEST/internal/logging"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// DatabaseURL is sqlite://<path> or postgres://...
	DatabaseURL string `yaml:"database_url"`

	Defaults DefaultsConfig `yaml:"defaults"`
	HTTP     HTTPConfig     `yaml:"http"`
	S3       S3Config       `yaml:"s3"`
	Logging  logging.Config `yaml:"logging"`
}

// DefaultsConfig names the hierarchy when a file leaves it blank.
type DefaultsConfig struct {
	Company string `yaml:"company"`
	Product string `yaml:"product"`
	Stage   string `yaml:"stage"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// S3Config configures s3:// sources. Endpoint is only needed for
// S3-compatible stores.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

func DefaultConfig() *Config {
	return &Config{
		DatabaseURL: "sqlite:///stdf_data.db",
		Defaults: DefaultsConfig{
			Company: "DefaultCompany",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, errors.Wrap(err, "read config")
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create config directory")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

func (c *Config) applyEnvOverrides() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"STDF_DB_URL", &c.DatabaseURL},
		{"STDF_DEFAULT_COMPANY", &c.Defaults.Company},
		{"STDF_DEFAULT_PRODUCT", &c.Defaults.Product},
		{"STDF_DEFAULT_STAGE", &c.Defaults.Stage},
		{"STDF_LOG_LEVEL", &c.Logging.Level},
		{"STDF_LOG_FORMAT", &c.Logging.Format},
		{"STDF_HTTP_ADDR", &c.HTTP.Addr},
		{"STDF_S3_ENDPOINT", &c.S3.Endpoint},
		{"STDF_S3_REGION", &c.S3.Region},
		{"STDF_S3_ACCESS_KEY_ID", &c.S3.AccessKeyID},
		{"STDF_S3_SECRET_ACCESS_KEY", &c.S3.SecretAccessKey},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	if v := os.Getenv("STDF_S3_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "STDF_S3_USE_SSL=%q", v)
		}
		c.S3.UseSSL = b
	}
	return nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database url is not configured (set STDF_DB_URL)")
	}
	if c.Defaults.Company == "" {
		return errors.New("default company must not be empty")
	}
	return nil
}
