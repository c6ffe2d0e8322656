package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

// Store backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

type StoreConfig struct {
	Backend    string     `yaml:"backend"`
	Path       string     `yaml:"path,omitempty"`
	ConnString string     `yaml:"conn_string,omitempty"`
	Table      string     `yaml:"table,omitempty"`
	ReadOnly   bool       `yaml:"read_only,omitempty"`
	Auth       AuthConfig `yaml:"auth,omitempty"`
}

// AuthConfig selects cloud IAM authentication for the postgres backend.
// The Azure client secret is read from $AZURE_CLIENT_SECRET only.
type AuthConfig struct {
	Method         string `yaml:"method,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

type ParametersConfig struct {
	Defaults map[string]string `yaml:"defaults,omitempty"`
	// SyncFile is a .env file pulled once on the first writable boot.
	SyncFile string `yaml:"sync_file,omitempty"`
}

type TelemetryConfig struct {
	Traces string `yaml:"traces,omitempty"`
}

type ProjectConfig struct {
	Store                 StoreConfig      `yaml:"store"`
	EnvironmentID         string           `yaml:"environment_id,omitempty"`
	EgressIPs             []string         `yaml:"egress_ips,omitempty"`
	SecretsDir            string           `yaml:"secrets_dir,omitempty"`
	Parameters            ParametersConfig `yaml:"parameters,omitempty"`
	StorageUsageRetention string           `yaml:"storage_usage_retention,omitempty"`
	SkipMigrations        bool             `yaml:"skip_migrations,omitempty"`
	Telemetry             TelemetryConfig  `yaml:"telemetry,omitempty"`
}

const ConfigFileName = "catalogd.yaml"

func Load(dir string) (*ProjectConfig, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return &cfg, nil
}

// Retention parses StorageUsageRetention. Zero means unset.
func (c *ProjectConfig) Retention() (time.Duration, error) {
	if c.StorageUsageRetention == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.StorageUsageRetention)
	if err != nil {
		return 0, fmt.Errorf("invalid storage_usage_retention: %w", err)
	}
	return d, nil
}

func (c *ProjectConfig) validate() error {
	switch c.Store.Backend {
	case "", BackendBadger, BackendPostgres:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	_, err := c.Retention()
	return err
}
