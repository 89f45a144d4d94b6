package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	// DefaultContentType is the Management Activity API content type the
	// worker subscribes to and lists.
	DefaultContentType = "Audit.General"

	// DefaultAPIBase is the Office 365 Management Activity API base URL.
	DefaultAPIBase = "https://manage.office.com"

	// DefaultLoginBase is the identity provider authority base URL.
	DefaultLoginBase = "https://login.microsoftonline.com"
)

// Config is the full worker configuration, loaded from YAML with environment
// variable fallbacks for every secretless field.
type Config struct {
	Version string `yaml:"version"`

	Source    SourceConfig    `yaml:"source"`
	Collector CollectorConfig `yaml:"collector"`
	Kafka     *KafkaConfig    `yaml:"kafka,omitempty"`
	Mail      *MailConfig     `yaml:"mail,omitempty"`
	Pipeline  PipelineConfig  `yaml:"pipeline,omitempty"`
	Serve     ServeConfig     `yaml:"serve,omitempty"`
}

// SourceConfig describes the audit source API and the app registration used
// to authenticate against it.
type SourceConfig struct {
	TenantID string `yaml:"tenant-id"`
	ClientID string `yaml:"client-id"`

	// Exactly one of the client-secret fields should be set. Resolution
	// order: inline, env var name, file path, OS keychain.
	ClientSecret        string `yaml:"client-secret,omitempty"`
	ClientSecretEnv     string `yaml:"client-secret-env,omitempty"`
	ClientSecretFile    string `yaml:"client-secret-file,omitempty"`
	ClientSecretKeyring bool   `yaml:"client-secret-keyring,omitempty"`

	// Authority overrides the login base URL. The token endpoint is
	// discovered from it via OIDC discovery; TokenURL bypasses discovery.
	Authority string `yaml:"authority,omitempty"`
	TokenURL  string `yaml:"token-url,omitempty"`

	// APIBase overrides the Management Activity API base URL.
	APIBase     string `yaml:"api-base,omitempty"`
	ContentType string `yaml:"content-type,omitempty"`

	// LookbackHours is the listing window size.
	LookbackHours int `yaml:"lookback-hours,omitempty"`
}

// CollectorConfig describes the Log Analytics ingestion endpoint.
type CollectorConfig struct {
	WorkspaceID string `yaml:"workspace-id"`

	// Exactly one of the shared-key fields should be set, same resolution
	// order as the client secret.
	SharedKey        string `yaml:"shared-key,omitempty"`
	SharedKeyEnv     string `yaml:"shared-key-env,omitempty"`
	SharedKeyFile    string `yaml:"shared-key-file,omitempty"`
	SharedKeyKeyring bool   `yaml:"shared-key-keyring,omitempty"`

	// Table is the destination custom table name. A trailing _CL suffix is
	// accepted and stripped before use as the Log-Type header.
	Table string `yaml:"table"`

	// Endpoint overrides the ingestion URL (tests point it at a fake).
	Endpoint string `yaml:"endpoint,omitempty"`
}

// KafkaConfig configures optional mirroring of forwarded batches to Kafka.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	TLS  *KafkaTLSConfig  `yaml:"tls,omitempty"`
	SASL *KafkaSASLConfig `yaml:"sasl,omitempty"`
}

// KafkaTLSConfig holds TLS settings for the Kafka mirror.
type KafkaTLSConfig struct {
	Enabled            bool   `yaml:"enabled"`
	CAFile             string `yaml:"ca-file,omitempty"`
	CertFile           string `yaml:"cert-file,omitempty"`
	KeyFile            string `yaml:"key-file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure-skip-verify,omitempty"`
}

// KafkaSASLConfig holds SASL settings for the Kafka mirror.
type KafkaSASLConfig struct {
	Mechanism string `yaml:"mechanism"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
}

// MailConfig configures failure notification mails (serve mode only).
type MailConfig struct {
	Host          string   `yaml:"host"`
	Port          int      `yaml:"port"`
	User          string   `yaml:"user,omitempty"`
	Password      string   `yaml:"password,omitempty"`
	SenderAddress string   `yaml:"sender-address,omitempty"`
	SenderName    string   `yaml:"sender-name,omitempty"`
	Receivers     []string `yaml:"receivers"`

	InsecureSkipVerify bool `yaml:"insecure-skip-verify,omitempty"`

	// FailureThreshold is the number of consecutive failed invocations
	// before a notification is sent.
	FailureThreshold int `yaml:"failure-threshold,omitempty"`
}

// PipelineConfig tunes invocation behavior.
type PipelineConfig struct {
	// Strict promotes content-listing and per-blob fetch failures from
	// degrade-and-continue to fatal.
	Strict bool `yaml:"strict,omitempty"`
}

// ServeConfig tunes serve mode.
type ServeConfig struct {
	Addr     string        `yaml:"addr,omitempty"`
	Interval time.Duration `yaml:"interval,omitempty"`
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Source: SourceConfig{
			ContentType:   DefaultContentType,
			APIBase:       DefaultAPIBase,
			LookbackHours: 1,
		},
		Serve: ServeConfig{
			Addr: ":8080",
		},
	}
}

// Load reads and parses a config file, applying defaults and environment
// fallbacks afterwards.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// Save writes the config file, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = VersionV1
	}
	if c.Source.ContentType == "" {
		c.Source.ContentType = DefaultContentType
	}
	if c.Source.APIBase == "" {
		c.Source.APIBase = DefaultAPIBase
	}
	if c.Source.LookbackHours <= 0 {
		c.Source.LookbackHours = 1
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = ":8080"
	}
	if c.Serve.Interval <= 0 {
		c.Serve.Interval = time.Duration(c.Source.LookbackHours) * time.Hour
	}
	if c.Mail != nil && c.Mail.FailureThreshold <= 0 {
		c.Mail.FailureThreshold = 3
	}
}

func (c *Config) applyEnv() {
	setIfEmpty(&c.Source.TenantID, "AUDITINGEST_TENANT_ID")
	setIfEmpty(&c.Source.ClientID, "AUDITINGEST_CLIENT_ID")
	setIfEmpty(&c.Source.ClientSecret, "AUDITINGEST_CLIENT_SECRET")
	setIfEmpty(&c.Collector.WorkspaceID, "AUDITINGEST_WORKSPACE_ID")
	setIfEmpty(&c.Collector.SharedKey, "AUDITINGEST_WORKSPACE_KEY")
	setIfEmpty(&c.Collector.Table, "AUDITINGEST_TABLE")
}

func setIfEmpty(target *string, env string) {
	if *target == "" {
		if v := os.Getenv(env); v != "" {
			*target = v
		}
	}
}

// AuthorityURL returns the authority used for OIDC discovery of the token
// endpoint. TokenURL, when set, takes precedence over discovery entirely.
func (c *Config) AuthorityURL() string {
	if c.Source.Authority != "" {
		return c.Source.Authority
	}
	return fmt.Sprintf("%s/%s/v2.0", DefaultLoginBase, c.Source.TenantID)
}

// Scope returns the client-credentials scope for the Management API audience.
func (c *Config) Scope() string {
	base := c.Source.APIBase
	if base == "" {
		base = DefaultAPIBase
	}
	return strings.TrimSuffix(base, "/") + "/.default"
}

// Lookback returns the listing window size as a duration.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.Source.LookbackHours) * time.Hour
}

// LogType returns the destination table name with any _CL suffix stripped.
func (c *Config) LogType() string {
	return strings.TrimSuffix(c.Collector.Table, "_CL")
}

// Validate checks the fields required for an ingestion invocation.
func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	if strings.TrimSpace(c.Source.TenantID) == "" {
		return errors.New("source tenant-id is required")
	}
	if strings.TrimSpace(c.Source.ClientID) == "" {
		return errors.New("source client-id is required")
	}
	if strings.TrimSpace(c.Collector.WorkspaceID) == "" {
		return errors.New("collector workspace-id is required")
	}
	if strings.TrimSpace(c.Collector.Table) == "" {
		return errors.New("collector table is required")
	}
	if c.Kafka != nil {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers are required when kafka is configured")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka topic is required when kafka is configured")
		}
	}
	if c.Mail != nil {
		if c.Mail.Host == "" {
			return errors.New("mail host is required when mail is configured")
		}
		if len(c.Mail.Receivers) == 0 {
			return errors.New("mail receivers are required when mail is configured")
		}
	}
	return nil
}
