// Package config loads the forwarder configuration.
//
// Configuration comes from a single YAML file named by the --config flag or
// the FORWARDER_CONFIG environment variable. Secrets are never stored in the
// file: it names the environment variables that hold them.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/bank-forwarder/internal/domain"
)

// EnvVar names the environment variable holding the config path.
const EnvVar = "FORWARDER_CONFIG"

// Cache backends.
const (
	BackendFile     = "file"
	BackendGCS      = "gcs"
	BackendBolt     = "bolt"
	BackendDynamoDB = "dynamodb"
)

// Config is the forwarder configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Interval is the delay between the end of one cycle and the start of the next.
	Interval Duration `yaml:"interval"`

	// TargetChat is the Telegram chat every notification goes to.
	TargetChat       string `yaml:"target_chat"`
	TelegramTokenEnv string `yaml:"telegram_token_env"`

	// AbortPersistOnNotifyFailure keeps the previous cache when a delivery
	// failed, so the undelivered additions are retried next cycle.
	AbortPersistOnNotifyFailure bool `yaml:"abort_persist_on_notify_failure"`

	// AuthAlertAfter is the number of consecutive failed logins of a group
	// before a human alert is sent. Zero disables authentication alerts.
	AuthAlertAfter int `yaml:"auth_alert_after"`

	Cache    CacheConfig    `yaml:"cache"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	BigQuery BigQueryConfig `yaml:"bigquery"`
	Notion   NotionConfig   `yaml:"notion"`
	Gemini   GeminiConfig   `yaml:"gemini"`

	Accounts Accounts `yaml:"accounts"`
}

// CacheConfig selects and configures the snapshot backend.
type CacheConfig struct {
	Backend string `yaml:"backend"`

	// Dir is the file backend directory.
	Dir string `yaml:"dir"`

	// Bucket and Prefix locate snapshots in GCS.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	BoltPath string `yaml:"bolt_path"`

	DynamoDBTable    string `yaml:"dynamodb_table"`
	DynamoDBRegion   string `yaml:"dynamodb_region"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"`
}

// AuditConfig controls the git audit trail of the cache directory.
type AuditConfig struct {
	Git bool `yaml:"git"`
}

// MetricsConfig configures the status server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// BigQueryConfig configures the poll run log. An empty Project disables it.
type BigQueryConfig struct {
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

// NotionConfig configures the Notion notifier. An empty DatabaseID disables it.
type NotionConfig struct {
	TokenEnv   string `yaml:"token_env"`
	DatabaseID string `yaml:"database_id"`
}

// GeminiConfig configures the optional category suggestions.
type GeminiConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

// Account is one configured stream.
type Account struct {
	Name           string
	Type           domain.Kind `yaml:"type"`
	CredentialsEnv string      `yaml:"credentials_env"`
	ID             string      `yaml:"id"`
	CardNumber     string      `yaml:"card_number"`
	Currency       string      `yaml:"currency"`
}

// Accounts is the accounts mapping in file order. The mapping key is the
// stream key.
type Accounts []Account

// UnmarshalYAML decodes the accounts mapping, keeping the order of the file.
func (a *Accounts) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: accounts must be a mapping", node.Line)
	}
	out := make(Accounts, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		var acc Account
		if err := value.Decode(&acc); err != nil {
			return fmt.Errorf("account %q: %w", key.Value, err)
		}
		acc.Name = key.Value
		out = append(out, acc)
	}
	*a = out
	return nil
}

// Duration is a time.Duration written as a Go duration string ("30m").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns a configuration with every default applied and no accounts.
func Default() *Config {
	return &Config{
		LogLevel:         "info",
		Interval:         Duration(30 * time.Minute),
		TelegramTokenEnv: "TG_TOKEN",
		AuthAlertAfter:   3,
		Cache: CacheConfig{
			Backend:        BackendFile,
			Dir:            "cache",
			Prefix:         "snapshots",
			BoltPath:       "cache/snapshots.db",
			DynamoDBTable:  "bank-forwarder-snapshots",
			DynamoDBRegion: "us-east-1",
		},
		Metrics:  MetricsConfig{Addr: ":9090"},
		BigQuery: BigQueryConfig{Dataset: "finance"},
		Notion:   NotionConfig{TokenEnv: "NOTION_TOKEN"},
		Gemini:   GeminiConfig{Model: "gemini-2.5-flash"},
	}
}

// Load reads the file at path, or at $FORWARDER_CONFIG when path is empty,
// over the defaults and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return nil, fmt.Errorf("Load: no config file; pass --config or set %s", EnvVar)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Load: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var streamKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if c.TargetChat == "" {
		errs = append(errs, errors.New("target_chat is required"))
	}
	if c.AuthAlertAfter < 0 {
		errs = append(errs, errors.New("auth_alert_after must not be negative"))
	}

	switch c.Cache.Backend {
	case BackendFile:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the file backend"))
		}
	case BackendGCS:
		if c.Cache.Bucket == "" {
			errs = append(errs, errors.New("cache.bucket is required for the gcs backend"))
		}
	case BackendBolt:
		if c.Cache.BoltPath == "" {
			errs = append(errs, errors.New("cache.bolt_path is required for the bolt backend"))
		}
	case BackendDynamoDB:
		if c.Cache.DynamoDBTable == "" {
			errs = append(errs, errors.New("cache.dynamodb_table is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Audit.Git && c.Cache.Backend != BackendFile {
		errs = append(errs, errors.New("audit.git requires the file cache backend"))
	}
	if c.BigQuery.Project != "" && c.BigQuery.Dataset == "" {
		errs = append(errs, errors.New("bigquery.dataset is required when bigquery.project is set"))
	}

	if len(c.Accounts) == 0 {
		errs = append(errs, errors.New("accounts: at least one account is required"))
	}
	seen := make(map[string]bool, len(c.Accounts))
	for _, acc := range c.Accounts {
		if seen[acc.Name] {
			errs = append(errs, fmt.Errorf("accounts.%s: duplicate account", acc.Name))
		}
		seen[acc.Name] = true
		errs = append(errs, acc.validate()...)
	}

	return errors.Join(errs...)
}

func (a Account) validate() []error {
	var errs []error
	if !streamKeyPattern.MatchString(a.Name) {
		errs = append(errs, fmt.Errorf("accounts.%s: name may only contain letters, digits, '.', '_' and '-'", a.Name))
	}
	if !a.Type.Valid() {
		errs = append(errs, fmt.Errorf("accounts.%s: unknown type %q", a.Name, a.Type))
		return errs
	}
	if a.CredentialsEnv == "" {
		errs = append(errs, fmt.Errorf("accounts.%s: credentials_env is required", a.Name))
	}
	switch a.Type {
	case domain.KindItauAccountMovement:
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("accounts.%s: id is required", a.Name))
		}
		if a.Currency == "" {
			errs = append(errs, fmt.Errorf("accounts.%s: currency is required", a.Name))
		}
	case domain.KindItauCardAuthorization:
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("accounts.%s: id is required", a.Name))
		}
	}
	return errs
}

// Streams returns the configured streams in file order.
func (c *Config) Streams() []domain.Stream {
	streams := make([]domain.Stream, 0, len(c.Accounts))
	for _, acc := range c.Accounts {
		streams = append(streams, domain.Stream{
			Name:           acc.Name,
			Kind:           acc.Type,
			CredentialsEnv: acc.CredentialsEnv,
			AccountID:      acc.ID,
			CardNumber:     acc.CardNumber,
			Currency:       acc.Currency,
		})
	}
	return streams
}

// Stream returns the configured stream named name.
func (c *Config) Stream(name string) (domain.Stream, bool) {
	for _, s := range c.Streams() {
		if s.Name == name {
			return s, true
		}
	}
	return domain.Stream{}, false
}

// PollInterval returns Interval as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Interval)
}
