package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/fractalmind-ai/topoml/internal/store"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration
type Config struct {
	Corpus  *CorpusConfig  `yaml:"corpus"`
	Codec   *CodecConfig   `yaml:"codec"`
	Store   *StoreConfig   `yaml:"store"`
	Gateway *GatewayConfig `yaml:"gateway"`
	Notify  *NotifyConfig  `yaml:"notify,omitempty"`
}

// CorpusConfig describes where the WKT training strings come from.
//
// Path is a local file, gs://bucket/object or http(s) URL; SHA256 verifies
// http(s) downloads when set and is ignored for other paths. Dir and Prefix
// select every Prefix*.csv file in Dir instead of Path; SHA256 cannot be
// combined with Dir.
type CorpusConfig struct {
	Path      string     `yaml:"path,omitempty"`
	SHA256    string     `yaml:"sha256,omitempty"`
	Dir       string     `yaml:"dir,omitempty"`
	Prefix    string     `yaml:"prefix,omitempty"`
	Columns   []string   `yaml:"columns"`
	Separator *string    `yaml:"separator,omitempty"`
	CacheDir  string     `yaml:"cacheDir,omitempty"`
	GCS       *GCSConfig `yaml:"gcs,omitempty"`
}

// GCSConfig contains Cloud Storage client settings.
type GCSConfig struct {
	Endpoint        string `yaml:"endpoint,omitempty"`
	WithoutAuth     bool   `yaml:"withoutAuth,omitempty"`
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
}

// CodecConfig contains encoding settings.
type CodecConfig struct {
	// MaxLength is the one-hot row count; 0 means the longest input.
	MaxLength int `yaml:"maxLength,omitempty"`
}

// StoreConfig contains vocabulary persistence settings.
type StoreConfig struct {
	Path       string `yaml:"path,omitempty"`
	Vocabulary string `yaml:"vocabulary"`
}

// GatewayConfig contains gateway settings. MaxOneHotCells bounds the
// cells (texts x rows x width) of one one_hot request; 0 means
// DefaultMaxOneHotCells.
type GatewayConfig struct {
	Port           int      `yaml:"port"`
	Bind           string   `yaml:"bind"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	MaxOneHotCells int      `yaml:"maxOneHotCells,omitempty"`
}

// DefaultMaxOneHotCells is the gateway one_hot limit when none is configured.
const DefaultMaxOneHotCells = 1 << 24

// OneHotCellLimit returns the configured one_hot cell limit.
func (c *GatewayConfig) OneHotCellLimit() int {
	if c == nil || c.MaxOneHotCells <= 0 {
		return DefaultMaxOneHotCells
	}
	return c.MaxOneHotCells
}

// NotifyConfig contains run-completion notification settings.
type NotifyConfig struct {
	Slack *SlackConfig `yaml:"slack,omitempty"`
}

// SlackConfig contains Slack notification settings
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	BotToken string `yaml:"botToken,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
	APIURL   string `yaml:"apiUrl,omitempty"`
}

// DefaultSeparator joins the configured columns of one CSV row.
const DefaultSeparator = " "

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	sep := DefaultSeparator
	return &Config{
		Corpus: &CorpusConfig{
			Path:      "./files/example.csv",
			Columns:   []string{"brt_wkt", "osm_wkt"},
			Separator: &sep,
		},
		Codec: &CodecConfig{},
		Store: &StoreConfig{
			Vocabulary: "default",
		},
		Gateway: &GatewayConfig{
			Port: 18790,
			Bind: "127.0.0.1",
		},
	}
}

// Validate checks the configuration and names the offending key on failure.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Corpus != nil {
		if err := c.Corpus.validate(); err != nil {
			return err
		}
	}
	if c.Codec != nil && c.Codec.MaxLength < 0 {
		return fmt.Errorf("invalid codec.maxLength %d: must not be negative", c.Codec.MaxLength)
	}
	if c.Store != nil {
		name := strings.TrimSpace(c.Store.Vocabulary)
		if name != "" {
			if err := store.ValidateName(name); err != nil {
				return fmt.Errorf("invalid store.vocabulary: %w", err)
			}
		}
	}
	if c.Gateway != nil && (c.Gateway.Port < 0 || c.Gateway.Port > 65535) {
		return fmt.Errorf("invalid gateway.port %d", c.Gateway.Port)
	}
	if c.Gateway != nil && c.Gateway.MaxOneHotCells < 0 {
		return fmt.Errorf("invalid gateway.maxOneHotCells %d: must not be negative", c.Gateway.MaxOneHotCells)
	}
	if c.Notify != nil && c.Notify.Slack != nil && c.Notify.Slack.Enabled {
		if strings.TrimSpace(c.Notify.Slack.BotToken) == "" {
			return fmt.Errorf("notify.slack.botToken is required when notify.slack.enabled is true")
		}
		if strings.TrimSpace(c.Notify.Slack.Channel) == "" {
			return fmt.Errorf("notify.slack.channel is required when notify.slack.enabled is true")
		}
	}
	return nil
}

func (c *CorpusConfig) validate() error {
	hasPath := strings.TrimSpace(c.Path) != ""
	hasDir := strings.TrimSpace(c.Dir) != ""
	if hasPath && hasDir {
		return fmt.Errorf("corpus.path and corpus.dir are mutually exclusive")
	}
	if hasDir && strings.TrimSpace(c.Prefix) == "" {
		return fmt.Errorf("corpus.prefix is required when corpus.dir is set")
	}
	if hasDir && strings.TrimSpace(c.SHA256) != "" {
		return fmt.Errorf("corpus.sha256 applies to an http(s) corpus.path and cannot be used with corpus.dir")
	}
	for i, column := range c.Columns {
		if strings.TrimSpace(column) == "" {
			return fmt.Errorf("invalid corpus.columns[%d]: column name is empty", i)
		}
	}
	return nil
}

// JoinSeparator returns the configured column separator.
func (c *CorpusConfig) JoinSeparator() string {
	if c == nil || c.Separator == nil {
		return DefaultSeparator
	}
	return *c.Separator
}

// VocabularyName returns the configured vocabulary name or "default".
func (c *Config) VocabularyName() string {
	if c == nil || c.Store == nil || strings.TrimSpace(c.Store.Vocabulary) == "" {
		return "default"
	}
	return strings.TrimSpace(c.Store.Vocabulary)
}
