// ABOUTME: Configuration loading and parsing for awal-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete awal-relay configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Chat     ChatConfig     `yaml:"chat"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds transcript database configuration.
// The default path ":memory:" keeps sessions and messages bounded
// by process lifetime.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ChatConfig holds chat timing configuration
type ChatConfig struct {
	ReplyTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ReplyTimeoutRaw string `yaml:"reply_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultReplyTimeout is how long a forwarded chat message waits for the
// agent's reply when no explicit deadline is given. Chosen to exceed
// plausible agent thinking time.
const DefaultReplyTimeout = 2 * time.Minute

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = ":memory:"
	}
	if c.Chat.ReplyTimeout == 0 {
		c.Chat.ReplyTimeout = DefaultReplyTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Chat.ReplyTimeout < 0 {
		return fmt.Errorf("chat.reply_timeout must be positive")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Chat.ReplyTimeoutRaw != "" {
		cfg.Chat.ReplyTimeout, err = time.ParseDuration(cfg.Chat.ReplyTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing reply_timeout %q: %w", cfg.Chat.ReplyTimeoutRaw, err)
		}
	}

	return nil
}
