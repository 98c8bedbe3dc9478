// ABOUTME: Configuration loading and parsing for chat-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete chat-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Responders RespondersConfig `yaml:"responders"`
	Escalation EscalationConfig `yaml:"escalation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr       string   `yaml:"http_addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds transcript database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds CSR authentication configuration
type AuthConfig struct {
	// JWTSecret signs agent tokens. When empty, agent identity is
	// accepted unverified (development mode).
	JWTSecret string `yaml:"jwt_secret"`

	TokenTTL time.Duration `yaml:"-"`

	TokenTTLRaw string `yaml:"token_ttl"`
}

// RespondersConfig holds the responder chain configuration
type RespondersConfig struct {
	OpenAI OpenAIConfig `yaml:"openai"`
	Rasa   RasaConfig   `yaml:"rasa"`
}

// OpenAIConfig holds the generative responder configuration
type OpenAIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// RasaConfig holds the rule-based fallback responder configuration
type RasaConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// EscalationConfig overrides the stock escalation policy
type EscalationConfig struct {
	HandoffKeywords      []string `yaml:"handoff_keywords"`
	LowConfidencePhrases []string `yaml:"low_confidence_phrases"`

	ResponderTimeout time.Duration `yaml:"-"`

	ResponderTimeoutRaw string `yaml:"responder_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

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

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Responders.OpenAI.Enabled && c.Responders.OpenAI.APIKey == "" {
		return fmt.Errorf("responders.openai.api_key is required when openai is enabled")
	}

	if c.Responders.Rasa.Enabled && c.Responders.Rasa.WebhookURL == "" {
		return fmt.Errorf("responders.rasa.webhook_url is required when rasa is enabled")
	}

	if !c.Responders.OpenAI.Enabled && !c.Responders.Rasa.Enabled {
		return fmt.Errorf("at least one responder must be enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Escalation.ResponderTimeoutRaw != "" {
		cfg.Escalation.ResponderTimeout, err = time.ParseDuration(cfg.Escalation.ResponderTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing responder_timeout %q: %w", cfg.Escalation.ResponderTimeoutRaw, err)
		}
	}

	return nil
}
