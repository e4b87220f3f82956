// ABOUTME: Configuration loading and parsing for switchboard
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete switchboard configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Routing  RoutingConfig  `yaml:"routing"`
	Platform PlatformConfig `yaml:"platform"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RoutingConfig holds routing-engine timing configuration
type RoutingConfig struct {
	SweepInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	SweepIntervalRaw string `yaml:"sweep_interval"`

	// ClaimEmoji is the reaction that counts as a claim; defaults to ✅
	ClaimEmoji string `yaml:"claim_emoji"`
}

// PlatformConfig holds configuration for the agent-facing platform
type PlatformConfig struct {
	Matrix MatrixConfig `yaml:"matrix"`
}

// MatrixConfig holds Matrix integration configuration
type MatrixConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	AgentRoom   string `yaml:"agent_room"`
}

// RealtimeConfig holds configuration for realtime event transports
type RealtimeConfig struct {
	AMQP AMQPConfig `yaml:"amqp"`
}

// AMQPConfig holds the optional AMQP event publisher configuration
type AMQPConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
	CronToken     string `yaml:"cron_token"`
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

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
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

	if c.Platform.Matrix.Enabled {
		if c.Platform.Matrix.Homeserver == "" {
			return fmt.Errorf("platform.matrix.homeserver is required when matrix is enabled")
		}
		if c.Platform.Matrix.UserID == "" {
			return fmt.Errorf("platform.matrix.user_id is required when matrix is enabled")
		}
		if c.Platform.Matrix.AgentRoom == "" {
			return fmt.Errorf("platform.matrix.agent_room is required when matrix is enabled")
		}
	}

	if c.Realtime.AMQP.Enabled && c.Realtime.AMQP.URL == "" {
		return fmt.Errorf("realtime.amqp.url is required when amqp is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Routing.SweepIntervalRaw != "" {
		cfg.Routing.SweepInterval, err = time.ParseDuration(cfg.Routing.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Routing.SweepIntervalRaw, err)
		}
	}

	return nil
}
