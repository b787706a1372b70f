package config

import (
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	MQTT            MQTTConfig     `yaml:"mqtt"`
	Scenes          ScenesConfig   `yaml:"scenes"`
	Database        DatabaseConfig `yaml:"database"`
	Log             LogConfig      `yaml:"log"`
	Updates         UpdatesConfig  `yaml:"updates"`
	Tick            TickConfig     `yaml:"tick"`
	Webhook         WebhookConfig  `yaml:"webhook"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// MQTTConfig contains broker connection settings for the device transport
type MQTTConfig struct {
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	BaseTopic      string   `yaml:"base_topic"`
	QoS            byte     `yaml:"qos"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	PublishTimeout Duration `yaml:"publish_timeout"`
	Warmup         Duration `yaml:"warmup"` // Wait for retained state topics after subscribing
}

// ScenesConfig points at the scene definition file
type ScenesConfig struct {
	Path string `yaml:"path"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// UpdatesConfig tunes how device writes are scheduled
type UpdatesConfig struct {
	Delay        Duration `yaml:"delay"`          // Debounce delay before a scheduled write executes
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Writes per second across all devices
}

// TickConfig contains the periodic recompute settings
type TickConfig struct {
	Interval Duration `yaml:"interval"`
}

// WebhookConfig contains the HTTP command server settings
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LedgerConfig contains write-audit retention settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./scened.sqlite"
	}
	if cfg.Scenes.Path == "" {
		cfg.Scenes.Path = "scenes.yaml"
	}

	// MQTT defaults
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "scened"
	}
	if cfg.MQTT.BaseTopic == "" {
		cfg.MQTT.BaseTopic = "scened"
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}
	if cfg.MQTT.PublishTimeout == 0 {
		cfg.MQTT.PublishTimeout = Duration(5 * time.Second)
	}
	if cfg.MQTT.Warmup == 0 {
		cfg.MQTT.Warmup = Duration(2 * time.Second)
	}

	// Update defaults: delay stays 0 (apply as soon as scheduled)
	if cfg.Updates.RateLimitRPS == 0 {
		cfg.Updates.RateLimitRPS = 10.0 // 10 writes per second
	}

	// Tick defaults
	if cfg.Tick.Interval == 0 {
		cfg.Tick.Interval = Duration(1 * time.Minute)
	}

	// Webhook defaults
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 8095
	}
	if cfg.Webhook.Host == "" {
		cfg.Webhook.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}

	return &cfg, nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
