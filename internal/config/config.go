package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPollInterval = 15 * time.Minute
	defaultTimeout      = 30 * time.Second
)

// Config holds the application configuration
type Config struct {
	Portal        PortalConfig `yaml:"portal"`
	PollInterval  Duration     `yaml:"poll_interval,omitempty"` // fallback: 15m
	LogLevel      string       `yaml:"log_level,omitempty"`     // debug, info, warn, error
	LogFormat     string       `yaml:"log_format,omitempty"`    // auto, console, json
	HomeAssistant HAConfig     `yaml:"home_assistant,omitempty"`
	MQTT          MQTTConfig   `yaml:"mqtt,omitempty"`
}

// PortalConfig holds the SmartHub account and endpoints
type PortalConfig struct {
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	LoginURL string   `yaml:"login_url"`
	UsageURL string   `yaml:"usage_url"`
	Timeout  Duration `yaml:"timeout,omitempty"` // HTTP client timeout, fallback: 30s
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled      bool   `yaml:"enabled"`
	URL          string `yaml:"url"`                     // e.g., "http://homeassistant.local:8123"
	Token        string `yaml:"token"`                   // Long-lived access token
	EntityID     string `yaml:"entity_id"`               // e.g., "sensor.smarthub_energy_usage"
	FriendlyName string `yaml:"friendly_name,omitempty"` // shown in the HA UI
}

// MQTTConfig holds MQTT broker configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"` // fallback: "smarthub"
	ClientID    string `yaml:"client_id,omitempty"`    // fallback: "smarthubscraper"
	Discovery   bool   `yaml:"discovery,omitempty"`    // publish Home Assistant discovery config
}

// Duration is a time.Duration written as a string like "15m" in YAML
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("decoding duration: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// IsZero lets omitempty skip unset durations
func (d Duration) IsZero() bool {
	return d == 0
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Credentials live in this file
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default config file path (local directory)
func DefaultConfigPath() string {
	return "config.yaml"
}

// Validate checks that the portal section is usable
func (c *Config) Validate() error {
	var errs []error
	if c.Portal.Username == "" {
		errs = append(errs, errors.New("portal.username is required"))
	}
	if c.Portal.Password == "" {
		errs = append(errs, errors.New("portal.password is required"))
	}
	if c.Portal.LoginURL == "" {
		errs = append(errs, errors.New("portal.login_url is required"))
	}
	if c.Portal.UsageURL == "" {
		errs = append(errs, errors.New("portal.usage_url is required"))
	}
	return errors.Join(errs...)
}

// GetPollInterval returns the poll interval with a default of 15 minutes
func (c *Config) GetPollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return defaultPollInterval
	}
	return time.Duration(c.PollInterval)
}

// GetTimeout returns the portal HTTP timeout with a default of 30 seconds
func (c *Config) GetTimeout() time.Duration {
	if c.Portal.Timeout <= 0 {
		return defaultTimeout
	}
	return time.Duration(c.Portal.Timeout)
}

// GetTopicPrefix returns the MQTT topic prefix, defaulting to "smarthub"
func (m MQTTConfig) GetTopicPrefix() string {
	if m.TopicPrefix == "" {
		return "smarthub"
	}
	return m.TopicPrefix
}

// GetClientID returns the MQTT client ID, defaulting to "smarthubscraper"
func (m MQTTConfig) GetClientID() string {
	if m.ClientID == "" {
		return "smarthubscraper"
	}
	return m.ClientID
}
