// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Venue       VenueConfig       `yaml:"venue"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	HTTP        HTTPConfig        `yaml:"http"`
	Timing      TimingConfig      `yaml:"timing"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// VenueConfig holds credentials and transport settings for the
// out-of-scope trading venue client.
type VenueConfig struct {
	APIKey     Secret `yaml:"api_key" validate:"required"`
	SecretKey  Secret `yaml:"secret_key" validate:"required"`
	BaseURL    string `yaml:"base_url" validate:"required"`
	WSURL      string `yaml:"ws_url" validate:"required"`
	RecvWindow int    `yaml:"recv_window_ms" validate:"min=1000,max=60000"`
}

// PersistenceConfig controls where JSON repositories write, and the
// optional SQLite secondary sink for the monitor snapshot.
type PersistenceConfig struct {
	DataDir            string `yaml:"data_dir" validate:"required"`
	SnapshotSQLitePath string `yaml:"snapshot_sqlite_path"`
}

// MonitorConfig bounds the Price Monitor's active-task set and expiry
// sweep cadence.
type MonitorConfig struct {
	MaxActiveTasks        int `yaml:"max_active_tasks" validate:"required,min=1,max=100000"`
	DefaultTimeoutHours    int `yaml:"default_timeout_hours" validate:"required,min=1,max=168"`
	ExpirySweepIntervalSec int `yaml:"expiry_sweep_interval_seconds" validate:"required,min=1"`
}

// HTTPConfig sets the listen addresses for the monitor and strategy API
// servers and the shared health/metrics server.
type HTTPConfig struct {
	MonitorAddr  string `yaml:"monitor_addr" validate:"required"`
	StrategyAddr string `yaml:"strategy_addr" validate:"required"`
	HealthAddr   string `yaml:"health_addr" validate:"required"`
}

// TimingConfig contains timing-related settings
type TimingConfig struct {
	WebsocketPingIntervalSec   int `yaml:"websocket_ping_interval_seconds" validate:"min=1,max=300"`
	WebsocketPongWaitSec       int `yaml:"websocket_pong_wait_seconds" validate:"min=1,max=300"`
	ReconnectBackoffCapSec     int `yaml:"reconnect_backoff_cap_seconds" validate:"min=1,max=3600"`
	ReconnectMaxAttempts       int `yaml:"reconnect_max_attempts" validate:"min=1,max=1000"`
	WebhookTimeoutSec          int `yaml:"webhook_timeout_seconds" validate:"min=1,max=120"`
	VenueRequestTimeoutSec     int `yaml:"venue_request_timeout_seconds" validate:"min=1,max=120"`
	ExecutorMinSpacingSec      int `yaml:"executor_min_spacing_seconds" validate:"min=1,max=300"`
	SpotPollIntervalMillis     int `yaml:"spot_poll_interval_millis" validate:"min=500,max=60000"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	if err := c.validateApp(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateVenue(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validatePersistence(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateMonitor(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.validateHTTP(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateApp() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateVenue() error {
	if c.Venue.APIKey == "" {
		return ValidationError{Field: "venue.api_key", Message: "API key is required"}
	}
	if c.Venue.SecretKey == "" {
		return ValidationError{Field: "venue.secret_key", Message: "secret key is required"}
	}
	if c.Venue.BaseURL == "" {
		return ValidationError{Field: "venue.base_url", Message: "base URL is required"}
	}
	return nil
}

func (c *Config) validatePersistence() error {
	if c.Persistence.DataDir == "" {
		return ValidationError{Field: "persistence.data_dir", Message: "data directory is required"}
	}
	return nil
}

func (c *Config) validateMonitor() error {
	if c.Monitor.MaxActiveTasks <= 0 {
		return ValidationError{
			Field:   "monitor.max_active_tasks",
			Value:   c.Monitor.MaxActiveTasks,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateHTTP() error {
	if c.HTTP.MonitorAddr == "" || c.HTTP.StrategyAddr == "" || c.HTTP.HealthAddr == "" {
		return ValidationError{Field: "http", Message: "monitor_addr, strategy_addr and health_addr are all required"}
	}
	return nil
}

// String returns a string representation of the configuration (with
// sensitive data masked via Secret.MarshalYAML).
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{LogLevel: "INFO"},
		Venue: VenueConfig{
			APIKey:     "test_api_key",
			SecretKey:  "test_secret_key",
			BaseURL:    "https://api-testnet.bybit.com",
			WSURL:      "wss://stream-testnet.bybit.com/v5/public/option",
			RecvWindow: 5000,
		},
		Persistence: PersistenceConfig{
			DataDir: "./data",
		},
		Monitor: MonitorConfig{
			MaxActiveTasks:         1000,
			DefaultTimeoutHours:    24,
			ExpirySweepIntervalSec: 300,
		},
		HTTP: HTTPConfig{
			MonitorAddr:  ":8001",
			StrategyAddr: ":8002",
			HealthAddr:   ":8000",
		},
		Timing: TimingConfig{
			WebsocketPingIntervalSec: 20,
			WebsocketPongWaitSec:     10,
			ReconnectBackoffCapSec:   60,
			ReconnectMaxAttempts:     10,
			WebhookTimeoutSec:        30,
			VenueRequestTimeoutSec:   10,
			ExecutorMinSpacingSec:    2,
			SpotPollIntervalMillis:   1000,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: true,
		},
	}
}
