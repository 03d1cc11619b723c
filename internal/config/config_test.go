package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `app:
  log_level: "INFO"

venue:
  api_key: "${TEST_VENUE_API_KEY}"
  secret_key: "${TEST_VENUE_SECRET_KEY}"
  base_url: "https://api-testnet.bybit.com"
  ws_url: "wss://stream-testnet.bybit.com/v5/public/option"
  recv_window_ms: 5000

persistence:
  data_dir: "./data"

monitor:
  max_active_tasks: 1000
  default_timeout_hours: 24
  expiry_sweep_interval_seconds: 300

http:
  monitor_addr: ":8001"
  strategy_addr: ":8002"
  health_addr: ":8000"
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_VENUE_API_KEY", "test_api_key_from_env")
	os.Setenv("TEST_VENUE_SECRET_KEY", "test_secret_key_from_env")
	defer os.Unsetenv("TEST_VENUE_API_KEY")
	defer os.Unsetenv("TEST_VENUE_SECRET_KEY")

	config, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	assert.Equal(t, Secret("test_api_key_from_env"), config.Venue.APIKey)
	assert.Equal(t, Secret("test_secret_key_from_env"), config.Venue.SecretKey)
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Venue.APIKey = Secret("my_super_secret_api_key")
	cfg.Venue.SecretKey = Secret("my_super_secret_secret_key")

	output := cfg.String()

	assert.Contains(t, output, "REDACTED")
	assert.NotContains(t, output, "my_super_secret_api_key")
	assert.NotContains(t, output, "my_super_secret_secret_key")
}

func TestValidate_MissingVenueCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Venue.APIKey = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "venue.api_key")
}

func TestValidate_RequiresDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Persistence.DataDir = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persistence.data_dir")
}
