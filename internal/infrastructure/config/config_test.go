package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, int64(16*1024), cfg.Server.MaxBodyBytes)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Render config
	assert.Equal(t, RenderModeContent, cfg.Render.Mode)
	assert.Equal(t, 45*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Render.RetryBackoff)
	assert.Equal(t, int64(5*1024*1024), cfg.Render.MaxBytes)
	assert.False(t, cfg.Render.Screenshot)
	assert.Equal(t, 80, cfg.Render.JPEGQuality)

	// LLM config
	assert.Equal(t, ProviderAzureOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "2024-02-15-preview", cfg.LLM.Azure.APIVersion)

	// Extract config
	assert.Equal(t, 6, cfg.Extract.MaxDepth)
	assert.Equal(t, 50*1024, cfg.Extract.MaxBytes)
	assert.Equal(t, 512, cfg.Extract.MaxNesting)

	assert.NoError(t, cfg.Validate())
}

// unsetEnv clears keys for the duration of the test
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadMatchesDefault(t *testing.T) {
	unsetEnv(t, "PORT", "HOST", "LOG_LEVEL", "LOG_DEV", "LLM_PROVIDER", "RENDER_MODE")

	cfg, err := Load()
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server, cfg.Server)
	assert.Equal(t, def.Logging, cfg.Logging)
	assert.Equal(t, def.CORS, cfg.CORS)
	assert.Equal(t, def.Extract, cfg.Extract)
	assert.Equal(t, def.Clone, cfg.Clone)
	assert.Equal(t, def.Render.Timeout, cfg.Render.Timeout)
	assert.Equal(t, def.LLM.Provider, cfg.LLM.Provider)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                         "9000",
		"HOST":                         "127.0.0.1",
		"LOG_LEVEL":                    "debug",
		"LOG_DEV":                      "true",
		"RATE_LIMIT_RPS":               "50",
		"RATE_LIMIT_ENABLED":           "false",
		"CORS_ALLOW_ORIGINS":           "https://a.example,https://b.example",
		"RENDER_BASE_URL":              "http://browserless:3000",
		"BROWSERLESS_API_KEY":          "tok",
		"RENDER_TIMEOUT":               "10s",
		"RENDER_CONCURRENCY":           "2",
		"RENDER_SCREENSHOT":            "true",
		"RENDER_SCREENSHOT_QUALITY":    "60",
		"LLM_PROVIDER":                 " Anthropic ",
		"PROVIDER_TIMEOUT":             "30s",
		"ANTHROPIC_API_KEY":            "sk-ant",
		"ANTHROPIC_MODEL_NAME":         "claude-test",
		"AZURE_OPENAI_DEPLOYMENT_NAME": "gpt4o",
		"EXTRACT_MAX_DEPTH":            "4",
		"SANITIZE_STRICT":              "true",
		"URL_ALLOW_PRIVATE":            "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 50, cfg.RateLimit.RequestsPerSecond)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowOrigins)
	assert.Equal(t, "http://browserless:3000", cfg.Render.BaseURL)
	assert.Equal(t, "tok", cfg.Render.Token)
	assert.Equal(t, 10*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 2, cfg.Render.Concurrency)
	assert.True(t, cfg.Render.Screenshot)
	assert.Equal(t, 60, cfg.Render.JPEGQuality)
	assert.Equal(t, ProviderAnthropic, cfg.LLM.Provider)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sk-ant", cfg.LLM.Anthropic.APIKey)
	assert.Equal(t, "claude-test", cfg.LLM.Anthropic.Model)
	assert.Equal(t, "gpt4o", cfg.LLM.Azure.Deployment)
	assert.Equal(t, 4, cfg.Extract.MaxDepth)
	assert.True(t, cfg.Clone.SanitizeStrict)
	assert.True(t, cfg.Clone.AllowPrivate)

	assert.Equal(t, 45*time.Second, cfg.EndToEndTimeout())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown provider", key: "LLM_PROVIDER", value: "cohere"},
		{name: "unknown render mode", key: "RENDER_MODE", value: "puppeteer"},
		{name: "zero render timeout", key: "RENDER_TIMEOUT", value: "0s"},
		{name: "zero provider concurrency", key: "PROVIDER_CONCURRENCY", value: "0"},
		{name: "negative queue", key: "RENDER_QUEUE_DEPTH", value: "-1"},
		{name: "tiny extract budget", key: "EXTRACT_MAX_BYTES", value: "100"},
		{name: "shallow nesting bound", key: "EXTRACT_MAX_NESTING", value: "2"},
		{name: "screenshot quality out of range", key: "RENDER_SCREENSHOT_QUALITY", value: "101"},
		{name: "unparseable duration", key: "PROVIDER_TIMEOUT", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefaultFallsBack(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "unknown")

	cfg := LoadOrDefault()
	require.NotNil(t, cfg)
	assert.Equal(t, ProviderAzureOpenAI, cfg.LLM.Provider)
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		port     string
		host     string
		wantPort string
		wantHost string
	}{
		{
			name:     "default values",
			wantPort: "8000",
			wantHost: "0.0.0.0",
		},
		{
			name:     "custom port",
			port:     "9000",
			wantPort: "9000",
			wantHost: "0.0.0.0",
		},
		{
			name:     "custom port and host",
			port:     "3000",
			host:     "127.0.0.1",
			wantPort: "3000",
			wantHost: "127.0.0.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t, "PORT", "HOST")
			if tt.port != "" {
				t.Setenv("PORT", tt.port)
			}
			if tt.host != "" {
				t.Setenv("HOST", tt.host)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
		})
	}
}
