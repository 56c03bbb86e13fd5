package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Provider identifiers accepted by LLM_PROVIDER
const (
	ProviderAzureOpenAI = "azure_openai"
	ProviderAnthropic   = "anthropic"
	ProviderGemini      = "gemini"
)

// Render modes accepted by RENDER_MODE
const (
	RenderModeContent = "content"
	RenderModeCDP     = "cdp"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Render    RenderConfig
	LLM       LLMConfig
	Extract   ExtractConfig
	Clone     CloneConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"16384"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"10"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// CORSConfig holds allowed origins for the web client.
type CORSConfig struct {
	AllowOrigins []string `envconfig:"CORS_ALLOW_ORIGINS" default:"*"`
}

// RenderConfig holds remote rendering service configuration.
type RenderConfig struct {
	BaseURL      string        `envconfig:"RENDER_BASE_URL" default:"https://production-sfo.browserless.io"`
	Token        string        `envconfig:"BROWSERLESS_API_KEY"`
	Mode         string        `envconfig:"RENDER_MODE" default:"content"`
	Timeout      time.Duration `envconfig:"RENDER_TIMEOUT" default:"45s"`
	RetryBackoff time.Duration `envconfig:"RENDER_RETRY_BACKOFF" default:"500ms"`
	MaxBytes     int64         `envconfig:"RENDER_MAX_BYTES" default:"5242880"`
	Concurrency  int           `envconfig:"RENDER_CONCURRENCY" default:"4"`
	QueueDepth   int           `envconfig:"RENDER_QUEUE_DEPTH" default:"16"`
	HealthPath   string        `envconfig:"RENDER_HEALTH_PATH" default:"/active"`
	Screenshot   bool          `envconfig:"RENDER_SCREENSHOT" default:"false"`
	JPEGQuality  int           `envconfig:"RENDER_SCREENSHOT_QUALITY" default:"80"`
}

// LLMConfig holds provider selection and credentials.
type LLMConfig struct {
	Provider        string        `envconfig:"LLM_PROVIDER" default:"azure_openai"`
	Timeout         time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"120s"`
	Concurrency     int           `envconfig:"PROVIDER_CONCURRENCY" default:"4"`
	QueueDepth      int           `envconfig:"PROVIDER_QUEUE_DEPTH" default:"16"`
	MaxOutputTokens int           `envconfig:"LLM_MAX_OUTPUT_TOKENS" default:"0"`
	PromptBudget    int           `envconfig:"PROMPT_TOKEN_BUDGET" default:"0"`
	RetryWait       time.Duration `envconfig:"PROVIDER_RETRY_WAIT" default:"1s"`

	Gemini    GeminiConfig
	Azure     AzureConfig
	Anthropic AnthropicConfig
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	Model   string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-pro"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`
}

// AzureConfig holds Azure-hosted OpenAI settings.
type AzureConfig struct {
	Endpoint   string `envconfig:"AZURE_OPENAI_ENDPOINT"`
	APIKey     string `envconfig:"AZURE_OPENAI_API_KEY"`
	APIVersion string `envconfig:"AZURE_OPENAI_API_VERSION" default:"2024-02-15-preview"`
	Deployment string `envconfig:"AZURE_OPENAI_DEPLOYMENT_NAME"`
}

// AnthropicConfig holds Anthropic settings.
type AnthropicConfig struct {
	APIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	Model   string `envconfig:"ANTHROPIC_MODEL_NAME" default:"claude-3-opus-20240229"`
	BaseURL string `envconfig:"ANTHROPIC_BASE_URL"`
}

// ExtractConfig holds PageModel bounds.
type ExtractConfig struct {
	MaxDepth   int `envconfig:"EXTRACT_MAX_DEPTH" default:"6"`
	MaxBytes   int `envconfig:"EXTRACT_MAX_BYTES" default:"51200"`
	MaxTextLen int `envconfig:"EXTRACT_MAX_TEXT" default:"400"`
	MaxNesting int `envconfig:"EXTRACT_MAX_NESTING" default:"512"`
}

// CloneConfig holds orchestrator and sanitizer settings.
type CloneConfig struct {
	TimeoutMargin  time.Duration `envconfig:"CLONE_TIMEOUT_MARGIN" default:"5s"`
	SanitizeStrict bool          `envconfig:"SANITIZE_STRICT" default:"false"`
	KeepScripts    bool          `envconfig:"SANITIZE_KEEP_SCRIPTS" default:"false"`
	AllowPrivate   bool          `envconfig:"URL_ALLOW_PRIVATE" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	cfg.Render.Mode = strings.ToLower(strings.TrimSpace(cfg.Render.Mode))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    16 * 1024,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			Burst:             10,
			Enabled:           true,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
		},
		Render: RenderConfig{
			BaseURL:      "https://production-sfo.browserless.io",
			Mode:         RenderModeContent,
			Timeout:      45 * time.Second,
			RetryBackoff: 500 * time.Millisecond,
			MaxBytes:     5 * 1024 * 1024,
			Concurrency:  4,
			QueueDepth:   16,
			HealthPath:   "/active",
			JPEGQuality:  80,
		},
		LLM: LLMConfig{
			Provider:    ProviderAzureOpenAI,
			Timeout:     120 * time.Second,
			Concurrency: 4,
			QueueDepth:  16,
			RetryWait:   time.Second,
			Gemini: GeminiConfig{
				Model: "gemini-1.5-pro",
			},
			Azure: AzureConfig{
				APIVersion: "2024-02-15-preview",
			},
			Anthropic: AnthropicConfig{
				Model: "claude-3-opus-20240229",
			},
		},
		Extract: ExtractConfig{
			MaxDepth:   6,
			MaxBytes:   50 * 1024,
			MaxTextLen: 400,
			MaxNesting: 512,
		},
		Clone: CloneConfig{
			TimeoutMargin: 5 * time.Second,
		},
	}
}

// Validate rejects knob values that would break the pipeline. Missing
// credentials are not an error here; they surface through /health.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Provider {
	case ProviderAzureOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown LLM_PROVIDER %q (supported: %s, %s, %s)",
			c.LLM.Provider, ProviderAzureOpenAI, ProviderAnthropic, ProviderGemini))
	}

	switch c.Render.Mode {
	case RenderModeContent, RenderModeCDP:
	default:
		errs = append(errs, fmt.Errorf("unknown RENDER_MODE %q", c.Render.Mode))
	}

	if c.Render.Timeout <= 0 {
		errs = append(errs, errors.New("RENDER_TIMEOUT must be positive"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("PROVIDER_TIMEOUT must be positive"))
	}
	if c.Render.Concurrency < 1 || c.LLM.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency caps must be at least 1"))
	}
	if c.Render.QueueDepth < 0 || c.LLM.QueueDepth < 0 {
		errs = append(errs, errors.New("queue depths must not be negative"))
	}
	if c.Render.JPEGQuality < 1 || c.Render.JPEGQuality > 100 {
		errs = append(errs, errors.New("RENDER_SCREENSHOT_QUALITY must be between 1 and 100"))
	}
	if c.Render.MaxBytes <= 0 {
		errs = append(errs, errors.New("RENDER_MAX_BYTES must be positive"))
	}
	if c.Extract.MaxDepth < 1 {
		errs = append(errs, errors.New("EXTRACT_MAX_DEPTH must be at least 1"))
	}
	if c.Extract.MaxNesting < 16 {
		errs = append(errs, errors.New("EXTRACT_MAX_NESTING must be at least 16"))
	}
	if c.Extract.MaxBytes < 1024 {
		errs = append(errs, errors.New("EXTRACT_MAX_BYTES must be at least 1024"))
	}
	if c.LLM.MaxOutputTokens < 0 || c.LLM.PromptBudget < 0 {
		errs = append(errs, errors.New("token limits must not be negative"))
	}

	return errors.Join(errs...)
}

// EndToEndTimeout is the sum of the stage timeouts plus margin
func (c *Config) EndToEndTimeout() time.Duration {
	return c.Render.Timeout + c.LLM.Timeout + c.Clone.TimeoutMargin
}
