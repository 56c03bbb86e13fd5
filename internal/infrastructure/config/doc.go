// Package config provides 12-factor configuration management for the clone service.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, shutdown, body limit)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting configuration
//   - CORS: Allowed origins for the web client
//   - Render: Remote headless-browser service, timeout, size ceiling, admission gate
//   - LLM: Provider selection, credentials, timeout, admission gate, token limits
//   - Extract: PageModel depth, size and text bounds
//   - Clone: Orchestrator timeout margin and sanitizer switches
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT, MAX_BODY_BYTES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - RENDER_BASE_URL, BROWSERLESS_API_KEY, RENDER_MODE, RENDER_TIMEOUT
//   - LLM_PROVIDER, PROVIDER_TIMEOUT, GEMINI_API_KEY, AZURE_OPENAI_*, ANTHROPIC_*
package config
