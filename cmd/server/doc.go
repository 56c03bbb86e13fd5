// Package main is the entry point for the webclone server.
//
// webclone takes the URL of a public web page and returns a self-contained
// HTML approximation of it, for display in a sandboxed preview.
//
// Architecture:
//
//	Client → webclone → render service (browserless, headless Chrome)
//	                  → LLM provider (Azure OpenAI | Anthropic | Gemini)
//
// The server provides:
//   - POST /clone for one-shot clones
//   - GET /clone/stream, a websocket that reports pipeline stages
//   - GET /health and GET /metrics
//   - Per-client rate limiting and CORS
//
// Configuration:
//   - Environment variables (12-factor), see internal/infrastructure/config
//   - CLI flags (override env vars)
//   - Defaults for everything except credentials
//
// Usage:
//
//	# Production mode
//	LLM_PROVIDER=anthropic ANTHROPIC_API_KEY=... BROWSERLESS_API_KEY=... ./server -port 8000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
