// Package server wires the clone pipeline behind the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/webclone/internal/api/http"
	"github.com/GriffinCanCode/webclone/internal/api/middleware"
	"github.com/GriffinCanCode/webclone/internal/api/ws"
	"github.com/GriffinCanCode/webclone/internal/domain/clone"
	"github.com/GriffinCanCode/webclone/internal/domain/health"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/config"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webclone/internal/providers/extract"
	"github.com/GriffinCanCode/webclone/internal/providers/llm"
	"github.com/GriffinCanCode/webclone/internal/providers/prompt"
	"github.com/GriffinCanCode/webclone/internal/providers/render"
	"github.com/GriffinCanCode/webclone/internal/shared/utils"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	orchestrator *clone.Orchestrator
	reporter     *health.Reporter
	renderer     render.Renderer
	provider     llm.Provider
	logger       *logging.Logger
	config       *config.Config
	metrics      *monitoring.Metrics
}

// NewServer creates a new server instance. Missing provider or render
// credentials do not fail startup; they are reported by /health.
func NewServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing webclone server",
		zap.String("port", cfg.Server.Port),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("render_mode", cfg.Render.Mode),
		zap.Duration("end_to_end_timeout", cfg.EndToEndTimeout()),
	)

	metrics := monitoring.NewMetrics()
	return newServer(cfg, logger, metrics)
}

// newServer builds the server around an existing logger and metrics set
func newServer(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics) (*Server, error) {
	renderer := render.New(render.Options{
		BaseURL:      cfg.Render.BaseURL,
		Token:        cfg.Render.Token,
		Mode:         cfg.Render.Mode,
		Timeout:      cfg.Render.Timeout,
		RetryBackoff: cfg.Render.RetryBackoff,
		MaxBytes:     cfg.Render.MaxBytes,
		HealthPath:   cfg.Render.HealthPath,
		Screenshot:   cfg.Render.Screenshot,
		JPEGQuality:  cfg.Render.JPEGQuality,
	}, logger, metrics)
	if !renderer.Configured() {
		logger.Warn("Render service is not configured; clones will fail until BROWSERLESS_API_KEY is set")
	}

	provider := llm.New(cfg.LLM, logger, metrics)
	if !provider.Configured() {
		logger.Warn("LLM provider is not configured", logging.Provider(provider.Name()))
	}

	builder, err := prompt.New(prompt.Options{
		PromptBudget:    cfg.LLM.PromptBudget,
		MaxOutputTokens: cfg.LLM.MaxOutputTokens,
	}, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt catalog: %w", err)
	}

	observer := resilience.WithGateObserver(metrics.SetGate, metrics.IncGateRejection)
	orchestrator := clone.NewOrchestrator(clone.Deps{
		Renderer: renderer,
		Extractor: extract.New(extract.Options{
			MaxDepth:   cfg.Extract.MaxDepth,
			MaxBytes:   cfg.Extract.MaxBytes,
			MaxTextLen: cfg.Extract.MaxTextLen,
			MaxNesting: cfg.Extract.MaxNesting,
		}, logger, metrics),
		Builder:  builder,
		Provider: provider,
		Sanitizer: clone.NewSanitizer(clone.SanitizerOptions{
			Strict:      cfg.Clone.SanitizeStrict,
			KeepScripts: cfg.Clone.KeepScripts,
		}, metrics),
	}, clone.Options{
		RenderTimeout:   cfg.Render.Timeout,
		ProviderTimeout: cfg.LLM.Timeout,
		Margin:          cfg.Clone.TimeoutMargin,
		URLPolicy:       utils.URLPolicy{AllowPrivate: cfg.Clone.AllowPrivate},
		RenderGate:      resilience.NewGate("render", cfg.Render.Concurrency, cfg.Render.QueueDepth, observer),
		ProviderGate:    resilience.NewGate("provider", cfg.LLM.Concurrency, cfg.LLM.QueueDepth, observer),
	}, logger).WithMetrics(metrics)

	reporter := health.NewReporter(renderer, provider, logger)

	s := &Server{
		orchestrator: orchestrator,
		reporter:     reporter,
		renderer:     renderer,
		provider:     provider,
		logger:       logger,
		config:       cfg,
		metrics:      metrics,
	}
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Clones hold the response open for the whole pipeline
		WriteTimeout: cfg.EndToEndTimeout() + 10*time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(logging.Middleware(s.logger.Named("http")))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.CORSFromOrigins(s.config.CORS.AllowOrigins)))

	handlers := apihttp.NewHandlers(s.orchestrator, s.reporter, s.config.Server.MaxBodyBytes, s.logger)
	stream := ws.NewHandler(s.orchestrator, s.config.CORS.AllowOrigins, s.logger, s.metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Clone endpoints are the expensive ones; only they are rate limited
	cloning := router.Group("/clone")
	if s.config.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", s.config.RateLimit.RequestsPerSecond),
			zap.Int("burst", s.config.RateLimit.Burst),
		)
		cloning.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: s.config.RateLimit.RequestsPerSecond,
			Burst:             s.config.RateLimit.Burst,
		}))
	}
	cloning.POST("", handlers.Clone)
	cloning.GET("/stream", stream.HandleConnection)

	return router
}

// Handler returns the root handler: the gin router behind gzip, with
// websocket upgrades passed straight through
func (s *Server) Handler() http.Handler {
	gz := gzhttp.GzipHandler(s.router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.router.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and blocks until it stops. A graceful Shutdown
// is not an error.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Graceful shutdown did not complete", zap.Error(err))
	}
	s.metrics.Close()
	_ = s.logger.Sync()
	return err
}
