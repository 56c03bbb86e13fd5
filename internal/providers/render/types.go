package render

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// Transport modes
const (
	ModeContent = "content"
	ModeCDP     = "cdp"
)

// Defaults applied by New when Options leave a field zero
const (
	DefaultTimeout      = 45 * time.Second
	DefaultRetryBackoff = 500 * time.Millisecond
	DefaultMaxBytes     = 5 * 1024 * 1024
	DefaultHealthPath   = "/active"
	DefaultJPEGQuality  = 80
	ProbeTimeout        = 2 * time.Second
)

// Page is the rendered snapshot of a target URL. Immutable once produced.
type Page struct {
	FinalURL    string
	HTML        string
	StatusCode  int
	Duration    time.Duration
	Truncated   bool
	ContentType string

	// Screenshot is a full-page capture, present only when enabled and the
	// capture succeeded
	Screenshot     []byte
	ScreenshotType string
}

// Renderer fetches rendered pages from the remote service
type Renderer interface {
	// Render returns the DOM snapshot of target or a *types.Error of kind
	// RenderTimeout or RenderUnavailable.
	Render(ctx context.Context, target types.NormalizedURL, timeout time.Duration) (*Page, error)
	// Probe checks that the service answers its health endpoint
	Probe(ctx context.Context) error
	// Configured reports whether endpoint and token are set
	Configured() bool
	BreakerState() resilience.State
	Mode() string
}

// Options configures a Renderer
type Options struct {
	BaseURL      string
	Token        string
	Mode         string
	Timeout      time.Duration
	RetryBackoff time.Duration
	MaxBytes     int64
	HealthPath   string
	UserAgent    string

	// Screenshot adds a full-page JPEG capture to every render
	Screenshot  bool
	JPEGQuality int
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeContent
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = DefaultRetryBackoff
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.HealthPath == "" {
		o.HealthPath = DefaultHealthPath
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	if o.UserAgent == "" {
		o.UserAgent = "webclone-render/1.0"
	}
	return o
}

// classify maps a failed attempt onto the render error kinds. ctx is the
// attempt context carrying the render deadline.
func classify(ctx context.Context, err error, msg string) *types.Error {
	var typed *types.Error
	if errors.As(err, &typed) {
		return typed
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.WrapError(types.KindRenderTimeout, "render service did not answer before the deadline", err)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return types.WrapError(types.KindRenderUnavailable, "render service is temporarily disabled after repeated failures", err)
	}
	return types.WrapError(types.KindRenderUnavailable, msg, err)
}

// breakerSuccess keeps caller cancellation out of the breaker's failure count
func breakerSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
