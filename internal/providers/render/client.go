package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// contentRequest is the browserless /content payload
type contentRequest struct {
	URL         string      `json:"url"`
	GotoOptions gotoOptions `json:"gotoOptions"`
	BestAttempt bool        `json:"bestAttempt"`
}

type gotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int64  `json:"timeout"`
}

// Client renders pages through the service's /content endpoint
type Client struct {
	opts    Options
	resty   *resty.Client
	probeC  *resty.Client
	breaker *resilience.Breaker
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates the renderer selected by opts.Mode
func New(opts Options, log *logging.Logger, metrics *monitoring.Metrics) Renderer {
	opts = opts.withDefaults()
	if opts.Mode == ModeCDP {
		return NewCDPClient(opts, log, metrics)
	}
	return NewClient(opts, log, metrics)
}

// NewClient creates a content-mode client
func NewClient(opts Options, log *logging.Logger, metrics *monitoring.Metrics) *Client {
	opts = opts.withDefaults()
	if log == nil {
		log = logging.NewNop()
	}
	log = log.Named("render")

	c := &Client{
		opts:    opts,
		log:     log,
		metrics: metrics,
		breaker: newBreaker(metrics, log),
		probeC:  newProbeClient(opts),
	}

	// Pooled transport from retryablehttp; retries are driven by resty below
	base := retryablehttp.NewClient().HTTPClient.Transport

	c.resty = resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTransport(&limitTransport{base: base, max: opts.MaxBytes}).
		SetJSONMarshaler(sonic.ConfigStd.Marshal).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetRetryCount(1).
		SetRetryWaitTime(opts.RetryBackoff).
		SetRetryMaxWaitTime(opts.RetryBackoff).
		AddRetryCondition(c.shouldRetry).
		AddRetryHook(func(resp *resty.Response, err error) {
			c.metrics.IncRenderRetry()
			fields := []zap.Field{zap.Error(err)}
			if resp != nil {
				fields = append(fields, zap.Int("status", resp.StatusCode()))
			}
			c.log.Warn("Retrying render after transient failure", fields...)
		})

	return c
}

func newBreaker(metrics *monitoring.Metrics, log *logging.Logger) *resilience.Breaker {
	return resilience.New("render", resilience.UpstreamSettings(breakerSuccess, func(name string, from, to resilience.State) {
		metrics.RecordBreakerTransition(name, to.String())
		log.Warn("Circuit breaker state change",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}))
}

// shouldRetry retries once on transport errors and 5xx. Deadline errors are
// terminal: the render timeout is a hard wall-clock bound.
func (c *Client) shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		if resp != nil && resp.Request != nil && resp.Request.Context().Err() != nil {
			return false
		}
		return !isDeadline(err)
	}
	return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
}

// Render fetches the rendered DOM of target
func (c *Client) Render(ctx context.Context, target types.NormalizedURL, timeout time.Duration) (*Page, error) {
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := resilience.Call(c.breaker, func() (*Page, error) {
		return c.fetch(ctx, target, timeout)
	})
	if err != nil {
		return nil, classify(ctx, err, "render service is unavailable")
	}
	c.metrics.RecordRender(len(page.HTML), page.Truncated)
	return page, nil
}

func (c *Client) fetch(ctx context.Context, target types.NormalizedURL, timeout time.Duration) (*Page, error) {
	start := time.Now()

	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParam("token", c.opts.Token).
		SetBody(contentRequest{
			URL: target.String(),
			GotoOptions: gotoOptions{
				WaitUntil: "networkidle2",
				Timeout:   timeout.Milliseconds(),
			},
			BestAttempt: true,
		}).
		Post("/content")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("render request: %w", err)
	}

	status := resp.StatusCode()
	switch {
	case status >= http.StatusInternalServerError:
		return nil, types.NewError(types.KindRenderUnavailable,
			fmt.Sprintf("render service failed twice (status %d)", status))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, types.NewError(types.KindRenderUnavailable,
			fmt.Sprintf("render service rejected the credentials (status %d)", status))
	case status >= http.StatusBadRequest:
		return nil, types.NewError(types.KindRenderUnavailable,
			fmt.Sprintf("render service rejected the request (status %d)", status))
	}

	overflow := resp.Header().Get(overflowHeader) != ""
	contentType := resp.Header().Get("Content-Type")
	html, truncated, err := snapshot(resp.Body(), contentType, c.opts.MaxBytes, overflow)
	if err != nil {
		return nil, err
	}

	page := &Page{
		FinalURL:    target.String(),
		HTML:        html,
		StatusCode:  status,
		Duration:    time.Since(start),
		Truncated:   truncated,
		ContentType: contentType,
	}
	// browserless reports the navigated page's outcome in headers
	if u := resp.Header().Get("X-Response-URL"); u != "" {
		page.FinalURL = u
	}
	if code, err := strconv.Atoi(resp.Header().Get("X-Response-Code")); err == nil && code > 0 {
		page.StatusCode = code
	}

	if c.opts.Screenshot {
		c.attachScreenshot(ctx, target, timeout, page)
	}

	c.log.Debug("Render complete",
		logging.URL(target.String()),
		zap.Int("bytes", len(html)),
		zap.Bool("truncated", truncated),
		zap.Int("screenshot_bytes", len(page.Screenshot)),
		logging.Duration(page.Duration))
	return page, nil
}

// Probe checks the service health endpoint
func (c *Client) Probe(ctx context.Context) error {
	return probe(ctx, c.probeC, c.opts)
}

// Configured reports whether endpoint and token are set
func (c *Client) Configured() bool {
	return c.opts.BaseURL != "" && c.opts.Token != ""
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() resilience.State {
	return c.breaker.State()
}

// Mode returns the transport mode
func (c *Client) Mode() string { return ModeContent }

// newProbeClient builds a retry-free client for health probes
func newProbeClient(opts Options) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetHeader("User-Agent", opts.UserAgent)
}

func probe(ctx context.Context, client *resty.Client, opts Options) error {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	resp, err := client.R().
		SetContext(ctx).
		SetQueryParam("token", opts.Token).
		Get(opts.HealthPath)
	if err != nil {
		return fmt.Errorf("render probe: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("render probe: status %d", resp.StatusCode())
	}
	return nil
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// overflowHeader is set on responses whose body was cut at the ceiling
const overflowHeader = "X-Webclone-Truncated"

// limitTransport caps response bodies at max bytes and marks the cut
type limitTransport struct {
	base http.RoundTripper
	max  int64
}

func (t *limitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil || resp.Body == nil {
		return resp, err
	}
	if resp.ContentLength > t.max {
		resp.Header.Set(overflowHeader, "1")
	}
	resp.Body = &limitedBody{ReadCloser: resp.Body, remaining: t.max, resp: resp}
	return resp, nil
}

// limitedBody reads up to remaining bytes, then reports EOF and flags the
// response if more data was pending.
type limitedBody struct {
	io.ReadCloser
	remaining int64
	resp      *http.Response
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		var probe [1]byte
		if n, _ := b.ReadCloser.Read(probe[:]); n > 0 {
			b.resp.Header.Set(overflowHeader, "1")
		}
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	return n, err
}
