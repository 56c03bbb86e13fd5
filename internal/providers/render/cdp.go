package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// CDPClient renders pages by driving the service's DevTools websocket
type CDPClient struct {
	opts    Options
	probeC  *resty.Client
	breaker *resilience.Breaker
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewCDPClient creates a cdp-mode client
func NewCDPClient(opts Options, log *logging.Logger, metrics *monitoring.Metrics) *CDPClient {
	opts = opts.withDefaults()
	if log == nil {
		log = logging.NewNop()
	}
	log = log.Named("render.cdp")

	return &CDPClient{
		opts:    opts,
		log:     log,
		metrics: metrics,
		breaker: newBreaker(metrics, log),
		probeC:  newProbeClient(opts),
	}
}

// Render navigates to target and exports the document's outer HTML. A
// non-deadline failure is retried once after the backoff.
func (c *CDPClient) Render(ctx context.Context, target types.NormalizedURL, timeout time.Duration) (*Page, error) {
	if timeout <= 0 {
		timeout = c.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := resilience.Call(c.breaker, func() (*Page, error) {
		page, err := c.navigate(ctx, target)
		if err == nil || ctx.Err() != nil {
			return page, err
		}
		var typed *types.Error
		if errors.As(err, &typed) {
			return nil, err
		}

		c.metrics.IncRenderRetry()
		c.log.Warn("Retrying render after transient failure", logging.URL(target.String()), zap.Error(err))
		select {
		case <-time.After(c.opts.RetryBackoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return c.navigate(ctx, target)
	})
	if err != nil {
		return nil, classify(ctx, err, "render service is unavailable")
	}
	c.metrics.RecordRender(len(page.HTML), page.Truncated)
	return page, nil
}

func (c *CDPClient) navigate(ctx context.Context, target types.NormalizedURL) (*Page, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, c.websocketURL())
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	start := time.Now()
	var html, finalURL string

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(target.String()),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	out, truncated, err := snapshot([]byte(html), "text/html; charset=utf-8", c.opts.MaxBytes, false)
	if err != nil {
		return nil, err
	}
	if finalURL == "" {
		finalURL = target.String()
	}

	var shot []byte
	if c.opts.Screenshot {
		if err := chromedp.Run(tabCtx, chromedp.FullScreenshot(&shot, c.opts.JPEGQuality)); err != nil {
			c.metrics.RecordScreenshot("failed")
			c.log.Warn("Screenshot capture failed, continuing without it", logging.URL(target.String()), zap.Error(err))
			shot = nil
		}
	}

	page := &Page{
		FinalURL:    finalURL,
		HTML:        out,
		StatusCode:  200,
		Duration:    time.Since(start),
		Truncated:   truncated,
		ContentType: "text/html; charset=utf-8",
	}
	if len(shot) > 0 {
		if data, mime, err := checkImage(shot); err == nil {
			c.metrics.RecordScreenshot("ok")
			page.Screenshot, page.ScreenshotType = data, mime
		}
	}
	c.log.Debug("CDP render complete",
		logging.URL(target.String()),
		zap.Int("bytes", len(out)),
		logging.Duration(page.Duration))
	return page, nil
}

// websocketURL maps the HTTP base URL onto the service's DevTools endpoint
func (c *CDPClient) websocketURL() string {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return c.opts.BaseURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	q := u.Query()
	if c.opts.Token != "" {
		q.Set("token", c.opts.Token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Probe checks the service health endpoint
func (c *CDPClient) Probe(ctx context.Context) error {
	return probe(ctx, c.probeC, c.opts)
}

// Configured reports whether endpoint and token are set
func (c *CDPClient) Configured() bool {
	return c.opts.BaseURL != "" && c.opts.Token != ""
}

// BreakerState returns the current circuit breaker state
func (c *CDPClient) BreakerState() resilience.State {
	return c.breaker.State()
}

// Mode returns the transport mode
func (c *CDPClient) Mode() string { return ModeCDP }
