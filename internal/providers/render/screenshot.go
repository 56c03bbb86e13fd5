package render

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// screenshotRequest is the browserless /screenshot payload
type screenshotRequest struct {
	URL         string            `json:"url"`
	Options     screenshotOptions `json:"options"`
	GotoOptions gotoOptions       `json:"gotoOptions"`
	BestAttempt bool              `json:"bestAttempt"`
}

type screenshotOptions struct {
	Type     string `json:"type"`
	Quality  int    `json:"quality"`
	FullPage bool   `json:"fullPage"`
}

var errNotImage = errors.New("screenshot payload is not an image")

// attachScreenshot captures target onto page. A failed capture leaves the
// page without a screenshot; the DOM snapshot still stands.
func (c *Client) attachScreenshot(ctx context.Context, target types.NormalizedURL, timeout time.Duration, page *Page) {
	data, mime, err := c.screenshot(ctx, target, timeout)
	if err != nil {
		c.metrics.RecordScreenshot("failed")
		c.log.Warn("Screenshot capture failed, continuing without it", logging.URL(target.String()), zap.Error(err))
		return
	}
	c.metrics.RecordScreenshot("ok")
	page.Screenshot, page.ScreenshotType = data, mime
}

func (c *Client) screenshot(ctx context.Context, target types.NormalizedURL, timeout time.Duration) ([]byte, string, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetQueryParam("token", c.opts.Token).
		SetBody(screenshotRequest{
			URL: target.String(),
			Options: screenshotOptions{
				Type:     "jpeg",
				Quality:  c.opts.JPEGQuality,
				FullPage: true,
			},
			GotoOptions: gotoOptions{
				WaitUntil: "networkidle2",
				Timeout:   timeout.Milliseconds(),
			},
			BestAttempt: true,
		}).
		Post("/screenshot")
	if err != nil {
		return nil, "", fmt.Errorf("screenshot request: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("screenshot request: status %d", resp.StatusCode())
	}
	if resp.Header().Get(overflowHeader) != "" {
		return nil, "", fmt.Errorf("screenshot exceeds %d bytes", c.opts.MaxBytes)
	}
	return checkImage(resp.Body())
}

// checkImage accepts only payloads whose bytes sniff as an image
func checkImage(data []byte) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", errNotImage
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "", fmt.Errorf("%w (%s)", errNotImage, mt.String())
	}
	return data, mt.String(), nil
}
