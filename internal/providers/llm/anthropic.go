package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/config"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
)

// Anthropic generates through the Messages API
type Anthropic struct {
	shell
	client anthropic.Client
	model  string
	ok     bool
}

// NewAnthropic creates the anthropic variant
func NewAnthropic(cfg config.AnthropicConfig, s Settings, log *logging.Logger, metrics *monitoring.Metrics) *Anthropic {
	p := &Anthropic{
		shell: newShell(KindAnthropic, s, log, metrics),
		model: cfg.Model,
		ok:    cfg.APIKey != "",
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(p.http),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	p.client = anthropic.NewClient(opts...)
	return p
}

// Configured reports whether an API key is set
func (p *Anthropic) Configured() bool { return p.ok }

// Generate sends the system and user prompt as one message
func (p *Anthropic) Generate(ctx context.Context, req *Request) (string, error) {
	return p.generate(ctx, req, func(ctx context.Context, maxTokens int) (string, error) {
		resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     anthropic.Model(p.model),
			MaxTokens: int64(maxTokens),
			System:    []anthropic.TextBlockParam{{Text: req.System}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropicBlocks(req)...),
			},
		})
		if err != nil {
			var apiErr *anthropic.Error
			if errors.As(err, &apiErr) {
				return "", fromStatus(KindAnthropic, apiErr.StatusCode, err)
			}
			return "", err
		}

		if string(resp.StopReason) == "refusal" {
			return "", rejected(KindAnthropic, "refusal stop reason")
		}

		var out strings.Builder
		for _, block := range resp.Content {
			if text, ok := block.AsAny().(anthropic.TextBlock); ok {
				out.WriteString(text.Text)
			}
		}
		return out.String(), nil
	})
}

// anthropicBlocks returns the user prompt followed by base64 image blocks
func anthropicBlocks(req *Request) []anthropic.ContentBlockParamUnion {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.User)}
	for _, img := range req.Images {
		blocks = append(blocks,
			anthropic.NewTextBlock(req.caption()),
			anthropic.NewImageBlockBase64(img.MIMEType, img.Base64()))
	}
	return blocks
}
