package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/config"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// Gemini generates through the Gemini API
type Gemini struct {
	shell
	cfg config.GeminiConfig

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini creates the gemini variant. The SDK client is built on first use.
func NewGemini(cfg config.GeminiConfig, s Settings, log *logging.Logger, metrics *monitoring.Metrics) *Gemini {
	return &Gemini{
		shell: newShell(KindGemini, s, log, metrics),
		cfg:   cfg,
	}
}

// Configured reports whether an API key is set
func (p *Gemini) Configured() bool { return p.cfg.APIKey != "" }

func (p *Gemini) initClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.http,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.cfg.BaseURL},
	})
	if err != nil {
		return nil, types.WrapError(types.KindProviderUnavailable, "failed to create gemini client", err)
	}
	p.client = client
	return client, nil
}

// Generate sends the user prompt with the system prompt as instruction
func (p *Gemini) Generate(ctx context.Context, req *Request) (string, error) {
	return p.generate(ctx, req, func(ctx context.Context, maxTokens int) (string, error) {
		client, err := p.initClient(ctx)
		if err != nil {
			return "", err
		}

		resp, err := client.Models.GenerateContent(ctx, p.cfg.Model, geminiContents(req), &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
			MaxOutputTokens:   int32(maxTokens),
		})
		if err != nil {
			if status, ok := apiStatus(err); ok {
				return "", fromStatus(KindGemini, status, err)
			}
			return "", err
		}

		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", rejected(KindGemini, fmt.Sprintf("prompt blocked (%s)", resp.PromptFeedback.BlockReason))
		}
		if len(resp.Candidates) > 0 {
			switch reason := resp.Candidates[0].FinishReason; reason {
			case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
				return "", rejected(KindGemini, fmt.Sprintf("finish reason %s", reason))
			}
		}
		return resp.Text(), nil
	})
}

// geminiContents builds the single user turn with any images inline
func geminiContents(req *Request) []*genai.Content {
	if len(req.Images) == 0 {
		return genai.Text(req.User)
	}
	parts := []*genai.Part{genai.NewPartFromText(req.User)}
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromText(req.caption()), genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func apiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code, true
	}
	return 0, false
}
