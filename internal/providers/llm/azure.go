package llm

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/config"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
)

// AzureOpenAI generates through an Azure-hosted chat completions deployment
type AzureOpenAI struct {
	shell
	client     openai.Client
	deployment string
	ok         bool
}

// NewAzureOpenAI creates the azure_openai variant
func NewAzureOpenAI(cfg config.AzureConfig, s Settings, log *logging.Logger, metrics *monitoring.Metrics) *AzureOpenAI {
	p := &AzureOpenAI{
		shell:      newShell(KindAzureOpenAI, s, log, metrics),
		deployment: cfg.Deployment,
		ok:         cfg.Endpoint != "" && cfg.APIKey != "" && cfg.Deployment != "",
	}

	p.client = openai.NewClient(
		azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
		azure.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(p.http),
		option.WithMaxRetries(0),
	)
	return p
}

// Configured reports whether endpoint, key and deployment are set
func (p *AzureOpenAI) Configured() bool { return p.ok }

// Generate sends a system and a user message to the deployment
func (p *AzureOpenAI) Generate(ctx context.Context, req *Request) (string, error) {
	return p.generate(ctx, req, func(ctx context.Context, maxTokens int) (string, error) {
		resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(p.deployment),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(req.System),
				azureUserMessage(req),
			},
			MaxTokens: openai.Int(int64(maxTokens)),
		})
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) {
				return "", fromStatus(KindAzureOpenAI, apiErr.StatusCode, err)
			}
			return "", err
		}

		if len(resp.Choices) == 0 {
			return "", nil
		}
		choice := resp.Choices[0]
		if choice.FinishReason == "content_filter" {
			return "", rejected(KindAzureOpenAI, "content filter")
		}
		if choice.Message.Refusal != "" {
			return "", rejected(KindAzureOpenAI, choice.Message.Refusal)
		}
		return choice.Message.Content, nil
	})
}

// azureUserMessage inlines images as data URI parts
func azureUserMessage(req *Request) openai.ChatCompletionMessageParamUnion {
	if len(req.Images) == 0 {
		return openai.UserMessage(req.User)
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		{OfText: &openai.ChatCompletionContentPartTextParam{Text: req.User}},
	}
	for _, img := range req.Images {
		parts = append(parts,
			openai.ChatCompletionContentPartUnionParam{
				OfText: &openai.ChatCompletionContentPartTextParam{Text: req.caption()},
			},
			openai.ChatCompletionContentPartUnionParam{
				OfImageURL: &openai.ChatCompletionContentPartImageParam{
					ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: img.DataURI()},
				},
			})
	}
	return openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{OfArrayOfContentParts: parts},
		},
	}
}
