package llm

import (
	"github.com/GriffinCanCode/webclone/internal/infrastructure/config"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
)

// New resolves the configured provider. Missing credentials or an unknown
// identifier yield a Disabled provider rather than an error so the service
// can start and report itself unhealthy.
func New(cfg config.LLMConfig, log *logging.Logger, metrics *monitoring.Metrics) Provider {
	if log == nil {
		log = logging.NewNop()
	}

	s := Settings{
		Timeout:         cfg.Timeout,
		RetryWait:       cfg.RetryWait,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}

	kind, ok := ParseKind(cfg.Provider)
	if !ok {
		log.Error("Unknown LLM provider, generation disabled", logging.Provider(cfg.Provider))
		return NewDisabled(Kind(cfg.Provider), "unknown provider")
	}

	var p Provider
	switch kind {
	case KindGemini:
		p = NewGemini(cfg.Gemini, s, log, metrics)
	case KindAnthropic:
		p = NewAnthropic(cfg.Anthropic, s, log, metrics)
	default:
		p = NewAzureOpenAI(cfg.Azure, s, log, metrics)
	}

	if !p.Configured() {
		reason := missingCredentials(kind)
		log.Warn("LLM provider credentials missing, generation disabled",
			logging.Provider(string(kind)))
		return NewDisabled(kind, reason)
	}

	log.Info("LLM provider selected", logging.Provider(string(kind)))
	return p
}

func missingCredentials(kind Kind) string {
	switch kind {
	case KindGemini:
		return "GEMINI_API_KEY is not set"
	case KindAnthropic:
		return "ANTHROPIC_API_KEY is not set"
	}
	return "AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY and AZURE_OPENAI_DEPLOYMENT_NAME must be set"
}
