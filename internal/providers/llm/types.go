package llm

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
)

// Kind identifies a provider variant
type Kind string

const (
	KindAzureOpenAI Kind = "azure_openai"
	KindAnthropic   Kind = "anthropic"
	KindGemini      Kind = "gemini"
)

// Kinds lists every supported variant
var Kinds = []Kind{KindAzureOpenAI, KindAnthropic, KindGemini}

// ParseKind maps a configured identifier onto a Kind
func ParseKind(s string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

// Default output ceilings per variant
var DefaultMaxOutputTokens = map[Kind]int{
	KindAzureOpenAI: 8000,
	KindAnthropic:   4000,
	KindGemini:      8192,
}

const (
	DefaultTimeout   = 120 * time.Second
	DefaultRetryWait = time.Second
)

// Request is one generation call. Built fresh for every attempt.
type Request struct {
	Provider        Kind
	System          string
	User            string
	MaxOutputTokens int
	EstimatedTokens int

	// Images are sent after the user prompt, each preceded by ImageCaption.
	// EstimatedTokens does not account for them.
	Images       []Image
	ImageCaption string
}

// Image is an inline image attachment such as a page screenshot
type Image struct {
	MIMEType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the image bytes
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI returns the image as a data: URI
func (i Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// caption is the text preceding every attached image
func (r *Request) caption() string {
	if r.ImageCaption != "" {
		return r.ImageCaption
	}
	return "Here is a screenshot of the original page."
}

// Provider generates markup from a prompt
type Provider interface {
	// Generate returns the model's text with markdown fences removed
	Generate(ctx context.Context, req *Request) (string, error)
	Name() string
	Kind() Kind
	Configured() bool
	BreakerState() resilience.State
}

// Settings are shared by every variant
type Settings struct {
	Timeout         time.Duration
	RetryWait       time.Duration
	MaxOutputTokens int
}

func (s Settings) withDefaults() Settings {
	if s.Timeout <= 0 {
		s.Timeout = DefaultTimeout
	}
	if s.RetryWait <= 0 {
		s.RetryWait = DefaultRetryWait
	}
	return s
}

// StripFences removes a surrounding markdown code fence such as ```html
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// Drop the info string on the opening line
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		if info := strings.TrimSpace(t[:nl]); !strings.ContainsAny(info, "<>") {
			t = t[nl+1:]
		}
	} else {
		t = strings.TrimPrefix(t, "html")
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
