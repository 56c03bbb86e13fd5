package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/webclone/internal/providers/llm"
)

//go:embed prompts.toml
var catalogTOML []byte

// Serialization formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatXML  = "xml"
)

// Catalog is the parsed prompts.toml
type Catalog struct {
	System struct {
		Rules string `toml:"rules"`
	} `toml:"system"`
	User struct {
		Intro      string `toml:"intro"`
		Screenshot string `toml:"screenshot"`
	} `toml:"user"`
	Reduction struct {
		TextCap int `toml:"text_cap"`
	} `toml:"reduction"`
	Providers map[string]ProviderProfile `toml:"providers"`
}

// ProviderProfile is one provider's serialization and budgets
type ProviderProfile struct {
	Format          string `toml:"format"`
	PromptBudget    int    `toml:"prompt_budget"`
	MaxOutputTokens int    `toml:"max_output_tokens"`
}

// LoadCatalog parses the embedded catalog
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogTOML)
}

// ParseCatalog parses and validates catalog data
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	c.System.Rules = strings.TrimSpace(c.System.Rules)
	if c.System.Rules == "" {
		return nil, fmt.Errorf("prompt catalog has no system rules")
	}
	if c.Reduction.TextCap <= 0 {
		c.Reduction.TextCap = 80
	}
	for _, kind := range llm.Kinds {
		p, ok := c.Providers[string(kind)]
		if !ok {
			return nil, fmt.Errorf("prompt catalog has no profile for %s", kind)
		}
		switch p.Format {
		case FormatJSON, FormatYAML, FormatXML:
		default:
			return nil, fmt.Errorf("prompt catalog: unknown format %q for %s", p.Format, kind)
		}
		if p.PromptBudget <= 0 {
			return nil, fmt.Errorf("prompt catalog: %s needs a positive prompt_budget", kind)
		}
	}
	return &c, nil
}

// Profile returns the profile of kind
func (c *Catalog) Profile(kind llm.Kind) (ProviderProfile, bool) {
	p, ok := c.Providers[string(kind)]
	return p, ok
}
