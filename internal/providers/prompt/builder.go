package prompt

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/providers/extract"
	"github.com/GriffinCanCode/webclone/internal/providers/llm"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// ErrBudgetTooSmall is returned when the instructions alone exceed the budget
var ErrBudgetTooSmall = errors.New("prompt budget is smaller than the instructions")

// Reduction step names, as reported to metrics
const (
	StepCollapse = "collapse"
	StepCapText  = "cap_text"
	StepDrop     = "drop_trailing"
)

// Options override the catalog budgets. Zero keeps the catalog value.
type Options struct {
	PromptBudget    int
	MaxOutputTokens int
	Counter         TokenCounter
}

// Builder assembles provider requests. Safe for concurrent use.
type Builder struct {
	catalog *Catalog
	opts    Options
	counter TokenCounter
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a builder over the embedded catalog
func New(opts Options, log *logging.Logger, metrics *monitoring.Metrics) (*Builder, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	return NewWithCatalog(catalog, opts, log, metrics), nil
}

// NewWithCatalog creates a builder over catalog
func NewWithCatalog(catalog *Catalog, opts Options, log *logging.Logger, metrics *monitoring.Metrics) *Builder {
	if log == nil {
		log = logging.NewNop()
	}
	counter := opts.Counter
	if counter == nil {
		counter = NewTokenCounter()
	}
	return &Builder{
		catalog: catalog,
		opts:    opts,
		counter: counter,
		log:     log.Named("prompt"),
		metrics: metrics,
	}
}

// Budget returns the effective input budget for kind
func (b *Builder) Budget(kind llm.Kind) int {
	if b.opts.PromptBudget > 0 {
		return b.opts.PromptBudget
	}
	p, _ := b.catalog.Profile(kind)
	return p.PromptBudget
}

// Counter returns the token counter in use
func (b *Builder) Counter() TokenCounter {
	return b.counter
}

// Build serializes model for kind and reduces it until system plus user
// prompt fit the budget. The caller's model is never modified.
func (b *Builder) Build(model *extract.PageModel, kind llm.Kind) (*llm.Request, error) {
	profile, ok := b.catalog.Profile(kind)
	if !ok {
		return nil, types.NewError(types.KindInternal, fmt.Sprintf("no prompt profile for provider %q", kind))
	}
	if model == nil {
		model = &extract.PageModel{Blocks: []extract.Block{}}
	}

	budget := b.Budget(kind)
	maxOutput := b.opts.MaxOutputTokens
	if maxOutput <= 0 {
		maxOutput = profile.MaxOutputTokens
	}

	system := b.catalog.System.Rules
	systemTokens := b.counter.Count(system)

	r := &reducer{
		builder: b,
		format:  profile.Format,
		budget:  budget - systemTokens,
	}
	// Instructions plus an empty page model must fit
	floor, err := r.cost(&extract.PageModel{URL: model.URL, Blocks: []extract.Block{}})
	if err != nil {
		return nil, types.WrapError(types.KindInternal, "failed to serialize page model", err)
	}
	if r.budget < floor {
		return nil, types.WrapError(types.KindInternal,
			fmt.Sprintf("instructions need %d tokens, budget is %d", systemTokens+floor, budget), ErrBudgetTooSmall)
	}

	user, userTokens, err := r.reduce(model.Clone())
	if err != nil {
		return nil, types.WrapError(types.KindInternal, "failed to build prompt", err)
	}

	total := systemTokens + userTokens
	b.metrics.RecordPrompt(string(kind), total)
	b.log.Debug("Prompt built",
		logging.Provider(string(kind)),
		zap.String("format", profile.Format),
		zap.Int("tokens", total),
		zap.Int("budget", budget),
		zap.Strings("reductions", r.applied))

	return &llm.Request{
		Provider:        kind,
		System:          system,
		User:            user,
		MaxOutputTokens: maxOutput,
		EstimatedTokens: total,
		ImageCaption:    b.catalog.User.Screenshot,
	}, nil
}

// reducer applies the budget reduction steps to one model
type reducer struct {
	builder *Builder
	format  string
	budget  int
	applied []string
}

func (r *reducer) render(model *extract.PageModel) (string, error) {
	body, err := serialize(model, r.format)
	if err != nil {
		return "", err
	}
	return r.builder.catalog.User.Intro + "\n\n" + body, nil
}

func (r *reducer) cost(model *extract.PageModel) (int, error) {
	user, err := r.render(model)
	if err != nil {
		return 0, err
	}
	return r.builder.counter.Count(user), nil
}

// fits renders model and reports whether it is within budget
func (r *reducer) fits(model *extract.PageModel) (string, int, bool, error) {
	user, err := r.render(model)
	if err != nil {
		return "", 0, false, err
	}
	tokens := r.builder.counter.Count(user)
	return user, tokens, tokens <= r.budget, nil
}

func (r *reducer) note(step string) {
	if len(r.applied) == 0 || r.applied[len(r.applied)-1] != step {
		r.applied = append(r.applied, step)
		r.builder.metrics.IncPromptReduction(step)
	}
}

func (r *reducer) reduce(model *extract.PageModel) (string, int, error) {
	user, tokens, ok, err := r.fits(model)
	if err != nil || ok {
		return user, tokens, err
	}

	// 1. Collapse container levels, deepest first, up to the top level
	for depth := deepestContainer(model.Blocks, 1); depth >= 1; depth-- {
		model.Blocks = collapseAt(model.Blocks, depth, 1)
		r.note(StepCollapse)
		if user, tokens, ok, err = r.fits(model); err != nil || ok {
			return user, tokens, err
		}
	}

	// 2. Cap every text
	capTexts(model, r.builder.catalog.Reduction.TextCap)
	r.note(StepCapText)
	if user, tokens, ok, err = r.fits(model); err != nil || ok {
		return user, tokens, err
	}

	// 3. Drop trailing top-level blocks behind one placeholder
	r.note(StepDrop)
	all := model.Blocks
	var failure error
	// Smallest number of dropped blocks that fits
	drop := sort.Search(len(all)+1, func(k int) bool {
		if failure != nil {
			return true
		}
		_, _, fit, err := r.fits(withPrefix(model, all, len(all)-k))
		if err != nil {
			failure = err
		}
		return fit
	})
	if failure != nil {
		return "", 0, failure
	}
	if drop <= len(all) {
		if user, tokens, ok, err = r.fits(withPrefix(model, all, len(all)-drop)); err != nil || ok {
			return user, tokens, err
		}
	}

	// Only the page metadata is left to give up
	bare := withPrefix(model, all, 0)
	bare.Title, bare.Description = "", ""
	if user, tokens, ok, err = r.fits(bare); err != nil || ok {
		return user, tokens, err
	}
	return "", 0, ErrBudgetTooSmall
}

// withPrefix returns model with only the first n top-level blocks plus an
// omission placeholder when any were dropped
func withPrefix(model *extract.PageModel, all []extract.Block, n int) *extract.PageModel {
	out := *model
	out.Blocks = append([]extract.Block{}, all[:n]...)
	if dropped := len(all) - n; dropped > 0 {
		out.Blocks = append(out.Blocks, extract.Block{
			Kind: extract.KindContainer,
			Text: fmt.Sprintf("%d items omitted", dropped),
		})
		out.Truncated = true
	}
	return &out
}

// deepestContainer returns the deepest depth holding a container with children
func deepestContainer(blocks []extract.Block, depth int) int {
	deepest := 0
	for i := range blocks {
		b := &blocks[i]
		if b.Kind != extract.KindContainer || len(b.Children) == 0 {
			continue
		}
		if depth > deepest {
			deepest = depth
		}
		if d := deepestContainer(b.Children, depth+1); d > deepest {
			deepest = d
		}
	}
	return deepest
}

// collapseAt replaces every container at target depth with an "N items"
// placeholder counting its descendants
func collapseAt(blocks []extract.Block, target, depth int) []extract.Block {
	out := make([]extract.Block, len(blocks))
	for i, b := range blocks {
		if b.Kind == extract.KindContainer && len(b.Children) > 0 {
			if depth == target {
				b = extract.Block{
					Kind:     extract.KindContainer,
					Landmark: b.Landmark,
					Style:    b.Style,
					Text:     fmt.Sprintf("%d items", countBlocks(b.Children)),
				}
			} else {
				b.Children = collapseAt(b.Children, target, depth+1)
			}
		}
		out[i] = b
	}
	return out
}

func countBlocks(blocks []extract.Block) int {
	n := len(blocks)
	for i := range blocks {
		n += countBlocks(blocks[i].Children)
	}
	return n
}

func capTexts(model *extract.PageModel, n int) {
	model.Title = capRunes(model.Title, n)
	model.Description = capRunes(model.Description, n)
	var walk func([]extract.Block)
	walk = func(blocks []extract.Block) {
		for i := range blocks {
			blocks[i].Text = capRunes(blocks[i].Text, n)
			blocks[i].Alt = capRunes(blocks[i].Alt, n)
			walk(blocks[i].Children)
		}
	}
	walk(model.Blocks)
}

func capRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
