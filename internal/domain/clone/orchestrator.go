package clone

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webclone/internal/providers/extract"
	"github.com/GriffinCanCode/webclone/internal/providers/llm"
	"github.com/GriffinCanCode/webclone/internal/providers/render"
	"github.com/GriffinCanCode/webclone/internal/shared/id"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
	"github.com/GriffinCanCode/webclone/internal/shared/utils"
)

// Renderer fetches the rendered DOM of a page
type Renderer interface {
	Render(ctx context.Context, target types.NormalizedURL, timeout time.Duration) (*render.Page, error)
}

// Extractor distils a rendered page
type Extractor interface {
	Extract(page *render.Page) *extract.PageModel
}

// PromptBuilder builds the provider request for a page model
type PromptBuilder interface {
	Build(model *extract.PageModel, kind llm.Kind) (*llm.Request, error)
}

// Generator produces markup from a request
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (string, error)
	Kind() llm.Kind
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Renderer  Renderer
	Extractor Extractor
	Builder   PromptBuilder
	Provider  Generator
	Sanitizer *Sanitizer
}

// Options bound one clone
type Options struct {
	RenderTimeout   time.Duration
	ProviderTimeout time.Duration
	Margin          time.Duration
	URLPolicy       utils.URLPolicy

	RenderGate   *resilience.Gate
	ProviderGate *resilience.Gate
}

// Orchestrator runs clone requests. Safe for concurrent use; no state is
// shared between requests.
type Orchestrator struct {
	deps    Deps
	opts    Options
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewOrchestrator creates an orchestrator. Missing gates are created with a
// capacity of one and no queue.
func NewOrchestrator(deps Deps, opts Options, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NewNop()
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = render.DefaultTimeout
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = llm.DefaultTimeout
	}
	if opts.RenderGate == nil {
		opts.RenderGate = resilience.NewGate("render", 1, 0)
	}
	if opts.ProviderGate == nil {
		opts.ProviderGate = resilience.NewGate("provider", 1, 0)
	}
	if deps.Sanitizer == nil {
		deps.Sanitizer = NewSanitizer(SanitizerOptions{}, nil)
	}
	return &Orchestrator{deps: deps, opts: opts, log: log.Named("clone")}
}

// WithMetrics adds metrics tracking to the orchestrator
func (o *Orchestrator) WithMetrics(metrics *monitoring.Metrics) *Orchestrator {
	o.metrics = metrics
	return o
}

// Timeout is the end-to-end bound of one clone
func (o *Orchestrator) Timeout() time.Duration {
	return o.opts.RenderTimeout + o.opts.ProviderTimeout + o.opts.Margin
}

// ProviderName identifies the provider behind the orchestrator
func (o *Orchestrator) ProviderName() string {
	return string(o.deps.Provider.Kind())
}

// run is the state of one clone
type run struct {
	id      string
	start   time.Time
	stage   Stage
	timer   *monitoring.Timer
	timings []types.StageTiming
	observe StageObserver
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// close records the timing of the stage being left
func (r *run) close() {
	if r.timer == nil {
		return
	}
	d := r.timer.Stop()
	r.timings = append(r.timings, types.StageTiming{Stage: string(r.stage), DurationMs: d.Milliseconds()})
	r.timer = nil
}

func (r *run) enter(stage Stage) {
	r.close()
	r.stage = stage
	if !stage.Terminal() {
		r.timer = monitoring.NewTimer(r.metrics, string(stage))
	}
	r.log.Debug("Clone stage", logging.Stage(string(stage)))
	if r.observe != nil {
		r.observe(Event{CloneID: r.id, Stage: stage, Elapsed: time.Since(r.start)})
	}
}

func (r *run) fail(kind types.ErrorKind, message string) {
	r.close()
	r.stage = StageFailed
	if r.observe != nil {
		r.observe(Event{CloneID: r.id, Stage: StageFailed, Elapsed: time.Since(r.start), Kind: kind, Message: message})
	}
}

// Clone runs req through the pipeline. It never panics and never returns
// without a result.
func (o *Orchestrator) Clone(ctx context.Context, req types.CloneRequest, observe StageObserver) (result types.CloneResult) {
	cloneID := id.NewCloneID().String()
	r := &run{
		id:      cloneID,
		start:   time.Now(),
		observe: observe,
		log:     o.log.With(logging.CloneID(cloneID)),
		metrics: o.metrics,
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("Clone panicked",
				logging.Stage(string(r.stage)),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()))
			msg := "unexpected internal error"
			result = types.Failure(cloneID, types.KindInternal, msg)
			r.fail(types.KindInternal, msg)
		}
		result.Stages = r.timings
		outcome := "ok"
		if !result.OK() {
			outcome = string(result.Kind())
		}
		elapsed := time.Since(r.start)
		o.metrics.RecordClone(o.ProviderName(), outcome, elapsed)
		r.log.Info("Clone finished",
			logging.Kind(outcome),
			logging.Duration(elapsed))
	}()

	ctx, cancel := context.WithTimeout(ctx, o.Timeout())
	defer cancel()

	target, markup, err := o.pipeline(ctx, r, req)
	if err != nil {
		kind := types.KindOf(err)
		msg := types.MessageOf(err)
		if kind == types.KindInternal {
			r.log.Error("Clone failed with internal error", zap.Error(err))
		} else {
			r.log.Warn("Clone failed", logging.Kind(string(kind)), zap.Error(err))
		}
		r.fail(kind, msg)
		result = types.Failure(cloneID, kind, msg)
		result.URL = target
		return result
	}

	r.enter(StageDone)
	result = types.Success(cloneID, markup)
	result.URL = target
	return result
}

// pipeline returns the normalized target (when validation got that far),
// the sanitized markup, or the first classified failure
func (o *Orchestrator) pipeline(ctx context.Context, r *run, req types.CloneRequest) (string, string, error) {
	r.enter(StageValidating)
	target, err := utils.NormalizeURL(req.RawURL, o.opts.URLPolicy)
	if err != nil {
		return "", "", err
	}
	r.log = r.log.With(logging.URL(target.String()))

	r.enter(StageRendering)
	page, err := o.render(ctx, target)
	if err != nil {
		return target.String(), "", err
	}

	r.enter(StageExtracting)
	model, err := o.extract(ctx, page)
	if err != nil {
		return target.String(), "", err
	}

	r.enter(StagePrompting)
	request, err := o.deps.Builder.Build(model, o.deps.Provider.Kind())
	if err != nil {
		return target.String(), "", err
	}
	if len(page.Screenshot) > 0 {
		request.Images = append(request.Images, llm.Image{MIMEType: page.ScreenshotType, Data: page.Screenshot})
	}

	r.enter(StageGenerating)
	output, err := o.generate(ctx, request)
	if err != nil {
		return target.String(), "", err
	}

	r.enter(StageSanitizing)
	markup, err := o.deps.Sanitizer.Sanitize(output)
	if err != nil {
		return target.String(), "", err
	}
	return target.String(), markup, nil
}

func (o *Orchestrator) render(ctx context.Context, target types.NormalizedURL) (*render.Page, error) {
	release, err := o.opts.RenderGate.Acquire(ctx)
	if err != nil {
		return nil, gateError(ctx, err, types.KindRenderUnavailable, types.KindRenderTimeout, "render")
	}
	defer release()

	page, err := o.deps.Renderer.Render(ctx, target, o.opts.RenderTimeout)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, types.NewError(types.KindRenderUnavailable, "render service returned no page")
	}
	return page, nil
}

// extract runs the extractor off the request goroutine so the end-to-end
// deadline still holds when a page is expensive to distil
func (o *Orchestrator) extract(ctx context.Context, page *render.Page) (*extract.PageModel, error) {
	type outcome struct {
		model     *extract.PageModel
		recovered any
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{recovered: p}
			}
		}()
		done <- outcome{model: o.deps.Extractor.Extract(page)}
	}()

	select {
	case out := <-done:
		if out.recovered != nil {
			panic(out.recovered)
		}
		return out.model, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, types.WrapError(types.KindRenderTimeout, "timed out distilling the rendered page", ctx.Err())
		}
		return nil, types.WrapError(types.KindRenderUnavailable, "request cancelled while distilling the page", ctx.Err())
	}
}

func (o *Orchestrator) generate(ctx context.Context, req *llm.Request) (string, error) {
	release, err := o.opts.ProviderGate.Acquire(ctx)
	if err != nil {
		return "", gateError(ctx, err, types.KindProviderUnavailable, types.KindProviderUnavailable, "provider")
	}
	defer release()

	return o.deps.Provider.Generate(ctx, req)
}

// gateError classifies a failed admission: a full queue is unavailability, a
// deadline while queued is the stage's timeout kind
func gateError(ctx context.Context, err error, unavailable, timeout types.ErrorKind, what string) error {
	switch {
	case errors.Is(err, resilience.ErrQueueFull):
		return types.WrapError(unavailable, fmt.Sprintf("%s capacity exhausted, try again later", what), err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return types.WrapError(timeout, fmt.Sprintf("timed out waiting for %s capacity", what), err)
	}
	return types.WrapError(unavailable, fmt.Sprintf("request cancelled while waiting for %s", what), err)
}
