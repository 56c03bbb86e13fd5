package clone

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webclone/internal/providers/extract"
	"github.com/GriffinCanCode/webclone/internal/providers/llm"
	"github.com/GriffinCanCode/webclone/internal/providers/prompt"
	"github.com/GriffinCanCode/webclone/internal/providers/render"
	"github.com/GriffinCanCode/webclone/internal/shared/id"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

const helloPage = "<html><body><h1>Hi</h1><p>World</p></body></html>"

type fakeRenderer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, target types.NormalizedURL, timeout time.Duration) (*render.Page, error)
}

func (f *fakeRenderer) Render(ctx context.Context, target types.NormalizedURL, timeout time.Duration) (*render.Page, error) {
	f.calls.Add(1)
	return f.fn(ctx, target, timeout)
}

func staticPage(html string) *fakeRenderer {
	return &fakeRenderer{fn: func(_ context.Context, target types.NormalizedURL, _ time.Duration) (*render.Page, error) {
		return &render.Page{FinalURL: target.String(), HTML: html, StatusCode: 200}, nil
	}}
}

type fakeGenerator struct {
	calls atomic.Int32
	last  *llm.Request
	mu    sync.Mutex
	fn    func(ctx context.Context, req *llm.Request) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req *llm.Request) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeGenerator) Kind() llm.Kind { return llm.KindAnthropic }

func replying(out string) *fakeGenerator {
	return &fakeGenerator{fn: func(context.Context, *llm.Request) (string, error) { return out, nil }}
}

func newTestOrchestrator(t *testing.T, r Renderer, g Generator, mutate ...func(*Options)) *Orchestrator {
	t.Helper()

	builder := prompt.NewWithCatalog(mustCatalog(t), prompt.Options{Counter: prompt.HeuristicCounter{}}, nil, nil)
	opts := Options{
		RenderTimeout:   time.Second,
		ProviderTimeout: time.Second,
		Margin:          100 * time.Millisecond,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return NewOrchestrator(Deps{
		Renderer:  r,
		Extractor: extract.New(extract.Options{}, nil, nil),
		Builder:   builder,
		Provider:  g,
	}, opts, nil)
}

func mustCatalog(t *testing.T) *prompt.Catalog {
	t.Helper()
	c, err := prompt.LoadCatalog()
	require.NoError(t, err)
	return c
}

type stageLog struct {
	mu     sync.Mutex
	stages []Stage
}

func (l *stageLog) observe(e Event) {
	l.mu.Lock()
	l.stages = append(l.stages, e.Stage)
	l.mu.Unlock()
}

func (l *stageLog) all() []Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Stage(nil), l.stages...)
}

func recordStages() (StageObserver, func() []Stage) {
	l := &stageLog{}
	return l.observe, l.all
}

func TestCloneEndToEnd(t *testing.T) {
	gen := replying("<div>Hi World</div>")
	o := newTestOrchestrator(t, staticPage(helloPage), gen)

	observe, stages := recordStages()
	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, observe)

	require.True(t, result.OK(), "unexpected failure: %+v", result.Failure)
	assert.Equal(t, "<div>Hi World</div>", result.Cloned.HTML)
	assert.Equal(t, "https://example.com/", result.URL)
	assert.True(t, id.IsValid(result.ID))

	assert.Equal(t, []Stage{
		StageValidating, StageRendering, StageExtracting,
		StagePrompting, StageGenerating, StageSanitizing, StageDone,
	}, stages())
	require.Len(t, result.Stages, 6)
	assert.Equal(t, string(StageValidating), result.Stages[0].Stage)
	assert.Equal(t, string(StageSanitizing), result.Stages[5].Stage)

	require.NotNil(t, gen.last)
	assert.Equal(t, llm.KindAnthropic, gen.last.Provider)
	assert.Contains(t, gen.last.User, "Hi")
	assert.Contains(t, gen.last.User, "World")
}

func TestCloneMalformedOutput(t *testing.T) {
	o := newTestOrchestrator(t, staticPage(helloPage), replying("ERROR: cannot comply"))

	observe, stages := recordStages()
	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, observe)

	require.False(t, result.OK())
	assert.Equal(t, types.KindMalformedOutput, result.Kind())
	assert.Nil(t, result.Cloned)
	got := stages()
	assert.Equal(t, StageFailed, got[len(got)-1])
	assert.Equal(t, StageSanitizing, got[len(got)-2])
}

func TestCloneInvalidURLNeverRenders(t *testing.T) {
	tests := []string{"", "ftp://example.com", "http://127.0.0.1", "http://localhost:8080", "not a url"}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			renderer := staticPage(helloPage)
			gen := replying("<div>x</div>")
			o := newTestOrchestrator(t, renderer, gen)

			result := o.Clone(context.Background(), types.CloneRequest{RawURL: raw}, nil)

			assert.Equal(t, types.KindInvalidURL, result.Kind())
			assert.NotEmpty(t, result.Failure.Message)
			assert.Zero(t, renderer.calls.Load())
			assert.Zero(t, gen.calls.Load())
		})
	}
}

func TestCloneRenderTimeoutIsBounded(t *testing.T) {
	renderer := &fakeRenderer{fn: func(ctx context.Context, _ types.NormalizedURL, timeout time.Duration) (*render.Page, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		<-ctx.Done()
		return nil, types.WrapError(types.KindRenderTimeout, "render timed out", ctx.Err())
	}}
	gen := replying("<div>x</div>")
	o := newTestOrchestrator(t, renderer, gen, func(opts *Options) {
		opts.RenderTimeout = 50 * time.Millisecond
	})

	start := time.Now()
	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)

	assert.Equal(t, types.KindRenderTimeout, result.Kind())
	assert.Less(t, time.Since(start), o.Timeout()+time.Second)
	assert.Zero(t, gen.calls.Load(), "a failed render must not reach the provider")
}

func TestCloneRenderFailureSkipsProvider(t *testing.T) {
	renderer := &fakeRenderer{fn: func(context.Context, types.NormalizedURL, time.Duration) (*render.Page, error) {
		return nil, types.NewError(types.KindRenderUnavailable, "render service is unavailable")
	}}
	gen := replying("<div>x</div>")
	o := newTestOrchestrator(t, renderer, gen)

	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)

	assert.Equal(t, types.KindRenderUnavailable, result.Kind())
	assert.Equal(t, "render service is unavailable", result.Failure.Message)
	assert.Equal(t, "https://example.com/", result.URL)
	assert.Zero(t, gen.calls.Load())
}

func TestCloneProviderErrorsPassThrough(t *testing.T) {
	for _, kind := range []types.ErrorKind{types.KindProviderRejected, types.KindProviderUnavailable} {
		t.Run(string(kind), func(t *testing.T) {
			gen := &fakeGenerator{fn: func(context.Context, *llm.Request) (string, error) {
				return "", types.NewError(kind, "provider said no")
			}}
			o := newTestOrchestrator(t, staticPage(helloPage), gen)

			result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)
			assert.Equal(t, kind, result.Kind())
			assert.Equal(t, int32(1), gen.calls.Load(), "no retry or fallback at the orchestration level")
		})
	}
}

func TestClonePanicIsInternalError(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, *llm.Request) (string, error) {
		panic("boom")
	}}
	o := newTestOrchestrator(t, staticPage(helloPage), gen)

	observe, stages := recordStages()
	var result types.CloneResult
	require.NotPanics(t, func() {
		result = o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, observe)
	})

	assert.Equal(t, types.KindInternal, result.Kind())
	assert.NotContains(t, result.Failure.Message, "boom")
	got := stages()
	assert.Equal(t, StageFailed, got[len(got)-1])
}

func TestCloneUnclassifiedErrorIsInternal(t *testing.T) {
	gen := &fakeGenerator{fn: func(context.Context, *llm.Request) (string, error) {
		return "", assert.AnError
	}}
	o := newTestOrchestrator(t, staticPage(helloPage), gen)

	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)
	assert.Equal(t, types.KindInternal, result.Kind())
}

func TestCloneQueuesBeyondCapacityThenRejects(t *testing.T) {
	unblock := make(chan struct{})
	entered := make(chan struct{}, 4)
	renderer := &fakeRenderer{fn: func(ctx context.Context, target types.NormalizedURL, _ time.Duration) (*render.Page, error) {
		entered <- struct{}{}
		select {
		case <-unblock:
		case <-ctx.Done():
			return nil, types.WrapError(types.KindRenderTimeout, "render timed out", ctx.Err())
		}
		return &render.Page{FinalURL: target.String(), HTML: helloPage, StatusCode: 200}, nil
	}}
	gate := resilience.NewGate("render", 1, 1)
	o := newTestOrchestrator(t, renderer, replying("<div>Hi World</div>"), func(opts *Options) {
		opts.RenderTimeout = 5 * time.Second
		opts.RenderGate = gate
	})

	results := make(chan types.CloneResult, 2)
	go func() {
		results <- o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)
	}()
	<-entered

	go func() {
		results <- o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com/b"}, nil)
	}()
	require.Eventually(t, func() bool { return gate.Waiting() == 1 }, time.Second, 5*time.Millisecond)

	// Slot busy, queue full
	rejected := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com/c"}, nil)
	assert.Equal(t, types.KindRenderUnavailable, rejected.Kind())

	close(unblock)
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			assert.True(t, r.OK(), "queued clone failed: %+v", r.Failure)
		case <-time.After(5 * time.Second):
			t.Fatal("queued clone never completed")
		}
	}
	assert.Equal(t, int32(2), renderer.calls.Load())
}

func TestCloneRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetricsWith(reg)
	defer metrics.Close()

	o := newTestOrchestrator(t, staticPage(helloPage), replying("<div>Hi World</div>")).WithMetrics(metrics)
	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)
	require.True(t, result.OK())

	n, err := testutil.GatherAndCount(reg, "webclone_clones_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCloneCallerCancellation(t *testing.T) {
	renderer := &fakeRenderer{fn: func(ctx context.Context, _ types.NormalizedURL, _ time.Duration) (*render.Page, error) {
		<-ctx.Done()
		return nil, types.WrapError(types.KindRenderTimeout, "render timed out", ctx.Err())
	}}
	o := newTestOrchestrator(t, renderer, replying("<div>x</div>"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := o.Clone(ctx, types.CloneRequest{RawURL: "https://example.com"}, nil)
	assert.False(t, result.OK())
}

func TestStageTerminal(t *testing.T) {
	assert.True(t, StageDone.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageRendering.Terminal())
}

func TestCloneDeeplyNestedPageStaysWithinTimeout(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 30000; i++ {
		b.WriteString("<div><span>x</span>")
	}
	b.WriteString("</body></html>")

	o := newTestOrchestrator(t, staticPage(b.String()), replying("<div>x</div>"), func(opts *Options) {
		opts.RenderTimeout = time.Second
		opts.ProviderTimeout = time.Second
	})

	start := time.Now()
	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)

	assert.Less(t, time.Since(start), o.Timeout()+time.Second)
	assert.True(t, result.OK(), "unexpected failure: %+v", result.Failure)
}

type blockingExtractor struct {
	release chan struct{}
}

func (e *blockingExtractor) Extract(*render.Page) *extract.PageModel {
	<-e.release
	return &extract.PageModel{Blocks: []extract.Block{}}
}

func TestCloneSlowExtractionHitsDeadline(t *testing.T) {
	gen := replying("<div>x</div>")
	o := newTestOrchestrator(t, staticPage(helloPage), gen, func(opts *Options) {
		opts.RenderTimeout = 100 * time.Millisecond
		opts.ProviderTimeout = 100 * time.Millisecond
		opts.Margin = 0
	})
	slow := &blockingExtractor{release: make(chan struct{})}
	defer close(slow.release)
	o.deps.Extractor = slow

	observe, stages := recordStages()
	start := time.Now()
	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, observe)

	assert.Less(t, time.Since(start), o.Timeout()+time.Second)
	require.False(t, result.OK())
	assert.Equal(t, types.KindRenderTimeout, result.Kind())
	assert.Zero(t, gen.calls.Load())
	assert.Equal(t, []Stage{StageValidating, StageRendering, StageExtracting, StageFailed}, stages())
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(*render.Page) *extract.PageModel { panic("boom") }

func TestCloneExtractorPanicIsInternalError(t *testing.T) {
	o := newTestOrchestrator(t, staticPage(helloPage), replying("<div>x</div>"))
	o.deps.Extractor = panickingExtractor{}

	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)
	require.False(t, result.OK())
	assert.Equal(t, types.KindInternal, result.Kind())
}

func TestCloneForwardsScreenshot(t *testing.T) {
	shot := []byte{0xff, 0xd8, 0xff, 0xe0}
	renderer := &fakeRenderer{fn: func(_ context.Context, target types.NormalizedURL, _ time.Duration) (*render.Page, error) {
		return &render.Page{FinalURL: target.String(), HTML: helloPage, Screenshot: shot, ScreenshotType: "image/jpeg"}, nil
	}}
	gen := replying("<div>Hi World</div>")
	o := newTestOrchestrator(t, renderer, gen)

	result := o.Clone(context.Background(), types.CloneRequest{RawURL: "https://example.com"}, nil)
	require.True(t, result.OK(), "unexpected failure: %+v", result.Failure)

	require.NotNil(t, gen.last)
	require.Len(t, gen.last.Images, 1)
	assert.Equal(t, "image/jpeg", gen.last.Images[0].MIMEType)
	assert.Equal(t, shot, gen.last.Images[0].Data)
	assert.NotEmpty(t, gen.last.ImageCaption)
}
