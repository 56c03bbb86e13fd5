package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// shell carries what every variant shares
type shell struct {
	kind     Kind
	settings Settings
	breaker  *resilience.Breaker
	http     *http.Client
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

func newShell(kind Kind, s Settings, log *logging.Logger, metrics *monitoring.Metrics) shell {
	s = s.withDefaults()
	if log == nil {
		log = logging.NewNop()
	}
	log = log.Named("llm." + string(kind))

	return shell{
		kind:     kind,
		settings: s,
		log:      log,
		metrics:  metrics,
		http:     newHTTPClient(kind, s, log, metrics),
		breaker: resilience.New(string(kind), resilience.UpstreamSettings(breakerSuccess,
			func(name string, from, to resilience.State) {
				metrics.RecordBreakerTransition(name, to.String())
				log.Warn("Circuit breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			})),
	}
}

// breakerSuccess keeps refusals and caller cancellation from tripping the
// breaker: the upstream answered, or was never given the chance to.
func breakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return types.KindOf(err) == types.KindProviderRejected
}

func (s *shell) Kind() Kind { return s.kind }

func (s *shell) Name() string { return string(s.kind) }

func (s *shell) BreakerState() resilience.State { return s.breaker.State() }

// generate runs call under the timeout and breaker, classifies failures and
// strips fences from the output
func (s *shell) generate(ctx context.Context, req *Request, call func(ctx context.Context, maxTokens int) (string, error)) (string, error) {
	if req == nil {
		return "", types.NewError(types.KindInternal, "nil provider request")
	}

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = s.settings.MaxOutputTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens[s.kind]
	}

	ctx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	start := time.Now()
	out, err := resilience.Call(s.breaker, func() (string, error) {
		return call(ctx, maxTokens)
	})
	if err != nil {
		err = s.classify(ctx, err)
		s.metrics.RecordProviderCall(string(s.kind), string(types.KindOf(err)))
		s.log.Warn("Provider call failed",
			logging.Kind(string(types.KindOf(err))),
			logging.Duration(time.Since(start)),
			zap.Error(err))
		return "", err
	}

	s.metrics.RecordProviderCall(string(s.kind), "ok")
	s.log.Debug("Provider call complete",
		zap.Int("chars", len(out)),
		zap.Int("estimated_tokens", req.EstimatedTokens),
		logging.Duration(time.Since(start)))
	return StripFences(out), nil
}

func (s *shell) classify(ctx context.Context, err error) error {
	var typed *types.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, resilience.ErrCircuitOpen):
		return types.WrapError(types.KindProviderUnavailable, "provider circuit is open", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return types.WrapError(types.KindProviderUnavailable,
			fmt.Sprintf("provider did not answer within %s", s.settings.Timeout), err)
	case errors.Is(err, context.Canceled):
		return types.WrapError(types.KindProviderUnavailable, "provider call cancelled", err)
	}
	return types.WrapError(types.KindProviderUnavailable, "provider is unavailable", err)
}

// policyMarkers identify a 400 that is a content refusal rather than a
// malformed request
var policyMarkers = []string{
	"content_filter", "content filter", "content_policy", "content policy",
	"responsibleaipolicyviolation", "safety", "prohibited",
}

// fromStatus classifies an HTTP failure reported by an SDK
func fromStatus(kind Kind, status int, err error) error {
	if status == http.StatusBadRequest {
		msg := strings.ToLower(err.Error())
		for _, marker := range policyMarkers {
			if strings.Contains(msg, marker) {
				return types.WrapError(types.KindProviderRejected,
					fmt.Sprintf("%s refused the request", kind), err)
			}
		}
	}
	return types.WrapError(types.KindProviderUnavailable,
		fmt.Sprintf("%s returned status %d", kind, status), err)
}

func rejected(kind Kind, reason string) error {
	return types.NewError(types.KindProviderRejected, fmt.Sprintf("%s refused to generate: %s", kind, reason))
}
