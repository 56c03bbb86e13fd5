// Package health reports whether the service can clone right now. It only
// looks at configuration, breaker state and the render service's health
// endpoint; it never runs a render or a generation.
package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
)

// Status is the overall verdict
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check results
const (
	CheckOK          = "ok"
	CheckMissing     = "missing"
	CheckUnreachable = "unreachable"
	CheckOpen        = "open"
)

// Check names
const (
	CheckRenderConfig    = "render_config"
	CheckRenderService   = "render_service"
	CheckRenderBreaker   = "render_breaker"
	CheckProviderConfig  = "provider_config"
	CheckProviderBreaker = "provider_breaker"
)

// Check is the outcome of one probe
type Check struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Report is the health snapshot
type Report struct {
	Status    Status           `json:"status"`
	Provider  string           `json:"provider"`
	Checks    map[string]Check `json:"checks"`
	CheckedAt time.Time        `json:"checked_at"`
}

// Healthy reports whether the service can serve clones. Degraded counts.
func (r Report) Healthy() bool {
	return r.Status != StatusUnhealthy
}

// RenderService is the part of the render client health looks at
type RenderService interface {
	Probe(ctx context.Context) error
	Configured() bool
	BreakerState() resilience.State
}

// Provider is the part of the LLM provider health looks at
type Provider interface {
	Name() string
	Configured() bool
	BreakerState() resilience.State
}

// Reporter builds health reports
type Reporter struct {
	render   RenderService
	provider Provider
	log      *logging.Logger
}

// NewReporter creates a reporter
func NewReporter(render RenderService, provider Provider, log *logging.Logger) *Reporter {
	if log == nil {
		log = logging.NewNop()
	}
	return &Reporter{render: render, provider: provider, log: log.Named("health")}
}

// Status runs the checks. Missing configuration is unhealthy; an unreachable
// render service or an open breaker is degraded.
func (r *Reporter) Status(ctx context.Context) Report {
	report := Report{
		Status:    StatusHealthy,
		Provider:  r.provider.Name(),
		Checks:    make(map[string]Check, 5),
		CheckedAt: time.Now().UTC(),
	}

	if r.provider.Configured() {
		report.Checks[CheckProviderConfig] = Check{Status: CheckOK}
	} else {
		report.Checks[CheckProviderConfig] = Check{Status: CheckMissing, Detail: "provider credentials are not set"}
		report.Status = StatusUnhealthy
	}
	report.Checks[CheckProviderBreaker] = breakerCheck(r.provider.BreakerState())

	if !r.render.Configured() {
		report.Checks[CheckRenderConfig] = Check{Status: CheckMissing, Detail: "render endpoint or token is not set"}
		report.Status = StatusUnhealthy
	} else {
		report.Checks[CheckRenderConfig] = Check{Status: CheckOK}
		if err := r.render.Probe(ctx); err != nil {
			r.log.Warn("Render service probe failed", zap.Error(err))
			report.Checks[CheckRenderService] = Check{Status: CheckUnreachable, Detail: err.Error()}
		} else {
			report.Checks[CheckRenderService] = Check{Status: CheckOK}
		}
	}
	report.Checks[CheckRenderBreaker] = breakerCheck(r.render.BreakerState())

	if report.Status == StatusHealthy {
		for _, c := range report.Checks {
			if c.Status != CheckOK {
				report.Status = StatusDegraded
				break
			}
		}
	}
	return report
}

func breakerCheck(state resilience.State) Check {
	if state == resilience.StateOpen {
		return Check{Status: CheckOpen}
	}
	return Check{Status: CheckOK, Detail: state.String()}
}
