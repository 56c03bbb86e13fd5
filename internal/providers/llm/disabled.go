package llm

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/webclone/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// Disabled stands in for a provider whose credentials are missing
type Disabled struct {
	kind   Kind
	reason string
}

// NewDisabled creates a provider that fails every call with reason
func NewDisabled(kind Kind, reason string) *Disabled {
	return &Disabled{kind: kind, reason: reason}
}

// Generate always fails with ProviderUnavailable
func (d *Disabled) Generate(context.Context, *Request) (string, error) {
	return "", types.NewError(types.KindProviderUnavailable,
		fmt.Sprintf("provider %s is not configured: %s", d.kind, d.reason))
}

func (d *Disabled) Name() string { return string(d.kind) }

func (d *Disabled) Kind() Kind { return d.kind }

func (d *Disabled) Configured() bool { return false }

func (d *Disabled) BreakerState() resilience.State { return resilience.StateClosed }

// Reason explains why the provider is disabled
func (d *Disabled) Reason() string { return d.reason }
