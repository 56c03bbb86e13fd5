package clone

import (
	"time"

	"github.com/GriffinCanCode/webclone/internal/shared/types"
)

// Stage is one state of the clone state machine
type Stage string

const (
	StageValidating Stage = "validating"
	StageRendering  Stage = "rendering"
	StageExtracting Stage = "extracting"
	StagePrompting  Stage = "prompting"
	StageGenerating Stage = "generating"
	StageSanitizing Stage = "sanitizing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no transition follows s
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Event reports entry into a stage
type Event struct {
	CloneID string          `json:"clone_id"`
	Stage   Stage           `json:"stage"`
	Elapsed time.Duration   `json:"elapsed"`
	Kind    types.ErrorKind `json:"kind,omitempty"`
	Message string          `json:"message,omitempty"`
}

// StageObserver receives every transition of one clone, in order, on the
// goroutine running the clone
type StageObserver func(Event)
