package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/voicememo/domain"
)

// State is a position in a pipeline run
type State string

const (
	StateUploaded    State = "uploaded"
	StateNormalized  State = "normalized"
	StateTranscribed State = "transcribed"
	StateEmbedded    State = "embedded"
	StateStored      State = "stored"
	StateArchived    State = "archived"
	StateSearched    State = "searched"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// StepID names a step within a pipeline
type StepID string

// Step is one stage. Execute runs under the per-step timeout; on success the
// run moves to Target, on failure the error is classified with Kind.
type Step struct {
	ID      StepID
	Target  State
	Kind    domain.ErrorKind
	Execute func(ctx context.Context) error
}

// Definition describes an ordered list of steps
type Definition struct {
	ID      string
	Initial State
	// Final is entered after the last step when it differs from the last target
	Final State
	Steps []Step
}

// Run is the record of one pipeline execution
type Run struct {
	ID          string           `json:"id"`
	Definition  string           `json:"definition"`
	State       State            `json:"state"`
	Visited     []State          `json:"visited"`
	FailedStep  StepID           `json:"failed_step,omitempty"`
	FailedKind  domain.ErrorKind `json:"failed_kind,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Trace renders the visited states, e.g. "uploaded > normalized > failed(transcribe: TranscriptionServiceError)"
func (r *Run) Trace() string {
	parts := make([]string, 0, len(r.Visited))
	for _, s := range r.Visited {
		if s == StateFailed && r.FailedStep != "" {
			parts = append(parts, fmt.Sprintf("%s(%s: %s)", s, r.FailedStep, r.FailedKind))
			continue
		}
		parts = append(parts, string(s))
	}
	return strings.Join(parts, " > ")
}

// Event represents a step transition in a run
type Event struct {
	RunID      string    `json:"run_id"`
	Definition string    `json:"definition"`
	StepID     StepID    `json:"step_id,omitempty"`
	Type       string    `json:"type"`
	State      State     `json:"state"`
	Timestamp  time.Time `json:"timestamp"`
	Error      error     `json:"-"`
}

// Event types
const (
	EventRunStarted    = "run_started"
	EventRunCompleted  = "run_completed"
	EventRunFailed     = "run_failed"
	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
)
