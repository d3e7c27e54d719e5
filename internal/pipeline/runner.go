package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/voicememo/domain"
)

// DefaultStepTimeout bounds each step when the runner is built without one
const DefaultStepTimeout = 60 * time.Second

// Runner executes pipeline definitions step by step
type Runner struct {
	logger      *zap.Logger
	stepTimeout time.Duration
	eventChan   chan Event
}

// NewRunner creates a runner. A non-positive stepTimeout uses DefaultStepTimeout.
func NewRunner(logger *zap.Logger, stepTimeout time.Duration) *Runner {
	if stepTimeout <= 0 {
		stepTimeout = DefaultStepTimeout
	}
	return &Runner{
		logger:      logger,
		stepTimeout: stepTimeout,
	}
}

// EnableEvents turns on step events and returns the channel they are sent on.
// Events are dropped when the channel is full.
func (r *Runner) EnableEvents(buffer int) <-chan Event {
	r.eventChan = make(chan Event, buffer)
	return r.eventChan
}

// Execute runs every step of def in order. The first failing step stops the
// run in StateFailed and its error is returned classified with the step kind.
func (r *Runner) Execute(ctx context.Context, def Definition) (*Run, error) {
	run := &Run{
		ID:         fmt.Sprintf("%s_%s", def.ID, uuid.NewString()),
		Definition: def.ID,
		State:      def.Initial,
		Visited:    []State{def.Initial},
		StartedAt:  time.Now(),
	}
	logger := r.logger.With(zap.String("runID", run.ID))

	r.emitEvent(run, Event{Type: EventRunStarted, State: run.State, Timestamp: run.StartedAt})
	logger.Info("Pipeline started", zap.String("definition", def.ID))

	for _, step := range def.Steps {
		if err := r.executeStep(ctx, run, step, logger); err != nil {
			classified := domain.E(step.Kind, string(step.ID), err)
			r.fail(run, step.ID, classified, logger)
			return run, classified
		}
	}

	if def.Final != "" && def.Final != run.State {
		r.transition(run, def.Final)
	}
	now := time.Now()
	run.CompletedAt = &now

	r.emitEvent(run, Event{Type: EventRunCompleted, State: run.State, Timestamp: now})
	logger.Info("Pipeline completed",
		zap.String("trace", run.Trace()),
		zap.Duration("elapsed", now.Sub(run.StartedAt)))

	return run, nil
}

// executeStep runs a single step under the step timeout
func (r *Runner) executeStep(ctx context.Context, run *Run, step Step, logger *zap.Logger) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled before %s: %w", step.ID, err)
	}

	r.emitEvent(run, Event{StepID: step.ID, Type: EventStepStarted, State: run.State, Timestamp: time.Now()})

	stepCtx, cancel := context.WithTimeout(ctx, r.stepTimeout)
	defer cancel()

	started := time.Now()
	err := step.Execute(stepCtx)
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("step timed out after %s: %w", r.stepTimeout, err)
		}
		logger.Error("Step failed",
			zap.String("stepID", string(step.ID)),
			zap.String("kind", string(step.Kind)),
			zap.Error(err))
		return err
	}

	r.transition(run, step.Target)
	r.emitEvent(run, Event{StepID: step.ID, Type: EventStepCompleted, State: run.State, Timestamp: time.Now()})
	logger.Info("Step completed",
		zap.String("stepID", string(step.ID)),
		zap.String("state", string(run.State)),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (r *Runner) fail(run *Run, stepID StepID, err error, logger *zap.Logger) {
	run.FailedStep = stepID
	run.FailedKind = domain.KindOf(err)
	run.Error = err.Error()
	r.transition(run, StateFailed)
	now := time.Now()
	run.CompletedAt = &now

	r.emitEvent(run, Event{StepID: stepID, Type: EventStepFailed, State: StateFailed, Timestamp: now, Error: err})
	r.emitEvent(run, Event{Type: EventRunFailed, State: StateFailed, Timestamp: now, Error: err})
	logger.Warn("Pipeline failed", zap.String("trace", run.Trace()), zap.Error(err))
}

func (r *Runner) transition(run *Run, state State) {
	run.State = state
	run.Visited = append(run.Visited, state)
}

func (r *Runner) emitEvent(run *Run, event Event) {
	if r.eventChan == nil {
		return
	}
	event.RunID = run.ID
	event.Definition = run.Definition
	select {
	case r.eventChan <- event:
	default:
		r.logger.Warn("Event channel full, dropping event", zap.String("type", event.Type))
	}
}
