package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"churncli/internal/infrastructure"
)

// Manager runs pipeline steps
type Manager struct {
	registry *Registry
	config   *Config
	tracer   *OperationTracer
	logger   *slog.Logger

	mu         sync.RWMutex
	operations map[string]*OperationState
}

// NewManager creates a manager over registry. Nil arguments get defaults.
func NewManager(registry *Registry, config *Config, tracer *OperationTracer, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	if tracer == nil {
		tracer = NewOperationTracer(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:   registry,
		config:     config,
		tracer:     tracer,
		logger:     logger,
		operations: make(map[string]*OperationState),
	}
}

// RegisterStage registers a step with the manager
func (m *Manager) RegisterStage(step Step) error {
	return m.registry.Register(step)
}

// GetRegistry returns the step registry
func (m *Manager) GetRegistry() *Registry {
	return m.registry
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Execute runs the steps selected by req. The returned error is the first
// step failure; the response carries the state of every planned step.
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	ctx = infrastructure.EnsureRunID(ctx)
	if req.ID == "" {
		req.ID = infrastructure.GetRunID(ctx)
	}

	state := NewOperationState(req.ID)
	m.storeOperation(state)
	defer m.removeOperation(req.ID)

	manifest := NewRunManifest(req.ID, req.Steps)

	steps, err := m.registry.Plan(req.Steps)
	if err != nil {
		m.logOperationError(ctx, req.ID, err)
		state.Fail(err)
		m.saveManifest(ctx, manifest, state)
		return m.createResponse(state, nil), err
	}

	order := make([]string, len(steps))
	for i, step := range steps {
		state.SetStage(step.ID(), NewStepState(step.ID(), step.Name()))
		order[i] = step.ID()
	}

	ctx, span := m.tracer.TraceOperationExecution(ctx, req.ID, order)
	defer span.End()

	m.logOperationStart(ctx, req.ID, order)
	state.Start()

	err = m.executeSequential(ctx, state, manifest, steps)

	switch {
	case err == nil:
		state.Complete()
	case GetErrorType(err) == ErrorTypeCancellation:
		state.finish(OperationStatusCancelled, err)
	default:
		state.Fail(err)
	}
	m.tracer.RecordOperationCompletion(ctx, span, state.Status, state.Duration())
	m.logOperationComplete(ctx, req.ID, state.Duration(), string(state.Status))
	m.saveManifest(ctx, manifest, state)

	return m.createResponse(state, order), err
}

// executeSequential runs steps one by one. A failure skips the steps that
// depend on it; without ContinueOnError it also stops the run.
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, manifest *RunManifest, steps []Step) error {
	var firstErr error
	for i, step := range steps {
		stepState := state.GetStage(step.ID())

		if ctx.Err() != nil {
			m.logger.WarnContext(ctx, "run cancelled",
				slog.String("run_id", state.ID),
				slog.String("step", step.ID()))
			m.skipRemaining(state, manifest, steps[i:], "run cancelled")
			return NewCancellationError(step.ID())
		}

		if stepState.GetStatus() == StepStatusSkipped {
			m.logger.InfoContext(ctx, "step skipped",
				slog.String("run_id", state.ID),
				slog.String("step", step.ID()),
				slog.String("reason", stepState.GetMessage()))
			continue
		}

		m.logger.InfoContext(ctx, "executing step",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("step_number", i+1),
			slog.Int("total_steps", len(steps)))

		err := m.executeStage(ctx, state, manifest, step)
		if err == nil {
			continue
		}

		m.logStageError(ctx, state.ID, step.ID(), err)
		m.skipDependentStages(state, manifest, steps, step.ID())
		if firstErr == nil {
			firstErr = err
		}
		if !m.config.ContinueOnError || GetErrorType(err) == ErrorTypeCancellation {
			m.skipRemaining(state, manifest, steps[i+1:], fmt.Sprintf("run stopped after %s failed", step.ID()))
			return err
		}
		m.logger.WarnContext(ctx, "step failed, continuing",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()))
	}
	return firstErr
}

// executeStage executes a single step with retry logic
func (m *Manager) executeStage(ctx context.Context, state *OperationState, manifest *RunManifest, step Step) error {
	stepState := state.GetStage(step.ID())
	if stepState == nil {
		return NewFatalError("step state not found", nil)
	}

	if err := m.checkDependencies(state, step); err != nil {
		stepState.Skip(err.Error())
		manifest.RecordStepSkipped(step.ID(), step.Name(), err.Error())
		return err
	}

	if err := step.Validate(state); err != nil {
		verr := NewValidationError(step.ID(), err.Error())
		stepState.Fail(verr)
		manifest.RecordStepStart(step.ID(), step.Name())
		manifest.RecordStepFailure(step.ID(), verr)
		return verr
	}

	timeout := m.config.GetStageTimeout(step.ID())
	stepCtx, cancel := context.WithTimeout(infrastructure.WithStep(ctx, step.ID()), timeout)
	defer cancel()

	retry := m.config.RetryConfig
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	var lastErr error
attempts:
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		stepState.Start()
		manifest.RecordStepStart(step.ID(), step.Name())
		m.logStageStart(stepCtx, state.ID, step.ID(), attempt)

		spanCtx, span := m.tracer.TraceStageExecution(stepCtx, state.ID, step.ID(), attempt)
		start := time.Now()
		err := step.Execute(spanCtx, state)
		duration := time.Since(start)

		if err == nil && stepCtx.Err() != nil {
			err = stepCtx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = NewTimeoutError(step.ID(), timeout.String())
		} else if errors.Is(err, context.Canceled) {
			err = NewCancellationError(step.ID())
		}
		m.tracer.RecordStageCompletion(spanCtx, span, step.ID(), duration, err)
		span.End()

		if err == nil {
			stepState.Complete("")
			manifest.RecordStepCompletion(step.ID(), step.ProducedOutputs(), stepState.Metadata)
			m.logStageComplete(stepCtx, state.ID, step.ID(), duration)
			return nil
		}

		lastErr = err
		if !IsRetryable(err) || attempt >= retry.MaxAttempts {
			break
		}

		delay := calculateRetryDelay(attempt, retry)
		m.logger.WarnContext(stepCtx, "step retry",
			slog.String("run_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retry.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-stepCtx.Done():
			if ctx.Err() != nil {
				lastErr = NewCancellationError(step.ID())
			} else {
				lastErr = NewTimeoutError(step.ID(), timeout.String())
			}
			break attempts
		}
	}

	wrapped := WrapError(lastErr, step.ID(), "")
	stepState.Fail(wrapped)
	manifest.RecordStepFailure(step.ID(), wrapped)
	return wrapped
}

// skipDependentStages marks every pending step that transitively depends
// on failedID as skipped
func (m *Manager) skipDependentStages(state *OperationState, manifest *RunManifest, steps []Step, failedID string) {
	for _, step := range steps {
		for _, dep := range step.GetDependencies() {
			if dep != failedID {
				continue
			}
			stepState := state.GetStage(step.ID())
			if stepState != nil && stepState.GetStatus() == StepStatusPending {
				reason := fmt.Sprintf("dependency %s failed", failedID)
				stepState.Skip(reason)
				manifest.RecordStepSkipped(step.ID(), step.Name(), reason)
				m.skipDependentStages(state, manifest, steps, step.ID())
			}
			break
		}
	}
}

// skipRemaining marks every pending step in steps as skipped
func (m *Manager) skipRemaining(state *OperationState, manifest *RunManifest, steps []Step, reason string) {
	for _, step := range steps {
		stepState := state.GetStage(step.ID())
		if stepState != nil && stepState.GetStatus() == StepStatusPending {
			stepState.Skip(reason)
			manifest.RecordStepSkipped(step.ID(), step.Name(), reason)
		}
	}
}

// checkDependencies verifies that the dependencies planned in this run
// completed. Dependencies outside the plan are assumed to have run before.
func (m *Manager) checkDependencies(state *OperationState, step Step) error {
	for _, dep := range step.GetDependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			continue
		}
		if status := depState.GetStatus(); status != StepStatusCompleted {
			return NewDependencyError(step.ID(), dep,
				fmt.Sprintf("dependency %s not completed (status: %s)", dep, status))
		}
	}
	return nil
}

// calculateRetryDelay grows the delay geometrically from InitialDelay
func calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	factor := math.Pow(config.Multiplier, float64(attempt-1))
	delay := time.Duration(float64(config.InitialDelay) * factor)
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// createResponse snapshots state into a response
func (m *Manager) createResponse(state *OperationState, order []string) *OperationResponse {
	resp := &OperationResponse{
		ID:       state.ID,
		Status:   state.Status,
		Duration: state.Duration(),
		Order:    order,
		Steps:    state.Steps,
		Results:  state.Results,
	}
	if state.Error != nil {
		resp.Error = state.Error.Error()
	}
	return resp
}

// saveManifest writes the run manifest when a path is configured
func (m *Manager) saveManifest(ctx context.Context, manifest *RunManifest, state *OperationState) {
	manifest.Finish(state.Status, state.Error)
	if m.config.ManifestPath == "" {
		return
	}
	if err := manifest.SaveToFile(m.config.ManifestPath); err != nil {
		m.logger.WarnContext(ctx, "run manifest not saved",
			slog.String("file", m.config.ManifestPath),
			slog.String("error", err.Error()))
	}
}

// GetOperation returns the state of a running operation
func (m *Manager) GetOperation(id string) (*OperationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.operations[id]
	if !exists {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return state, nil
}

func (m *Manager) storeOperation(state *OperationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations[state.ID] = state
}

func (m *Manager) removeOperation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.operations, id)
}
