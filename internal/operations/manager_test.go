package operations

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "churncli/internal/errors"
	"churncli/internal/shared/testutil"
	"churncli/pkg/contracts"
)

// mockStep records its executions and returns scripted errors
type mockStep struct {
	BaseStage
	mu       sync.Mutex
	errs     []error
	calls    int
	validate error
	block    bool
}

func newMockStep(id string, deps ...string) *mockStep {
	return &mockStep{BaseStage: NewBaseStage(id, "Mock "+id, deps)}
}

func (s *mockStep) Execute(ctx context.Context, state *OperationState) error {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	state.SetResult(s.ID(), n)
	if n <= len(s.errs) {
		return s.errs[n-1]
	}
	return nil
}

func (s *mockStep) Validate(state *OperationState) error {
	return s.validate
}

func (s *mockStep) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fastConfig() *Config {
	c := NewConfig()
	c.RetryConfig = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	return c
}

func newTestManager(t *testing.T, config *Config, steps ...Step) *Manager {
	t.Helper()
	r := NewRegistry()
	for _, s := range steps {
		require.NoError(t, r.Register(s))
	}
	logger, _ := testutil.NewTestLogger(t)
	return NewManager(r, config, nil, logger)
}

func TestManager_ExecuteAllSteps(t *testing.T) {
	a := newMockStep("a")
	b := newMockStep("b", "a")
	c := newMockStep("c", "b")
	m := newTestManager(t, fastConfig(), c, b, a)

	resp, err := m.Execute(context.Background(), OperationRequest{ID: "run-1"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", resp.ID)
	assert.Equal(t, OperationStatusCompleted, resp.Status)
	assert.Equal(t, []string{"a", "b", "c"}, resp.Order)
	for _, id := range resp.Order {
		assert.Equal(t, StepStatusCompleted, resp.Steps[id].GetStatus(), id)
		assert.Equal(t, 1, resp.Results[id])
	}
}

func TestManager_FailureSkipsDependents(t *testing.T) {
	tests := []struct {
		name            string
		continueOnError bool
		wantIndependent StepStatus
	}{
		{"stop on error", false, StepStatusSkipped},
		{"continue on error", true, StepStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newMockStep("a")
			a.errs = []error{errors.New("broken input")}
			b := newMockStep("b", "a")
			c := newMockStep("c", "b")
			d := newMockStep("d")

			cfg := fastConfig()
			cfg.ContinueOnError = tt.continueOnError
			m := newTestManager(t, cfg, a, b, c, d)

			resp, err := m.Execute(context.Background(), OperationRequest{})
			require.Error(t, err)
			assert.Equal(t, ErrorTypeExecution, GetErrorType(err))
			assert.Equal(t, OperationStatusFailed, resp.Status)

			assert.Equal(t, StepStatusFailed, resp.Steps["a"].GetStatus())
			assert.Equal(t, 1, a.Calls(), "data errors are not retried")
			assert.Equal(t, StepStatusSkipped, resp.Steps["b"].GetStatus())
			assert.Equal(t, StepStatusSkipped, resp.Steps["c"].GetStatus())
			assert.Equal(t, "dependency b failed", resp.Steps["c"].GetMessage())
			assert.Equal(t, tt.wantIndependent, resp.Steps["d"].GetStatus())
			assert.Zero(t, b.Calls())
		})
	}
}

func TestManager_RetriesNetworkErrors(t *testing.T) {
	a := newMockStep("a")
	a.errs = []error{
		apperrors.NewNetworkError("lms unreachable", nil),
		apperrors.NewNetworkError("lms unreachable", nil),
	}
	m := newTestManager(t, fastConfig(), a)

	resp, err := m.Execute(context.Background(), OperationRequest{})
	require.NoError(t, err)
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, 3, resp.Steps["a"].Attempts)
	assert.Equal(t, StepStatusCompleted, resp.Steps["a"].GetStatus())
}

func TestManager_RetriesExhausted(t *testing.T) {
	a := newMockStep("a")
	netErr := apperrors.NewNetworkError("lms unreachable", nil)
	a.errs = []error{netErr, netErr, netErr, netErr}
	m := newTestManager(t, fastConfig(), a)

	_, err := m.Execute(context.Background(), OperationRequest{})
	require.Error(t, err)
	assert.Equal(t, 3, a.Calls())

	var appErr *apperrors.AppError
	assert.True(t, errors.As(err, &appErr))
}

func TestManager_ValidationFailure(t *testing.T) {
	a := newMockStep("a")
	a.validate = errors.New("input missing")
	m := newTestManager(t, fastConfig(), a)

	resp, err := m.Execute(context.Background(), OperationRequest{})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeValidation, GetErrorType(err))
	assert.Zero(t, a.Calls())
	assert.Equal(t, StepStatusFailed, resp.Steps["a"].GetStatus())
}

func TestManager_Timeout(t *testing.T) {
	a := newMockStep("a")
	a.block = true
	cfg := fastConfig()
	cfg.SetStageTimeout("a", 20*time.Millisecond)
	m := newTestManager(t, cfg, a)

	_, err := m.Execute(context.Background(), OperationRequest{})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeTimeout, GetErrorType(err))
	assert.Equal(t, 1, a.Calls())
}

func TestManager_Cancelled(t *testing.T) {
	a := newMockStep("a")
	b := newMockStep("b", "a")
	m := newTestManager(t, fastConfig(), a, b)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := m.Execute(ctx, OperationRequest{})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeCancellation, GetErrorType(err))
	assert.Equal(t, OperationStatusCancelled, resp.Status)
	assert.Equal(t, StepStatusSkipped, resp.Steps["b"].GetStatus())
}

func TestManager_SingleStepIgnoresUnplannedDependencies(t *testing.T) {
	a := newMockStep("a")
	b := newMockStep("b", "a")
	m := newTestManager(t, fastConfig(), a, b)

	resp, err := m.Execute(context.Background(), OperationRequest{Steps: []string{"b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, resp.Order)
	assert.Zero(t, a.Calls())
	assert.Equal(t, 1, b.Calls())
}

func TestManager_UnknownStep(t *testing.T) {
	m := newTestManager(t, fastConfig(), newMockStep("a"))

	resp, err := m.Execute(context.Background(), OperationRequest{Steps: []string{"nope"}})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeNotFound, GetErrorType(err))
	assert.Equal(t, OperationStatusFailed, resp.Status)
}

func TestManager_WritesManifest(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")
	testutil.WriteCSV(t, out, []string{"x"}, []string{"1"})

	a := newMockStep("a")
	a.BaseStage = a.BaseStage.WithFiles(nil, []string{out, filepath.Join(dir, "missing.csv")})
	b := newMockStep("b", "a")
	b.errs = []error{errors.New("boom")}

	cfg := fastConfig()
	cfg.ManifestPath = filepath.Join(dir, "logs", "run_manifest.json")
	m := newTestManager(t, cfg, a, b)

	_, err := m.Execute(context.Background(), OperationRequest{ID: "run-42"})
	require.Error(t, err)

	manifest, err := LoadManifestFromFile(cfg.ManifestPath)
	require.NoError(t, err)
	assert.Equal(t, "run-42", manifest.RunID)
	assert.Equal(t, contracts.DataFormatVersion, manifest.Build.DataFormat)
	assert.Equal(t, string(OperationStatusFailed), manifest.Status)
	require.Len(t, manifest.Steps, 2)
	assert.True(t, manifest.IsStepCompleted("a"))
	require.Len(t, manifest.Steps[0].Outputs, 1)
	assert.Equal(t, out, manifest.Steps[0].Outputs[0].Path)
	assert.Equal(t, string(StepStatusFailed), manifest.Steps[1].Status)
	assert.Contains(t, manifest.Steps[1].Error, "boom")
}

func TestCalculateRetryDelay(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calculateRetryDelay(tt.attempt, cfg), "attempt %d", tt.attempt)
	}
}
