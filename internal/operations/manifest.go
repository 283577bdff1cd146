package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"churncli/internal/files"
	"churncli/pkg/contracts"
)

// RunManifest records what a run executed and which files it left
// behind. It is written next to the logs after every run.
type RunManifest struct {
	mu sync.RWMutex

	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	Requested []string  `json:"requested,omitempty"`

	Build contracts.VersionInfo `json:"build"`

	Steps []StepExecution `json:"steps"`

	Status      string    `json:"status"`
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// StepExecution tracks the execution of a single step
type StepExecution struct {
	StepID    string                 `json:"step_id"`
	StepName  string                 `json:"step_name"`
	StartTime time.Time              `json:"start_time"`
	EndTime   time.Time              `json:"end_time,omitempty"`
	Duration  string                 `json:"duration,omitempty"`
	Status    string                 `json:"status"`
	Attempts  int                    `json:"attempts"`
	Outputs   []OutputFile           `json:"outputs,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// OutputFile describes one file a step produced
type OutputFile struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// NewRunManifest creates an empty manifest for runID
func NewRunManifest(runID string, requested []string) *RunManifest {
	now := time.Now()
	return &RunManifest{
		RunID:       runID,
		StartTime:   now,
		Requested:   requested,
		Build:       contracts.GetVersionInfo(),
		Steps:       []StepExecution{},
		Status:      string(OperationStatusRunning),
		LastUpdated: now,
	}
}

func (m *RunManifest) find(stepID string) int {
	for i := range m.Steps {
		if m.Steps[i].StepID == stepID {
			return i
		}
	}
	return -1
}

// RecordStepStart records an attempt of a step
func (m *RunManifest) RecordStepStart(stepID, stepName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.LastUpdated = now
	if i := m.find(stepID); i >= 0 {
		m.Steps[i].Status = string(StepStatusActive)
		m.Steps[i].Attempts++
		return
	}
	m.Steps = append(m.Steps, StepExecution{
		StepID:    stepID,
		StepName:  stepName,
		StartTime: now,
		Status:    string(StepStatusActive),
		Attempts:  1,
	})
}

// RecordStepCompletion records a completed step and stats its outputs.
// Outputs that do not exist are left out.
func (m *RunManifest) RecordStepCompletion(stepID string, outputs []string, metadata map[string]interface{}) {
	written := make([]OutputFile, 0, len(outputs))
	for _, fi := range files.Inventory(outputs) {
		written = append(written, OutputFile{Path: fi.Path, Size: fi.Size, ModTime: fi.ModTime})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if i := m.find(stepID); i >= 0 {
		m.Steps[i].EndTime = now
		m.Steps[i].Duration = now.Sub(m.Steps[i].StartTime).String()
		m.Steps[i].Status = string(StepStatusCompleted)
		m.Steps[i].Outputs = written
		m.Steps[i].Metadata = metadata
	}
	m.LastUpdated = now
}

// RecordStepFailure records a failed step
func (m *RunManifest) RecordStepFailure(stepID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if i := m.find(stepID); i >= 0 {
		m.Steps[i].EndTime = now
		m.Steps[i].Duration = now.Sub(m.Steps[i].StartTime).String()
		m.Steps[i].Status = string(StepStatusFailed)
		if err != nil {
			m.Steps[i].Error = err.Error()
		}
	}
	m.LastUpdated = now
}

// RecordStepSkipped records a step that never ran
func (m *RunManifest) RecordStepSkipped(stepID, stepName, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.LastUpdated = now
	if i := m.find(stepID); i >= 0 {
		m.Steps[i].Status = string(StepStatusSkipped)
		m.Steps[i].Error = reason
		return
	}
	m.Steps = append(m.Steps, StepExecution{
		StepID:    stepID,
		StepName:  stepName,
		StartTime: now,
		EndTime:   now,
		Status:    string(StepStatusSkipped),
		Error:     reason,
	})
}

// Finish sets the final run status
func (m *RunManifest) Finish(status OperationStatusValue, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = string(status)
	if err != nil {
		m.Error = err.Error()
	}
	m.LastUpdated = time.Now()
}

// IsStepCompleted checks if a step has completed
func (m *RunManifest) IsStepCompleted(stepID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.find(stepID)
	return i >= 0 && m.Steps[i].Status == string(StepStatusCompleted)
}

// SaveToFile writes the manifest as indented JSON
func (m *RunManifest) SaveToFile(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return nil
}

// LoadManifestFromFile reads a manifest written by SaveToFile
func LoadManifestFromFile(path string) (*RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &manifest, nil
}
