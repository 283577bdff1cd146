package operations

import (
	"time"
)

// Pipeline step identifiers. They double as CLI subcommand names.
const (
	StepIDExtract      = "extract"
	StepIDBuildDB      = "build-db"
	StepIDExportReport = "export-report"
	StepIDPrepare      = "prepare"
	StepIDAnalyze      = "analyze"
	StepIDFeatures     = "features"
	StepIDCompare      = "compare"
	StepIDFinance      = "finance"
	StepIDModelBonus   = "model-bonus"
	StepIDModelEffects = "model-effects"
	StepIDModelShap    = "model-shap"
)

// Pipeline step names
const (
	StepNameExtract      = "LMS Attendance Extraction"
	StepNameBuildDB      = "Loss Database Build"
	StepNameExportReport = "Joined Report Export"
	StepNamePrepare      = "Financial Enrichment"
	StepNameAnalyze      = "Churn Statistics"
	StepNameFeatures     = "Teacher Groups and KPI Importance"
	StepNameCompare      = "KPI Cohort Comparison"
	StepNameFinance      = "Financial Losses and Bonus Growth"
	StepNameModelBonus   = "Compensation Hypotheses"
	StepNameModelEffects = "Treatment Effects"
	StepNameModelShap    = "Churn Attribution"
)

// Context keys for operation state
const (
	ContextKeyStep    = "step"
	ContextKeyRunID   = "run_id"
	ContextKeyResults = "results"
)

// Default timeouts
const (
	DefaultStepTimeout    = 30 * time.Minute
	DefaultExtractTimeout = 2 * time.Hour
	DefaultModelTimeout   = 60 * time.Minute
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest selects what a run executes. An empty Steps list runs
// every registered step in dependency order.
type OperationRequest struct {
	ID    string   `json:"id"`
	Steps []string `json:"steps,omitempty"`
}

// OperationResponse represents the outcome of a run
type OperationResponse struct {
	ID       string                 `json:"id"`
	Status   OperationStatusValue   `json:"status"`
	Duration time.Duration          `json:"duration"`
	Order    []string               `json:"order"`
	Steps    map[string]*StepState  `json:"steps"`
	Results  map[string]interface{} `json:"-"`
	Error    string                 `json:"error,omitempty"`
}
