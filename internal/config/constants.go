package config

import "time"

// Application constants
const (
	AppName = "churnctl"

	// Environment variable prefix for runtime settings
	EnvPrefix = "CHURN"

	DefaultDataDir   = "data"
	DefaultImagesDir = "images"
	DefaultLogsDir   = "logs"

	DefaultHTTPTimeout = 30 * time.Second
	DefaultLMSBaseURL  = "https://lms.logikaschool.com"
	DefaultLMSRate     = 5.0
	DefaultLMSBurst    = 1
	DefaultLMSWorkers  = 1

	DefaultPipelineFile = "pipeline.yaml"
	DefaultEnvFile      = ".env"
)

// Business constants of the churn model
const (
	// Lessons in a full course
	AllLessons = 40
	// Months in an academic year
	AllMonths = 9
	// Working months used to annualize salaries and revenue
	MonthsPerYear = 12
	// Odds ratio of retention applied to lost clients under Bonus_v1
	RetentionOddsRatio = 2.47
	// Bonus growth coefficient dispersion (std/mean, %) considered stable
	StableDispersionPct = 17.0
	// Minimum Bonus_v2 payout when every target is met
	MinAllTargetsBonus = 1000.0
)
