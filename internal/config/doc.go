// Package config provides centralized configuration management for churnctl.
// It loads runtime settings from defaults, an optional YAML file and the
// environment, and pipeline business rules from a separate YAML document.
//
// # Configuration Sources
//
// Runtime configuration is resolved in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. config.yaml in the working directory or configs/
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// Runtime variables follow the pattern CHURN_*:
//
//	CHURN_PATHS_DATA_DIR=data
//	CHURN_LOGGING_LEVEL=debug
//	CHURN_LMS_WORKERS=4
//	CHURN_TELEMETRY_TRACE_EXPORTER=stdout
//
// LMS credentials keep the names the CRM export tooling already uses
// (ACCESS_TOKEN, BACKEND_SESSION_ID, SERVER_ID, CREATED_TIMESTAMP, USER_ID)
// and may be supplied through a .env file.
//
// # Pipeline Settings
//
// Periods, teacher aliases, manual fixes, age bins and formula constants live
// in pipeline.yaml. Missing keys keep the built-in defaults:
//
//	settings, err := config.LoadPipeline("pipeline.yaml")
//
// # Path Management
//
// Every input and output file of the pipeline is resolved through Paths:
//
//	paths := config.NewPaths(cfg.Paths)
//	report := paths.GeneralReport
package config
