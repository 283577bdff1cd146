package contracts

import (
	"fmt"
	"runtime"
)

const (
	// Version of churnctl
	Version = "0.3.0"

	// DataFormatVersion identifies the layout of the CSV results and the
	// lost clients database. Bump it when a column is renamed or dropped.
	DataFormatVersion = "v1"
)

// Set with -ldflags "-X churncli/pkg/contracts.GitCommit=..."
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// VersionInfo is recorded in every run manifest
type VersionInfo struct {
	Version    string `json:"version"`
	BuildTime  string `json:"build_time"`
	GitCommit  string `json:"git_commit"`
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
	DataFormat string `json:"data_format"`
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:    Version,
		BuildTime:  BuildTime,
		GitCommit:  GitCommit,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		DataFormat: DataFormatVersion,
	}
}

// GetVersionString returns a formatted version string
func GetVersionString() string {
	return fmt.Sprintf("churnctl v%s", Version)
}

// GetFullVersionString adds build details and the data format
func GetFullVersionString() string {
	info := GetVersionInfo()
	return fmt.Sprintf("%s (data %s, commit %s, built %s, %s %s)",
		GetVersionString(), info.DataFormat, info.GitCommit, info.BuildTime, info.GoVersion, info.Platform)
}
