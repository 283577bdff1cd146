package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "churncli/internal/errors"
)

// Config represents the complete runtime configuration
type Config struct {
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	LMS       LMSConfig       `yaml:"lms" envconfig:"LMS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Run       RunConfig       `yaml:"run" envconfig:"RUN"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system roots. All pipeline files are resolved
// relative to these directories.
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	ImagesDir    string `yaml:"images_dir" envconfig:"IMAGES_DIR" validate:"required"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR" validate:"required"`
	PipelineFile string `yaml:"pipeline_file" envconfig:"PIPELINE_FILE"`
	EnvFile      string `yaml:"env_file" envconfig:"ENV_FILE"`
}

// LMSConfig controls the attendance extraction client
type LMSConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" envconfig:"REQUESTS_PER_SECOND" validate:"gt=0"`
	Burst             int           `yaml:"burst" envconfig:"BURST" validate:"gte=1"`
	Workers           int           `yaml:"workers" envconfig:"WORKERS" validate:"gte=1,lte=32"`
	UserAgent         string        `yaml:"user_agent" envconfig:"USER_AGENT"`

	// Credentials are read from the unprefixed variables of the .env file
	Credentials LMSCredentials `yaml:"-" ignored:"true"`
}

// LMSCredentials authenticate requests against the LMS
type LMSCredentials struct {
	AccessToken      string `envconfig:"ACCESS_TOKEN"`
	BackendSessionID string `envconfig:"BACKEND_SESSION_ID"`
	ServerID         string `envconfig:"SERVER_ID"`
	CreatedTimestamp string `envconfig:"CREATED_TIMESTAMP"`
	UserID           string `envconfig:"USER_ID"`
}

// Configured reports whether an access token is available
func (c LMSCredentials) Configured() bool {
	return strings.TrimSpace(c.AccessToken) != ""
}

// TelemetryConfig contains tracing and metrics configuration
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" validate:"oneof=stdout none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" validate:"oneof=prometheus none"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
	MetricsFile    string  `yaml:"metrics_file" envconfig:"METRICS_FILE"`
}

// RunConfig contains pipeline execution settings
type RunConfig struct {
	StepTimeout     time.Duration `yaml:"step_timeout" envconfig:"STEP_TIMEOUT" validate:"gt=0"`
	MaxAttempts     int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" validate:"gte=1"`
	ContinueOnError bool          `yaml:"continue_on_error" envconfig:"CONTINUE_ON_ERROR"`
	Charts          bool          `yaml:"charts" envconfig:"CHARTS"`
	Workbook        bool          `yaml:"workbook" envconfig:"WORKBOOK"`
	Seed            int64         `yaml:"seed" envconfig:"SEED"`
}

// Load resolves configuration from defaults, the YAML file and the
// environment, in that order of increasing precedence.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file. An empty path skips the file.
func LoadFrom(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, apperrors.NewConfigError("load config file", err).WithContext("path", configFile)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, apperrors.NewConfigError("load config from env", err).WithContext("prefix", EnvPrefix)
	}

	if err := loadCredentials(cfg.Paths.EnvFile, &cfg.LMS.Credentials); err != nil {
		return nil, apperrors.NewConfigError("load LMS credentials", err).WithContext("path", cfg.Paths.EnvFile)
	}

	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, apperrors.NewConfigError("config validation failed", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// loadCredentials reads the optional .env file and then the unprefixed
// credential variables. Variables already set in the process win over .env.
func loadCredentials(envFile string, creds *LMSCredentials) error {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("read %s: %w", envFile, err)
			}
		}
	}
	return envconfig.Process("", creds)
}

// normalize fills values that must never be empty
func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = c.Paths.LogsDir + "/churnctl.log"
	}
	if c.LMS.UserAgent == "" {
		c.LMS.UserAgent = "Mozilla/5.0"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = AppName
	}
}

// validate checks struct constraints
func (c *Config) validate() error {
	return validator.New().Struct(c)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "",
		},
		Paths: PathsConfig{
			DataDir:      DefaultDataDir,
			ImagesDir:    DefaultImagesDir,
			LogsDir:      DefaultLogsDir,
			PipelineFile: DefaultPipelineFile,
			EnvFile:      DefaultEnvFile,
		},
		LMS: LMSConfig{
			BaseURL:           DefaultLMSBaseURL,
			Timeout:           DefaultHTTPTimeout,
			RequestsPerSecond: DefaultLMSRate,
			Burst:             DefaultLMSBurst,
			Workers:           DefaultLMSWorkers,
			UserAgent:         "Mozilla/5.0",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    AppName,
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
			MetricsFile:    "",
		},
		Run: RunConfig{
			StepTimeout: 30 * time.Minute,
			MaxAttempts: 3,
			Charts:      true,
			Workbook:    true,
			Seed:        42,
		},
	}
}
