// Package config defines the global configuration structure for the Rainpoint
// service. Configuration is loaded once at process initialization and is
// immutable thereafter. It follows 12-Factor App principles by strictly
// separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"rainpoint/internal/types"
)

// Config is the top-level configuration struct for the Rainpoint service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"rainpoint-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server        ServerConfig
	Data          DataConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DataConfig holds dataset source configuration: where the per-horizon
// delimited-text files live, which horizons exist, and how the required
// columns are named in the source headers.
type DataConfig struct {
	// Dir is the local directory containing dataset files. Ignored when
	// Bucket is set.
	Dir string `envconfig:"DATA_DIR" default:"."`

	// Bucket is an optional S3 bucket name. When set, dataset files are
	// fetched from object storage instead of the local filesystem.
	Bucket string `envconfig:"DATA_BUCKET"`

	// HorizonsJSON is an ordered JSON array of {"label","source"} pairs,
	// earliest horizon first. Order defines the chronology of the series.
	HorizonsJSON string `envconfig:"HORIZONS_JSON" default:"[{\"label\":\"2030\",\"source\":\"synthese_pluviometrie_2030.csv\"},{\"label\":\"2050\",\"source\":\"synthese_pluviometrie_2050.csv\"},{\"label\":\"2100\",\"source\":\"synthese_pluviometrie_2100.csv\"}]" validate:"required,json"`

	// BaselineHorizon is the horizon label deltas are computed against.
	// Empty selects the first configured horizon.
	BaselineHorizon string `envconfig:"BASELINE_HORIZON"`

	// Column names in the source headers. The metric columns default to the
	// upstream pluviometry synthesis headers.
	LatColumn         string `envconfig:"LAT_COLUMN" default:"Latitude" validate:"required"`
	LonColumn         string `envconfig:"LON_COLUMN" default:"Longitude" validate:"required"`
	MetricColumnsJSON string `envconfig:"METRIC_COLUMNS_JSON" default:"{\"mean_rainfall\":\"PLUVIOMETRIE moyenne des 17 fichiers\",\"exceptional_rainfall\":\"PLUVIO EXCEPTIONNELLE moyenne des 17 fichiers\"}" validate:"required,json"`

	// Parsed forms of the JSON fields above, populated by LoadConfig.
	Horizons      []HorizonSpec                `ignored:"true"`
	MetricColumns map[types.MetricKind]string `ignored:"true"`
}

// HorizonSpec binds a horizon label to its dataset source identifier.
type HorizonSpec struct {
	Label  string `json:"label"`
	Source string `json:"source"`
}

// AWSConfig holds AWS regional configuration for the optional S3 dataset
// source and CloudWatch metrics.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Rainpoint"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
