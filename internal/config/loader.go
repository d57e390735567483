// loader.go implements the configuration loading lifecycle for the Rainpoint
// service.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Parse the JSON-valued fields (horizons, metric columns).
//  5. Populate BuildInfo from linker-injected variables.
//  6. Validate the struct using go-playground/validator plus semantic checks.
package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"rainpoint/internal/types"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid
// debugging. It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the Rainpoint configuration.
//
// It performs the following steps in order:
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Parses HorizonsJSON and MetricColumnsJSON into their typed forms.
//  5. Populates Config.Build from linker-injected variables.
//  6. Validates the Config struct.
func LoadConfig() (*Config, error) {
	// Step 1: Enforce UTC timezone to prevent drift bugs.
	time.Local = time.UTC

	// Step 2: Load .env file (non-fatal if absent).
	// godotenv.Load() silently succeeds if no .env file exists in the
	// working directory. It does NOT override existing environment variables.
	_ = godotenv.Load()

	// Step 3: Process envconfig tags to populate the Config struct.
	// The empty prefix "" means envconfig uses the exact tag values
	// (e.g., envconfig:"APP_ENV" reads APP_ENV directly).
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 4: Parse JSON-valued fields into their typed forms.
	if err := json.Unmarshal([]byte(cfg.Data.HorizonsJSON), &cfg.Data.Horizons); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to parse HORIZONS_JSON",
			Err:     err,
		}
	}
	if err := json.Unmarshal([]byte(cfg.Data.MetricColumnsJSON), &cfg.Data.MetricColumns); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to parse METRIC_COLUMNS_JSON",
			Err:     err,
		}
	}

	// Step 5: Populate build metadata from linker-injected variables.
	cfg.Build = NewBuildInfo()

	// Step 6: Validate the populated struct, then the cross-field rules
	// that struct tags cannot express.
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if err := validateData(&cfg.Data); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "dataset configuration invalid",
			Err:     err,
		}
	}

	return &cfg, nil
}

// validateData enforces the semantic rules on the parsed dataset
// configuration: at least one horizon, unique non-empty labels, non-empty
// sources, at least one metric column, and a baseline that names a
// configured horizon.
func validateData(d *DataConfig) error {
	if len(d.Horizons) == 0 {
		return fmt.Errorf("at least one horizon must be configured")
	}

	seen := make(map[string]struct{}, len(d.Horizons))
	for i, h := range d.Horizons {
		if h.Label == "" {
			return fmt.Errorf("horizon %d has an empty label", i)
		}
		if h.Source == "" {
			return fmt.Errorf("horizon %q has an empty source", h.Label)
		}
		if _, dup := seen[h.Label]; dup {
			return fmt.Errorf("duplicate horizon label %q", h.Label)
		}
		seen[h.Label] = struct{}{}
	}

	if len(d.MetricColumns) == 0 {
		return fmt.Errorf("at least one metric column must be configured")
	}
	for kind, col := range d.MetricColumns {
		if kind == "" || col == "" {
			return fmt.Errorf("metric column mapping must have non-empty kind and column")
		}
	}

	if d.BaselineHorizon != "" {
		if _, ok := seen[d.BaselineHorizon]; !ok {
			return fmt.Errorf("baseline horizon %q is not a configured horizon", d.BaselineHorizon)
		}
	}

	return nil
}

// Baseline returns the effective baseline horizon label: the configured
// BaselineHorizon if set, otherwise the first (earliest) horizon.
func (d *DataConfig) Baseline() string {
	if d.BaselineHorizon != "" {
		return d.BaselineHorizon
	}
	if len(d.Horizons) > 0 {
		return d.Horizons[0].Label
	}
	return ""
}

// MetricKinds returns the configured metric kinds in deterministic order
// (sorted by kind) for stable iteration in handlers and logs.
func (d *DataConfig) MetricKinds() []types.MetricKind {
	kinds := make([]types.MetricKind, 0, len(d.MetricColumns))
	for k := range d.MetricColumns {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
