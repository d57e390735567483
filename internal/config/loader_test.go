package config

import (
	"errors"
	"testing"

	"rainpoint/internal/types"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("Environment = %q, want local", cfg.Environment)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Server.Port)
	}

	// The default horizon set is the three pluviometry synthesis files.
	if len(cfg.Data.Horizons) != 3 {
		t.Fatalf("got %d horizons, want 3", len(cfg.Data.Horizons))
	}
	if cfg.Data.Horizons[0].Label != "2030" || cfg.Data.Horizons[0].Source != "synthese_pluviometrie_2030.csv" {
		t.Errorf("first horizon = %+v", cfg.Data.Horizons[0])
	}
	if cfg.Data.Baseline() != "2030" {
		t.Errorf("Baseline = %q, want 2030 (first horizon)", cfg.Data.Baseline())
	}

	if len(cfg.Data.MetricColumns) != 2 {
		t.Fatalf("got %d metric columns, want 2", len(cfg.Data.MetricColumns))
	}
	if col := cfg.Data.MetricColumns[types.MetricMeanRainfall]; col != "PLUVIOMETRIE moyenne des 17 fichiers" {
		t.Errorf("mean rainfall column = %q", col)
	}

	if cfg.Build.Version == "" {
		t.Error("expected build version to be populated")
	}
}

func TestLoadConfig_CustomHorizons(t *testing.T) {
	t.Setenv("HORIZONS_JSON", `[{"label":"2040","source":"a.csv"},{"label":"2080","source":"b.csv"}]`)
	t.Setenv("BASELINE_HORIZON", "2080")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Data.Horizons) != 2 {
		t.Fatalf("got %d horizons, want 2", len(cfg.Data.Horizons))
	}
	if cfg.Data.Baseline() != "2080" {
		t.Errorf("Baseline = %q, want 2080", cfg.Data.Baseline())
	}
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "mars")

	_, err := LoadConfig()
	assertConfigError(t, err, ErrValidation)
}

func TestLoadConfig_MalformedHorizonsJSON(t *testing.T) {
	t.Setenv("HORIZONS_JSON", `[{"label":`)

	_, err := LoadConfig()
	assertConfigError(t, err, ErrParsing)
}

func TestLoadConfig_SemanticValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "empty horizons",
			env:  map[string]string{"HORIZONS_JSON": `[]`},
		},
		{
			name: "duplicate labels",
			env:  map[string]string{"HORIZONS_JSON": `[{"label":"2030","source":"a.csv"},{"label":"2030","source":"b.csv"}]`},
		},
		{
			name: "empty source",
			env:  map[string]string{"HORIZONS_JSON": `[{"label":"2030","source":""}]`},
		},
		{
			name: "empty metric columns",
			env:  map[string]string{"METRIC_COLUMNS_JSON": `{}`},
		},
		{
			name: "baseline not configured",
			env:  map[string]string{"BASELINE_HORIZON": "1999"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assertConfigError(t, err, ErrValidation)
		})
	}
}

func TestDataConfig_MetricKindsSorted(t *testing.T) {
	d := DataConfig{MetricColumns: map[types.MetricKind]string{
		types.MetricMeanRainfall:        "a",
		types.MetricExceptionalRainfall: "b",
	}}

	kinds := d.MetricKinds()
	if len(kinds) != 2 {
		t.Fatalf("got %d kinds, want 2", len(kinds))
	}
	// exceptional_rainfall sorts before mean_rainfall.
	if kinds[0] != types.MetricExceptionalRainfall || kinds[1] != types.MetricMeanRainfall {
		t.Errorf("kinds = %v, want sorted order", kinds)
	}
}

func TestDataConfig_BaselineFallback(t *testing.T) {
	d := DataConfig{Horizons: []HorizonSpec{{Label: "2030", Source: "a.csv"}, {Label: "2050", Source: "b.csv"}}}
	if got := d.Baseline(); got != "2030" {
		t.Errorf("Baseline = %q, want the first horizon", got)
	}

	d.BaselineHorizon = "2050"
	if got := d.Baseline(); got != "2050" {
		t.Errorf("Baseline = %q, want the configured override", got)
	}
}

func assertConfigError(t *testing.T, err error, wantType ConfigErrorType) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Type != wantType {
		t.Errorf("error type = %s, want %s", cfgErr.Type, wantType)
	}
}
