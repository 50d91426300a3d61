package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CF_SCHEMA_SERVICE_URL", "http://localhost:8085")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinConfidence != 0.5 {
		t.Fatalf("unexpected min confidence: %v", cfg.MinConfidence)
	}
	if cfg.MaxInFlight != 4 {
		t.Fatalf("unexpected max in-flight: %d", cfg.MaxInFlight)
	}
	if cfg.SchemaTimeout != 10*time.Second {
		t.Fatalf("unexpected schema timeout: %s", cfg.SchemaTimeout)
	}
	if cfg.EnableDryRun {
		t.Fatalf("dry run should default to off")
	}
}

func TestLoad_RequiresSchemaServiceURL(t *testing.T) {
	t.Setenv("CF_SCHEMA_SERVICE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error for missing schema service URL")
	}
	if !strings.Contains(err.Error(), "CF_SCHEMA_SERVICE_URL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CF_SCHEMA_SERVICE_URL", "https://schemas.example.com")
	t.Setenv("CF_MIN_CONFIDENCE", "0.7")
	t.Setenv("CF_MAX_IN_FLIGHT", "8")
	t.Setenv("CF_SCHEMA_TIMEOUT", "2s")
	t.Setenv("CF_ENABLE_DRY_RUN", "true")
	t.Setenv("CF_METRICS_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinConfidence != 0.7 {
		t.Fatalf("unexpected min confidence: %v", cfg.MinConfidence)
	}
	if cfg.MaxInFlight != 8 {
		t.Fatalf("unexpected max in-flight: %d", cfg.MaxInFlight)
	}
	if cfg.SchemaTimeout != 2*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.SchemaTimeout)
	}
	if !cfg.EnableDryRun {
		t.Fatalf("expected dry run enabled")
	}
	if cfg.MetricsPort != 9100 {
		t.Fatalf("unexpected metrics port: %d", cfg.MetricsPort)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"CF_MIN_CONFIDENCE", "1.5"},
		{"CF_MIN_CONFIDENCE", "abc"},
		{"CF_MAX_IN_FLIGHT", "0"},
		{"CF_SCHEMA_TIMEOUT", "-1s"},
		{"CF_METRICS_PORT", "70000"},
		{"CF_ENABLE_DRY_RUN", "maybe"},
	}

	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("CF_SCHEMA_SERVICE_URL", "http://localhost:8085")
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_RejectsInvalidWebhookURL(t *testing.T) {
	t.Setenv("CF_SCHEMA_SERVICE_URL", "http://localhost:8085")
	t.Setenv("CF_WEBHOOK_URL", "not-a-url")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid webhook URL")
	}
}
