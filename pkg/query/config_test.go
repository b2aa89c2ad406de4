package query

import (
	"net/url"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Endpoint != EndpointMeasurements {
		t.Errorf("Endpoint = %q, want measurements", cfg.Endpoint)
	}
	if cfg.Type != "ping" {
		t.Errorf("Type = %q, want ping", cfg.Type)
	}
	if cfg.AF != 4 {
		t.Errorf("AF = %d, want 4", cfg.AF)
	}
	if cfg.Sort != "-id" {
		t.Errorf("Sort = %q, want -id", cfg.Sort)
	}
	if cfg.PageSize != 500 {
		t.Errorf("PageSize = %d, want 500", cfg.PageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"valid anchor endpoint", func(c *Config) { c.Endpoint = EndpointAnchorMeasurements }, false},
		{"unknown endpoint", func(c *Config) { c.Endpoint = "probes" }, true},
		{"bad address family", func(c *Config) { c.AF = 5 }, true},
		{"af omitted", func(c *Config) { c.AF = 0 }, false},
		{"af six", func(c *Config) { c.AF = 6 }, false},
		{"zero page size", func(c *Config) { c.PageSize = 0 }, true},
		{"negative min id", func(c *Config) { c.MinID = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestFirstPageURL_Measurements(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extra = map[string]string{"status": "1"}

	rawURL, err := cfg.FirstPageURL()
	if err != nil {
		t.Fatalf("FirstPageURL() failed: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("Result is not a valid URL: %v", err)
	}
	if !strings.HasSuffix(u.Path, "/measurements/") {
		t.Errorf("Path = %q, want .../measurements/", u.Path)
	}

	params := u.Query()
	expected := map[string]string{
		"sort":      "-id",
		"page_size": "500",
		"fields":    "id",
		"type":      "ping",
		"af":        "4",
		"tags":      "anchoring,probes",
		"status":    "1",
	}
	for k, want := range expected {
		if got := params.Get(k); got != want {
			t.Errorf("param %s = %q, want %q", k, got, want)
		}
	}
}

func TestFirstPageURL_AnchorMeasurementsOmitsFilters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Endpoint = EndpointAnchorMeasurements
	cfg.Fields = "id,measurement,probe_id"

	rawURL, err := cfg.FirstPageURL()
	if err != nil {
		t.Fatalf("FirstPageURL() failed: %v", err)
	}

	u, _ := url.Parse(rawURL)
	params := u.Query()

	// The anchor-measurements endpoint rejects these filters.
	for _, k := range []string{"type", "af", "tags"} {
		if params.Has(k) {
			t.Errorf("param %s should be omitted on anchor-measurements, got %q", k, params.Get(k))
		}
	}
	if got := params.Get("fields"); got != "id,measurement,probe_id" {
		t.Errorf("fields = %q", got)
	}
}

func TestFirstPageURL_Deterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Extra = map[string]string{"b": "2", "a": "1"}

	first, err := cfg.FirstPageURL()
	if err != nil {
		t.Fatalf("FirstPageURL() failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := cfg.FirstPageURL()
		if again != first {
			t.Fatalf("URL not deterministic: %q vs %q", first, again)
		}
	}
}

func TestStopOnMinID(t *testing.T) {
	tests := []struct {
		name     string
		sort     string
		minID    int64
		expected bool
	}{
		{"descending with threshold", "-id", 100, true},
		{"descending without threshold", "-id", 0, false},
		{"ascending with threshold", "id", 100, false},
		{"other sort with threshold", "-start_time", 100, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sort = tt.sort
			cfg.MinID = tt.minID

			if got := cfg.StopOnMinID(); got != tt.expected {
				t.Errorf("StopOnMinID() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMeasurementIDField(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.MeasurementIDField(); got != "id" {
		t.Errorf("measurements MeasurementIDField = %q, want id", got)
	}

	cfg.Endpoint = EndpointAnchorMeasurements
	if got := cfg.MeasurementIDField(); got != "measurement" {
		t.Errorf("anchor-measurements MeasurementIDField = %q, want measurement", got)
	}
	if got := cfg.IDField(); got != "id" {
		t.Errorf("IDField = %q, want id (records always carry their own id)", got)
	}
}
