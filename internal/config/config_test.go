package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.Schedule.Timezone = "UTC"
	cfg.ApplyDefaults()

	if cfg.Ingest.BatchSize != 1 || cfg.Ingest.BackfillMax != 275 || cfg.Ingest.CallDelay != 300*time.Millisecond {
		t.Errorf("ingest defaults: got %+v", cfg.Ingest)
	}
	if cfg.Schedule.ActiveStartHour != 9 || cfg.Schedule.ActiveEndHour != 24 || cfg.Schedule.SparseInterval != 30 {
		t.Errorf("schedule defaults: got %+v", cfg.Schedule)
	}
	if cfg.Analytics.Timezone != "UTC" {
		t.Errorf("analytics timezone should follow schedule, got %q", cfg.Analytics.Timezone)
	}
	if cfg.Analytics.OutlierThreshold != 1.75 || cfg.Analytics.MinSamples != 2 {
		t.Errorf("analytics defaults: got %+v", cfg.Analytics)
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `models: ["3080", "3080 Ti", "RX 6800 XT"]
skip_keywords: ["custom build"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if cat.Rating != DefaultRatingThresholds() {
		t.Errorf("rating defaults: got %+v", cat.Rating)
	}
	if m, ok := cat.CanonicalModel(" rx 6800 xt "); !ok || m != "RX 6800 XT" {
		t.Errorf("CanonicalModel: got (%q, %v)", m, ok)
	}
	if _, ok := cat.CanonicalModel("rx6800xt"); ok {
		t.Error("CanonicalModel should not ignore inner whitespace")
	}

	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("models: [\"3080\"]\nrating: {great: 0, good: -1, fair: 0.5}\n"), 0o644)
	if _, err := LoadCatalog(bad); err == nil {
		t.Error("non-increasing thresholds should fail validation")
	}
}

func TestCatalogStoreSwap(t *testing.T) {
	s := NewCatalogStore(&Catalog{Models: []string{"3080"}})
	s.Swap(&Catalog{Models: []string{"4090"}})
	if got := s.Current().Models[0]; got != "4090" {
		t.Errorf("Current: got %q", got)
	}
}
