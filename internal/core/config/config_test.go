package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DebounceDelay != 300*time.Millisecond {
			t.Errorf("expected debounce 300ms, got %v", cfg.DebounceDelay)
		}
		if cfg.CacheTTL != 30*time.Second {
			t.Errorf("expected cache ttl 30s, got %v", cfg.CacheTTL)
		}
		if cfg.CacheMaxEntries != 500 {
			t.Errorf("expected cache_max_entries 500, got %d", cfg.CacheMaxEntries)
		}
		if cfg.SlowValidation != 100*time.Millisecond {
			t.Errorf("expected slow_validation 100ms, got %v", cfg.SlowValidation)
		}
		if cfg.Holiday.MaxDurationDays != 30 {
			t.Errorf("expected holiday max 30 days, got %d", cfg.Holiday.MaxDurationDays)
		}
		if !cfg.Holiday.NearDuplicateWarnings {
			t.Errorf("expected near-duplicate warnings on by default")
		}
		if cfg.WorkOrder.MaxShiftHours != 12 {
			t.Errorf("expected max shift 12h, got %v", cfg.WorkOrder.MaxShiftHours)
		}
		if cfg.WorkOrder.ThroughRoadApprovalBlocking || cfg.WorkOrder.ServiceRoadPavementBlocking {
			t.Errorf("expected soft work order checks by default")
		}
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("FG_ENGINE_DEBOUNCE_DELAY", "150ms")
		t.Setenv("FG_HOLIDAY_MAX_DURATION_DAYS", "14")
		t.Setenv("FG_WORK_ORDER_THROUGH_ROAD_APPROVAL_BLOCKING", "true")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DebounceDelay != 150*time.Millisecond {
			t.Errorf("expected debounce 150ms, got %v", cfg.DebounceDelay)
		}
		if cfg.Holiday.MaxDurationDays != 14 {
			t.Errorf("expected holiday max 14 days, got %d", cfg.Holiday.MaxDurationDays)
		}
		if !cfg.WorkOrder.ThroughRoadApprovalBlocking {
			t.Errorf("expected through road approval to block")
		}
	})

	t.Run("yaml file", func(t *testing.T) {
		path := writeConfig(t, "formguard.yaml", `engine:
  cache_ttl: 1m
  cache_max_entries: 50
holiday:
  max_per_month: 2
work_order:
  max_shift_hours: 10.5
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.CacheTTL != time.Minute || cfg.CacheMaxEntries != 50 {
			t.Errorf("cache = %v/%d, want 1m/50", cfg.CacheTTL, cfg.CacheMaxEntries)
		}
		if cfg.Holiday.MaxPerMonth != 2 {
			t.Errorf("expected max_per_month 2, got %d", cfg.Holiday.MaxPerMonth)
		}
		if cfg.WorkOrder.MaxShiftHours != 10.5 {
			t.Errorf("expected max shift 10.5h, got %v", cfg.WorkOrder.MaxShiftHours)
		}
	})

	t.Run("toml file", func(t *testing.T) {
		path := writeConfig(t, "formguard.toml", "[holiday]\nnear_duplicate_warnings = false\n")
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Holiday.NearDuplicateWarnings {
			t.Errorf("expected near-duplicate warnings off")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	invalid := []struct {
		name, env, value string
	}{
		{"negative debounce", "FG_ENGINE_DEBOUNCE_DELAY", "-1s"},
		{"negative cache size", "FG_ENGINE_CACHE_MAX_ENTRIES", "-1"},
		{"zero slow threshold", "FG_ENGINE_SLOW_VALIDATION", "0s"},
		{"zero holiday duration", "FG_HOLIDAY_MAX_DURATION_DAYS", "0"},
		{"negative monthly limit", "FG_HOLIDAY_MAX_PER_MONTH", "-2"},
		{"shift over a day", "FG_WORK_ORDER_MAX_SHIFT_HOURS", "25"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)
			if _, err := LoadConfig(""); err == nil {
				t.Errorf("expected error for %s=%s", tt.env, tt.value)
			}
		})
	}
}

func TestEngineConfig_Conversions(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.CacheTTL = 5 * time.Second
	cfg.Holiday.MaxPerMonth = 3

	ec := cfg.Engine()
	if ec.DebounceDelay != cfg.DebounceDelay || ec.Cache.TTL != 5*time.Second || ec.Cache.MaxEntries != cfg.CacheMaxEntries {
		t.Errorf("Engine() = %+v, does not mirror %+v", ec, cfg)
	}
	if fc := cfg.Forms(); fc.Holiday.MaxPerMonth != 3 || fc.WorkOrder != cfg.WorkOrder {
		t.Errorf("Forms() = %+v, does not mirror %+v", fc, cfg)
	}
}
