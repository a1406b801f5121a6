package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*EngineConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultEngineConfig
	d := DefaultEngineConfig()
	v.SetDefault("engine.debounce_delay", d.DebounceDelay.String())
	v.SetDefault("engine.cache_ttl", d.CacheTTL.String())
	v.SetDefault("engine.cache_max_entries", d.CacheMaxEntries)
	v.SetDefault("engine.slow_validation", d.SlowValidation.String())
	v.SetDefault("holiday.max_duration_days", d.Holiday.MaxDurationDays)
	v.SetDefault("holiday.max_per_month", d.Holiday.MaxPerMonth)
	v.SetDefault("holiday.near_duplicate_warnings", d.Holiday.NearDuplicateWarnings)
	v.SetDefault("work_order.max_shift_hours", d.WorkOrder.MaxShiftHours)
	v.SetDefault("work_order.through_road_approval_blocking", d.WorkOrder.ThroughRoadApprovalBlocking)
	v.SetDefault("work_order.service_road_pavement_blocking", d.WorkOrder.ServiceRoadPavementBlocking)
	v.SetDefault("database.url", "")

	// Bind environment variables with FG_ prefix
	v.SetEnvPrefix("FG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateNoCredentialsInConfig(v); err != nil {
			return nil, err
		}
	}

	cfg := &EngineConfig{
		DebounceDelay:   v.GetDuration("engine.debounce_delay"),
		CacheTTL:        v.GetDuration("engine.cache_ttl"),
		CacheMaxEntries: v.GetInt("engine.cache_max_entries"),
		SlowValidation:  v.GetDuration("engine.slow_validation"),
		DatabaseURL:     v.GetString("database.url"),
	}
	cfg.Holiday.MaxDurationDays = v.GetInt("holiday.max_duration_days")
	cfg.Holiday.MaxPerMonth = v.GetInt("holiday.max_per_month")
	cfg.Holiday.NearDuplicateWarnings = v.GetBool("holiday.near_duplicate_warnings")
	cfg.WorkOrder.MaxShiftHours = v.GetFloat64("work_order.max_shift_hours")
	cfg.WorkOrder.ThroughRoadApprovalBlocking = v.GetBool("work_order.through_road_approval_blocking")
	cfg.WorkOrder.ServiceRoadPavementBlocking = v.GetBool("work_order.service_road_pavement_blocking")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks durations and limits are in range.
func validateConfig(cfg *EngineConfig) error {
	if cfg.DebounceDelay < 0 {
		return fmt.Errorf("debounce_delay must not be negative, got %v", cfg.DebounceDelay)
	}
	if cfg.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative, got %v", cfg.CacheTTL)
	}
	if cfg.CacheMaxEntries < 0 {
		return fmt.Errorf("cache_max_entries must not be negative, got %d", cfg.CacheMaxEntries)
	}
	if cfg.SlowValidation <= 0 {
		return fmt.Errorf("slow_validation must be positive, got %v", cfg.SlowValidation)
	}
	if cfg.Holiday.MaxDurationDays <= 0 {
		return fmt.Errorf("holiday.max_duration_days must be positive, got %d", cfg.Holiday.MaxDurationDays)
	}
	if cfg.Holiday.MaxPerMonth < 0 {
		return fmt.Errorf("holiday.max_per_month must not be negative, got %d", cfg.Holiday.MaxPerMonth)
	}
	if cfg.WorkOrder.MaxShiftHours <= 0 || cfg.WorkOrder.MaxShiftHours > 24 {
		return fmt.Errorf("work_order.max_shift_hours must be between 0 and 24, got %v", cfg.WorkOrder.MaxShiftHours)
	}
	return nil
}

// validateNoCredentialsInConfig keeps the database URL, which carries
// credentials, out of config files.
func validateNoCredentialsInConfig(v *viper.Viper) error {
	if v.InConfig("database.url") || v.InConfig("database_url") {
		return fmt.Errorf("database URL not allowed in config files (use FG_DATABASE_URL environment variable or --db-url)")
	}
	return nil
}
