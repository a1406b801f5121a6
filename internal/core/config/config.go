// Package config provides configuration management for formguard.
package config

import (
	"time"

	"github.com/solatis/formguard/internal/cache"
	"github.com/solatis/formguard/internal/engine"
	"github.com/solatis/formguard/internal/forms"
)

// EngineConfig holds engine tuning and the built-in form limits.
type EngineConfig struct {
	DebounceDelay   time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
	SlowValidation  time.Duration
	Holiday         forms.HolidayConfig
	WorkOrder       forms.WorkOrderConfig

	// DatabaseURL locates the record store. Environment only (FG_DATABASE_URL).
	DatabaseURL string
}

// DefaultEngineConfig returns configuration with default values.
func DefaultEngineConfig() *EngineConfig {
	ec := engine.DefaultConfig()
	fc := forms.DefaultConfig()
	return &EngineConfig{
		DebounceDelay:   ec.DebounceDelay,
		CacheTTL:        ec.Cache.TTL,
		CacheMaxEntries: ec.Cache.MaxEntries,
		SlowValidation:  ec.SlowValidation,
		Holiday:         fc.Holiday,
		WorkOrder:       fc.WorkOrder,
	}
}

// Engine returns the engine settings.
func (c *EngineConfig) Engine() engine.Config {
	return engine.Config{
		DebounceDelay: c.DebounceDelay,
		Cache: cache.Config{
			TTL:        c.CacheTTL,
			MaxEntries: c.CacheMaxEntries,
		},
		SlowValidation: c.SlowValidation,
	}
}

// Forms returns the built-in form limits.
func (c *EngineConfig) Forms() forms.Config {
	return forms.Config{Holiday: c.Holiday, WorkOrder: c.WorkOrder}
}
