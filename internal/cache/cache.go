// internal/cache/cache.go
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/solatis/formguard/internal/types"
)

/*
 * Field validation result cache.
 *
 * Memoises ValidationResults per (field, value, dependency context). The key
 * is the field name plus two SHA-256 fingerprints: one of the value's JSON
 * encoding, one of the JSON encoding of the context fields the field's rules
 * read. A change to any dependency therefore produces a different key, and a
 * rule that reads arbitrary context fingerprints the whole context.
 *
 * Values that cannot be JSON encoded (channels, funcs, NaN) are not cached.
 *
 * Expiry: entries live for TTL. Expired entries are ignored on Get and swept
 * on Put. When MaxEntries is reached, the entry closest to expiry is evicted.
 *
 * Thread-safe. One cache per engine instance; never shared across forms.
 */

// Config holds cache settings.
type Config struct {
	// TTL is how long an entry stays valid. Zero disables caching.
	TTL time.Duration
	// MaxEntries bounds the entry count. Zero means unbounded.
	MaxEntries int
}

// DefaultConfig returns a 30 second TTL with a 500 entry bound.
func DefaultConfig() Config {
	return Config{
		TTL:        30 * time.Second,
		MaxEntries: 500,
	}
}

// DependencyFunc reports which context fields field's rules read.
// all=true means the whole context.
type DependencyFunc func(field types.FieldName) (deps []types.FieldName, all bool)

// Key identifies a cached result.
type Key struct {
	Field   types.FieldName
	Value   string
	Context string
}

type entry struct {
	result    types.ValidationResult
	expiresAt time.Time
}

// Cache is a TTL-bounded map of field validation results.
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]entry
	config  Config
	deps    DependencyFunc
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithNow replaces the time source, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache. deps may be nil when no rule reads context.
func New(config Config, deps DependencyFunc, opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[Key]entry),
		config:  config,
		deps:    deps,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KeyFor computes the cache key. ok is false for values that cannot be
// fingerprinted.
func (c *Cache) KeyFor(field types.FieldName, value any, fctx types.Record) (Key, bool) {
	vh, ok := fingerprint(value)
	if !ok {
		return Key{}, false
	}

	var deps []types.FieldName
	all := false
	if c.deps != nil {
		deps, all = c.deps(field)
	}

	var subset any
	switch {
	case all:
		subset = map[types.FieldName]any(fctx)
	case len(deps) > 0:
		m := make(map[types.FieldName]any, len(deps))
		for _, d := range deps {
			m[d] = fctx.Get(d)
		}
		subset = m
	}
	ch, ok := fingerprint(subset)
	if !ok {
		return Key{}, false
	}
	return Key{Field: field, Value: vh, Context: ch}, true
}

// fingerprint hashes v's JSON encoding. encoding/json sorts map keys, so
// equal maps hash equally.
func fingerprint(v any) (string, bool) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), true
}

// Get returns a live cached result.
func (c *Cache) Get(field types.FieldName, value any, fctx types.Record) (types.ValidationResult, bool) {
	if c.config.TTL <= 0 {
		return types.ValidationResult{}, false
	}
	key, ok := c.KeyFor(field, value, fctx)
	if !ok {
		return types.ValidationResult{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return types.ValidationResult{}, false
	}
	return e.result, true
}

// Put stores result. It reports whether the result was cached.
func (c *Cache) Put(field types.FieldName, value any, fctx types.Record, result types.ValidationResult) bool {
	if c.config.TTL <= 0 {
		return false
	}
	key, ok := c.KeyFor(field, value, fctx)
	if !ok {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	if _, exists := c.entries[key]; !exists && c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		c.evictLocked()
	}
	c.entries[key] = entry{result: result, expiresAt: now.Add(c.config.TTL)}
	return true
}

func (c *Cache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// evictLocked drops the entry closest to expiry.
func (c *Cache) evictLocked() {
	var (
		victim Key
		soon   time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.expiresAt.Before(soon) {
			victim, soon, found = k, e.expiresAt, true
		}
	}
	if found {
		delete(c.entries, victim)
	}
}

// Invalidate drops every entry for the given fields.
func (c *Cache) Invalidate(fields ...types.FieldName) {
	if len(fields) == 0 {
		return
	}
	drop := make(map[types.FieldName]struct{}, len(fields))
	for _, f := range fields {
		drop[f] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if _, ok := drop[k.Field]; ok {
			delete(c.entries, k)
		}
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
