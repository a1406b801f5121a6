// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solatis/formguard/internal/cache"
	"github.com/solatis/formguard/internal/classify"
	"github.com/solatis/formguard/internal/perf"
	"github.com/solatis/formguard/internal/rules"
	"github.com/solatis/formguard/internal/summary"
	"github.com/solatis/formguard/internal/types"
)

/*
 * Validation engine facade.
 *
 * One Engine serves one open form. It owns the form's scheduler state, result
 * cache and performance tracker; the rule Registry is shared and read through
 * one snapshot per evaluation. Nothing here is process-global, so two forms
 * open at once never observe each other's cached results.
 *
 * Entry points:
 *   - ValidateField / ValidateFieldAsync: debounced keystroke validation
 *   - ValidateFieldNow: immediate single-field validation (blur, tests)
 *   - ValidateForm: submit-time validation of every field plus cross-field
 *     and business rules, published atomically
 *
 * The engine performs no I/O. Existing records for business rules are passed
 * in by the caller.
 */

// Config holds engine tuning.
type Config struct {
	DebounceDelay  time.Duration
	Cache          cache.Config
	SlowValidation time.Duration
}

// DefaultConfig returns a 300ms debounce, the default cache and a 100ms slow
// validation threshold.
func DefaultConfig() Config {
	return Config{
		DebounceDelay:  300 * time.Millisecond,
		Cache:          cache.DefaultConfig(),
		SlowValidation: 100 * time.Millisecond,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithEntity selects the entity whose cross-field and business rules apply.
func WithEntity(entity types.EntityType) Option {
	return func(e *Engine) { e.entity = entity }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// Engine validates one form instance.
type Engine struct {
	id       string
	registry *rules.Registry
	entity   types.EntityType
	cfg      Config
	clock    Clock
	logger   *zap.Logger
	cache    *cache.Cache
	tracker  *perf.Tracker

	mu              sync.Mutex
	closed          bool
	set             *rules.RuleSet // snapshot the cache was filled from
	fields          map[types.FieldName]*fieldState
	results         map[types.FieldName]types.ValidationResult
	recordErrors    []types.ValidationResult
	warnings        []string
	values          types.Record
	lastValidatedAt time.Time
}

// New creates an engine over registry.
func New(registry *rules.Registry, opts ...Option) (*Engine, error) {
	if registry == nil || registry.Snapshot() == nil {
		return nil, types.ErrNoRegistry
	}

	e := &Engine{
		id:       types.NewInstanceID(),
		registry: registry,
		cfg:      DefaultConfig(),
		clock:    realClock{},
		logger:   zap.NewNop(),
		fields:   make(map[types.FieldName]*fieldState),
		results:  make(map[types.FieldName]types.ValidationResult),
		values:   make(types.Record),
	}
	for _, opt := range opts {
		opt(e)
	}

	set := registry.Snapshot()
	if err := checkEntity(set, e.entity); err != nil {
		return nil, err
	}
	e.set = set

	e.logger = e.logger.With(zap.String("engine_id", e.id), zap.String("entity", string(e.entity)))
	e.cache = cache.New(e.cfg.Cache, e.dependencies, cache.WithNow(e.clock.Now))
	e.tracker = perf.NewTracker(e.cfg.SlowValidation, e.logger)
	return e, nil
}

func checkEntity(set *rules.RuleSet, entity types.EntityType) error {
	if entity != "" && !set.HasEntity(entity) && len(set.Fields()) == 0 {
		return fmt.Errorf("%w: %s", types.ErrUnknownEntity, entity)
	}
	return nil
}

// ID returns the engine instance ID used in log lines.
func (e *Engine) ID() string {
	return e.id
}

func (e *Engine) dependencies(field types.FieldName) ([]types.FieldName, bool) {
	return e.registry.Snapshot().Dependencies(field)
}

// snapshotLocked returns the current rule set, dropping cached results when
// the registry was reloaded since the last evaluation.
func (e *Engine) snapshotLocked() *rules.RuleSet {
	set := e.registry.Snapshot()
	if set != e.set {
		e.cache.InvalidateAll()
		e.set = set
		e.logger.Info("rule set changed, cache cleared")
	}
	return set
}

// ValidateFieldAsync schedules a debounced validation of field. The channel
// receives exactly one outcome: the applied result, or ErrSuperseded when a
// newer request for the field replaced this one, or ErrClosed.
func (e *Engine) ValidateFieldAsync(field types.FieldName, value any, fctx types.Record) <-chan FieldOutcome {
	out := newOutcome()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		deliver(out, FieldOutcome{Err: types.ErrClosed})
		return out
	}

	e.values[field] = value
	token := e.supersedeLocked(field, types.ErrSuperseded)
	e.scheduleLocked(request{
		field: field,
		token: token,
		value: value,
		fctx:  fctx.Clone(),
		out:   out,
	})
	return out
}

// ValidateField schedules a debounced validation and waits for it. ctx only
// bounds the wait: the scheduled request keeps its place until superseded.
func (e *Engine) ValidateField(ctx context.Context, field types.FieldName, value any, fctx types.Record) (types.ValidationResult, error) {
	select {
	case o := <-e.ValidateFieldAsync(field, value, fctx):
		return o.Result, o.Err
	case <-ctx.Done():
		return types.ValidationResult{}, ctx.Err()
	}
}

// ValidateFieldNow validates field immediately, superseding any scheduled
// request for it. The result is published unless a newer request arrived
// while it was computed.
func (e *Engine) ValidateFieldNow(field types.FieldName, value any, fctx types.Record) types.ValidationResult {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return e.evaluate(e.registry.Snapshot(), field, value, fctx)
	}
	e.values[field] = value
	token := e.supersedeLocked(field, types.ErrSuperseded)
	st := e.stateLocked(field)
	st.state = StateRunning
	set := e.snapshotLocked()
	e.mu.Unlock()

	result := e.evaluate(set, field, value, fctx)

	e.mu.Lock()
	if st.token == token && !e.closed {
		st.state = StateResolved
		e.publishLocked(result)
	}
	e.mu.Unlock()
	return result
}

// evaluate runs field's rules against value, consulting the cache first.
// Cache hits are tracked too, with the duration of the lookup.
func (e *Engine) evaluate(set *rules.RuleSet, field types.FieldName, value any, fctx types.Record) types.ValidationResult {
	stop := e.tracker.Start(field, e.clock.Now)
	if cached, ok := e.cache.Get(field, value, fctx); ok {
		stop()
		return cached
	}

	outcome := rules.ValidateField(set.FieldRules(field), field, value, fctx)
	if outcome.Fault != nil {
		e.logger.Warn("rule fault",
			zap.String("field", string(field)),
			zap.Error(outcome.Fault))
	}

	result := e.resultFor(set, field, outcome.Violation)
	result.Duration = stop()

	if outcome.Fault == nil {
		e.cache.Put(field, value, fctx, result)
	}
	return result
}

// resultFor builds a classified result for field. v may be nil.
func (e *Engine) resultFor(set *rules.RuleSet, field types.FieldName, v *types.RuleViolation) types.ValidationResult {
	result := types.ValidationResult{
		Field:      field,
		IsValid:    v == nil,
		ComputedAt: e.clock.Now(),
	}
	if v == nil {
		return result
	}

	c := classify.New(set, e.logger)
	class := c.Classify(*v)
	violation := *v
	result.Violation = &violation
	result.Severity = class.Severity
	result.Category = class.Category
	result.Suggestions = c.Suggest(field, violation)
	return result
}

// publishLocked stores result as field's current result.
func (e *Engine) publishLocked(result types.ValidationResult) {
	e.results[result.Field] = result
	e.lastValidatedAt = result.ComputedAt
}

// Suggestions returns remediation hints for violation on field.
func (e *Engine) Suggestions(field types.FieldName, violation types.RuleViolation) []string {
	return classify.New(e.registry.Snapshot(), e.logger).Suggest(field, violation)
}

// Summary aggregates the current results.
func (e *Engine) Summary() types.ValidationSummary {
	set := e.registry.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summaryLocked(set)
}

func (e *Engine) summaryLocked(set *rules.RuleSet) types.ValidationSummary {
	return summary.Aggregate(summary.Input{
		Results:      maps.Clone(e.results),
		RecordErrors: slices.Clone(e.recordErrors),
		Warnings:     slices.Clone(e.warnings),
		Required:     set.RequiredFields(),
		Values:       e.values.Clone(),
		ValidatedAt:  e.lastValidatedAt,
	})
}

// Metrics returns validation latency statistics.
func (e *Engine) Metrics() perf.Metrics {
	return e.tracker.Metrics()
}

// ResetMetrics clears latency statistics.
func (e *Engine) ResetMetrics() {
	e.tracker.Reset()
}

// InvalidateCache drops cached results for fields and every field whose
// rules read them. No fields clears the whole cache.
func (e *Engine) InvalidateCache(fields ...types.FieldName) {
	if len(fields) == 0 {
		e.cache.InvalidateAll()
		return
	}
	set := e.registry.Snapshot()
	drop := slices.Clone(fields)
	for _, f := range fields {
		drop = append(drop, set.Dependents(f)...)
	}
	e.cache.Invalidate(drop...)
}

// State reports the lifecycle state of field's latest request.
func (e *Engine) State(field types.FieldName) RequestState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.fields[field]; ok {
		return st.state
	}
	return StateIdle
}

// Close cancels scheduled requests; their waiters receive ErrClosed.
// Requests already running finish but are not applied. Idempotent.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true

	for field, st := range e.fields {
		if st.timer != nil && st.timer.Stop() && st.pending != nil {
			deliver(st.pending, FieldOutcome{Err: types.ErrClosed})
		}
		st.timer = nil
		st.pending = nil
		if st.state == StateScheduled {
			st.state = StateSuperseded
		}
		e.logger.Debug("field scheduler closed", zap.String("field", string(field)))
	}
}
