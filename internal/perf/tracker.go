// internal/perf/tracker.go
package perf

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solatis/formguard/internal/types"
)

// Metrics is a point-in-time view of validation latency.
type Metrics struct {
	ValidationCount int             `json:"validationCount"`
	AverageMs       float64         `json:"averageMs"`
	SlowestField    types.FieldName `json:"slowestField,omitempty"`
	SlowestMs       float64         `json:"slowestMs"`
	FastestField    types.FieldName `json:"fastestField,omitempty"`
	FastestMs       float64         `json:"fastestMs"`
}

// Tracker aggregates per-validation durations. Measurements never affect
// validation outcomes: timing failures are swallowed and recorded as nothing.
type Tracker struct {
	mu sync.Mutex

	count   int
	total   time.Duration
	slowest sample
	fastest sample

	slowThreshold time.Duration
	logger        *zap.Logger
}

type sample struct {
	field types.FieldName
	d     time.Duration
}

// NewTracker creates a tracker. Validations taking at least slow are logged
// at warn level; zero disables the warning.
func NewTracker(slow time.Duration, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{slowThreshold: slow, logger: logger}
}

// Record adds one validation of field taking d. Negative durations count
// as zero.
func (t *Tracker) Record(field types.FieldName, d time.Duration) {
	if d < 0 {
		d = 0
	}

	t.mu.Lock()
	t.count++
	t.total += d
	if t.count == 1 || d > t.slowest.d {
		t.slowest = sample{field: field, d: d}
	}
	if t.count == 1 || d < t.fastest.d {
		t.fastest = sample{field: field, d: d}
	}
	t.mu.Unlock()

	if t.slowThreshold > 0 && d >= t.slowThreshold {
		t.logger.Warn("slow validation",
			zap.String("field", string(field)),
			zap.Duration("duration", d),
			zap.Duration("threshold", t.slowThreshold))
	}
}

// Start begins timing field against now. The returned stop func records the
// elapsed time and returns it. A nil or panicking clock yields a stop func
// that records nothing and returns zero.
func (t *Tracker) Start(field types.FieldName, now func() time.Time) (stop func() time.Duration) {
	noop := func() time.Duration { return 0 }
	if now == nil {
		return noop
	}
	begin, ok := safeNow(now)
	if !ok {
		return noop
	}
	return func() time.Duration {
		end, ok := safeNow(now)
		if !ok {
			return 0
		}
		d := end.Sub(begin)
		t.Record(field, d)
		if d < 0 {
			return 0
		}
		return d
	}
}

func safeNow(now func() time.Time) (ts time.Time, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return now(), true
}

// Metrics returns the current aggregate. Zero value when nothing was recorded.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count == 0 {
		return Metrics{}
	}
	return Metrics{
		ValidationCount: t.count,
		AverageMs:       ms(t.total) / float64(t.count),
		SlowestField:    t.slowest.field,
		SlowestMs:       ms(t.slowest.d),
		FastestField:    t.fastest.field,
		FastestMs:       ms(t.fastest.d),
	}
}

// Reset clears all measurements.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count = 0
	t.total = 0
	t.slowest = sample{}
	t.fastest = sample{}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
