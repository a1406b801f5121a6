// internal/engine/scheduler.go
package engine

import (
	"go.uber.org/zap"

	"github.com/solatis/formguard/internal/types"
)

/*
 * Per-field debounce scheduling.
 *
 * Each field owns a monotonically increasing token. Every request for the
 * field (debounced, immediate or submit-time) takes the next token, and a
 * result is applied only if its token is still the field's latest when the
 * evaluation finishes. Ordering therefore never depends on timer or
 * goroutine scheduling: a slow stale evaluation that completes after a newer
 * one is simply discarded.
 *
 * States per request:
 *
 *   idle -> scheduled -> running -> resolved
 *                 \          \
 *                  +----------+--> superseded
 *
 * A scheduled request superseded before its timer fires is cancelled via
 * Timer.Stop and its waiter receives ErrSuperseded immediately. If Stop
 * reports the callback already started, the callback itself notices the
 * stale token and delivers ErrSuperseded. Each waiter receives exactly one
 * FieldOutcome on a buffered channel, so delivery never blocks.
 */

// RequestState is the lifecycle state of a field's latest request.
type RequestState int

const (
	StateIdle RequestState = iota
	StateScheduled
	StateRunning
	StateResolved
	StateSuperseded
)

// String returns the state name.
func (s RequestState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StateResolved:
		return "resolved"
	case StateSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// FieldOutcome is delivered to a debounced request's waiter.
// Err is ErrSuperseded or ErrClosed when no result was applied.
type FieldOutcome struct {
	Result types.ValidationResult
	Err    error
}

// fieldState tracks the latest request for one field. Guarded by Engine.mu.
type fieldState struct {
	token   uint64
	state   RequestState
	timer   Timer
	pending chan FieldOutcome // waiter of the scheduled, not yet started request
}

// request is one debounced validation in flight.
type request struct {
	field types.FieldName
	token uint64
	value any
	fctx  types.Record
	out   chan FieldOutcome
}

func newOutcome() chan FieldOutcome {
	return make(chan FieldOutcome, 1)
}

func deliver(ch chan FieldOutcome, o FieldOutcome) {
	ch <- o
	close(ch)
}

// stateLocked returns field's state, creating it on first use.
func (e *Engine) stateLocked(field types.FieldName) *fieldState {
	st, ok := e.fields[field]
	if !ok {
		st = &fieldState{}
		e.fields[field] = st
	}
	return st
}

// supersedeLocked issues a new token for field and cancels its scheduled
// request, if any. Returns the new token.
func (e *Engine) supersedeLocked(field types.FieldName, reason error) uint64 {
	st := e.stateLocked(field)
	st.token++

	if st.timer != nil {
		if st.timer.Stop() && st.pending != nil {
			deliver(st.pending, FieldOutcome{Err: reason})
			e.logger.Debug("scheduled validation cancelled",
				zap.String("field", string(field)),
				zap.Uint64("token", st.token-1))
		}
		st.timer = nil
		st.pending = nil
	}
	if st.state == StateScheduled || st.state == StateRunning {
		st.state = StateSuperseded
	}
	return st.token
}

// scheduleLocked queues req to run after the debounce delay.
func (e *Engine) scheduleLocked(req request) {
	st := e.stateLocked(req.field)
	st.state = StateScheduled
	st.pending = req.out
	st.timer = e.clock.AfterFunc(e.cfg.DebounceDelay, func() { e.run(req) })
}

// run executes a debounced request when its timer fires.
func (e *Engine) run(req request) {
	e.mu.Lock()
	st := e.stateLocked(req.field)
	if e.closed {
		e.mu.Unlock()
		deliver(req.out, FieldOutcome{Err: types.ErrClosed})
		return
	}
	if st.token != req.token {
		e.mu.Unlock()
		deliver(req.out, FieldOutcome{Err: types.ErrSuperseded})
		return
	}
	st.state = StateRunning
	st.timer = nil
	st.pending = nil
	set := e.snapshotLocked()
	e.mu.Unlock()

	result := e.evaluate(set, req.field, req.value, req.fctx)

	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		deliver(req.out, FieldOutcome{Err: types.ErrClosed})
	case st.token != req.token:
		e.mu.Unlock()
		e.logger.Debug("stale validation discarded",
			zap.String("field", string(req.field)),
			zap.Uint64("token", req.token))
		deliver(req.out, FieldOutcome{Err: types.ErrSuperseded})
	default:
		st.state = StateResolved
		e.publishLocked(result)
		e.mu.Unlock()
		deliver(req.out, FieldOutcome{Result: result})
	}
}
