package types

import "errors"

// Sentinel errors for formguard operations.
var (
	// ErrNoRegistry indicates an engine was built or used without a rule registry.
	ErrNoRegistry = errors.New("rule registry is not configured")

	// ErrUnknownEntity indicates no rules exist for the engine's entity type.
	ErrUnknownEntity = errors.New("no rules registered for entity")

	// ErrSuperseded indicates a debounced request was replaced by a newer one
	// for the same field before its result could be applied.
	ErrSuperseded = errors.New("validation request superseded")

	// ErrClosed indicates the engine was closed while a request was pending.
	ErrClosed = errors.New("engine closed")

	// ErrRuleFault indicates a rule test failed to execute (error or panic).
	ErrRuleFault = errors.New("rule evaluation fault")

	// ErrInvalidRule indicates a rule definition could not be compiled.
	ErrInvalidRule = errors.New("invalid rule definition")

	// ErrUnknownKind indicates a rule kind outside the supported set.
	ErrUnknownKind = errors.New("unknown rule kind")

	// ErrDuplicateRule indicates two rules share an ID within one rule set.
	ErrDuplicateRule = errors.New("duplicate rule id")

	// ErrUnsupportedFormat indicates a rule file with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported rule file format")

	// ErrCoercionFailed indicates a value could not be read as the expected type.
	ErrCoercionFailed = errors.New("type coercion failed")
)
