package types

import "github.com/google/uuid"

// NewRuleID generates a UUIDv7 rule identifier for rules declared without one.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewInstanceID generates a UUIDv7 identifier for an engine instance or a
// stored record that arrived without one.
func NewInstanceID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseRuleID validates and converts a UUID string to RuleID.
func ParseRuleID(s string) (RuleID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RuleID(s), nil
}
