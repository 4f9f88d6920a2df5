package model

import "fmt"

// ValidationError reports a malformed record. Record is the record kind
// ("leg", "tail" or "policy"), ID the record identifier when known.
type ValidationError struct {
	Record string
	ID     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid %s: %s: %s", e.Record, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s: %s", e.Record, e.ID, e.Field, e.Reason)
}

func invalid(record, id, field, reason string) *ValidationError {
	return &ValidationError{Record: record, ID: id, Field: field, Reason: reason}
}
