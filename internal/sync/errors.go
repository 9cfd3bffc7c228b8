package sync

import "fmt"

// UserError wraps a configuration or data problem the operator must fix.
// The message is final, the cause carries the underlying detail.
type UserError struct {
	Message string
	Cause   error
}

func (e *UserError) Error() string {
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// MappingError reports a rule that failed against a directory entry.
type MappingError struct {
	DN    string
	Cause error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("failed to process %.48s: %v", e.DN, e.Cause)
}

func (e *MappingError) Unwrap() error {
	return e.Cause
}
