package core

import (
	"errors"
	"fmt"
)

// ErrVotingDisabled is returned when a vote is requested while autonomous voting is off.
var ErrVotingDisabled = errors.New("autonomous voting is disabled")

// ErrNotFound is returned when a referenced record does not exist
var ErrNotFound = errors.New("not found")

// ValidationError reports a malformed record that was rejected before writing
type ValidationError struct {
	Record string
	Field  string
	Reason string
}

func NewValidationError(record, field, reason string) *ValidationError {
	return &ValidationError{Record: record, Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s %s", e.Record, e.Field, e.Reason)
}

// SourceError reports that one ingestion source failed
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s failed: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// ExternalServiceError reports an unreachable knowledge store or chain client
type ExternalServiceError struct {
	Service  string
	Op       string
	Attempts int
	Err      error
}

func (e *ExternalServiceError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s %s failed after %d attempts: %v", e.Service, e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ReasoningInputError means a proposal cannot be voted on with the data available
type ReasoningInputError struct {
	ProposalID string
	Reason     string
}

func (e *ReasoningInputError) Error() string {
	return fmt.Sprintf("cannot reason about proposal %s: %s", e.ProposalID, e.Reason)
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
