package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a folder or photo id does not exist
// (or is not visible to the caller).
var ErrNotFound = errors.New("not found")

// ValidationError reports a missing field or a rejected file.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// InvalidTransitionError is returned for a status change the folder state machine forbids.
type InvalidTransitionError struct {
	From FolderStatus
	To   FolderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// BackendError wraps a failure of the record store, blob store or event bus.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend wraps err as a BackendError unless it is already classified.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		ve *ValidationError
		te *InvalidTransitionError
		be *BackendError
	)
	if errors.Is(err, ErrNotFound) || errors.As(err, &ve) || errors.As(err, &te) || errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
