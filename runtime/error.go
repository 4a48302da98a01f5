package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches any NotFoundError via errors.Is.
	ErrNotFound = errors.New("session not found")
	// ErrStepNotFound matches StepDefinitionNotFoundError and JourneyNotFoundError.
	ErrStepNotFound = errors.New("step definition not found")
	// ErrIndexOutOfRange matches IndexOutOfRangeError.
	ErrIndexOutOfRange = errors.New("item index out of range")
)

// NotFoundError is returned when a session id does not resolve.
// Callers render a generic "session expired" page; it is never retried.
type NotFoundError struct {
	SessionID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.SessionID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// StepDefinitionNotFoundError signals a routing misconfiguration:
// the step key is not part of the journey's step table.
type StepDefinitionNotFoundError struct {
	Journey string
	Step    string
}

func (e *StepDefinitionNotFoundError) Error() string {
	return fmt.Sprintf("step %q is not defined for journey %q", e.Step, e.Journey)
}

func (e *StepDefinitionNotFoundError) Is(target error) bool {
	return target == ErrStepNotFound
}

// JourneyNotFoundError is returned for an unknown journey id.
type JourneyNotFoundError struct {
	Journey string
}

func (e *JourneyNotFoundError) Error() string {
	return fmt.Sprintf("journey %q is not registered", e.Journey)
}

func (e *JourneyNotFoundError) Is(target error) bool {
	return target == ErrStepNotFound
}

// IndexOutOfRangeError is returned when a repeated-item index does not
// address an existing item. Items are only ever created by an explicit append.
type IndexOutOfRangeError struct {
	SessionID string
	Index     int
	Length    int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("item index %d out of range for session %s (items: %d)", e.Index, e.SessionID, e.Length)
}

func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

// FieldError is a soft validation failure for a single form field.
// It is returned as data so the step can be re-rendered with the user's input.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
