package runtime

import (
	"errors"
	"fmt"
	"net/http"
)

// WizardErrorType classifies how a caller should treat a failure.
type WizardErrorType string

const (
	// ErrorTypeNotFound means the session, journey or step does not exist.
	ErrorTypeNotFound WizardErrorType = "not_found"
	// ErrorTypeIntegrity means the request addressed state that cannot exist
	// through normal navigation (e.g. an out-of-range item index).
	ErrorTypeIntegrity WizardErrorType = "integrity"
	// ErrorTypeCollaborator means a store, lookup or committer failed.
	ErrorTypeCollaborator WizardErrorType = "collaborator"
	// ErrorTypeRateLimited means the client exceeded its request budget.
	ErrorTypeRateLimited WizardErrorType = "rate_limited"
)

// WizardErrorCode identifies known engine error codes.
type WizardErrorCode string

const (
	ErrorCodeSessionNotFound WizardErrorCode = "SESSION_NOT_FOUND"
	ErrorCodeStepNotFound    WizardErrorCode = "STEP_NOT_FOUND"
	ErrorCodeIndexOutOfRange WizardErrorCode = "INDEX_OUT_OF_RANGE"
	ErrorCodeBadRequest      WizardErrorCode = "BAD_REQUEST"
	ErrorCodeRuntimeError    WizardErrorCode = "RUNTIME_ERROR"
	ErrorCodeTooManyRequests WizardErrorCode = "TOO_MANY_REQUESTS"
)

// WizardError is the JSON body returned by the HTTP boundary for every
// failure that is not a field validation error.
type WizardError struct {
	Type      WizardErrorType `json:"type"`
	Code      WizardErrorCode `json:"code"`
	Message   string          `json:"message"`
	Journey   string          `json:"journey,omitempty"`
	Step      string          `json:"step,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Cause     error           `json:"-"`
}

func (e *WizardError) Error() string {
	return fmt.Sprintf("[%s/%s] %s (journey: %s, step: %s)", e.Type, e.Code, e.Message, e.Journey, e.Step)
}

func (e *WizardError) Unwrap() error {
	return e.Cause
}

// StatusCode maps the error to the HTTP status the boundary responds with.
func (e *WizardError) StatusCode() int {
	switch e.Type {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeIntegrity:
		return http.StatusBadRequest
	case ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ToWizardError classifies err using the engine's error taxonomy.
func ToWizardError(err error, journey, step, sessionID string) *WizardError {
	var we *WizardError
	if errors.As(err, &we) {
		return we
	}

	out := &WizardError{
		Type:      ErrorTypeCollaborator,
		Code:      ErrorCodeRuntimeError,
		Message:   err.Error(),
		Journey:   journey,
		Step:      step,
		SessionID: sessionID,
		Cause:     err,
	}

	switch {
	case errors.Is(err, ErrNotFound):
		out.Type = ErrorTypeNotFound
		out.Code = ErrorCodeSessionNotFound
	case errors.Is(err, ErrStepNotFound):
		out.Type = ErrorTypeNotFound
		out.Code = ErrorCodeStepNotFound
	case errors.Is(err, ErrIndexOutOfRange):
		out.Type = ErrorTypeIntegrity
		out.Code = ErrorCodeIndexOutOfRange
	}

	return out
}
