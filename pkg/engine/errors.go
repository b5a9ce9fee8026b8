package engine

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/alamotechllc/semsync/pkg/semaphore"
)

// ErrorClass tells an operator whether a failure is worth retrying.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure that may succeed on a later run.
	// Examples: timeouts, unreachable server, 5xx responses.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates a clash with existing server state.
	// Examples: 409 responses, ambiguous names in strict mode.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a failure that needs a change to the
	// desired state or credentials.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeUnreachable       = "UNREACHABLE"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeServerError       = "SERVER_ERROR"
	ErrCodeUnexpected        = "UNEXPECTED_RESPONSE"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeAmbiguousName     = "AMBIGUOUS_NAME"
	ErrCodeDependencyMissing = "DEPENDENCY_MISSING"
	ErrCodePrecondition      = "PRECONDITION_FAILED"
	ErrCodeInvalidKey        = "INVALID_KEY"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// ErrInvalidKey is returned, wrapped, when a private key cannot be parsed.
var ErrInvalidKey = errors.New("invalid private key")

// ReconcileError is a classified failure of one step of a run.
type ReconcileError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Code is the machine-readable error code.
	Code string `json:"code"`

	// Kind and Name identify the resource being reconciled.
	Kind string `json:"kind,omitempty"`
	Name string `json:"name,omitempty"`

	// Operation is the step that failed (lookup, create, update, delete).
	Operation string `json:"operation,omitempty"`

	// Err is the underlying typed error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ReconcileError) Error() string {
	target := e.Kind
	if e.Name != "" {
		target = fmt.Sprintf("%s %q", e.Kind, e.Name)
	}
	if e.Operation != "" {
		return fmt.Sprintf("[%s] %s %s: %v", e.Class, e.Operation, target, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Class, target, e.Err)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// DependencyMissingError reports a reference that did not resolve to an id.
// No request that would carry the reference is sent.
type DependencyMissingError struct {
	Kind string
	Name string

	// Err is set when the dependency was declared but failed earlier in the run.
	Err error
}

func (e *DependencyMissingError) Error() string {
	msg := fmt.Sprintf("missing dependency %s %q", e.Kind, e.Name)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DependencyMissingError) Unwrap() error {
	return e.Err
}

// classify wraps err into a ReconcileError for the given resource.
func classify(kind, name, operation string, err error) *ReconcileError {
	if re, ok := err.(*ReconcileError); ok {
		return re
	}

	class, code := classOf(err)
	return &ReconcileError{
		Class:     class,
		Code:      code,
		Kind:      kind,
		Name:      name,
		Operation: operation,
		Err:       err,
	}
}

func classOf(err error) (ErrorClass, string) {
	var (
		depErr  *DependencyMissingError
		ambErr  *semaphore.AmbiguousNameError
		authErr *semaphore.AuthError
		apiErr  *semaphore.APIError
	)
	switch {
	case errors.As(err, &depErr):
		return ErrorClassPermanent, ErrCodeDependencyMissing
	case errors.As(err, &ambErr):
		return ErrorClassConflict, ErrCodeAmbiguousName
	case errors.As(err, &authErr):
		if authErr.Reason == semaphore.AuthUnreachable {
			return ErrorClassTransient, ErrCodeUnreachable
		}
		return ErrorClassPermanent, ErrCodeUnauthorized
	case errors.Is(err, semaphore.ErrPrecondition):
		return ErrorClassPermanent, ErrCodePrecondition
	case errors.Is(err, ErrInvalidKey):
		return ErrorClassPermanent, ErrCodeInvalidKey
	case errors.As(err, &apiErr):
		switch apiErr.Kind {
		case semaphore.KindTimeout:
			return ErrorClassTransient, ErrCodeTimeout
		case semaphore.KindUnreachable:
			return ErrorClassTransient, ErrCodeUnreachable
		case semaphore.KindNotFound:
			return ErrorClassPermanent, ErrCodeNotFound
		case semaphore.KindValidation:
			if apiErr.StatusCode == http.StatusConflict {
				return ErrorClassConflict, ErrCodeConflict
			}
			return ErrorClassPermanent, ErrCodeValidation
		default:
			if apiErr.StatusCode >= 500 {
				return ErrorClassTransient, ErrCodeServerError
			}
			return ErrorClassPermanent, ErrCodeUnexpected
		}
	}
	return ErrorClassPermanent, ErrCodeInternal
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *ReconcileError
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	var e *ReconcileError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConflict
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *ReconcileError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsDependencyMissing reports whether err carries a DependencyMissingError.
func IsDependencyMissing(err error) bool {
	var e *DependencyMissingError
	return errors.As(err, &e)
}

// CodeOf returns the error code of a ReconcileError in err's chain.
func CodeOf(err error) string {
	var e *ReconcileError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
