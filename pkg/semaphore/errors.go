package semaphore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorKind classifies a failed API call.
type ErrorKind string

const (
	// KindNotFound means the server answered 404.
	KindNotFound ErrorKind = "not_found"

	// KindValidation means the server rejected the request body (400, 409, 422).
	KindValidation ErrorKind = "validation"

	// KindTimeout means the per-call deadline expired before a response arrived.
	KindTimeout ErrorKind = "timeout"

	// KindUnreachable means the request never produced an HTTP response.
	KindUnreachable ErrorKind = "unreachable"

	// KindUnexpected covers every other non-2xx status and undecodable bodies.
	KindUnexpected ErrorKind = "unexpected"
)

// APIError is the single error type surfaced by Client for transport,
// status and decode failures.
type APIError struct {
	// Kind is the failure class.
	Kind ErrorKind `json:"kind"`

	// StatusCode is the HTTP status, zero when no response was received.
	StatusCode int `json:"status_code,omitempty"`

	// Method and Path identify the request.
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"`

	// Message is the server's text verbatim, or a transport description.
	Message string `json:"message"`

	// Err is the underlying transport or decode error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("semaphore: %s %s: %s (status %d): %s", e.Method, e.Path, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("semaphore: %s %s: %s: %s", e.Method, e.Path, e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ErrPrecondition is returned, wrapped, when a request is refused locally
// because a required reference is missing.
var ErrPrecondition = errors.New("semaphore: precondition failed")

// AuthReason explains an AuthError.
type AuthReason string

const (
	// AuthInvalidCredentials means the login endpoint refused the credentials.
	AuthInvalidCredentials AuthReason = "invalid_credentials"

	// AuthExpired means a request was sent and rejected with 401.
	AuthExpired AuthReason = "expired"

	// AuthUnreachable means the login request never got an HTTP response.
	AuthUnreachable AuthReason = "unreachable"
)

// AuthError reports an authentication failure.
type AuthError struct {
	Reason     AuthReason
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("semaphore: authentication failed (%s)", e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AmbiguousNameError is returned by a strict Lookup when a name matches more
// than one record.
type AmbiguousNameError struct {
	Collection string
	Name       string
	Count      int
}

func (e *AmbiguousNameError) Error() string {
	return fmt.Sprintf("semaphore: %d %s named %q", e.Count, e.Collection, e.Name)
}

// KindOf returns the ErrorKind of err, or "" when err is not an *APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsNotFound reports whether err is an APIError of kind NotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsValidation reports whether err is an APIError of kind Validation.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsTimeout reports whether err is an APIError of kind Timeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsUnreachable reports whether err is an APIError of kind Unreachable.
func IsUnreachable(err error) bool { return KindOf(err) == KindUnreachable }

// IsAuthError reports whether err is an AuthError, optionally of the given reasons.
func IsAuthError(err error, reasons ...AuthReason) bool {
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		return false
	}
	if len(reasons) == 0 {
		return true
	}
	for _, r := range reasons {
		if authErr.Reason == r {
			return true
		}
	}
	return false
}

// transportError classifies an error returned by http.Client.Do.
func transportError(method, path string, err error) *APIError {
	kind := KindUnreachable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &APIError{
		Kind:    kind,
		Method:  method,
		Path:    path,
		Message: err.Error(),
		Err:     err,
	}
}

// statusError builds the error for a non-2xx response.
func statusError(method, path string, status int, body []byte) *APIError {
	kind := KindUnexpected
	switch status {
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		kind = KindValidation
	}
	return &APIError{
		Kind:       kind,
		StatusCode: status,
		Method:     method,
		Path:       path,
		Message:    serverMessage(body, status),
	}
}

// serverMessage extracts the human message from an error body. Semaphore
// answers with {"error": "..."} on most failures and plain text on some.
func serverMessage(body []byte, status int) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return http.StatusText(status)
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return text
}
