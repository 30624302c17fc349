// errors.go - Structured errors for backend calls
package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a client error.
type Kind string

const (
	// KindValidation is raised locally before any request is sent.
	KindValidation Kind = "validation"
	// KindAuthorization means an admin call was attempted without a token.
	KindAuthorization Kind = "authorization"
	// KindResponse carries a non-2xx answer from the backend.
	KindResponse Kind = "response"
	// KindTransport covers network failures and unreadable responses.
	KindTransport Kind = "transport"
)

// NetworkErrorMessage is shown for every transport failure.
const NetworkErrorMessage = "Network error. Please try again."

// Error is returned by every Client operation.
type Error struct {
	Kind    Kind
	Op      string
	Status  int    // HTTP status for KindResponse, 0 otherwise
	Message string // display text
	Err     error  // cause, if any
}

// Error returns the display message.
func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns a diagnostic form including the operation and cause.
func (e *Error) Detail() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Op, e.Kind)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	fmt.Fprintf(&b, ": %s", e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// IsKind reports whether err is a client Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Status
	}
	return 0
}

// Error constructors

func newValidationError(op, message string, cause error) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Err: cause}
}

func newAuthorizationError(op string, cause error) *Error {
	return &Error{Kind: KindAuthorization, Op: op, Message: "Not logged in. Run 'pgadmin login' first.", Err: cause}
}

func newTransportError(op string, cause error) *Error {
	return &Error{Kind: KindTransport, Op: op, Message: NetworkErrorMessage, Err: cause}
}

// newResponseError uses the backend text verbatim, or fallback when the
// body is blank.
func newResponseError(op string, status int, body []byte, fallback string) *Error {
	message := string(body)
	if strings.TrimSpace(message) == "" {
		message = fallback
	}
	return &Error{
		Kind:    KindResponse,
		Op:      op,
		Status:  status,
		Message: message,
		Err:     fmt.Errorf("backend returned %d %s", status, http.StatusText(status)),
	}
}
