package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed gateway call.
type Kind int

const (
	KindUnexpected Kind = iota
	KindValidation
	KindBadRequest
	KindUnauthorized
	KindConflict
	KindNotFound
	KindServer
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	default:
		return "unexpected"
	}
}

// Error is returned by every failed Client call.
type Error struct {
	Kind Kind
	// Status is the HTTP status, zero for validation and network failures.
	Status int
	// Message is the server-supplied message, if any.
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage renders the text shown next to the control that started the
// request. A server-supplied message wins over the per-kind default.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindValidation:
		if e.Err != nil {
			return e.Err.Error()
		}
		return "Please fill in the required fields."
	case KindBadRequest:
		if e.isAuth() {
			return "Please check your email and password and try again."
		}
		return "The request was rejected. Please check the values and try again."
	case KindUnauthorized:
		return "Authentication failed. Please check your credentials."
	case KindConflict:
		if e.isAuth() {
			return "An account with this email already exists."
		}
		return "The item was changed elsewhere. Refresh and try again."
	case KindNotFound:
		return "The requested item no longer exists."
	case KindServer:
		return "Server error. Please try again later."
	case KindNetwork:
		return "Unable to connect to server. Please check your internet connection."
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "An unexpected error occurred. Please try again."
}

func (e *Error) isAuth() bool {
	return e.Op == opLogin || e.Op == opSignup
}

// KindOf returns the kind of a gateway error, or KindUnexpected.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return KindUnexpected
}

// IsNetwork reports whether err is a transport-level failure.
func IsNetwork(err error) bool {
	return KindOf(err) == KindNetwork
}

// ValidationError wraps a local validation failure so it travels the same
// path as server errors.
func ValidationError(op string, err error) *Error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusConflict:
		return KindConflict
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindBadRequest
	default:
		return KindUnexpected
	}
}
