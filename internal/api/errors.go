package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call. Every error returned by Client carries
// exactly one Kind and matches it with errors.Is.
type Kind int

const (
	// InvalidRequest means the request could not be built locally.
	InvalidRequest Kind = iota + 1
	// Unauthenticated means no usable bearer token was available; nothing was
	// sent.
	Unauthenticated
	// TransportFailure means the request may or may not have reached the
	// service.
	TransportFailure
	// ServerRejected means the service answered with a non-2xx status.
	ServerRejected
	// MalformedResponse means a 2xx body could not be decoded.
	MalformedResponse
)

func (k Kind) String() string {
	switch k {
	case InvalidRequest:
		return "invalid_request"
	case Unauthenticated:
		return "unauthenticated"
	case TransportFailure:
		return "transport_failure"
	case ServerRejected:
		return "server_rejected"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

func (k Kind) Error() string { return k.String() }

// Error is the failure returned by every Client operation.
type Error struct {
	Op         string // login, register, initiate, execute
	Kind       Kind
	StatusCode int    // set for ServerRejected
	Message    string // "error" field of the response body, if any
	Body       []byte // raw response body for ServerRejected
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == ServerRejected && e.Message != "":
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
	case e.Kind == ServerRejected:
		return fmt.Sprintf("%s: %s (%d)", e.Op, e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// Definitive reports whether the service refused the request outright, as
// opposed to an outcome that might still have taken effect. Only 4xx answers
// other than 408, 425 and 429 count.
func (e *Error) Definitive() bool {
	if e.Kind != ServerRejected {
		return false
	}
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// IsDefinitive reports whether err is a definitive refusal by the service.
func IsDefinitive(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Definitive()
}

// KindOf returns the Kind carried by err, or 0 if err did not come from
// Client.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return 0
}
