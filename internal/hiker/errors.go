package hiker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrMissingToken is returned by New when no access key is configured.
var ErrMissingToken = errors.New("hiker: missing access token")

// Kind classifies API failures for retry and error-log purposes.
type Kind string

const (
	KindTimeout     Kind = "timeout"
	KindNetwork     Kind = "network"
	KindServer      Kind = "server_error"
	KindRateLimited Kind = "rate_limited"
	KindSoftFailure Kind = "soft_failure"
	KindBlocked     Kind = "blocked"
	KindAuth        Kind = "auth"
	KindNotFound    Kind = "not_found"
	KindBadRequest  Kind = "bad_request"
	KindDecode      Kind = "decode"
	KindCanceled    Kind = "canceled"
)

// Transient reports whether a failure of this kind may succeed on retry.
func (k Kind) Transient() bool {
	switch k {
	case KindTimeout, KindNetwork, KindServer, KindRateLimited, KindSoftFailure, KindBlocked:
		return true
	}
	return false
}

// Error is a failed API operation.
type Error struct {
	Op         string
	Kind       Kind
	StatusCode int
	Message    string
	// Attempts is the number of HTTP attempts made for the operation.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hiker %s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is an API failure worth retrying.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.Transient()
	}
	return false
}

// KindOf returns the kind of an API error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AttemptsOf returns how many HTTP attempts produced err, or 0 if unknown.
func AttemptsOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Attempts
	}
	return 0
}

// transportError classifies a failure to get a response. parent is the
// caller's context, used to tell cancellation from a per-attempt timeout.
func transportError(parent context.Context, op string, err error) *Error {
	if parent.Err() != nil {
		return &Error{Op: op, Kind: KindCanceled, Err: err}
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return &Error{Op: op, Kind: KindTimeout, Err: err}
	}
	return &Error{Op: op, Kind: KindNetwork, Err: err}
}

func statusError(op string, code int, message string) *Error {
	e := &Error{Op: op, StatusCode: code, Message: message}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		e.Kind = KindAuth
	case code == http.StatusNotFound:
		e.Kind = KindNotFound
	case code == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case code >= 500:
		e.Kind = KindServer
	default:
		e.Kind = KindBadRequest
	}
	return e
}

// softError builds the error for a well-formed {"state": false} payload.
// A not-found exc_type is permanent; anything else is treated as transient.
func softError(op string, payload map[string]any) *Error {
	excType := str(payload["exc_type"])
	message := firstString(payload, "error", "detail", "message")
	if message == "" {
		message = excType
	}
	if message == "" {
		message = "state false"
	}

	kind := KindSoftFailure
	if strings.Contains(strings.ToLower(excType), "notfound") {
		kind = KindNotFound
	}
	return &Error{Op: op, Kind: kind, Message: message}
}
