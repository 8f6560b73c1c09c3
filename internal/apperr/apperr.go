// Package apperr defines the error categories shared by the store, the model
// gateway and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the HTTP edge.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindMalformed     Kind = "malformed_model_output"
	KindUpstream      Kind = "upstream_unavailable"
	KindStore         Kind = "store_error"
	KindInternal      Kind = "internal_error"
)

// Error is a categorized error. MsgID names a localized message; Data holds
// its template values. Raw carries the model reply for malformed output.
type Error struct {
	Kind      Kind
	MsgID     string
	Data      map[string]any
	Raw       string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.MsgID
	if len(e.Data) > 0 {
		msg += fmt.Sprintf(" %v", e.Data)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable code written to API error payloads.
func (e *Error) Code() string {
	if e.Kind == KindStore && e.Transient {
		return "store_unavailable"
	}
	return string(e.Kind)
}

// Validation reports a bad or incomplete request.
func Validation(msgID string, data map[string]any) *Error {
	return &Error{Kind: KindValidation, MsgID: msgID, Data: data}
}

// Forbidden reports an operation not permitted for the caller's role.
func Forbidden(msgID string, data map[string]any) *Error {
	return &Error{Kind: KindAuthorization, MsgID: msgID, Data: data}
}

// NotFound reports a missing document.
func NotFound(msgID string, data map[string]any) *Error {
	return &Error{Kind: KindNotFound, MsgID: msgID, Data: data}
}

// Malformed reports a model reply that could not be decoded into the expected shape.
func Malformed(reason, raw string, err error) *Error {
	return &Error{
		Kind:  KindMalformed,
		MsgID: "MalformedModelOutput",
		Data:  map[string]any{"Reason": reason},
		Raw:   raw,
		Err:   err,
	}
}

// Upstream reports a failed call to the completion API.
func Upstream(err error) *Error {
	return &Error{Kind: KindUpstream, MsgID: "UpstreamUnavailable", Err: err}
}

// Store reports a failed insert or query.
func Store(op string, transient bool, err error) *Error {
	return &Error{
		Kind:      KindStore,
		MsgID:     "StoreFailure",
		Data:      map[string]any{"Op": op},
		Transient: transient,
		Err:       err,
	}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// From returns the *Error in err's chain, wrapping anything else as an
// internal error.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, MsgID: "InternalError", Err: err}
}
