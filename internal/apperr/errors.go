// Package apperr defines the error kinds shared by services and handlers.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-multierror"
)

type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindValidation   Kind = "validation_error"
	KindConflict     Kind = "conflict"
	KindUpstream     Kind = "upstream_unavailable"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
)

// Error is a typed outcome. Code overrides the kind as the wire error code when set.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind when the target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Code == "" && t.Kind == e.Kind
}

var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrUpstream     = &Error{Kind: KindUpstream}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrForbidden    = &Error{Kind: KindForbidden}
)

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(code, message string) error {
	return &Error{Kind: KindUnauthorized, Code: code, Message: message}
}

func Forbidden(message string) error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Upstream wraps a failure of an external collaborator.
func Upstream(err error, format string, args ...any) error {
	return &Error{Kind: KindUpstream, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithCode returns a copy of err carrying a more specific wire code.
func WithCode(err error, code string) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	cp.Code = code
	return &cp
}

// KindOf reports the kind of err, or "" for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Validator collects field errors and reports them as one validation error.
type Validator struct {
	errs *multierror.Error
}

func (v *Validator) Check(ok bool, format string, args ...any) {
	if ok {
		return
	}
	v.errs = multierror.Append(v.errs, fmt.Errorf(format, args...))
}

func (v *Validator) Add(err error) {
	if err != nil {
		v.errs = multierror.Append(v.errs, err)
	}
}

func (v *Validator) Err() error {
	if v.errs == nil || len(v.errs.Errors) == 0 {
		return nil
	}
	msgs := make([]string, len(v.errs.Errors))
	for i, e := range v.errs.Errors {
		msgs[i] = e.Error()
	}
	return &Error{Kind: KindValidation, Message: strings.Join(msgs, "; "), Err: v.errs.ErrorOrNil()}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes {"error":{"code","message"}}.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// Write maps err to a status and error body. Untyped errors become 500 without details.
func Write(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		WriteError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	code := e.Code
	if code == "" {
		code = string(e.Kind)
	}
	msg := e.Message
	if msg == "" {
		msg = strings.ReplaceAll(string(e.Kind), "_", " ")
	}
	WriteError(w, HTTPStatus(err), code, msg)
}
