package cronjob

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies structured failures. Each kind carries a fixed HTTP status.
type Kind string

const (
	KindMissingSecret         Kind = "MISSING_SECRET"
	KindInvalidSecret         Kind = "INVALID_SECRET"
	KindMethodNotAllowed      Kind = "METHOD_NOT_ALLOWED"
	KindJobNotFound           Kind = "JOB_NOT_FOUND"
	KindDuplicateJob          Kind = "DUPLICATE_JOB"
	KindInvalidCronExpression Kind = "INVALID_CRON_EXPRESSION"
	KindMissingBaseURL        Kind = "MISSING_BASE_URL"
	KindMissingConfig         Kind = "MISSING_CONFIG"
	KindInvalidJob            Kind = "INVALID_JOB"
)

// Status returns the HTTP status associated with the kind.
func (k Kind) Status() int {
	switch k {
	case KindMissingSecret:
		return http.StatusUnauthorized
	case KindInvalidSecret:
		return http.StatusForbidden
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindJobNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a structured failure raised by the registry, the validator, the
// engine or the workflow generator. Its Status is propagated verbatim as the
// response status; errors returned by job handlers never are.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

// NewError builds an Error whose status is derived from kind.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Status: kind.Status(), Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: KindJobNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsKind reports whether err is (or wraps) a structured error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the kind of a structured error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the status carried by a structured error, or 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
