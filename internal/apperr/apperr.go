// Package apperr defines the typed error taxonomy shared across the
// storage, execution, and HTTP layers so each layer can classify a
// failure without parsing error strings.
package apperr

import (
	"errors"
	"fmt"
)

// Kind distinguishes the conceptual error categories from spec §7.
type Kind int

const (
	// KindInternal covers any unclassified failure; surfaced as 500.
	KindInternal Kind = iota
	KindNotFound
	KindConstraintViolation
	KindAlreadyRunning
	KindCancelled
	KindValidation
	KindLLMUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConstraintViolation:
		return "constraint_violation"
	case KindAlreadyRunning:
		return "already_running"
	case KindCancelled:
		return "cancelled"
	case KindValidation:
		return "validation_error"
	case KindLLMUnavailable:
		return "llm_unavailable"
	default:
		return "internal"
	}
}

// Error is a typed application error carrying a Kind for boundary-layer
// status-code mapping and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, apperr.NotFound) style checks against a
// same-Kind sentinel constructed with New(kind, "").
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Kind == te.Kind
	}
	return false
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Sentinels for errors.Is comparisons against a bare Kind.
var (
	NotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ConstraintViolation = &Error{Kind: KindConstraintViolation, Message: "constraint violation"}
	AlreadyRunning      = &Error{Kind: KindAlreadyRunning, Message: "a run is already active for this project"}
	// Cancelled is the control-flow sentinel described in spec §4.6 and
	// §9: it must never cross the HTTP boundary as an error, only ever
	// be translated into a run status of "cancelled".
	Cancelled      = &Error{Kind: KindCancelled, Message: "run cancelled"}
	LLMUnavailable = &Error{Kind: KindLLMUnavailable, Message: "llm unavailable"}
)

func NotFoundf(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func ConstraintViolationf(format string, args ...any) *Error {
	return New(KindConstraintViolation, fmt.Sprintf(format, args...))
}

func Validationf(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func LLMUnavailablef(format string, args ...any) *Error {
	return New(KindLLMUnavailable, fmt.Sprintf(format, args...))
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, defaulting to KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
