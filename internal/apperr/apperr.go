// Package apperr defines the error kinds surfaced by the registration wizard.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

// Kind classifies a failure by how the user recovers from it.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNetwork      Kind = "network"
	KindRejected     Kind = "rejected"
	KindVerification Kind = "verification"
)

// FieldErrors maps a draft field (by its JSON name) to a user-facing message.
type FieldErrors map[string]string

// Add records msg for field unless the field already has an error.
func (f FieldErrors) Add(field, msg string) {
	if _, ok := f[field]; ok {
		return
	}
	f[field] = msg
}

// Fields returns the field names in stable order.
func (f FieldErrors) Fields() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Error is the wizard error type.
type Error struct {
	Kind    Kind
	Message string
	Fields  FieldErrors
	Cause   error
}

func (e *Error) Error() string {
	if e.Kind == KindValidation && len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields.Fields() {
			parts = append(parts, f+": "+e.Fields[f])
		}
		return e.Message + " (" + strings.Join(parts, "; ") + ")"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNetwork      = &Error{Kind: KindNetwork}
	ErrRejected     = &Error{Kind: KindRejected}
	ErrVerification = &Error{Kind: KindVerification}
)

func Validation(fields FieldErrors) *Error {
	return &Error{Kind: KindValidation, Message: "please correct the highlighted fields", Fields: fields}
}

func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: "network error, please try again", Cause: cause}
}

// Rejected carries the server message verbatim.
func Rejected(message string) *Error {
	if strings.TrimSpace(message) == "" {
		message = "request was rejected by the server"
	}
	return &Error{Kind: KindRejected, Message: message}
}

// Verification keeps the cause's message, which for a backend rejection is
// the server's own explanation.
func Verification(registrationID string, cause error) *Error {
	msg := "payment could not be verified"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	msg += ". If money was debited, contact support"
	if registrationID != "" {
		msg += " quoting registration " + registrationID
	}
	return &Error{Kind: KindVerification, Message: msg, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the same request may simply be issued again.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRejected:
		return true
	}
	return false
}

// FieldsOf returns the field errors carried by a validation error.
func FieldsOf(err error) FieldErrors {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		return e.Fields
	}
	return nil
}
