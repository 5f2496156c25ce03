// Package errs defines the error taxonomy shared across the up pipeline.
//
// Every fallible operation in the core returns one of these kinds (or wraps
// one with %w); nothing here is used for control flow via panics.
package errs

import "fmt"

// Kind identifies which bucket of the error taxonomy an error belongs to.
type Kind string

const (
	// KindConfig means the manifest or global config is malformed, names a
	// disallowed operation, or gives an invalid tool name. Never retried.
	KindConfig Kind = "config"
	// KindCache means the ledger failed to read/write, hit a constraint
	// violation, or found a corrupt row. Fatal to the current command.
	KindCache Kind = "cache"
	// KindExec means a subprocess exited non-zero, timed out, or was
	// killed by a signal.
	KindExec Kind = "exec"
	// KindNetwork means an HTTP/DNS/connection failure. Eligible for
	// stale-cache fallback in version resolution; fatal in download paths
	// unless the install-time fallback (spec §4.2) applies.
	KindNetwork Kind = "network"
	// KindResolution means no version satisfied the expression even after
	// a refresh. Fatal.
	KindResolution Kind = "resolution"
)

// Error is a typed error carrying a Kind, a message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf returns the Kind of err if it (or something it wraps) is an *Error,
// and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// As walks err's Unwrap chain for an *Error, the way errors.As would, so
// callers of this package don't need a second import; kept here to avoid a stutter of errors.As/errs.As
// call sites throughout the pipeline.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func Config(msg string, cause error) error     { return &Error{KindConfig, msg, cause} }
func Cache(msg string, cause error) error      { return &Error{KindCache, msg, cause} }
func Exec(msg string, cause error) error       { return &Error{KindExec, msg, cause} }
func Network(msg string, cause error) error    { return &Error{KindNetwork, msg, cause} }
func Resolution(msg string, cause error) error { return &Error{KindResolution, msg, cause} }
