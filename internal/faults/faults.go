package faults

import (
	"github.com/pkg/errors"
)

// Kind classifies where in the pipeline an error happened. Config, Fetch
// and Render errors abort the run; Notify errors are logged and swallowed
// because the report file is already on disk by then.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindFetch
	KindRender
	KindNotify
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindFetch:
		return "fetch"
	case KindRender:
		return "render"
	case KindNotify:
		return "notify"
	}
	return "unknown"
}

// Error ties an underlying error to a pipeline kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a kind. A nil err returns nil.
func E(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// KindOf walks the wrap chain and returns the outermost kind, or
// KindUnknown if the chain carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Fatal reports whether the error should abort the run. Only notification
// failures are survivable.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != KindNotify
}
