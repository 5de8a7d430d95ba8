package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a reconciliation failure.
type Kind string

const (
	KindResolution            Kind = "RESOLUTION_FAILURE"
	KindFormatMismatch        Kind = "FORMAT_MISMATCH"
	KindPathConflict          Kind = "PATH_CONFLICT"
	KindIO                    Kind = "IO_FAILURE"
	KindUnsupportedRepository Kind = "UNSUPPORTED_REPOSITORY"
	KindConfig                Kind = "CONFIG_INVALID"
	KindNotFound              Kind = "NOT_FOUND"
)

// Sentinels for errors.Is checks. Matching is done on Kind only.
var (
	ErrResolution            = &Error{Kind: KindResolution}
	ErrFormatMismatch        = &Error{Kind: KindFormatMismatch}
	ErrPathConflict          = &Error{Kind: KindPathConflict}
	ErrIO                    = &Error{Kind: KindIO}
	ErrUnsupportedRepository = &Error{Kind: KindUnsupportedRepository}
	ErrConfig                = &Error{Kind: KindConfig}
	ErrNotFound              = &Error{Kind: KindNotFound}
)

// Error carries the failure kind plus the item and path it happened on, so a
// caller can decide to re-run the whole component.
type Error struct {
	Kind    Kind
	Item    string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Item != "" {
		fmt.Fprintf(&b, " (item %s)", e.Item)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (path %s)", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// WithItem returns a copy of e annotated with the item name.
func (e *Error) WithItem(item string) *Error {
	c := *e
	c.Item = item
	return &c
}

// WithPath returns a copy of e annotated with a filesystem path or URL.
func (e *Error) WithPath(path string) *Error {
	c := *e
	c.Path = path
	return &c
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when err is nil.
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func Wrapf(err error, kind Kind, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of the outermost *Error in err's chain, or "" when
// err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
