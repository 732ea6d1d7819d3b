// Package errors defines the sentinel errors shared by the indexing core and
// an IndexError wrapper that carries the failing operation and the name
// (term, document key, field) involved.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNegativeValue  = errors.New("negative value cannot be byte encoded")
	ErrDuplicateKey   = errors.New("duplicate key")
	ErrIO             = errors.New("i/o failure")
	ErrAbsent         = errors.New("structure not present")
	ErrSchemaMismatch = errors.New("field definition mismatch")
	ErrCorrupt        = errors.New("corrupt index data")
	ErrInvalidInput   = errors.New("invalid input")
	ErrClosed         = errors.New("closed")
)

// IndexError wraps a sentinel with the operation and name that produced it.
type IndexError struct {
	Err  error
	Op   string
	Name string
}

func (e *IndexError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
	}
	return fmt.Sprintf("%s %q: %s", e.Op, e.Name, e.Err.Error())
}

func (e *IndexError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op string, name string) *IndexError {
	return &IndexError{
		Err:  sentinel,
		Op:   op,
		Name: name,
	}
}

func Newf(sentinel error, op string, format string, args ...any) *IndexError {
	return &IndexError{
		Err:  sentinel,
		Op:   op,
		Name: fmt.Sprintf(format, args...),
	}
}

// IO wraps an underlying os/io error so that both errors.Is(err, ErrIO) and
// errors.Is(err, cause) hold.
func IO(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrIO, cause)
}

// Is reports whether err matches target. It forwards to the standard library
// so callers importing this package do not need both.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As forwards to errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsFatal reports whether err belongs to the classes that must abort a dump
// or merge rather than be logged and skipped.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrNegativeValue), errors.Is(err, ErrDuplicateKey), errors.Is(err, ErrCorrupt):
		return true
	case errors.Is(err, ErrIO):
		return true
	default:
		return false
	}
}
