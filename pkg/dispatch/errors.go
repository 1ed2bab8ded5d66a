package dispatch

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	KindInvalidInput ErrorKind = iota + 1
	KindNotFound
	KindAlreadyExists
	KindStructuralViolation
	KindCorrupt
	KindReconcile
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrStructuralViolation = errors.New("structural violation")
	ErrCorrupt             = errors.New("corrupt document")
	ErrReconcile           = errors.New("failed to write document")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindInvalidInput:
		return ErrInvalidInput
	case KindNotFound:
		return ErrNotFound
	case KindAlreadyExists:
		return ErrAlreadyExists
	case KindStructuralViolation:
		return ErrStructuralViolation
	case KindCorrupt:
		return ErrCorrupt
	case KindReconcile:
		return ErrReconcile
	}
	return nil
}

func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// DispatchError is returned for every rejected action. The document is never modified when one is returned, except for
// KindReconcile where the write itself failed part way.
type DispatchError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so errors.Is(err, ErrNotFound) works.
func (e *DispatchError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func invalid(format string, args ...any) error {
	return &DispatchError{Kind: KindInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &DispatchError{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func exists(format string, args ...any) error {
	return &DispatchError{Kind: KindAlreadyExists, Msg: fmt.Sprintf(format, args...)}
}

func structural(format string, args ...any) error {
	return &DispatchError{Kind: KindStructuralViolation, Msg: fmt.Sprintf(format, args...)}
}
