package processor

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrDecode       = errors.New("decode image")
	ErrSegmentation = errors.New("remove background")
	ErrEncode       = errors.New("encode jpeg")
)

// Error is returned by Process for every failure.
type Error struct {
	Kind error
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("image processing failed: %v: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
