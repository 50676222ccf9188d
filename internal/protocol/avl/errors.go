package avl

import (
	"errors"
	"fmt"
)

var (
	ErrShortBuffer         = errors.New("avl: short buffer")
	ErrIdentityLength      = errors.New("avl: identity length must be 15")
	ErrIdentityDigits      = errors.New("avl: identity must be ascii digits")
	ErrUnsupportedCodec    = errors.New("avl: unsupported codec")
	ErrRecordCountMismatch = errors.New("avl: record count mismatch")
	ErrCRCMismatch         = errors.New("avl: crc mismatch")
	ErrFieldOverflow       = errors.New("avl: value does not fit codec field width")
)

// DecodeError records where in the buffer decoding stopped.
type DecodeError struct {
	Field  string
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("avl: decode %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
