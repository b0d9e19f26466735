package txparse

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated      = errors.New("unexpected end of data")
	ErrCountTooLarge  = errors.New("count exceeds remaining data")
	ErrBadIndex       = errors.New("account index out of range")
	ErrLookupAccount  = errors.New("account is loaded from an address lookup table")
	ErrVersion        = errors.New("unsupported transaction version")
	ErrTrailingData   = errors.New("trailing bytes after message")
	ErrNoTransfer     = errors.New("no transferChecked instruction found")
	ErrHeaderMismatch = errors.New("message header does not match signature count")
)

// ParseError locates a decoding failure inside the raw transaction.
type ParseError struct {
	Offset int
	Field  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("txparse: %s at offset %d: %v", e.Field, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
