package codec

import (
	"errors"
	"fmt"
)

// Byte layer.
var (
	ErrNilIO           = errors.New("codec: nil io")
	ErrSizeTooSmall    = errors.New("codec: size too small")
	ErrAlreadyBuffered = errors.New("codec: reader already buffered")
	ErrDiscardNegative = errors.New("codec: discard count negative")
	ErrVarintOverflow  = errors.New("codec: varint overflows 64 bits")
	ErrTooLarge        = errors.New("codec: input exceeds size limit")
)

// Cursor layer.
var (
	// ErrTypeMismatch is returned when a typed read finds a different kind of value.
	ErrTypeMismatch = errors.New("codec: type mismatch")
	// ErrUnregisteredType is returned when no serializer is registered for a type.
	ErrUnregisteredType = errors.New("codec: unregistered type")
	// ErrCorruptedStream is returned for malformed input.
	ErrCorruptedStream = errors.New("codec: corrupted stream")
	// ErrUnsupportedOperation is returned when a backend cannot perform an operation.
	ErrUnsupportedOperation = errors.New("codec: unsupported operation")
)

// DecodeError reports the property that was being consumed when decoding faulted.
type DecodeError struct {
	Property PropertyID
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode %s: %v", e.Property, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Path returns the chain of properties from the outermost object down to the
// failing field.
func (e *DecodeError) Path() []PropertyID {
	path := []PropertyID{e.Property}
	var inner *DecodeError
	if errors.As(e.Err, &inner) {
		path = append(path, inner.Path()...)
	}
	return path
}

func mismatch(want string, got Token) error {
	return fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want, got)
}

func corrupted(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptedStream, fmt.Sprintf(format, args...))
}
