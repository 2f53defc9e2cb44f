package codec

import (
	"fmt"
	"io"
)

// NewReader binds a reader cursor of the given format to r.
func NewReader(r io.Reader, format Format, reg *Registry) (Reader, error) {
	if r == nil {
		return nil, ErrNilIO
	}
	switch format {
	case FormatJSON:
		return newJSONReader(r, reg), nil
	case FormatBinary:
		wire, err := NewWireReader(r)
		if err != nil {
			return nil, err
		}
		return newBinaryReader(wire, reg), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, format)
}

// NewWriter binds a writer cursor of the given format to w. Call Flush when done.
func NewWriter(w io.Writer, format Format, reg *Registry) (Writer, error) {
	if !format.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperation, format)
	}
	wire, err := NewWireWriter(w)
	if err != nil {
		return nil, err
	}
	if format == FormatBinary {
		return newBinaryWriter(wire, reg), nil
	}
	return newJSONWriter(wire, reg), nil
}

// Decode reads one T from r. An empty stream or an object without
// properties yields nil, nil. The root object must be the last thing in r.
func Decode[T any](reg *Registry, r io.Reader, format Format) (*T, error) {
	cr, err := NewReader(r, format, reg)
	if err != nil {
		return nil, err
	}
	ok, err := cr.Advance()
	if err != nil || !ok {
		return nil, err
	}
	v, err := ReadObject[T](cr)
	if err != nil {
		return nil, err
	}
	more, err := cr.Advance()
	if err != nil {
		return nil, err
	}
	if more {
		return nil, corrupted("data after the root object")
	}
	return v, nil
}

// Encode writes v to w and flushes, including a *bufio.Writer passed as w.
// A bufio.Writer smaller than BUFFER_SIZE is rejected with
// ErrAlreadyBuffered. A nil v writes nothing. Unless leaveOpen is set, w is
// closed afterwards if it is an io.Closer.
func Encode[T any](reg *Registry, w io.Writer, v *T, format Format, leaveOpen bool) (err error) {
	if !leaveOpen {
		if c, ok := w.(io.Closer); ok {
			defer func() {
				if cerr := c.Close(); err == nil {
					err = cerr
				}
			}()
		}
	}
	if v == nil {
		return nil
	}
	cw, err := NewWriter(w, format, reg)
	if err != nil {
		return err
	}
	if err := WriteObject(cw, v); err != nil {
		return err
	}
	return cw.Flush()
}

// Marshal encodes v into a new byte slice.
func Marshal[T any](reg *Registry, v *T, format Format) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := Encode(reg, buf, v, format, true); err != nil {
		return nil, err
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// MarshalTo encodes v into dst without growing it and returns the number of
// bytes written. It fails with io.ErrShortWrite when dst is too small.
func MarshalTo[T any](reg *Registry, v *T, format Format, dst []byte) (int, error) {
	w := NewBytesWriter(dst)
	if err := Encode(reg, w, v, format, true); err != nil {
		return w.Len(), err
	}
	return w.Len(), nil
}

// Unmarshal decodes one T from data.
func Unmarshal[T any](reg *Registry, data []byte, format Format) (*T, error) {
	return Decode[T](reg, NewBytesReader(data), format)
}
