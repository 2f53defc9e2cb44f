package codec

import "io"

// BytesWriter fills a caller-owned slice up to its capacity. MarshalTo
// encodes through it so the encoder never allocates an output buffer.
// Writes past the end are truncated and fail with io.ErrShortWrite.
type BytesWriter struct {
	B []byte // destination, sliced to full capacity
	N int    // bytes written
}

func NewBytesWriter(p []byte) *BytesWriter {
	return &BytesWriter{B: p[:cap(p)]}
}

func (w *BytesWriter) Write(p []byte) (int, error) {
	n := copy(w.B[w.N:], p)
	return w.advance(n, len(p))
}

func (w *BytesWriter) WriteString(s string) (int, error) {
	n := copy(w.B[w.N:], s)
	return w.advance(n, len(s))
}

func (w *BytesWriter) WriteByte(c byte) error {
	if w.N == len(w.B) {
		return io.ErrShortWrite
	}
	w.B[w.N] = c
	w.N++
	return nil
}

func (w *BytesWriter) advance(n, want int) (int, error) {
	w.N += n
	if n < want {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Flush is a no-op; the slice is the destination.
func (w *BytesWriter) Flush() error { return nil }

func (w *BytesWriter) Reset() { w.N = 0 }

func (w *BytesWriter) Len() int { return w.N }

func (w *BytesWriter) Available() int { return len(w.B) - w.N }

// Bytes aliases the written prefix of B.
func (w *BytesWriter) Bytes() []byte { return w.B[:w.N] }
