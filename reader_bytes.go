package codec

import "io"

// BytesReader reads an in-memory payload. The binary backend recognizes it
// and reads without an intermediate bufio layer.
type BytesReader struct {
	B []byte
	N int // read offset
}

func NewBytesReader(b []byte) *BytesReader {
	return &BytesReader{B: b}
}

func (r *BytesReader) Read(p []byte) (int, error) {
	rest := r.Remaining()
	if len(rest) == 0 {
		return 0, io.EOF
	}
	n := copy(p, rest)
	r.N += n
	return n, nil
}

func (r *BytesReader) ReadByte() (byte, error) {
	rest := r.Remaining()
	if len(rest) == 0 {
		return 0, io.EOF
	}
	r.N++
	return rest[0], nil
}

// Remaining aliases the unread suffix of B.
func (r *BytesReader) Remaining() []byte {
	if r.N >= len(r.B) {
		return nil
	}
	return r.B[r.N:]
}
