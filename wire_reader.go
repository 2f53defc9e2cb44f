package codec

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// ReaderPro is the byte source a WireReader drives.
type ReaderPro interface {
	io.Reader
	io.ByteReader
}

// WireReader is a forward-only byte reader for the binary backend.
// It counts consumed bytes and latches the first error; subsequent reads
// become no-ops.
type WireReader struct {
	r     ReaderPro
	count int64 // total bytes read
	err   error // first error encountered.
}

var _ ReaderPro = (*WireReader)(nil)

// NewWireReaderSize creates a new WireReader with a specified buffer size.
func NewWireReaderSize(r io.Reader, size int) (*WireReader, error) {
	if r == nil {
		return nil, ErrNilIO
	}

	switch reader := r.(type) {
	// Share the source; the counter restarts at zero.
	case *WireReader:
		return &WireReader{r: reader.r}, nil

	// prevent unpredictable double-buffering.
	case *bufio.Reader:
		if reader.Size() >= size {
			return &WireReader{r: reader}, nil
		}
		return nil, ErrAlreadyBuffered

	// underlying is a buf so we don't need buffering
	case *BytesReader:
		return &WireReader{r: reader}, nil
	case *bytes.Reader:
		return &WireReader{r: reader}, nil
	case *bytes.Buffer:
		return &WireReader{r: reader}, nil
	}

	if size < 16 {
		return nil, ErrSizeTooSmall
	}

	// default use bufio
	return &WireReader{r: bufio.NewReaderSize(r, size)}, nil
}

// NewWireReader creates a new WireReader with a default buffer size.
func NewWireReader(r io.Reader) (*WireReader, error) {
	return NewWireReaderSize(r, BUFFER_SIZE)
}

// Read implements the io.Reader interface.
func (r *WireReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.r.Read(p)
	r.count += int64(n)
	r.setError(err)
	return n, r.err
}

func (r *WireReader) Count() int64 { return r.count }
func (r *WireReader) Err() error   { return r.err }
func (r *WireReader) IsEOF() bool  { return r.err == io.EOF }

// setError records the first non-nil error.
func (r *WireReader) setError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// readChunk bounds the memory a length prefix can claim before the bytes
// behind it have arrived.
const readChunk = 64 << 10

// buffered reports how many bytes an in-memory source still holds.
func buffered(r io.Reader) (int, bool) {
	switch b := r.(type) {
	case *BytesReader:
		return len(b.Remaining()), true
	case *bytes.Reader:
		return b.Len(), true
	case *bytes.Buffer:
		return b.Len(), true
	}
	return 0, false
}

// readFull reads exactly n bytes. Memory grows with the bytes actually
// read, never with n alone.
func (r *WireReader) readFull(n int) []byte {
	if r.err != nil {
		return nil
	}
	if rest, ok := buffered(r.r); ok && n > rest {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	if n <= readChunk {
		buf := make([]byte, n)
		m, err := io.ReadFull(r.r, buf)
		r.count += int64(m)
		if err != nil {
			r.setError(unexpected(err))
			return nil
		}
		return buf
	}
	var buf bytes.Buffer
	buf.Grow(readChunk)
	m, err := io.CopyN(&buf, r.r, int64(n))
	r.count += m
	if err != nil {
		r.setError(unexpected(err))
		return nil
	}
	return buf.Bytes()
}

// unexpected turns an end of stream inside a value into io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// ReadBytes reads n bytes and returns a new byte slice.
func (r *WireReader) ReadBytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}
	return r.readFull(n)
}

// Discard skips n bytes.
func (r *WireReader) Discard(n int64) {
	if r.err != nil || n <= 0 {
		return
	}
	skipped, err := Discard(r.r, n)
	r.count += skipped
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	r.setError(err)
}

// --- Primitive Read Operations ---

func (r *WireReader) ReadByte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	b, err := r.r.ReadByte()
	if err == nil {
		r.count++
	} else {
		r.err = err
	}
	return b, err
}

// ReadUvarint reads a base-128 varint. A clean end of stream before the
// first byte latches io.EOF; a stream that ends mid-varint latches
// io.ErrUnexpectedEOF.
func (r *WireReader) ReadUvarint() uint64 {
	if r.err != nil {
		return 0
	}
	start := r.count
	v, err := binary.ReadUvarint(r)
	if err != nil {
		switch {
		case r.err == nil:
			// ReadByte succeeded every time, so the varint itself is too long.
			r.err = ErrVarintOverflow
		case r.count > start && errors.Is(r.err, io.EOF):
			r.err = io.ErrUnexpectedEOF
		}
		return 0
	}
	return v
}

func (r *WireReader) ReadUint32(dest *uint32) {
	buf := r.readFull(4)
	if r.err == nil {
		*dest = Order.Uint32(buf)
	}
}

func (r *WireReader) ReadUint64(dest *uint64) {
	buf := r.readFull(8)
	if r.err == nil {
		*dest = Order.Uint64(buf)
	}
}
