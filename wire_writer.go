package codec

import (
	"bufio"
	"bytes"
	"io"
)

// WriterPro is the byte sink a WireWriter drives.
type WriterPro interface {
	io.Writer
	io.ByteWriter
	io.StringWriter
	Flush() error
}

type bytesBufferWriterAdapter struct{ *bytes.Buffer }

func (w *bytesBufferWriterAdapter) Flush() error { return nil }

// WireWriter is a buffered byte writer shared by both backends.
// It tracks the first error that occurs; after an error, all subsequent
// write operations become no-ops.
type WireWriter struct {
	w     WriterPro
	count int64 // total bytes written
	err   error // first error encountered. Subsequent writes become no-ops.
	depth int
}

var _ WriterPro = (*WireWriter)(nil)

// NewWireWriterSize creates a new WireWriter with a specified buffer size.
// It returns an error to prevent double-buffering, a common source of bugs.
func NewWireWriterSize(w io.Writer, size int) (*WireWriter, error) {
	if w == nil {
		return nil, ErrNilIO
	}

	switch bw := w.(type) {
	// Reuse the underlying buffer if it's already a compatible Writer.
	case *WireWriter:
		return &WireWriter{w: bw.w, depth: bw.depth + 1}, nil

	// prevent unpredictable double-buffering. The caller's bufio.Writer is
	// used as is and flushed by Flush.
	case *bufio.Writer:
		if bw.Size() >= size {
			return &WireWriter{w: bw}, nil
		}
		return nil, ErrAlreadyBuffered

	// underlying is a buf so we don't need buffering
	case *BytesWriter:
		return &WireWriter{w: bw}, nil
	case *bytes.Buffer:
		return &WireWriter{w: &bytesBufferWriterAdapter{bw}}, nil
	}

	if size < 16 {
		return nil, ErrSizeTooSmall
	}

	// default use bufio
	return &WireWriter{w: bufio.NewWriterSize(w, size)}, nil
}

// NewWireWriter creates a new WireWriter with a default buffer size.
func NewWireWriter(w io.Writer) (*WireWriter, error) {
	return NewWireWriterSize(w, BUFFER_SIZE)
}

// Write implements the io.Writer interface.
func (w *WireWriter) Write(buf []byte) (int, error) {
	if len(buf) == 0 || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.Write(buf)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

// WriteString implements the io.StringWriter interface.
func (w *WireWriter) WriteString(str string) (int, error) {
	if str == "" || w.err != nil {
		return 0, w.err
	}
	n, err := w.w.WriteString(str)
	w.count += int64(n)
	w.setError(err)
	return n, w.err
}

func (w *WireWriter) Count() int64 { return w.count }
func (w *WireWriter) Err() error   { return w.err }

// setError records the first non-nil error.
// This preserves the root cause of a failure chain instead of a later,
// less relevant error.
func (w *WireWriter) setError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *WireWriter) Flush() error {
	// Only the outermost writer should be responsible for the final flush.
	if w.depth > 0 || w.err != nil {
		return w.err
	}
	err := w.w.Flush()
	w.setError(err)
	return err
}

// --- Primitive Write Operations ---

func (w *WireWriter) WriteByte(v byte) error {
	if w.err != nil {
		return w.err
	}
	err := w.w.WriteByte(v)
	if err == nil {
		w.count++
	} else {
		w.err = err
	}
	return err
}
