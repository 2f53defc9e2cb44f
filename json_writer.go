package codec

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type jsonWriteFrame struct {
	object bool
	count  int
	keyed  bool // a property name was written and awaits its value
}

type jsonWriter struct {
	w      *WireWriter
	reg    *Registry
	frames []jsonWriteFrame
	buf    []byte
}

var _ Writer = (*jsonWriter)(nil)

func newJSONWriter(w *WireWriter, reg *Registry) *jsonWriter {
	return &jsonWriter{w: w, reg: reg, buf: make([]byte, 0, 64)}
}

func (w *jsonWriter) Format() Format      { return FormatJSON }
func (w *jsonWriter) Registry() *Registry { return w.reg }
func (w *jsonWriter) Flush() error        { return w.w.Flush() }

// begin places the separator that precedes a value.
func (w *jsonWriter) begin() {
	n := len(w.frames)
	if n == 0 {
		return
	}
	f := &w.frames[n-1]
	if f.object {
		if !f.keyed {
			panic("codec: json value written inside an object without a property")
		}
		f.keyed = false
		return
	}
	if f.count > 0 {
		_ = w.w.WriteByte(',')
	}
	f.count++
}

func (w *jsonWriter) emit(b []byte) error {
	_, _ = w.w.Write(b)
	return w.w.Err()
}

func (w *jsonWriter) StartObject() error {
	w.begin()
	w.frames = append(w.frames, jsonWriteFrame{object: true})
	return w.w.WriteByte('{')
}

func (w *jsonWriter) EndObject() error {
	n := len(w.frames)
	if n == 0 || !w.frames[n-1].object || w.frames[n-1].keyed {
		panic("codec: unbalanced EndObject")
	}
	w.frames = w.frames[:n-1]
	return w.w.WriteByte('}')
}

func (w *jsonWriter) StartArray() error {
	w.begin()
	w.frames = append(w.frames, jsonWriteFrame{})
	return w.w.WriteByte('[')
}

func (w *jsonWriter) EndArray() error {
	n := len(w.frames)
	if n == 0 || w.frames[n-1].object {
		panic("codec: unbalanced EndArray")
	}
	w.frames = w.frames[:n-1]
	return w.w.WriteByte(']')
}

func (w *jsonWriter) WriteProperty(id PropertyID) error {
	n := len(w.frames)
	if n == 0 || !w.frames[n-1].object || w.frames[n-1].keyed {
		panic("codec: WriteProperty outside an object")
	}
	f := &w.frames[n-1]
	b := w.buf[:0]
	if f.count > 0 {
		b = append(b, ',')
	}
	f.count++
	f.keyed = true
	b = appendQuoted(b, id.Key())
	b = append(b, ':')
	w.buf = b
	return w.emit(b)
}

func (w *jsonWriter) WriteNull() error {
	w.begin()
	_, err := w.w.WriteString("null")
	return err
}

func (w *jsonWriter) WriteBool(v bool) error {
	w.begin()
	_, err := w.w.WriteString(strconv.FormatBool(v))
	return err
}

func (w *jsonWriter) WriteInt(v int32) error {
	return w.WriteLong(int64(v))
}

func (w *jsonWriter) WriteLong(v int64) error {
	w.begin()
	w.buf = strconv.AppendInt(w.buf[:0], v, 10)
	return w.emit(w.buf)
}

func (w *jsonWriter) writeFloat(v float64, bits int) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %v has no json representation", ErrUnsupportedOperation, v)
	}
	w.begin()
	w.buf = strconv.AppendFloat(w.buf[:0], v, 'g', -1, bits)
	return w.emit(w.buf)
}

func (w *jsonWriter) WriteFloat(v float32) error  { return w.writeFloat(float64(v), 32) }
func (w *jsonWriter) WriteDouble(v float64) error { return w.writeFloat(v, 64) }

func (w *jsonWriter) WriteString(v string) error {
	w.begin()
	w.buf = appendQuoted(w.buf[:0], v)
	return w.emit(w.buf)
}

func (w *jsonWriter) WriteBytes(v []byte) error {
	if v == nil {
		return w.WriteNull()
	}
	w.begin()
	b := append(w.buf[:0], '"')
	b = base64.StdEncoding.AppendEncode(b, v)
	w.buf = append(b, '"')
	return w.emit(w.buf)
}

func (w *jsonWriter) WriteGUID(v uuid.UUID) error {
	return w.WriteString(v.String())
}

func (w *jsonWriter) WriteTime(v time.Time) error {
	w.begin()
	b := append(w.buf[:0], '"')
	b = v.UTC().AppendFormat(b, time.RFC3339Nano)
	w.buf = append(b, '"')
	return w.emit(w.buf)
}

const hexDigits = "0123456789abcdef"

// appendQuoted appends s as a JSON string literal. Invalid UTF-8 is replaced
// with U+FFFD.
func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	start := 0
	for i := 0; i < len(s); {
		if b := s[i]; b < utf8.RuneSelf {
			if b >= 0x20 && b != '"' && b != '\\' {
				i++
				continue
			}
			dst = append(dst, s[start:i]...)
			switch b {
			case '"', '\\':
				dst = append(dst, '\\', b)
			case '\n':
				dst = append(dst, '\\', 'n')
			case '\r':
				dst = append(dst, '\\', 'r')
			case '\t':
				dst = append(dst, '\\', 't')
			default:
				dst = append(dst, '\\', 'u', '0', '0', hexDigits[b>>4], hexDigits[b&0xF])
			}
			i++
			start = i
			continue
		}
		c, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case c == utf8.RuneError && size == 1:
			dst = append(dst, s[start:i]...)
			dst = append(dst, `\ufffd`...)
		case c == '\u2028' || c == '\u2029':
			// Valid JSON, but not valid inside a JavaScript string literal.
			dst = append(dst, s[start:i]...)
			dst = append(dst, '\\', 'u', '2', '0', '2', hexDigits[c&0xF])
		default:
			i += size
			continue
		}
		i += size
		start = i
	}
	dst = append(dst, s[start:]...)
	return append(dst, '"')
}
