package codec

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

type binaryWriteFrame struct {
	array bool
	num   protowire.Number
	buf   *bytes.Buffer // nil for the top-level object
}

// binaryWriter emits the tag/wire-type/payload stream. Nested objects and
// arrays are staged in pooled buffers until their length is known.
type binaryWriter struct {
	wire    *WireWriter
	reg     *Registry
	frames  []binaryWriteFrame
	prop    PropertyID
	keyed   bool // WriteProperty was called and its value is pending
	scratch []byte
}

var _ Writer = (*binaryWriter)(nil)

func newBinaryWriter(w *WireWriter, reg *Registry) *binaryWriter {
	return &binaryWriter{wire: w, reg: reg, scratch: make([]byte, 0, 32)}
}

func (w *binaryWriter) Format() Format      { return FormatBinary }
func (w *binaryWriter) Registry() *Registry { return w.reg }
func (w *binaryWriter) Flush() error        { return w.wire.Flush() }

func (w *binaryWriter) sink() io.Writer {
	if n := len(w.frames); n > 0 && w.frames[n-1].buf != nil {
		return w.frames[n-1].buf
	}
	return w.wire
}

// key returns the field number for the next value and clears the pending property.
func (w *binaryWriter) key() protowire.Number {
	n := len(w.frames)
	if n == 0 {
		panic("codec: binary value written outside an object")
	}
	if w.frames[n-1].array {
		return elementField
	}
	if !w.keyed {
		panic("codec: binary value written inside an object without a property")
	}
	w.keyed = false
	return protowire.Number(w.prop.ID)
}

func (w *binaryWriter) field(wt protowire.Type, payload func(b []byte) []byte) error {
	b := protowire.AppendTag(w.scratch[:0], w.key(), wt)
	b = payload(b)
	w.scratch = b
	_, err := w.sink().Write(b)
	return err
}

func (w *binaryWriter) StartObject() error {
	if len(w.frames) == 0 {
		w.frames = append(w.frames, binaryWriteFrame{})
		return nil
	}
	w.frames = append(w.frames, binaryWriteFrame{num: w.key(), buf: getBuffer()})
	return nil
}

func (w *binaryWriter) EndObject() error {
	n := len(w.frames)
	if n == 0 || w.frames[n-1].array || w.keyed {
		panic("codec: unbalanced EndObject")
	}
	return w.close(wireObject)
}

func (w *binaryWriter) StartArray() error {
	if len(w.frames) == 0 {
		return fmt.Errorf("%w: binary top-level value must be an object", ErrUnsupportedOperation)
	}
	w.frames = append(w.frames, binaryWriteFrame{array: true, num: w.key(), buf: getBuffer()})
	return nil
}

func (w *binaryWriter) EndArray() error {
	n := len(w.frames)
	if n == 0 || !w.frames[n-1].array {
		panic("codec: unbalanced EndArray")
	}
	return w.close(wireArray)
}

// close pops the current frame and writes it, length-prefixed, to its parent.
func (w *binaryWriter) close(wt protowire.Type) error {
	f := w.frames[len(w.frames)-1]
	w.frames = w.frames[:len(w.frames)-1]
	if f.buf == nil {
		return w.wire.Err()
	}
	defer putBuffer(f.buf)

	b := protowire.AppendTag(w.scratch[:0], f.num, wt)
	b = protowire.AppendVarint(b, uint64(f.buf.Len()))
	w.scratch = b
	out := w.sink()
	if _, err := out.Write(b); err != nil {
		return err
	}
	_, err := out.Write(f.buf.Bytes())
	return err
}

func (w *binaryWriter) WriteProperty(id PropertyID) error {
	n := len(w.frames)
	if n == 0 || w.frames[n-1].array || w.keyed {
		panic("codec: WriteProperty outside an object")
	}
	if id.ID == 0 || id.ID > uint32(protowire.MaxValidNumber) {
		return fmt.Errorf("%w: property %s has no usable numeric id", ErrUnsupportedOperation, id)
	}
	w.prop = id
	w.keyed = true
	return nil
}

// WriteNull drops the pending property: absence is how binary spells null.
func (w *binaryWriter) WriteNull() error {
	n := len(w.frames)
	switch {
	case n == 0:
		return nil
	case w.frames[n-1].array:
		return fmt.Errorf("%w: binary arrays cannot hold null", ErrUnsupportedOperation)
	}
	w.key()
	return nil
}

func (w *binaryWriter) WriteBool(v bool) error {
	return w.field(wireVarint, func(b []byte) []byte {
		return protowire.AppendVarint(b, protowire.EncodeBool(v))
	})
}

func (w *binaryWriter) WriteInt(v int32) error {
	return w.field(wireVarint, func(b []byte) []byte {
		return protowire.AppendVarint(b, zigzag(v))
	})
}

func (w *binaryWriter) WriteLong(v int64) error {
	return w.field(wireVarint, func(b []byte) []byte {
		return protowire.AppendVarint(b, zigzag(v))
	})
}

func (w *binaryWriter) WriteFloat(v float32) error {
	return w.field(wireFixed32, func(b []byte) []byte {
		return protowire.AppendFixed32(b, math.Float32bits(v))
	})
}

func (w *binaryWriter) WriteDouble(v float64) error {
	return w.field(wireFixed64, func(b []byte) []byte {
		return protowire.AppendFixed64(b, math.Float64bits(v))
	})
}

func (w *binaryWriter) WriteString(v string) error {
	return w.field(wireBytes, func(b []byte) []byte {
		return protowire.AppendString(b, v)
	})
}

func (w *binaryWriter) WriteBytes(v []byte) error {
	if v == nil {
		return w.WriteNull()
	}
	return w.field(wireBytes, func(b []byte) []byte {
		return protowire.AppendBytes(b, v)
	})
}

func (w *binaryWriter) WriteGUID(v uuid.UUID) error {
	return w.field(wireBytes, func(b []byte) []byte {
		return protowire.AppendBytes(b, v[:])
	})
}

func (w *binaryWriter) WriteTime(v time.Time) error {
	return w.field(wireBytes, func(b []byte) []byte {
		b = protowire.AppendVarint(b, timeSize)
		b = protowire.AppendFixed64(b, uint64(v.Unix()))
		return protowire.AppendFixed32(b, uint32(v.Nanosecond()))
	})
}
