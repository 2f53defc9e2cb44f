package codec

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// Binary wire types. Numbers 3 and 4 are protobuf's group markers; here they
// carry length-prefixed nested objects and arrays.
const (
	wireVarint  = protowire.VarintType
	wireFixed64 = protowire.Fixed64Type
	wireBytes   = protowire.BytesType
	wireObject  = protowire.StartGroupType
	wireArray   = protowire.EndGroupType
	wireFixed32 = protowire.Fixed32Type
)

// elementField tags every array element.
const elementField protowire.Number = 1

const (
	guidSize = 16
	timeSize = 12 // fixed64 seconds + fixed32 nanoseconds
)

func classify(wt protowire.Type) Token {
	switch wt {
	case wireObject:
		return TokenObject
	case wireArray:
		return TokenArray
	}
	return TokenValue
}

type binaryFrame struct {
	array bool
	end   int64 // offset one past the frame; -1 for the top-level object
}

// binaryReader decodes the tag/wire-type/payload stream. The top-level
// object has no length prefix and runs to the end of the stream.
type binaryReader struct {
	wire   *WireReader
	reg    *Registry
	tok    Token
	wt     protowire.Type
	prop   PropertyID
	frames []binaryFrame

	started bool
	pending bool // a top-level tag was read ahead by Advance
	pendNum protowire.Number
	pendWT  protowire.Type
}

var _ Reader = (*binaryReader)(nil)

func newBinaryReader(w *WireReader, reg *Registry) *binaryReader {
	return &binaryReader{wire: w, reg: reg}
}

func (r *binaryReader) Format() Format         { return FormatBinary }
func (r *binaryReader) Registry() *Registry    { return r.reg }
func (r *binaryReader) Token() Token           { return r.tok }
func (r *binaryReader) PropertyID() PropertyID { return r.prop }

// streamErr converts the latched byte-layer error.
func (r *binaryReader) streamErr() error {
	err := r.wire.Err()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return corrupted("truncated stream at offset %d", r.wire.Count())
	}
	if errors.Is(err, ErrVarintOverflow) {
		return corrupted("varint overflow at offset %d", r.wire.Count())
	}
	return err
}

func (r *binaryReader) top() *binaryFrame {
	if n := len(r.frames); n > 0 {
		return &r.frames[n-1]
	}
	return nil
}

// readTag returns the next tag of the current frame, or ok=false at its end.
func (r *binaryReader) readTag() (num protowire.Number, wt protowire.Type, ok bool, err error) {
	if r.pending {
		r.pending = false
		return r.pendNum, r.pendWT, true, nil
	}
	f := r.top()
	bounded := f != nil && f.end >= 0
	if bounded {
		switch pos := r.wire.Count(); {
		case pos == f.end:
			return 0, 0, false, nil
		case pos > f.end:
			return 0, 0, false, corrupted("field overruns enclosing frame by %d bytes", pos-f.end)
		}
	}

	start := r.wire.Count()
	x := r.wire.ReadUvarint()
	if r.wire.Err() != nil {
		if !bounded && r.wire.IsEOF() && r.wire.Count() == start {
			return 0, 0, false, nil
		}
		return 0, 0, false, r.streamErr()
	}
	num, wt = protowire.DecodeTag(x)
	if num < protowire.MinValidNumber || num > protowire.MaxValidNumber || wt > wireFixed32 {
		return 0, 0, false, corrupted("invalid tag %#x at offset %d", x, start)
	}
	return num, wt, true, nil
}

// length reads a length prefix and checks it against the enclosing frame.
func (r *binaryReader) length() (int64, error) {
	x := r.wire.ReadUvarint()
	if r.wire.Err() != nil {
		return 0, r.streamErr()
	}
	if x > MaxFieldSize {
		return 0, corrupted("length %d exceeds limit", x)
	}
	n := int64(x)
	if f := r.top(); f != nil && f.end >= 0 && r.wire.Count()+n > f.end {
		return 0, corrupted("length %d exceeds enclosing frame", n)
	}
	return n, nil
}

func (r *binaryReader) Advance() (bool, error) {
	if !r.started {
		r.started = true
		num, wt, ok, err := r.readTag()
		if err != nil {
			return false, err
		}
		if !ok {
			r.tok = TokenEndOfStream
			return false, nil
		}
		r.pending, r.pendNum, r.pendWT = true, num, wt
		r.tok = TokenObject
		return true, nil
	}
	f := r.top()
	if f == nil {
		r.tok = TokenEndOfStream
		return false, nil
	}
	if f.array {
		return r.HasMoreElements()
	}
	return r.HasMoreProperties()
}

func (r *binaryReader) Skip() error {
	if r.tok != TokenValue && r.tok != TokenObject && r.tok != TokenArray {
		return nil
	}
	r.tok = TokenUnknown
	switch r.wt {
	case wireVarint:
		r.wire.ReadUvarint()
	case wireFixed64:
		r.wire.Discard(8)
	case wireFixed32:
		r.wire.Discard(4)
	default:
		n, err := r.length()
		if err != nil {
			return err
		}
		r.wire.Discard(n)
	}
	if r.wire.Err() != nil {
		return r.streamErr()
	}
	return nil
}

func (r *binaryReader) BeginObject() error {
	if r.tok != TokenObject {
		return mismatch("object", r.tok)
	}
	r.tok = TokenUnknown
	if len(r.frames) == 0 {
		r.frames = append(r.frames, binaryFrame{end: -1})
		return nil
	}
	n, err := r.length()
	if err != nil {
		return err
	}
	r.frames = append(r.frames, binaryFrame{end: r.wire.Count() + n})
	return nil
}

func (r *binaryReader) HasMoreProperties() (bool, error) {
	if f := r.top(); f == nil || f.array {
		return false, corrupted("not inside an object")
	}
	num, wt, ok, err := r.readTag()
	if err != nil {
		return false, err
	}
	if !ok {
		r.frames = r.frames[:len(r.frames)-1]
		r.tok = TokenUnknown
		return false, nil
	}
	r.prop = PropertyID{ID: uint32(num)}
	r.wt = wt
	r.tok = classify(wt)
	return true, nil
}

func (r *binaryReader) BeginArray() error {
	if r.tok != TokenArray {
		return mismatch("array", r.tok)
	}
	r.tok = TokenUnknown
	n, err := r.length()
	if err != nil {
		return err
	}
	r.frames = append(r.frames, binaryFrame{array: true, end: r.wire.Count() + n})
	return nil
}

func (r *binaryReader) HasMoreElements() (bool, error) {
	if f := r.top(); f == nil || !f.array {
		return false, corrupted("not inside an array")
	}
	_, wt, ok, err := r.readTag()
	if err != nil {
		return false, err
	}
	if !ok {
		r.frames = r.frames[:len(r.frames)-1]
		r.tok = TokenUnknown
		return false, nil
	}
	r.wt = wt
	r.tok = classify(wt)
	return true, nil
}

// value consumes the current token if it is a value of wire type wt.
func (r *binaryReader) value(want string, wt protowire.Type) error {
	if r.tok != TokenValue {
		return mismatch(want, r.tok)
	}
	if r.wt != wt {
		return fmt.Errorf("%w: want %s, got wire type %d", ErrTypeMismatch, want, r.wt)
	}
	r.tok = TokenUnknown
	return nil
}

func (r *binaryReader) varint(want string) (uint64, error) {
	if err := r.value(want, wireVarint); err != nil {
		return 0, err
	}
	x := r.wire.ReadUvarint()
	if r.wire.Err() != nil {
		return 0, r.streamErr()
	}
	return x, nil
}

func (r *binaryReader) payload(want string) ([]byte, error) {
	if err := r.value(want, wireBytes); err != nil {
		return nil, err
	}
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	b := r.wire.ReadBytes(int(n))
	if r.wire.Err() != nil {
		return nil, r.streamErr()
	}
	return b, nil
}

func (r *binaryReader) ReadNull() (bool, error) { return false, nil }

func (r *binaryReader) ReadBool() (bool, error) {
	x, err := r.varint("bool")
	return x != 0, err
}

func (r *binaryReader) ReadInt() (int32, error) {
	x, err := r.varint("int")
	if err != nil {
		return 0, err
	}
	v := unzigzag(x)
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d overflows int32", ErrTypeMismatch, v)
	}
	return int32(v), nil
}

func (r *binaryReader) ReadLong() (int64, error) {
	x, err := r.varint("long")
	return unzigzag(x), err
}

func (r *binaryReader) ReadFloat() (float32, error) {
	if err := r.value("float", wireFixed32); err != nil {
		return 0, err
	}
	var bits uint32
	r.wire.ReadUint32(&bits)
	if r.wire.Err() != nil {
		return 0, r.streamErr()
	}
	return math.Float32frombits(bits), nil
}

func (r *binaryReader) ReadDouble() (float64, error) {
	if err := r.value("double", wireFixed64); err != nil {
		return 0, err
	}
	var bits uint64
	r.wire.ReadUint64(&bits)
	if r.wire.Err() != nil {
		return 0, r.streamErr()
	}
	return math.Float64frombits(bits), nil
}

func (r *binaryReader) ReadString() (string, error) {
	b, err := r.payload("string")
	return string(b), err
}

func (r *binaryReader) ReadBytes() ([]byte, error) {
	return r.payload("bytes")
}

func (r *binaryReader) ReadGUID() (uuid.UUID, error) {
	b, err := r.payload("guid")
	if err != nil {
		return uuid.Nil, err
	}
	if len(b) != guidSize {
		return uuid.Nil, fmt.Errorf("%w: guid of %d bytes", ErrTypeMismatch, len(b))
	}
	id, err := uuid.FromBytes(b)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return id, nil
}

func (r *binaryReader) ReadTime() (time.Time, error) {
	b, err := r.payload("timestamp")
	if err != nil {
		return time.Time{}, err
	}
	if len(b) != timeSize {
		return time.Time{}, fmt.Errorf("%w: timestamp of %d bytes", ErrTypeMismatch, len(b))
	}
	sec, _ := protowire.ConsumeFixed64(b)
	nsec, _ := protowire.ConsumeFixed32(b[8:])
	if nsec >= 1e9 {
		return time.Time{}, corrupted("timestamp nanoseconds %d out of range", nsec)
	}
	return time.Unix(int64(sec), int64(nsec)).UTC(), nil
}

func (r *binaryReader) ReadDynamic() (map[string]any, error) {
	return nil, fmt.Errorf("%w: dynamic objects need property names, binary carries ids", ErrUnsupportedOperation)
}
