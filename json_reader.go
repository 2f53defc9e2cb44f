package codec

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type jsonFrame struct {
	object    bool
	expectKey bool
}

// jsonReader walks a JSON document token by token. Only the enclosing
// container chain is held in memory.
type jsonReader struct {
	dec    *json.Decoder
	reg    *Registry
	tok    Token
	raw    json.Token
	prop   PropertyID
	frames []jsonFrame
}

var _ Reader = (*jsonReader)(nil)

func newJSONReader(r io.Reader, reg *Registry) *jsonReader {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return &jsonReader{dec: dec, reg: reg}
}

func (r *jsonReader) Format() Format      { return FormatJSON }
func (r *jsonReader) Registry() *Registry { return r.reg }
func (r *jsonReader) Token() Token        { return r.tok }
func (r *jsonReader) PropertyID() PropertyID {
	return r.prop
}

// next pulls one token and classifies it. A clean end of input outside any
// container returns io.EOF.
func (r *jsonReader) next() error {
	t, err := r.dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) && len(r.frames) == 0 {
			r.tok, r.raw = TokenEndOfStream, nil
			return io.EOF
		}
		var syntax *json.SyntaxError
		switch {
		case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
			return corrupted("unexpected end of input at depth %d", len(r.frames))
		case errors.As(err, &syntax):
			return corrupted("%v at offset %d", syntax, syntax.Offset)
		}
		return err
	}

	r.raw = t
	switch v := t.(type) {
	case json.Delim:
		switch v {
		case '{':
			r.markValue()
			r.frames = append(r.frames, jsonFrame{object: true, expectKey: true})
			r.tok = TokenObject
		case '[':
			r.markValue()
			r.frames = append(r.frames, jsonFrame{})
			r.tok = TokenArray
		default:
			r.frames = r.frames[:len(r.frames)-1]
			r.tok = TokenUnknown
		}
	case string:
		if n := len(r.frames); n > 0 && r.frames[n-1].object && r.frames[n-1].expectKey {
			r.frames[n-1].expectKey = false
			r.prop = PropertyID{Name: v}
			r.tok = TokenProperty
			return nil
		}
		r.markValue()
		r.tok = TokenValue
	default:
		r.markValue()
		r.tok = TokenValue
	}
	return nil
}

// markValue records that the enclosing object now expects a key.
func (r *jsonReader) markValue() {
	if n := len(r.frames); n > 0 && r.frames[n-1].object {
		r.frames[n-1].expectKey = true
	}
}

// nextInside is next for positions where the end of input is always premature.
func (r *jsonReader) nextInside() error {
	if err := r.next(); err != nil {
		if errors.Is(err, io.EOF) {
			return corrupted("unexpected end of input")
		}
		return err
	}
	return nil
}

func (r *jsonReader) Advance() (bool, error) {
	if err := r.next(); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return r.tok != TokenUnknown, nil
}

func (r *jsonReader) Skip() error {
	switch r.tok {
	case TokenValue:
		r.tok = TokenUnknown
	case TokenProperty:
		if err := r.nextInside(); err != nil {
			return err
		}
		return r.Skip()
	case TokenObject, TokenArray:
		depth := len(r.frames)
		for len(r.frames) >= depth {
			if err := r.nextInside(); err != nil {
				return err
			}
		}
		r.tok = TokenUnknown
	}
	return nil
}

func (r *jsonReader) BeginObject() error {
	if r.tok != TokenObject {
		return mismatch("object", r.tok)
	}
	r.tok = TokenUnknown
	return nil
}

func (r *jsonReader) HasMoreProperties() (bool, error) {
	n := len(r.frames)
	if n == 0 || !r.frames[n-1].object {
		return false, corrupted("not inside an object")
	}
	if !r.dec.More() {
		return false, r.nextInside()
	}
	if err := r.nextInside(); err != nil {
		return false, err
	}
	if r.tok != TokenProperty {
		return false, corrupted("expected property name, got %s", r.tok)
	}
	if err := r.nextInside(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *jsonReader) BeginArray() error {
	if r.tok != TokenArray {
		return mismatch("array", r.tok)
	}
	r.tok = TokenUnknown
	return nil
}

func (r *jsonReader) HasMoreElements() (bool, error) {
	n := len(r.frames)
	if n == 0 || r.frames[n-1].object {
		return false, corrupted("not inside an array")
	}
	if !r.dec.More() {
		return false, r.nextInside()
	}
	return true, r.nextInside()
}

// scalar consumes the current value.
func (r *jsonReader) scalar(want string) (json.Token, error) {
	if r.tok != TokenValue {
		return nil, mismatch(want, r.tok)
	}
	r.tok = TokenUnknown
	return r.raw, nil
}

func jsonKind(t json.Token) string {
	switch t.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case json.Number:
		return "number"
	case string:
		return "string"
	}
	return fmt.Sprintf("%T", t)
}

func valueMismatch(want string, got json.Token) error {
	return fmt.Errorf("%w: want %s, got %s", ErrTypeMismatch, want, jsonKind(got))
}

func (r *jsonReader) ReadNull() (bool, error) {
	if r.tok == TokenValue && r.raw == nil {
		r.tok = TokenUnknown
		return true, nil
	}
	return false, nil
}

func (r *jsonReader) ReadBool() (bool, error) {
	t, err := r.scalar("bool")
	if err != nil {
		return false, err
	}
	switch v := t.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	}
	return false, valueMismatch("bool", t)
}

func (r *jsonReader) readInt(bits int) (int64, error) {
	t, err := r.scalar("number")
	if err != nil {
		return 0, err
	}
	switch v := t.(type) {
	case json.Number:
		n, err := strconv.ParseInt(string(v), 10, bits)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an int%d", ErrTypeMismatch, v, bits)
		}
		return n, nil
	case nil:
		return 0, nil
	}
	return 0, valueMismatch("number", t)
}

func (r *jsonReader) ReadInt() (int32, error) {
	n, err := r.readInt(32)
	return int32(n), err
}

func (r *jsonReader) ReadLong() (int64, error) {
	return r.readInt(64)
}

func (r *jsonReader) readFloat(bits int) (float64, error) {
	t, err := r.scalar("number")
	if err != nil {
		return 0, err
	}
	switch v := t.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(v), bits)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a float%d", ErrTypeMismatch, v, bits)
		}
		return f, nil
	case nil:
		return 0, nil
	}
	return 0, valueMismatch("number", t)
}

func (r *jsonReader) ReadFloat() (float32, error) {
	f, err := r.readFloat(32)
	return float32(f), err
}

func (r *jsonReader) ReadDouble() (float64, error) {
	return r.readFloat(64)
}

func (r *jsonReader) readString(want string) (string, bool, error) {
	t, err := r.scalar(want)
	if err != nil {
		return "", false, err
	}
	switch v := t.(type) {
	case string:
		return v, true, nil
	case nil:
		return "", false, nil
	}
	return "", false, valueMismatch(want, t)
}

func (r *jsonReader) ReadString() (string, error) {
	s, _, err := r.readString("string")
	return s, err
}

func (r *jsonReader) ReadBytes() ([]byte, error) {
	s, ok, err := r.readString("base64 string")
	if err != nil || !ok {
		return nil, err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return b, nil
}

func (r *jsonReader) ReadGUID() (uuid.UUID, error) {
	s, ok, err := r.readString("guid")
	if err != nil || !ok {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return id, nil
}

func (r *jsonReader) ReadTime() (time.Time, error) {
	s, ok, err := r.readString("timestamp")
	if err != nil || !ok {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	return t.UTC(), nil
}

func (r *jsonReader) ReadDynamic() (map[string]any, error) {
	if null, _ := r.ReadNull(); null {
		return nil, nil
	}
	if r.tok != TokenObject {
		return nil, mismatch("object", r.tok)
	}
	r.tok = TokenUnknown
	out := make(map[string]any)
	for r.dec.More() {
		if err := r.nextInside(); err != nil {
			return nil, err
		}
		if r.tok != TokenProperty {
			return nil, corrupted("expected property name, got %s", r.tok)
		}
		key := r.prop.Name
		if err := r.nextInside(); err != nil {
			return nil, err
		}
		v, err := r.dynamicValue()
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, r.nextInside()
}

func (r *jsonReader) dynamicValue() (any, error) {
	switch r.tok {
	case TokenObject:
		m, err := r.ReadDynamic()
		return m, err
	case TokenArray:
		r.tok = TokenUnknown
		out := make([]any, 0)
		for r.dec.More() {
			if err := r.nextInside(); err != nil {
				return nil, err
			}
			v, err := r.dynamicValue()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, r.nextInside()
	case TokenValue:
		r.tok = TokenUnknown
		if n, ok := r.raw.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			f, err := n.Float64()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
			}
			return f, nil
		}
		return r.raw, nil
	}
	return nil, corrupted("unexpected %s", r.tok)
}
