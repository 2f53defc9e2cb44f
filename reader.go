package codec

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/constraints"
)

// Reader is a forward-only cursor over one encoded stream. A reader is bound
// to a single decode call and is not safe for concurrent use.
//
// Typed reads require the current token to be TokenValue with a matching
// subtype, otherwise they fail with ErrTypeMismatch. Each successful read
// consumes exactly one value.
type Reader interface {
	Format() Format
	Registry() *Registry

	// Token reports the classification of the current position.
	Token() Token
	// Advance moves to the next raw token. It returns false at the end of
	// the stream or of the enclosing container.
	Advance() (bool, error)
	// Skip consumes the current value, including any nested containers.
	Skip() error
	// ReadNull consumes the current value and returns true if it is null.
	// It returns false and consumes nothing otherwise.
	ReadNull() (bool, error)

	ReadBool() (bool, error)
	ReadInt() (int32, error)
	ReadLong() (int64, error)
	ReadFloat() (float32, error)
	ReadDouble() (float64, error)
	ReadString() (string, error)
	ReadBytes() ([]byte, error)
	ReadGUID() (uuid.UUID, error)
	ReadTime() (time.Time, error)

	// BeginObject enters the object at the current position.
	BeginObject() error
	// HasMoreProperties positions the cursor on the next property's value
	// and returns true, or consumes the end of the object and returns false.
	HasMoreProperties() (bool, error)
	// PropertyID returns the address of the property last reported by
	// HasMoreProperties.
	PropertyID() PropertyID

	// BeginArray enters the array at the current position.
	BeginArray() error
	// HasMoreElements positions the cursor on the next element and returns
	// true, or consumes the end of the array and returns false.
	HasMoreElements() (bool, error)

	// ReadDynamic reads the current object into an untyped map.
	ReadDynamic() (map[string]any, error)
}

// ReadObject decodes the object at the current position with the serializer
// registered for T. A null value yields nil.
func ReadObject[T any](r Reader) (*T, error) {
	if null, err := r.ReadNull(); err != nil || null {
		return nil, err
	}
	if tok := r.Token(); tok != TokenObject {
		return nil, mismatch("object", tok)
	}
	s, err := SerializerFor[T](r.Registry())
	if err != nil {
		return nil, err
	}
	return s.Decode(r)
}

// ReadArray decodes an array of registered objects. An empty array yields an
// empty, non-nil slice and null yields nil. Elements that are not objects
// are skipped; an empty object element yields T's zero value.
func ReadArray[T any](r Reader) ([]T, error) {
	s, err := SerializerFor[T](r.Registry())
	if err != nil {
		return nil, err
	}
	return ReadValues(r, func(r Reader) (T, bool, error) {
		var zero T
		if r.Token() != TokenObject {
			return zero, false, r.Skip()
		}
		v, err := s.Decode(r)
		if err != nil || v == nil {
			return zero, err == nil, err
		}
		return *v, true, nil
	})
}

// ReadValues reads an array element by element. read reports false to drop
// an element it consumed.
func ReadValues[E any](r Reader, read func(Reader) (E, bool, error)) ([]E, error) {
	if null, err := r.ReadNull(); err != nil || null {
		return nil, err
	}
	if err := r.BeginArray(); err != nil {
		return nil, err
	}
	out := make([]E, 0)
	for {
		more, err := r.HasMoreElements()
		if err != nil {
			return nil, err
		}
		if !more {
			return out, nil
		}
		v, keep, err := read(r)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, v)
		}
	}
}

// ReadStrings reads an array of strings.
func ReadStrings(r Reader) ([]string, error) {
	return ReadValues(r, func(r Reader) (string, bool, error) {
		s, err := r.ReadString()
		return s, true, err
	})
}

// ReadEnum reads an integer-backed enum.
func ReadEnum[E constraints.Integer](r Reader) (E, error) {
	v, err := r.ReadLong()
	return E(v), err
}
