package codec

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/constraints"
)

// Writer is a forward-only cursor that emits one encoded stream.
// Start and End calls must balance; an unbalanced call panics.
type Writer interface {
	Format() Format
	Registry() *Registry

	StartObject() error
	EndObject() error
	StartArray() error
	EndArray() error
	// WriteProperty announces the property whose value is written next.
	WriteProperty(id PropertyID) error

	WriteNull() error
	WriteBool(v bool) error
	WriteInt(v int32) error
	WriteLong(v int64) error
	WriteFloat(v float32) error
	WriteDouble(v float64) error
	WriteString(v string) error
	WriteBytes(v []byte) error
	WriteGUID(v uuid.UUID) error
	WriteTime(v time.Time) error

	// Flush pushes buffered bytes to the underlying stream.
	Flush() error
}

// WriteObject encodes v with the serializer registered for T. A nil v is
// written as null.
func WriteObject[T any](w Writer, v *T) error {
	if v == nil {
		return w.WriteNull()
	}
	s, err := SerializerFor[T](w.Registry())
	if err != nil {
		return err
	}
	return s.Encode(w, v)
}

// WriteArray encodes vs as an array of registered objects.
func WriteArray[T any](w Writer, vs []T) error {
	s, err := SerializerFor[T](w.Registry())
	if err != nil {
		return err
	}
	return WriteValues(w, vs, func(w Writer, v *T) error {
		return s.Encode(w, v)
	})
}

// WriteValues encodes vs as an array using write for each element.
func WriteValues[E any](w Writer, vs []E, write func(Writer, *E) error) error {
	if err := w.StartArray(); err != nil {
		return err
	}
	for i := range vs {
		if err := write(w, &vs[i]); err != nil {
			return err
		}
	}
	return w.EndArray()
}

// WriteStrings encodes an array of strings.
func WriteStrings(w Writer, vs []string) error {
	return WriteValues(w, vs, func(w Writer, s *string) error {
		return w.WriteString(*s)
	})
}

// WriteEnum writes an integer-backed enum.
func WriteEnum[E constraints.Integer](w Writer, v E) error {
	return w.WriteLong(int64(v))
}
