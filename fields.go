package codec

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/constraints"
)

// scalar builds a field that is always written.
func scalar[T, V any](id PropertyID, get func(*T) *V, read func(Reader) (V, error), write func(Writer, V) error) Field[T] {
	return Field[T]{
		ID: id,
		Decode: func(r Reader, v *T) error {
			x, err := read(r)
			if err != nil {
				return err
			}
			*get(v) = x
			return nil
		},
		Encode: func(w Writer, v *T) error {
			if err := w.WriteProperty(id); err != nil {
				return err
			}
			return write(w, *get(v))
		},
	}
}

func String[T any](id uint32, name string, get func(*T) *string) Field[T] {
	return scalar(Prop(id, name), get, Reader.ReadString, Writer.WriteString)
}

func Bool[T any](id uint32, name string, get func(*T) *bool) Field[T] {
	return scalar(Prop(id, name), get, Reader.ReadBool, Writer.WriteBool)
}

func Int32[T any](id uint32, name string, get func(*T) *int32) Field[T] {
	return scalar(Prop(id, name), get, Reader.ReadInt, Writer.WriteInt)
}

func Int64[T any](id uint32, name string, get func(*T) *int64) Field[T] {
	return scalar(Prop(id, name), get, Reader.ReadLong, Writer.WriteLong)
}

func Float32[T any](id uint32, name string, get func(*T) *float32) Field[T] {
	return scalar(Prop(id, name), get, Reader.ReadFloat, Writer.WriteFloat)
}

func Float64[T any](id uint32, name string, get func(*T) *float64) Field[T] {
	return scalar(Prop(id, name), get, Reader.ReadDouble, Writer.WriteDouble)
}

func GUID[T any](id uint32, name string, get func(*T) *uuid.UUID) Field[T] {
	return scalar(Prop(id, name), get, Reader.ReadGUID, Writer.WriteGUID)
}

// Enum stores an integer-backed enum as a signed integer.
func Enum[T any, E constraints.Integer](id uint32, name string, get func(*T) *E) Field[T] {
	return scalar(Prop(id, name), get, ReadEnum[E], WriteEnum[E])
}

// Bytes omits nil slices.
func Bytes[T any](id uint32, name string, get func(*T) *[]byte) Field[T] {
	f := scalar(Prop(id, name), get, Reader.ReadBytes, Writer.WriteBytes)
	encode := f.Encode
	f.Encode = func(w Writer, v *T) error {
		if *get(v) == nil {
			return nil
		}
		return encode(w, v)
	}
	return f
}

// Time omits the zero time.
func Time[T any](id uint32, name string, get func(*T) *time.Time) Field[T] {
	f := scalar(Prop(id, name), get, Reader.ReadTime, Writer.WriteTime)
	encode := f.Encode
	f.Encode = func(w Writer, v *T) error {
		if get(v).IsZero() {
			return nil
		}
		return encode(w, v)
	}
	return f
}

// Object binds a nested registered entity. Nil pointers are omitted.
func Object[T, U any](id uint32, name string, get func(*T) **U) Field[T] {
	prop := Prop(id, name)
	return Field[T]{
		ID: prop,
		Decode: func(r Reader, v *T) error {
			u, err := ReadObject[U](r)
			if err != nil {
				return err
			}
			*get(v) = u
			return nil
		},
		Encode: func(w Writer, v *T) error {
			u := *get(v)
			if u == nil {
				return nil
			}
			if err := w.WriteProperty(prop); err != nil {
				return err
			}
			return WriteObject(w, u)
		},
	}
}

// Array binds a slice of registered entities. A nil slice is omitted and an
// empty one is written, so the two survive a round trip.
func Array[T, U any](id uint32, name string, get func(*T) *[]U) Field[T] {
	return slice(Prop(id, name), get, ReadArray[U], WriteArray[U])
}

// Strings binds a slice of strings with the same absent and empty rules as Array.
func Strings[T any](id uint32, name string, get func(*T) *[]string) Field[T] {
	return slice(Prop(id, name), get, ReadStrings, WriteStrings)
}

func slice[T, E any](prop PropertyID, get func(*T) *[]E, read func(Reader) ([]E, error), write func(Writer, []E) error) Field[T] {
	return Field[T]{
		ID: prop,
		Decode: func(r Reader, v *T) error {
			vs, err := read(r)
			if err != nil {
				return err
			}
			*get(v) = vs
			return nil
		},
		Encode: func(w Writer, v *T) error {
			vs := *get(v)
			if vs == nil {
				return nil
			}
			if err := w.WriteProperty(prop); err != nil {
				return err
			}
			return write(w, vs)
		},
	}
}
