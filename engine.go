package codec

import (
	"fmt"
	"strconv"
)

// Field binds one property of T to its read and write functions.
type Field[T any] struct {
	ID PropertyID
	// Decode consumes the current value into v.
	Decode func(r Reader, v *T) error
	// Encode writes the property and its value, or nothing when the value
	// is absent.
	Encode func(w Writer, v *T) error
}

// Schema is a table-driven Serializer. Fields are encoded in declaration order.
type Schema[T any] struct {
	fields []Field[T]
	byID   map[uint32]int
	byName map[string]int
}

var _ Serializer[struct{}] = (*Schema[struct{}])(nil)

// NewSchema builds a schema from fields. Duplicate ids or names are a
// programming error and panic.
func NewSchema[T any](fields ...Field[T]) *Schema[T] {
	s := &Schema[T]{
		fields: fields,
		byID:   make(map[uint32]int, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.ID.IsZero() {
			panic(fmt.Sprintf("codec: field %d of %T has no property id", i, s))
		}
		if f.ID.ID != 0 {
			if _, dup := s.byID[f.ID.ID]; dup {
				panic(fmt.Sprintf("codec: duplicate property id %d in %T", f.ID.ID, s))
			}
			s.byID[f.ID.ID] = i
		}
		if f.ID.Name != "" {
			if _, dup := s.byName[f.ID.Name]; dup {
				panic(fmt.Sprintf("codec: duplicate property name %q in %T", f.ID.Name, s))
			}
			s.byName[f.ID.Name] = i
		}
	}
	return s
}

// lookup resolves a property address. A name wins when it matches directly;
// a name that is a canonical decimal number falls back to the numeric
// table, which is how text encodings carry properties that have no name.
// "01" or "+1" never resolve to id 1.
func (s *Schema[T]) lookup(id PropertyID) *Field[T] {
	if id.Name != "" {
		if i, ok := s.byName[id.Name]; ok {
			return &s.fields[i]
		}
		n, err := strconv.ParseUint(id.Name, 10, 32)
		if err != nil || strconv.FormatUint(n, 10) != id.Name {
			return nil
		}
		id.ID = uint32(n)
	}
	if i, ok := s.byID[id.ID]; ok && id.ID != 0 {
		return &s.fields[i]
	}
	return nil
}

type decodeState uint8

const (
	stateInit decodeState = iota
	stateCheckComplete
	stateFetchProperty
	stateConsumeField
	stateDone
	stateFaulted
)

// Decode runs the object decode state machine. It returns nil when the
// object carried no properties at all, known or unknown.
func (s *Schema[T]) Decode(r Reader) (*T, error) {
	var (
		v        T
		observed bool
		prop     PropertyID
		field    *Field[T]
		err      error
	)

	state := stateInit
	for {
		switch state {
		case stateInit:
			if err = r.BeginObject(); err != nil {
				state = stateFaulted
				continue
			}
			state = stateCheckComplete

		case stateCheckComplete:
			var more bool
			prop, field = PropertyID{}, nil
			if more, err = r.HasMoreProperties(); err != nil {
				state = stateFaulted
			} else if more {
				state = stateFetchProperty
			} else {
				state = stateDone
			}

		case stateFetchProperty:
			prop = r.PropertyID()
			observed = true
			field = s.lookup(prop)
			state = stateConsumeField

		case stateConsumeField:
			if field == nil {
				err = r.Skip()
			} else {
				prop = field.ID
				err = field.Decode(r, &v)
			}
			if err != nil {
				state = stateFaulted
				continue
			}
			state = stateCheckComplete

		case stateDone:
			if !observed {
				return nil, nil
			}
			return &v, nil

		case stateFaulted:
			if prop.IsZero() {
				return nil, err
			}
			return nil, &DecodeError{Property: prop, Err: err}
		}
	}
}

// Encode writes v as an object, emitting fields in declaration order.
func (s *Schema[T]) Encode(w Writer, v *T) error {
	if v == nil {
		return w.WriteNull()
	}
	if err := w.StartObject(); err != nil {
		return err
	}
	for i := range s.fields {
		if err := s.fields[i].Encode(w, v); err != nil {
			return fmt.Errorf("codec: encode %s: %w", s.fields[i].ID, err)
		}
	}
	return w.EndObject()
}
