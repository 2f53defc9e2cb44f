package codec

import "strconv"

// PropertyID addresses a field in both encodings: ID for the binary backend,
// Name for the human-readable one. Zero ID or empty Name means unset.
type PropertyID struct {
	ID   uint32
	Name string
}

// Prop is shorthand for PropertyID{ID: id, Name: name}.
func Prop(id uint32, name string) PropertyID {
	return PropertyID{ID: id, Name: name}
}

// IsZero reports whether neither half of the address is set.
func (p PropertyID) IsZero() bool { return p.ID == 0 && p.Name == "" }

// Key returns the textual key used by text formats. A property without a
// name is keyed by its decimal id.
func (p PropertyID) Key() string {
	if p.Name != "" {
		return p.Name
	}
	return strconv.FormatUint(uint64(p.ID), 10)
}

func (p PropertyID) String() string {
	switch {
	case p.Name != "" && p.ID != 0:
		return p.Name + "(" + strconv.FormatUint(uint64(p.ID), 10) + ")"
	case p.Name != "":
		return p.Name
	case p.ID != 0:
		return "#" + strconv.FormatUint(uint64(p.ID), 10)
	}
	return "<unset>"
}

// Token classifies a reader's current position.
type Token uint8

const (
	TokenUnknown Token = iota
	TokenValue
	TokenObject
	TokenArray
	TokenProperty
	TokenEndOfStream
)

func (t Token) String() string {
	switch t {
	case TokenValue:
		return "value"
	case TokenObject:
		return "object"
	case TokenArray:
		return "array"
	case TokenProperty:
		return "property"
	case TokenEndOfStream:
		return "end-of-stream"
	}
	return "unknown"
}
