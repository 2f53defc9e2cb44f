// Package codec is a streaming object codec with two interchangeable
// encodings of the same schema: a JSON backend keyed by property name and a
// compact binary backend keyed by numeric property id.
//
// A process builds one Registry at startup, registers a Serializer per
// entity type, and passes the registry to every reader and writer. Entity
// serializers are usually declared as a Schema: a table of fields driven by
// a shared decode engine that skips unknown properties, so old readers
// tolerate new writers and the reverse.
package codec

// Serializer converts one entity type to and from a cursor. Implementations
// hold no per-call state.
//
// Decode is positioned on an object token. It returns nil, nil when the
// object carried no properties.
type Serializer[T any] interface {
	Decode(r Reader) (*T, error)
	Encode(w Writer, v *T) error
}
