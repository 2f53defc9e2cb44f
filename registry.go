package codec

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
)

// typeKey is a zero-size, per-type map key. Distinct instantiations compare
// unequal, so lookups need no reflection.
type typeKey[T any] struct{}

// Registry maps entity types to their serializers. It is populated during
// bootstrap and only read afterwards; reads are lock-free.
type Registry struct {
	serializers *xsync.Map[any, any]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{serializers: xsync.NewMap[any, any]()}
}

// Register installs s as the serializer for T. Registering a type twice is a
// no-op that keeps the first serializer; the return value reports whether s
// was installed.
func Register[T any](reg *Registry, s Serializer[T]) bool {
	_, loaded := reg.serializers.LoadOrStore(typeKey[T]{}, s)
	return !loaded
}

// SerializerFor returns the serializer registered for T.
func SerializerFor[T any](reg *Registry) (Serializer[T], error) {
	if reg == nil {
		return nil, fmt.Errorf("%w: %T (nil registry)", ErrUnregisteredType, *new(T))
	}
	v, ok := reg.serializers.Load(typeKey[T]{})
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnregisteredType, *new(T))
	}
	return v.(Serializer[T]), nil
}

// IsRegistered reports whether T has a serializer.
func IsRegistered[T any](reg *Registry) bool {
	_, ok := reg.serializers.Load(typeKey[T]{})
	return ok
}

// Len returns the number of registered types.
func (r *Registry) Len() int { return r.serializers.Size() }
