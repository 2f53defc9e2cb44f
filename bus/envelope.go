package bus

import (
	"time"

	"github.com/google/uuid"

	codec "github.com/oy3o/bidstream"
)

// Header is one envelope metadata pair. Order is preserved.
type Header struct {
	Key   string
	Value string
}

// Envelope wraps one encoded entity for transport. The payload is opaque to
// the bus; Format says how to read it.
type Envelope struct {
	ID      uuid.UUID
	Topic   string
	Route   string
	Headers []Header
	Format  codec.Format
	Payload []byte
	Sent    time.Time
}

// Header returns the first value stored under key.
func (e *Envelope) Header(key string) (string, bool) {
	for _, h := range e.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Dynamic decodes a JSON payload without a registered type.
func (e *Envelope) Dynamic(reg *codec.Registry) (map[string]any, error) {
	r, err := codec.NewReader(codec.NewBytesReader(e.Payload), e.Format, reg)
	if err != nil {
		return nil, err
	}
	ok, err := r.Advance()
	if err != nil || !ok {
		return nil, err
	}
	return r.ReadDynamic()
}

var (
	HeaderSchema = codec.NewSchema(
		codec.String(1, "key", func(h *Header) *string { return &h.Key }),
		codec.String(2, "value", func(h *Header) *string { return &h.Value }),
	)

	EnvelopeSchema = codec.NewSchema(
		codec.GUID(1, "id", func(e *Envelope) *uuid.UUID { return &e.ID }),
		codec.String(2, "topic", func(e *Envelope) *string { return &e.Topic }),
		codec.String(3, "route", func(e *Envelope) *string { return &e.Route }),
		codec.Array(4, "headers", func(e *Envelope) *[]Header { return &e.Headers }),
		codec.Enum(5, "format", func(e *Envelope) *codec.Format { return &e.Format }),
		codec.Bytes(6, "payload", func(e *Envelope) *[]byte { return &e.Payload }),
		codec.Time(7, "sent", func(e *Envelope) *time.Time { return &e.Sent }),
	)
)

// Register installs the envelope serializers in reg.
func Register(reg *codec.Registry) {
	codec.Register[Header](reg, HeaderSchema)
	codec.Register[Envelope](reg, EnvelopeSchema)
}
