// Package bus carries encoded entities between processes. A Transport moves
// opaque bytes per topic; the Client wraps them in envelopes and dispatches
// by route to typed handlers.
package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by a transport after Close.
var ErrClosed = errors.New("bus: transport closed")

// Transport delivers byte messages by topic.
type Transport interface {
	// Publish sends data to every subscriber of topic. data must not be
	// modified after the call.
	Publish(ctx context.Context, topic string, data []byte) error
	// Subscribe registers handler for messages on topic. Handlers may be
	// called concurrently.
	Subscribe(topic string, handler func(data []byte)) error
	Close() error
}

// MemoryTransport delivers synchronously within the process.
type MemoryTransport struct {
	mu       sync.RWMutex
	handlers map[string][]func([]byte)
	closed   bool
}

var _ Transport = (*MemoryTransport)(nil)

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{handlers: make(map[string][]func([]byte))}
}

func (t *MemoryTransport) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrClosed
	}
	handlers := t.handlers[topic]
	t.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
	return nil
}

func (t *MemoryTransport) Subscribe(topic string, handler func([]byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.handlers[topic] = append(t.handlers[topic], handler)
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.handlers = nil
	return nil
}
