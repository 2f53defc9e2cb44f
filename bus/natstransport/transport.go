// Package natstransport implements bus.Transport over NATS core subjects.
package natstransport

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/oy3o/bidstream/bus"
)

// DefaultPrefix namespaces every subject used by the transport.
const DefaultPrefix = "bidstream"

// Transport publishes each topic on its own subject. With a queue group set,
// each message is delivered to one member of the group instead of all
// subscribers.
type Transport struct {
	conn   *nats.Conn
	prefix string
	queue  string

	mu   sync.Mutex
	subs []*nats.Subscription
}

var _ bus.Transport = (*Transport)(nil)

type Option func(*Transport)

func WithPrefix(prefix string) Option { return func(t *Transport) { t.prefix = prefix } }

func WithQueueGroup(group string) Option { return func(t *Transport) { t.queue = group } }

func New(conn *nats.Conn, opts ...Option) *Transport {
	t := &Transport{conn: conn, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.conn.Publish(Subject(t.prefix, topic), data)
}

func (t *Transport) Subscribe(topic string, handler func(data []byte)) error {
	subject := Subject(t.prefix, topic)
	cb := func(msg *nats.Msg) { handler(msg.Data) }

	var (
		sub *nats.Subscription
		err error
	)
	if t.queue != "" {
		sub, err = t.conn.QueueSubscribe(subject, t.queue, cb)
	} else {
		sub, err = t.conn.Subscribe(subject, cb)
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	return nil
}

// Close drains every subscription. The connection itself belongs to the caller.
func (t *Transport) Close() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subject joins the non-empty parts with dots.
func Subject(prefix string, parts ...string) string {
	out := make([]string, 0, len(parts)+1)
	for _, p := range append([]string{prefix}, parts...) {
		if p = strings.Trim(p, "."); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ".")
}
