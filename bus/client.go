package bus

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	codec "github.com/oy3o/bidstream"
)

// Wildcard matches every route.
const Wildcard = "*"

type binding struct {
	route   string
	deliver func(ctx context.Context, env *Envelope) error
}

// Client publishes entities as envelopes and dispatches received envelopes
// to typed handlers. Envelopes and payloads use the client's format.
type Client struct {
	transport Transport
	reg       *codec.Registry
	format    codec.Format
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	subMu      sync.Mutex // serializes transport subscriptions
	subscribed map[string]bool

	mu       sync.RWMutex
	bindings map[string][]*binding
}

// NewClient returns a client over transport. The envelope serializers are
// registered in reg. logger may be nil.
func NewClient(transport Transport, reg *codec.Registry, format codec.Format, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	Register(reg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		transport: transport,
		reg:       reg,
		format:    format,
		log:       logger.Named("bus"),
		ctx:       ctx,
		cancel:    cancel,
		bindings:  make(map[string][]*binding),

		subscribed: make(map[string]bool),
	}
}

func (c *Client) Registry() *codec.Registry { return c.reg }

// PublishEnvelope fills in the id and send time when unset and publishes env.
func (c *Client) PublishEnvelope(ctx context.Context, env *Envelope) error {
	if env.ID == uuid.Nil {
		env.ID = uuid.New()
	}
	if env.Sent.IsZero() {
		env.Sent = time.Now().UTC()
	}
	data, err := codec.Marshal(c.reg, env, c.format)
	if err != nil {
		return fmt.Errorf("bus: encode envelope: %w", err)
	}
	return c.transport.Publish(ctx, env.Topic, data)
}

// Publish encodes v and sends it on topic with the given route.
func Publish[T any](ctx context.Context, c *Client, topic, route string, v *T, headers ...Header) error {
	payload, err := codec.Marshal(c.reg, v, c.format)
	if err != nil {
		return fmt.Errorf("bus: encode %T: %w", v, err)
	}
	return c.PublishEnvelope(ctx, &Envelope{
		Topic:   topic,
		Route:   route,
		Headers: headers,
		Format:  c.format,
		Payload: payload,
	})
}

// Subscribe calls handler for every message on topic whose route matches.
// route is an exact route, Wildcard, or a "prefix.*" pattern. Messages that
// fail to decode are logged and dropped.
func Subscribe[T any](c *Client, topic, route string, handler func(ctx context.Context, v *T) error) error {
	return c.bind(topic, &binding{
		route: route,
		deliver: func(ctx context.Context, env *Envelope) error {
			v, err := codec.Unmarshal[T](c.reg, env.Payload, env.Format)
			if err != nil {
				return fmt.Errorf("decode %T: %w", v, err)
			}
			return handler(ctx, v)
		},
	})
}

// SubscribeEnvelope is Subscribe for handlers that need the raw envelope.
func (c *Client) SubscribeEnvelope(topic, route string, handler func(ctx context.Context, env *Envelope) error) error {
	return c.bind(topic, &binding{route: route, deliver: handler})
}

// bind adds b to topic and subscribes the transport on the topic's first
// successful binding. A failed subscription removes only b.
func (c *Client) bind(topic string, b *binding) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	c.mu.Lock()
	c.bindings[topic] = append(c.bindings[topic], b)
	c.mu.Unlock()

	if c.subscribed[topic] {
		return nil
	}
	if err := c.transport.Subscribe(topic, func(data []byte) { c.dispatch(topic, data) }); err != nil {
		c.unbind(topic, b)
		return fmt.Errorf("bus: subscribe %s: %w", topic, err)
	}
	c.subscribed[topic] = true
	return nil
}

func (c *Client) unbind(topic string, b *binding) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := make([]*binding, 0, len(c.bindings[topic]))
	for _, other := range c.bindings[topic] {
		if other != b {
			kept = append(kept, other)
		}
	}
	if len(kept) == 0 {
		delete(c.bindings, topic)
		return
	}
	c.bindings[topic] = kept
}

func (c *Client) dispatch(topic string, data []byte) {
	env, err := codec.Unmarshal[Envelope](c.reg, data, c.format)
	if err != nil || env == nil {
		c.log.Warn("dropping undecodable envelope", zap.String("topic", topic), zap.Int("size", len(data)), zap.Error(err))
		return
	}

	c.mu.RLock()
	bindings := c.bindings[topic]
	c.mu.RUnlock()

	for _, b := range bindings {
		if !MatchRoute(b.route, env.Route) {
			continue
		}
		if err := b.deliver(c.ctx, env); err != nil {
			c.log.Warn("message handler failed",
				zap.String("topic", topic),
				zap.String("route", env.Route),
				zap.Stringer("id", env.ID),
				zap.Error(err),
			)
		}
	}
}

// Close stops delivery and closes the transport.
func (c *Client) Close() error {
	c.cancel()
	return c.transport.Close()
}

// MatchRoute reports whether route satisfies pattern.
func MatchRoute(pattern, route string) bool {
	switch {
	case pattern == Wildcard:
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(route, pattern[:len(pattern)-1])
	}
	return pattern == route
}
