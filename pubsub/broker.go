// Package pubsub fans structured messages out to every process instance
// subscribed to a channel.
package pubsub

import (
	"context"
	"errors"
	"time"
)

// ErrBrokerUnavailable wraps transport failures so callers can tell them
// apart from business errors and degrade.
var ErrBrokerUnavailable = errors.New("pubsub broker unavailable")

// ErrClosed is returned by a broker after Close.
var ErrClosed = errors.New("pubsub broker closed")

// Message is a flat, JSON serialisable payload.
type Message map[string]any

// Handler is invoked once per received message. The context carries the
// per-message processing budget.
type Handler func(ctx context.Context, msg Message)

// Broker is a best-effort, topic based broadcast. Publish does not wait for
// subscribers; ordering is kept within one channel only.
type Broker interface {
	Publish(ctx context.Context, channel string, msg Message) error
	// Subscribe adds handler to channel. Handlers on a channel are additive.
	Subscribe(ctx context.Context, channel string, handler Handler) error
	// Unsubscribe stops delivery to every handler of channel.
	Unsubscribe(ctx context.Context, channel string) error
	Close() error
}

// Options tune the subscriber side of a broker.
type Options struct {
	// Buffer is the number of received messages queued per channel.
	Buffer int
	// HandoffTimeout bounds how long the receive loop waits for queue space
	// before dropping a message.
	HandoffTimeout time.Duration
	// Budget bounds the time handlers may spend on one message.
	Budget time.Duration
}

func (o Options) withDefaults() Options {
	if o.Buffer <= 0 {
		o.Buffer = 256
	}
	if o.HandoffTimeout < 0 {
		o.HandoffTimeout = 0
	}
	if o.Budget <= 0 {
		o.Budget = 2 * time.Second
	}
	return o
}
