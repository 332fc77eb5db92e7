package pubsub

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

// MemoryBroker is a single process Broker. Messages go through the same codec
// as the Redis broker so handlers see identical shapes.
type MemoryBroker struct {
	opts   Options
	logger *log.Logger

	mu     sync.RWMutex
	subs   map[string]*dispatcher
	closed bool
}

func NewMemoryBroker(opts Options, logger *log.Logger) *MemoryBroker {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &MemoryBroker{opts: opts.withDefaults(), logger: logger, subs: make(map[string]*dispatcher)}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, msg Message) error {
	payload, err := encode(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	d, ok := b.subs[channel]
	if !ok {
		return nil
	}
	decoded, err := decode(payload)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	if !d.offer(decoded) {
		b.logger.WithField("channel", channel).Warn("pubsub subscriber saturated, message dropped")
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("subscribe %s: nil handler", channel)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	d, ok := b.subs[channel]
	if !ok {
		d = newDispatcher(channel, b.opts, b.logger)
		b.subs[channel] = d
	}
	d.add(handler)
	return nil
}

func (b *MemoryBroker) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	d, ok := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()
	if ok {
		d.stop()
	}
	return nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*dispatcher)
	b.mu.Unlock()
	for _, d := range subs {
		d.stop()
	}
	return nil
}
