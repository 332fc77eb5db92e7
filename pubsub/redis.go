package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisBroker implements Broker on Redis PUBLISH/SUBSCRIBE. Each subscribed
// channel holds its own connection and worker.
type RedisBroker struct {
	client *redis.Client
	opts   Options
	logger *log.Logger

	mu     sync.Mutex
	subs   map[string]*redisSubscription
	closed bool
}

type redisSubscription struct {
	dispatcher *dispatcher
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewRedisBroker(client *redis.Client, opts Options, logger *log.Logger) *RedisBroker {
	if client == nil {
		panic("pubsub.NewRedisBroker: redis client is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &RedisBroker{
		client: client,
		opts:   opts.withDefaults(),
		logger: logger,
		subs:   make(map[string]*redisSubscription),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, msg Message) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	payload, err := encode(msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", ErrBrokerUnavailable, channel, err)
	}
	return nil
}

// Subscribe returns once Redis confirmed the subscription, so messages
// published afterwards are delivered.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("subscribe %s: nil handler", channel)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	if s, ok := b.subs[channel]; ok {
		s.dispatcher.add(handler)
		return nil
	}

	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("%w: subscribe %s: %v", ErrBrokerUnavailable, channel, err)
	}

	d := newDispatcher(channel, b.opts, b.logger)
	d.add(handler)
	loopCtx, cancel := context.WithCancel(context.Background())
	s := &redisSubscription{dispatcher: d, cancel: cancel, done: make(chan struct{})}
	b.subs[channel] = s
	go b.receive(loopCtx, channel, ps, s)

	b.logger.WithField("channel", channel).Debug("subscribed")
	return nil
}

func (b *RedisBroker) Unsubscribe(ctx context.Context, channel string) error {
	b.mu.Lock()
	s, ok := b.subs[channel]
	delete(b.subs, channel)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	b.stop(s)
	return nil
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*redisSubscription)
	b.mu.Unlock()

	for _, s := range subs {
		b.stop(s)
	}
	return nil
}

func (b *RedisBroker) stop(s *redisSubscription) {
	s.cancel()
	<-s.done
	s.dispatcher.stop()
}

// receive pumps messages into the dispatcher until the subscription is
// stopped. Dropped connections are redialled and resubscribed by go-redis
// itself; its health check pings detect half-open connections.
func (b *RedisBroker) receive(ctx context.Context, channel string, ps *redis.PubSub, s *redisSubscription) {
	defer close(s.done)
	defer ps.Close()
	b.pump(ctx, channel, ps.Channel(), s.dispatcher)
}

func (b *RedisBroker) pump(ctx context.Context, channel string, ch <-chan *redis.Message, d *dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg, err := decode(m.Payload)
			if err != nil {
				b.logger.WithError(err).WithField("channel", channel).Warn("dropping undecodable pubsub message")
				continue
			}
			if !d.offer(msg) {
				b.logger.WithField("channel", channel).Warn("pubsub subscriber saturated, message dropped")
			}
		}
	}
}
