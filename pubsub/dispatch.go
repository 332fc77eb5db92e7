package pubsub

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// dispatcher runs the handlers of one channel on a single worker so messages
// keep their channel order while the receive loop never blocks on handlers.
type dispatcher struct {
	channel string
	opts    Options
	logger  *log.Logger

	mu       sync.RWMutex
	handlers []Handler

	queue chan Message
	done  chan struct{}
	once  sync.Once
}

func newDispatcher(channel string, opts Options, logger *log.Logger) *dispatcher {
	d := &dispatcher{
		channel: channel,
		opts:    opts,
		logger:  logger,
		queue:   make(chan Message, opts.Buffer),
		done:    make(chan struct{}),
	}
	go d.worker()
	return d
}

func (d *dispatcher) add(h Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.queue) })
	<-d.done
}

// offer hands msg to the worker. It returns false when the queue stayed full
// for the whole handoff timeout or the dispatcher is stopping.
func (d *dispatcher) offer(msg Message) bool {
	if ok, closed := trySendNonBlocking(d.queue, msg); closed {
		return false
	} else if ok {
		return true
	}
	if d.opts.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(d.opts.HandoffTimeout)
	defer timer.Stop()
	ok, _ := sendWithTimer(d.queue, msg, timer.C)
	return ok
}

func (d *dispatcher) worker() {
	defer close(d.done)
	for msg := range d.queue {
		d.mu.RLock()
		handlers := append([]Handler(nil), d.handlers...)
		d.mu.RUnlock()
		for _, h := range handlers {
			d.run(h, msg)
		}
	}
}

func (d *dispatcher) run(h Handler, msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Budget)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			d.logger.WithField("channel", d.channel).Errorf("pubsub handler panic: %v", r)
		}
	}()
	start := time.Now()
	h(ctx, msg)
	if elapsed := time.Since(start); elapsed > d.opts.Budget {
		d.logger.WithFields(log.Fields{
			"channel":    d.channel,
			"elapsed_ms": float64(elapsed) / float64(time.Millisecond),
		}).Warn("pubsub handler exceeded processing budget")
	}
}

func trySendNonBlocking(ch chan Message, msg Message) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- msg:
		return true, false
	default:
		return false, false
	}
}

func sendWithTimer(ch chan Message, msg Message, timer <-chan time.Time) (ok bool, closed bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			closed = true
		}
	}()

	select {
	case ch <- msg:
		return true, false
	case <-timer:
		return false, false
	}
}
