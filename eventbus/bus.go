// Package eventbus delivers domain events to in-process handlers.
//
// Delivery is synchronous on the emitting goroutine: Emit returns once every
// handler registered for the event name has been attempted. The bus keeps
// nothing durable and never crosses process boundaries; fleet-wide fan-out is
// the job of package pubsub.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/toky-team/toky-back-sub001/domain"
)

const tracerName = "github.com/toky-team/toky-back-sub001/eventbus"

// ErrHandlerFailed wraps every handler failure reported by Emit.
var ErrHandlerFailed = errors.New("event handler failed")

// Handler reacts to one event. A returned error or a panic is contained to the
// handler that produced it.
type Handler func(ctx context.Context, ev domain.Event) error

// Subscription identifies one registration returned by Subscribe.
type Subscription struct {
	eventName string
	id        uint64
}

func (s Subscription) EventName() string { return s.eventName }

type registration struct {
	id      uint64
	handler Handler
}

// Bus is an in-memory publish/subscribe mechanism keyed by event name.
type Bus struct {
	logger *log.Logger
	tracer trace.Tracer

	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]registration
}

func New(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Bus{
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		handlers: make(map[string][]registration),
	}
}

// Subscribe registers handler for events named eventName. Registrations are
// additive and run in the order they were made.
func (b *Bus) Subscribe(eventName string, handler Handler) Subscription {
	if handler == nil {
		panic("eventbus: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[eventName] = append(b.handlers[eventName], registration{id: b.nextID, handler: handler})
	return Subscription{eventName: eventName, id: b.nextID}
}

// Unsubscribe removes exactly the given registration. Unknown or already
// removed subscriptions are ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[sub.eventName]
	for i, r := range regs {
		if r.id != sub.id {
			continue
		}
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(b.handlers, sub.eventName)
		} else {
			b.handlers[sub.eventName] = next
		}
		return
	}
}

// Handlers reports how many handlers are registered for eventName.
func (b *Bus) Handlers(eventName string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventName])
}

// Emit runs every handler registered for the event's name. A failing handler
// is logged and does not stop later ones; the joined failures are returned
// after all handlers ran.
func (b *Bus) Emit(ctx context.Context, ev domain.Event) error {
	b.mu.RLock()
	regs := b.handlers[ev.EventName()]
	b.mu.RUnlock()

	ctx, span := b.tracer.Start(ctx, "eventbus.emit", trace.WithAttributes(
		attribute.String("event.name", ev.EventName()),
		attribute.String("event.id", ev.EventID()),
		attribute.Int("event.handlers", len(regs)),
	))
	defer span.End()

	if len(regs) == 0 {
		b.logger.WithField("event", ev.EventName()).Debug("no handlers registered")
		return nil
	}

	var errs []error
	for i, r := range regs {
		if err := b.invoke(ctx, r.handler, ev); err != nil {
			b.logger.WithError(err).WithFields(log.Fields{
				"event":         ev.EventName(),
				"event_id":      ev.EventID(),
				"aggregate_id":  ev.AggregateID(),
				"handler_index": i,
			}).Error("event handler failed")
			errs = append(errs, fmt.Errorf("%w: %s handler %d: %w", ErrHandlerFailed, ev.EventName(), i, err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		return err
	}
	return nil
}

// EmitAll emits events one after another on the caller's goroutine, which
// keeps their relative order. Every event is emitted even if an earlier one
// had failing handlers.
func (b *Bus) EmitAll(ctx context.Context, events ...domain.Event) error {
	var errs []error
	for _, ev := range events {
		if err := b.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) invoke(ctx context.Context, h Handler, ev domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, ev)
}
