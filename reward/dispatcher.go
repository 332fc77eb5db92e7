// Package reward grants tickets in reaction to domain events.
package reward

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/eventbus"
)

// ErrMissingUser is returned for a rewarded event that carries no user id.
var ErrMissingUser = errors.New("rewarded event has no user")

// TicketGranter is the ledger collaborator that owns ticket balances.
type TicketGranter interface {
	IncrementTickets(ctx context.Context, userID string, amount int, reason string) error
}

// Dispatcher subscribes one handler per policy entry and turns matching events
// into ticket grants.
type Dispatcher struct {
	policy  *Policy
	granter TicketGranter
	deduper Deduper
	logger  *log.Logger

	bus  *eventbus.Bus
	subs []eventbus.Subscription
}

// NewDispatcher builds a dispatcher. A nil deduper disables duplicate
// protection, so a re-emitted event grants again.
func NewDispatcher(policy *Policy, granter TicketGranter, deduper Deduper, logger *log.Logger) *Dispatcher {
	if policy == nil {
		panic("reward.NewDispatcher: policy is nil")
	}
	if granter == nil {
		panic("reward.NewDispatcher: granter is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{policy: policy, granter: granter, deduper: deduper, logger: logger}
}

// Register subscribes the dispatcher to every rewarded event on bus.
func (d *Dispatcher) Register(bus *eventbus.Bus) {
	d.Close()
	d.bus = bus
	for _, name := range d.policy.EventNames() {
		d.subs = append(d.subs, bus.Subscribe(name, d.Handle))
	}
	d.logger.WithField("events", len(d.subs)).Info("reward dispatcher registered")
}

// Close removes the dispatcher's subscriptions.
func (d *Dispatcher) Close() {
	if d.bus == nil {
		return
	}
	for _, s := range d.subs {
		d.bus.Unsubscribe(s)
	}
	d.subs = nil
	d.bus = nil
}

// Handle grants the tickets mapped to ev. The grant is keyed by event name and
// aggregate id, so the same business occurrence is rewarded once even if the
// event is emitted again.
func (d *Dispatcher) Handle(ctx context.Context, ev domain.Event) error {
	rule, err := d.policy.Lookup(ev.EventName())
	if err != nil {
		return err
	}
	userID := ev.UserID()
	if userID == "" {
		return fmt.Errorf("%w: %s %s", ErrMissingUser, ev.EventName(), ev.AggregateID())
	}
	fields := log.Fields{
		"event":        ev.EventName(),
		"aggregate_id": ev.AggregateID(),
		"user":         userID,
	}

	key := idempotencyKey(ev)
	if d.deduper != nil {
		added, err := d.deduper.Add(ctx, userID, key)
		if err != nil {
			return fmt.Errorf("reward dedupe %s: %w", key, err)
		}
		if !added {
			d.logger.WithFields(fields).Warn("duplicate reward event ignored")
			return nil
		}
	}

	if err := d.granter.IncrementTickets(ctx, userID, rule.Amount, rule.Reason); err != nil {
		if d.deduper != nil {
			if rerr := d.deduper.Remove(context.WithoutCancel(ctx), userID, key); rerr != nil {
				d.logger.WithError(rerr).WithFields(fields).Error("reward dedupe rollback failed")
			}
		}
		return fmt.Errorf("grant %d tickets to %s: %w", rule.Amount, userID, err)
	}
	d.logger.WithFields(fields).WithField("amount", rule.Amount).Info("tickets granted")
	return nil
}

func idempotencyKey(ev domain.Event) string {
	return ev.EventName() + ":" + ev.AggregateID()
}
