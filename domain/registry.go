package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// DecodeFunc rebuilds a concrete event from its envelope fields and payload.
type DecodeFunc func(base EventBase, data []byte) (Event, error)

type payloadEvent interface {
	Event
	withBase(EventBase) Event
}

// PayloadDecoder returns a DecodeFunc for a concrete event type defined in this
// package.
func PayloadDecoder[E payloadEvent]() DecodeFunc {
	return func(base EventBase, data []byte) (Event, error) {
		var ev E
		if len(data) > 0 {
			if err := sonic.Unmarshal(data, &ev); err != nil {
				return nil, fmt.Errorf("decode %s payload: %w", base.name, err)
			}
		}
		return ev.withBase(base), nil
	}
}

// Envelope is the wire form of an event when it leaves the process.
type Envelope struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	AggregateID string    `json:"aggregateId"`
	UserID      string    `json:"userId,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
	Data        []byte    `json:"data,omitempty"`
}

// EventRegistry maps event names to their decoders.
type EventRegistry struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{decoders: make(map[string]DecodeFunc)}
}

// Register adds a decoder. Names are unique.
func (r *EventRegistry) Register(name string, fn DecodeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.decoders[name]; ok {
		return fmt.Errorf("event %q already registered", name)
	}
	r.decoders[name] = fn
	return nil
}

// Encode serialises an event into an envelope.
func (r *EventRegistry) Encode(ev Event) ([]byte, error) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.EventName(), err)
	}
	if string(data) == "{}" {
		data = nil
	}
	return sonic.Marshal(Envelope{
		ID:          ev.EventID(),
		Name:        ev.EventName(),
		AggregateID: ev.AggregateID(),
		UserID:      ev.UserID(),
		OccurredAt:  ev.OccurredAt(),
		Data:        data,
	})
}

// Decode parses an envelope produced by Encode.
func (r *EventRegistry) Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: event envelope: %v", ErrInvalidInput, err)
	}
	r.mu.RLock()
	fn, ok := r.decoders[env.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unregistered event %q", ErrInvalidInput, env.Name)
	}
	base := EventBase{
		id:          env.ID,
		name:        env.Name,
		aggregateID: env.AggregateID,
		userID:      env.UserID,
		occurredAt:  env.OccurredAt,
	}
	return fn(base, env.Data)
}

// DefaultEventRegistry knows every event defined in this package.
func DefaultEventRegistry() *EventRegistry {
	r := NewEventRegistry()
	for name, fn := range map[string]DecodeFunc{
		UserRegisteredEvent:    PayloadDecoder[UserRegistered](),
		ReferralCompletedEvent: PayloadDecoder[ReferralCompleted](),
		BetSharedEvent:         PayloadDecoder[BetShared](),
		AttendanceCheckedEvent: PayloadDecoder[AttendanceChecked](),
		BetAnswerMatchedEvent:  PayloadDecoder[BetAnswerMatched](),
		MatchResultSetEvent:    PayloadDecoder[MatchResultSet](),
		ScoreUpdatedEvent:      PayloadDecoder[ScoreUpdated](),
		LikeAddedEvent:         PayloadDecoder[LikeAdded](),
		CheerAddedEvent:        PayloadDecoder[CheerAdded](),
	} {
		_ = r.Register(name, fn)
	}
	return r
}
