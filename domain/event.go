package domain

import "time"

// Event is an immutable record of something that happened inside an aggregate.
type Event interface {
	EventName() string
	EventID() string
	AggregateID() string
	UserID() string
	OccurredAt() time.Time
}

// EventBase carries the fields shared by every event. Concrete events embed it
// and add their own payload fields.
type EventBase struct {
	id          string
	name        string
	aggregateID string
	userID      string
	occurredAt  time.Time
}

// NewEventBase stamps a new event with a fresh id and the current UTC time.
func NewEventBase(name, aggregateID, userID string) EventBase {
	return EventBase{
		id:          NewID(),
		name:        name,
		aggregateID: aggregateID,
		userID:      userID,
		occurredAt:  time.Now().UTC(),
	}
}

func (e EventBase) EventName() string     { return e.name }
func (e EventBase) EventID() string       { return e.id }
func (e EventBase) AggregateID() string   { return e.aggregateID }
func (e EventBase) UserID() string        { return e.userID }
func (e EventBase) OccurredAt() time.Time { return e.occurredAt }

// AggregateRoot buffers the events recorded by an aggregate until they are
// pulled by the application service.
type AggregateRoot struct {
	events []Event
}

func (a *AggregateRoot) record(ev Event) {
	a.events = append(a.events, ev)
}

// PullEvents returns the recorded events and clears the buffer, so a second
// call returns nothing until new events are recorded.
func (a *AggregateRoot) PullEvents() []Event {
	evs := a.events
	a.events = nil
	return evs
}
