package reward

import (
	"errors"
	"fmt"
	"sort"

	"github.com/toky-team/toky-back-sub001/domain"
)

var (
	// ErrDuplicateRule is a configuration error: one event name, one rule.
	ErrDuplicateRule = errors.New("duplicate reward rule")
	// ErrRuleNotFound is returned when an event name has no rule.
	ErrRuleNotFound = errors.New("reward rule not found")
	ErrInvalidRule  = errors.New("invalid reward rule")
)

// Rule says how many tickets an event grants and why.
type Rule struct {
	Amount int
	Reason string
}

// Entry binds a rule to an event name.
type Entry struct {
	EventName string
	Rule
}

// Policy is the immutable event name to reward table. Build it once at
// startup with NewPolicy and pass it to the dispatcher.
type Policy struct {
	rules map[string]Rule
}

func NewPolicy(entries ...Entry) (*Policy, error) {
	rules := make(map[string]Rule, len(entries))
	for _, e := range entries {
		if e.EventName == "" {
			return nil, fmt.Errorf("%w: empty event name", ErrInvalidRule)
		}
		if e.Amount <= 0 {
			return nil, fmt.Errorf("%w: %s grants %d tickets", ErrInvalidRule, e.EventName, e.Amount)
		}
		if _, ok := rules[e.EventName]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, e.EventName)
		}
		rules[e.EventName] = e.Rule
	}
	return &Policy{rules: rules}, nil
}

// DefaultPolicy is the ticket table used in production.
func DefaultPolicy() (*Policy, error) {
	return NewPolicy(
		Entry{EventName: domain.UserRegisteredEvent, Rule: Rule{Amount: 5, Reason: "signup bonus"}},
		Entry{EventName: domain.ReferralCompletedEvent, Rule: Rule{Amount: 3, Reason: "friend invited"}},
		Entry{EventName: domain.BetSharedEvent, Rule: Rule{Amount: 1, Reason: "prediction shared"}},
		Entry{EventName: domain.AttendanceCheckedEvent, Rule: Rule{Amount: 1, Reason: "daily attendance"}},
		Entry{EventName: domain.BetAnswerMatchedEvent, Rule: Rule{Amount: 2, Reason: "correct prediction"}},
	)
}

func (p *Policy) Lookup(eventName string) (Rule, error) {
	r, ok := p.rules[eventName]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, eventName)
	}
	return r, nil
}

// EventNames returns the rewarded event names in sorted order.
func (p *Policy) EventNames() []string {
	names := make([]string, 0, len(p.rules))
	for name := range p.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
