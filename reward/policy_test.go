package reward

import (
	"errors"
	"testing"

	"github.com/toky-team/toky-back-sub001/domain"
)

func TestNewPolicyRejectsDuplicateEventName(t *testing.T) {
	_, err := NewPolicy(
		Entry{EventName: domain.BetSharedEvent, Rule: Rule{Amount: 1, Reason: "share"}},
		Entry{EventName: domain.BetSharedEvent, Rule: Rule{Amount: 2, Reason: "share again"}},
	)
	if !errors.Is(err, ErrDuplicateRule) {
		t.Fatalf("expected ErrDuplicateRule, got %v", err)
	}
}

func TestNewPolicyRejectsInvalidRules(t *testing.T) {
	if _, err := NewPolicy(Entry{Rule: Rule{Amount: 1}}); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for empty name, got %v", err)
	}
	if _, err := NewPolicy(Entry{EventName: "x", Rule: Rule{Amount: 0}}); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for zero amount, got %v", err)
	}
}

func TestPolicyLookup(t *testing.T) {
	p, err := DefaultPolicy()
	if err != nil {
		t.Fatalf("default policy: %v", err)
	}
	rule, err := p.Lookup(domain.UserRegisteredEvent)
	if err != nil || rule.Amount != 5 {
		t.Fatalf("Lookup = %+v, %v", rule, err)
	}
	if _, err := p.Lookup(domain.LikeAddedEvent); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
	if _, err := p.Lookup("unknown.event"); errors.Is(err, ErrDuplicateRule) || err == nil {
		t.Fatalf("not found must be distinct from duplicate, got %v", err)
	}
}
