package reward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/eventbus"
)

type grant struct {
	userID string
	amount int
	reason string
}

type fakeGranter struct {
	mu     sync.Mutex
	grants []grant
	err    error
}

func (f *fakeGranter) IncrementTickets(ctx context.Context, userID string, amount int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.grants = append(f.grants, grant{userID, amount, reason})
	return nil
}

func (f *fakeGranter) total(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, g := range f.grants {
		if g.userID == userID {
			n += g.amount
		}
	}
	return n
}

func newDeduper(t *testing.T) (*RedisDeduper, *redis.Client) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDeduper(client, time.Hour), client
}

func TestDispatcherGrantsMappedAmount(t *testing.T) {
	policy, _ := DefaultPolicy()
	granter := &fakeGranter{}
	bus := eventbus.New(nil)
	d := NewDispatcher(policy, granter, nil, nil)
	d.Register(bus)

	if err := bus.Emit(context.Background(), domain.NewUserRegistered("u1")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := bus.Emit(context.Background(), domain.NewReferralCompleted("u1", "u2")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got := granter.total("u1"); got != 8 {
		t.Fatalf("expected 8 tickets, got %d", got)
	}
	if granter.grants[0].reason != "signup bonus" {
		t.Fatalf("unexpected reason %q", granter.grants[0].reason)
	}
}

func TestDispatcherIgnoresUnmappedEvents(t *testing.T) {
	policy, _ := DefaultPolicy()
	granter := &fakeGranter{}
	bus := eventbus.New(nil)
	NewDispatcher(policy, granter, nil, nil).Register(bus)

	if n := bus.Handlers(domain.LikeAddedEvent); n != 0 {
		t.Fatalf("dispatcher must only subscribe to rewarded events, got %d", n)
	}
}

func TestDispatcherHandleUnmappedEventIsNotFound(t *testing.T) {
	policy, _ := NewPolicy(Entry{EventName: domain.BetSharedEvent, Rule: Rule{Amount: 1, Reason: "share"}})
	d := NewDispatcher(policy, &fakeGranter{}, nil, nil)
	if err := d.Handle(context.Background(), domain.NewUserRegistered("u1")); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestDispatcherDeduplicatesReplayedEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	policy, _ := DefaultPolicy()
	granter := &fakeGranter{}
	deduper, _ := newDeduper(t)
	bus := eventbus.New(logger)
	NewDispatcher(policy, granter, deduper, logger).Register(bus)

	ev := domain.NewAttendanceChecked("u1", "2025-09-26")
	for i := 0; i < 3; i++ {
		if err := bus.Emit(context.Background(), ev); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	// a new event for the same occurrence is also a duplicate
	if err := bus.Emit(context.Background(), domain.NewAttendanceChecked("u1", "2025-09-26")); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if got := granter.total("u1"); got != 1 {
		t.Fatalf("expected one grant, got %d tickets", got)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level != log.WarnLevel {
		t.Fatalf("expected duplicate warning, got %#v", entry)
	}
}

func TestDispatcherRollsBackDedupeKeyOnGrantFailure(t *testing.T) {
	policy, _ := DefaultPolicy()
	granter := &fakeGranter{err: errors.New("db down")}
	deduper, _ := newDeduper(t)
	d := NewDispatcher(policy, granter, deduper, nil)

	ev := domain.NewBetShared("u1", "m1")
	if err := d.Handle(context.Background(), ev); err == nil {
		t.Fatalf("expected grant failure")
	}
	granter.err = nil
	if err := d.Handle(context.Background(), ev); err != nil {
		t.Fatalf("retry should grant: %v", err)
	}
	if got := granter.total("u1"); got != 1 {
		t.Fatalf("expected retry to grant once, got %d", got)
	}
}

func TestDispatcherRequiresUser(t *testing.T) {
	policy, _ := NewPolicy(Entry{EventName: domain.BetAnswerMatchedEvent, Rule: Rule{Amount: 2, Reason: "hit"}})
	d := NewDispatcher(policy, &fakeGranter{}, nil, nil)
	ev := domain.BetAnswerMatched{EventBase: domain.NewEventBase(domain.BetAnswerMatchedEvent, "a1", "")}
	if err := d.Handle(context.Background(), ev); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

// Pulled events are drained, so flushing an aggregate twice cannot emit the
// same occurrence twice even without a deduper.
func TestDrainedEventsGrantOncePerOccurrence(t *testing.T) {
	policy, _ := DefaultPolicy()
	granter := &fakeGranter{}
	bus := eventbus.New(nil)
	NewDispatcher(policy, granter, nil, nil).Register(bus)

	answer := &domain.BetAnswer{ID: "a1", MatchID: "m1", UserID: "u1", Sport: domain.Football, Predicted: domain.KoreaWins}
	answer.Grade(domain.MatchResult{KUScore: 2, YUScore: 1}, time.Now())
	answer.Grade(domain.MatchResult{KUScore: 2, YUScore: 1}, time.Now())

	for i := 0; i < 2; i++ {
		if err := bus.EmitAll(context.Background(), answer.PullEvents()...); err != nil {
			t.Fatalf("flush: %v", err)
		}
	}
	if got := granter.total("u1"); got != 2 {
		t.Fatalf("expected a single 2 ticket grant, got %d", got)
	}
}

func TestDispatcherCloseUnsubscribes(t *testing.T) {
	policy, _ := DefaultPolicy()
	granter := &fakeGranter{}
	bus := eventbus.New(nil)
	d := NewDispatcher(policy, granter, nil, nil)
	d.Register(bus)
	d.Close()

	_ = bus.Emit(context.Background(), domain.NewUserRegistered("u1"))
	if got := granter.total("u1"); got != 0 {
		t.Fatalf("closed dispatcher granted %d tickets", got)
	}
}
