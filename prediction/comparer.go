package prediction

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/eventbus"
)

// AnswerComparer grades bet answers when a match result is set and emits
// BetAnswerMatched for every correct one.
type AnswerComparer struct {
	repo   Repository
	logger *log.Logger
	now    func() time.Time

	bus *eventbus.Bus
	sub *eventbus.Subscription
}

func NewAnswerComparer(repo Repository, logger *log.Logger) *AnswerComparer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &AnswerComparer{repo: repo, logger: logger, now: time.Now}
}

func (c *AnswerComparer) Register(bus *eventbus.Bus) {
	c.Close()
	c.bus = bus
	sub := bus.Subscribe(domain.MatchResultSetEvent, c.Handle)
	c.sub = &sub
}

func (c *AnswerComparer) Close() {
	if c.bus != nil && c.sub != nil {
		c.bus.Unsubscribe(*c.sub)
	}
	c.sub = nil
}

func (c *AnswerComparer) Handle(ctx context.Context, ev domain.Event) error {
	set, ok := ev.(domain.MatchResultSet)
	if !ok {
		return fmt.Errorf("answer comparer: unexpected event %T", ev)
	}
	answers, err := c.repo.FindAnswersByMatch(ctx, set.AggregateID())
	if err != nil {
		return fmt.Errorf("load answers for %s: %w", set.AggregateID(), err)
	}
	res := domain.MatchResult{KUScore: set.KUScore, YUScore: set.YUScore}
	now := c.now()

	var (
		graded []*domain.BetAnswer
		events []domain.Event
	)
	for _, a := range answers {
		if a.Graded {
			continue
		}
		a.Grade(res, now)
		graded = append(graded, a)
		events = append(events, a.PullEvents()...)
	}
	if len(graded) == 0 {
		return nil
	}
	if err := c.repo.SaveAnswers(ctx, graded); err != nil {
		return fmt.Errorf("save graded answers for %s: %w", set.AggregateID(), err)
	}
	c.logger.WithFields(log.Fields{
		"match":   set.AggregateID(),
		"graded":  len(graded),
		"matched": len(events),
	}).Info("bet answers graded")
	if c.bus == nil {
		return nil
	}
	return c.bus.EmitAll(ctx, events...)
}
