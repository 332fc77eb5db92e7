// Package prediction settles matches and grades the bets placed on them.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/eventbus"
	"github.com/toky-team/toky-back-sub001/lock"
	"github.com/toky-team/toky-back-sub001/storage"
)

// Repository is the match and bet answer storage.
type Repository interface {
	FindMatch(ctx context.Context, id string) (*domain.Match, error)
	SaveMatch(ctx context.Context, m *domain.Match) error
	SaveAnswer(ctx context.Context, a *domain.BetAnswer) error
	FindAnswer(ctx context.Context, matchID, userID string) (*domain.BetAnswer, error)
	FindAnswersByMatch(ctx context.Context, matchID string) ([]*domain.BetAnswer, error)
	SaveAnswers(ctx context.Context, answers []*domain.BetAnswer) error
}

var ErrMatchNotFound = errors.New("match not found")

type Deps struct {
	Repo        Repository
	Bus         *eventbus.Bus
	Locker      lock.Locker
	LockOptions lock.Options
	IDs         domain.IDGenerator
	Logger      *log.Logger
}

type Service struct {
	repo     Repository
	bus      *eventbus.Bus
	locker   lock.Locker
	lockOpts lock.Options
	ids      domain.IDGenerator
	logger   *log.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	if d.Repo == nil || d.Bus == nil || d.Locker == nil {
		panic("prediction.NewService: missing dependency")
	}
	if d.IDs == nil {
		d.IDs = domain.UUIDGenerator{}
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.LockOptions.Logger == nil {
		d.LockOptions.Logger = d.Logger
	}
	return &Service{
		repo:     d.Repo,
		bus:      d.Bus,
		locker:   d.Locker,
		lockOpts: d.LockOptions,
		ids:      d.IDs,
		logger:   d.Logger,
		now:      time.Now,
	}
}

// LockKey names the lock guarding writes to one match and its answers.
func LockKey(matchID string) string {
	return "match:" + matchID
}

func (s *Service) CreateMatch(ctx context.Context, sport domain.Sport) (*domain.Match, error) {
	if _, err := domain.ParseSport(string(sport)); err != nil {
		return nil, err
	}
	m := domain.NewMatch(s.ids.NewID(), sport)
	if err := s.repo.SaveMatch(ctx, m); err != nil {
		return nil, fmt.Errorf("save match: %w", err)
	}
	return m, nil
}

// PlaceBet records a user's prediction on an unsettled match. A user holds
// one answer per match; betting again replaces the prediction.
func (s *Service) PlaceBet(ctx context.Context, matchID, userID string, predicted domain.Outcome) (*domain.BetAnswer, error) {
	var a *domain.BetAnswer
	err := lock.WithLock(ctx, s.locker, LockKey(matchID), s.lockOpts, func(ctx context.Context) error {
		m, err := s.findMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m.Result != nil {
			return domain.ErrMatchSettled
		}
		id := s.ids.NewID()
		prev, err := s.repo.FindAnswer(ctx, m.ID, userID)
		switch {
		case err == nil:
			id = prev.ID
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("find bet answer: %w", err)
		}
		answer, err := domain.NewBetAnswer(id, m.ID, userID, m.Sport, predicted)
		if err != nil {
			return err
		}
		if err := s.repo.SaveAnswer(ctx, answer); err != nil {
			return fmt.Errorf("save bet answer: %w", err)
		}
		a = answer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ShareBet announces that a user shared their prediction for a match.
func (s *Service) ShareBet(ctx context.Context, matchID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if _, err := s.findMatch(ctx, matchID); err != nil {
		return err
	}
	return s.bus.Emit(ctx, domain.NewBetShared(userID, matchID))
}

// SetMatchResult settles the match and emits MatchResultSet. Repeating the
// same result is accepted and emits nothing. The match is read and saved
// under its lock; only one of several conflicting results is accepted.
func (s *Service) SetMatchResult(ctx context.Context, matchID string, res domain.MatchResult) (*domain.Match, error) {
	var (
		m      *domain.Match
		events []domain.Event
	)
	err := lock.WithLock(ctx, s.locker, LockKey(matchID), s.lockOpts, func(ctx context.Context) error {
		found, err := s.findMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if err := found.SetResult(res, s.now()); err != nil {
			return err
		}
		pending := found.PullEvents()
		if len(pending) > 0 {
			if err := s.repo.SaveMatch(ctx, found); err != nil {
				return fmt.Errorf("save match: %w", err)
			}
		}
		m, events = found, pending
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return m, nil
	}
	if err := s.bus.EmitAll(ctx, events...); err != nil {
		s.logger.WithError(err).WithField("match", m.ID).Error("match result handlers failed")
	}
	return m, nil
}

func (s *Service) findMatch(ctx context.Context, id string) (*domain.Match, error) {
	m, err := s.repo.FindMatch(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return m, err
}
