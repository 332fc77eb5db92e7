// Package counters applies score, like and cheer mutations. Each write runs
// under a per-counter lock, then the recorded events go to the bus and the new
// snapshot to the other instances.
package counters

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/toky-team/toky-back-sub001/countersync"
	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/eventbus"
	"github.com/toky-team/toky-back-sub001/lock"
	"github.com/toky-team/toky-back-sub001/pubsub"
	"github.com/toky-team/toky-back-sub001/storage"
)

// Repository is the authoritative counter storage.
type Repository interface {
	FindScore(ctx context.Context, sport domain.Sport) (*domain.Score, error)
	SaveScore(ctx context.Context, score *domain.Score) error
	FindLike(ctx context.Context, sport domain.Sport) (*domain.Like, error)
	SaveLike(ctx context.Context, like *domain.Like) error
	FindCheer(ctx context.Context, sport domain.Sport) (*domain.Cheer, error)
	SaveCheer(ctx context.Context, cheer *domain.Cheer) error
}

type Deps struct {
	Repo        Repository
	Locker      lock.Locker
	LockOptions lock.Options
	Bus         *eventbus.Bus
	Broker      pubsub.Broker
	Logger      *log.Logger
}

type Service struct {
	repo     Repository
	locker   lock.Locker
	lockOpts lock.Options
	bus      *eventbus.Bus
	scores   *countersync.Service[domain.ScoreSnapshot]
	likes    *countersync.Service[domain.LikeSnapshot]
	cheers   *countersync.Service[domain.CheerSnapshot]
	logger   *log.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	if d.Repo == nil || d.Locker == nil || d.Bus == nil || d.Broker == nil {
		panic("counters.NewService: missing dependency")
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	if d.LockOptions.Logger == nil {
		d.LockOptions.Logger = d.Logger
	}
	return &Service{
		repo:     d.Repo,
		locker:   d.Locker,
		lockOpts: d.LockOptions,
		bus:      d.Bus,
		scores:   countersync.NewScoreSync(d.Broker, d.Logger),
		likes:    countersync.NewLikeSync(d.Broker, d.Logger),
		cheers:   countersync.NewCheerSync(d.Broker, d.Logger),
		logger:   d.Logger,
		now:      time.Now,
	}
}

func LockKey(kind string, sport domain.Sport) string {
	return fmt.Sprintf("counter:%s:%s", kind, sport)
}

func (s *Service) UpdateScore(ctx context.Context, sport domain.Sport, ku, yu int, status domain.MatchStatus) (domain.ScoreSnapshot, error) {
	if _, err := domain.ParseSport(string(sport)); err != nil {
		return domain.ScoreSnapshot{}, err
	}
	var (
		snap   domain.ScoreSnapshot
		events []domain.Event
	)
	err := lock.WithLock(ctx, s.locker, LockKey(countersync.ScoreChannel, sport), s.lockOpts, func(ctx context.Context) error {
		score, err := s.repo.FindScore(ctx, sport)
		if errors.Is(err, storage.ErrNotFound) {
			score, err = domain.NewScore(sport, s.now()), nil
		}
		if err != nil {
			return fmt.Errorf("load score: %w", err)
		}
		if err := score.Update(ku, yu, status, s.now()); err != nil {
			return err
		}
		if err := s.repo.SaveScore(ctx, score); err != nil {
			return fmt.Errorf("save score: %w", err)
		}
		snap, events = score.Snapshot(), score.PullEvents()
		return nil
	})
	if err != nil {
		return domain.ScoreSnapshot{}, err
	}
	s.afterWrite(ctx, countersync.ScoreChannel, sport, events, func() error { return s.scores.Publish(ctx, snap) })
	return snap, nil
}

func (s *Service) AddLike(ctx context.Context, sport domain.Sport, univ domain.University, count int, userID string) (domain.LikeSnapshot, error) {
	if _, err := domain.ParseSport(string(sport)); err != nil {
		return domain.LikeSnapshot{}, err
	}
	var (
		snap   domain.LikeSnapshot
		events []domain.Event
	)
	err := lock.WithLock(ctx, s.locker, LockKey(countersync.LikeChannel, sport), s.lockOpts, func(ctx context.Context) error {
		like, err := s.repo.FindLike(ctx, sport)
		if errors.Is(err, storage.ErrNotFound) {
			like, err = domain.NewLike(sport, s.now()), nil
		}
		if err != nil {
			return fmt.Errorf("load like: %w", err)
		}
		if err := like.Add(univ, count, userID, s.now()); err != nil {
			return err
		}
		if err := s.repo.SaveLike(ctx, like); err != nil {
			return fmt.Errorf("save like: %w", err)
		}
		snap, events = like.Snapshot(), like.PullEvents()
		return nil
	})
	if err != nil {
		return domain.LikeSnapshot{}, err
	}
	s.afterWrite(ctx, countersync.LikeChannel, sport, events, func() error { return s.likes.Publish(ctx, snap) })
	return snap, nil
}

func (s *Service) AddCheer(ctx context.Context, sport domain.Sport, univ domain.University, userID string) (domain.CheerSnapshot, error) {
	if _, err := domain.ParseSport(string(sport)); err != nil {
		return domain.CheerSnapshot{}, err
	}
	var (
		snap   domain.CheerSnapshot
		events []domain.Event
	)
	err := lock.WithLock(ctx, s.locker, LockKey(countersync.CheerChannel, sport), s.lockOpts, func(ctx context.Context) error {
		cheer, err := s.repo.FindCheer(ctx, sport)
		if errors.Is(err, storage.ErrNotFound) {
			cheer, err = domain.NewCheer(sport, s.now()), nil
		}
		if err != nil {
			return fmt.Errorf("load cheer: %w", err)
		}
		if err := cheer.Add(univ, userID, s.now()); err != nil {
			return err
		}
		if err := s.repo.SaveCheer(ctx, cheer); err != nil {
			return fmt.Errorf("save cheer: %w", err)
		}
		snap, events = cheer.Snapshot(), cheer.PullEvents()
		return nil
	})
	if err != nil {
		return domain.CheerSnapshot{}, err
	}
	s.afterWrite(ctx, countersync.CheerChannel, sport, events, func() error { return s.cheers.Publish(ctx, snap) })
	return snap, nil
}

// afterWrite runs once the authoritative write committed. Neither handler
// failures nor an unreachable broker undo it; both are logged.
func (s *Service) afterWrite(ctx context.Context, kind string, sport domain.Sport, events []domain.Event, publish func() error) {
	entry := s.logger.WithFields(log.Fields{"channel": kind, "sport": sport})
	if err := s.bus.EmitAll(ctx, events...); err != nil {
		entry.WithError(err).Error("counter event handlers failed")
	}
	if err := publish(); err != nil {
		entry.WithError(err).Warn("counter snapshot not broadcast")
	}
}
