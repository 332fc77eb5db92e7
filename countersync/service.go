// Package countersync broadcasts counter snapshots between instances so every
// instance can refresh its local view after a write elsewhere.
package countersync

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/pubsub"
)

// Channel names carried on the broker.
const (
	ScoreChannel = "score"
	LikeChannel  = "like"
	CheerChannel = "cheer"
)

// Service publishes and receives snapshots of one counter kind on a fixed
// channel. Received payloads that fail the guard are logged and dropped.
type Service[T any] struct {
	channel string
	broker  pubsub.Broker
	encode  func(T) map[string]any
	guard   func(map[string]any) (T, error)
	logger  *log.Logger
}

func newService[T any](channel string, broker pubsub.Broker, encode func(T) map[string]any, guard func(map[string]any) (T, error), logger *log.Logger) *Service[T] {
	if broker == nil {
		panic("countersync: broker is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service[T]{channel: channel, broker: broker, encode: encode, guard: guard, logger: logger}
}

func NewScoreSync(broker pubsub.Broker, logger *log.Logger) *Service[domain.ScoreSnapshot] {
	return newService(ScoreChannel, broker, domain.ScoreSnapshot.Message, domain.ParseScoreSnapshot, logger)
}

func NewLikeSync(broker pubsub.Broker, logger *log.Logger) *Service[domain.LikeSnapshot] {
	return newService(LikeChannel, broker, domain.LikeSnapshot.Message, domain.ParseLikeSnapshot, logger)
}

func NewCheerSync(broker pubsub.Broker, logger *log.Logger) *Service[domain.CheerSnapshot] {
	return newService(CheerChannel, broker, domain.CheerSnapshot.Message, domain.ParseCheerSnapshot, logger)
}

func (s *Service[T]) Channel() string { return s.channel }

// Publish broadcasts snap. Broker failures are returned wrapped so the caller
// can decide to degrade.
func (s *Service[T]) Publish(ctx context.Context, snap T) error {
	if err := s.broker.Publish(ctx, s.channel, pubsub.Message(s.encode(snap))); err != nil {
		return fmt.Errorf("publish %s snapshot: %w", s.channel, err)
	}
	return nil
}

// Subscribe delivers every well formed snapshot on the channel to fn.
func (s *Service[T]) Subscribe(ctx context.Context, fn func(context.Context, T)) error {
	if fn == nil {
		return fmt.Errorf("subscribe %s: nil callback", s.channel)
	}
	return s.broker.Subscribe(ctx, s.channel, func(ctx context.Context, msg pubsub.Message) {
		snap, err := s.guard(msg)
		if err != nil {
			s.logger.WithError(err).WithField("channel", s.channel).Warn("dropping malformed counter snapshot")
			return
		}
		fn(ctx, snap)
	})
}

func (s *Service[T]) Unsubscribe(ctx context.Context) error {
	return s.broker.Unsubscribe(ctx, s.channel)
}
