package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/toky-team/toky-back-sub001/domain"
)

// CounterStore persists the live counters, one row per sport and kind.
type CounterStore struct {
	db *gorm.DB
}

func NewCounterStore(db *gorm.DB) *CounterStore {
	return &CounterStore{db: db}
}

func (s *CounterStore) FindScore(ctx context.Context, sport domain.Sport) (*domain.Score, error) {
	var row ScoreRow
	if err := s.db.WithContext(ctx).Where("sport = ?", string(sport)).Take(&row).Error; err != nil {
		return nil, notFound(err, "score", sport)
	}
	return row.toDomain(), nil
}

func (s *CounterStore) SaveScore(ctx context.Context, score *domain.Score) error {
	return s.db.WithContext(ctx).Save(scoreToRow(score)).Error
}

func (s *CounterStore) FindLike(ctx context.Context, sport domain.Sport) (*domain.Like, error) {
	var row LikeRow
	if err := s.db.WithContext(ctx).Where("sport = ?", string(sport)).Take(&row).Error; err != nil {
		return nil, notFound(err, "like", sport)
	}
	return row.toDomain(), nil
}

func (s *CounterStore) SaveLike(ctx context.Context, like *domain.Like) error {
	return s.db.WithContext(ctx).Save(likeToRow(like)).Error
}

func (s *CounterStore) FindCheer(ctx context.Context, sport domain.Sport) (*domain.Cheer, error) {
	var row CheerRow
	if err := s.db.WithContext(ctx).Where("sport = ?", string(sport)).Take(&row).Error; err != nil {
		return nil, notFound(err, "cheer", sport)
	}
	return row.toDomain(), nil
}

func (s *CounterStore) SaveCheer(ctx context.Context, cheer *domain.Cheer) error {
	return s.db.WithContext(ctx).Save(cheerToRow(cheer)).Error
}

func notFound(err error, kind string, id any) error {
	if isNotFound(err) {
		return fmt.Errorf("%s %v: %w", kind, id, ErrNotFound)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
