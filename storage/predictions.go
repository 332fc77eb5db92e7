package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/toky-team/toky-back-sub001/domain"
)

// PredictionStore persists matches and the bet answers placed on them.
type PredictionStore struct {
	db *gorm.DB
}

func NewPredictionStore(db *gorm.DB) *PredictionStore {
	return &PredictionStore{db: db}
}

func (s *PredictionStore) FindMatch(ctx context.Context, id string) (*domain.Match, error) {
	var row MatchRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, notFound(err, "match", id)
	}
	return row.toDomain(), nil
}

func (s *PredictionStore) SaveMatch(ctx context.Context, m *domain.Match) error {
	return s.db.WithContext(ctx).Save(matchToRow(m)).Error
}

func (s *PredictionStore) SaveAnswer(ctx context.Context, a *domain.BetAnswer) error {
	return s.db.WithContext(ctx).Save(answerToRow(a)).Error
}

func (s *PredictionStore) FindAnswer(ctx context.Context, matchID, userID string) (*domain.BetAnswer, error) {
	var row BetAnswerRow
	if err := s.db.WithContext(ctx).Where("match_id = ? AND user_id = ?", matchID, userID).Take(&row).Error; err != nil {
		return nil, notFound(err, "bet answer", matchID+"/"+userID)
	}
	return row.toDomain(), nil
}

func (s *PredictionStore) FindAnswersByMatch(ctx context.Context, matchID string) ([]*domain.BetAnswer, error) {
	var rows []BetAnswerRow
	if err := s.db.WithContext(ctx).Where("match_id = ?", matchID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	answers := make([]*domain.BetAnswer, 0, len(rows))
	for _, r := range rows {
		answers = append(answers, r.toDomain())
	}
	return answers, nil
}

// SaveAnswers writes every answer in one transaction.
func (s *PredictionStore) SaveAnswers(ctx context.Context, answers []*domain.BetAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range answers {
			if err := tx.Save(answerToRow(a)).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
