// Package storage persists counters, ticket balances and predictions through
// gorm, and caches ranking pages in Redis.
package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/toky-team/toky-back-sub001/domain"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

type TicketBalance struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Tickets   int    `gorm:"not null;default:0;index:idx_ticket_rank"`
	UpdatedAt time.Time
}

// TicketLedger keeps one row per grant so balances can be audited.
type TicketLedger struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"size:64;index"`
	Amount    int    `gorm:"not null"`
	Reason    string `gorm:"size:128"`
	CreatedAt time.Time
}

type ScoreRow struct {
	Sport       string    `gorm:"primaryKey;size:32"`
	KUScore     int       `gorm:"column:ku_score"`
	YUScore     int       `gorm:"column:yu_score"`
	MatchStatus string    `gorm:"size:16"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:false"`
}

func (ScoreRow) TableName() string { return "scores" }

type LikeRow struct {
	Sport     string    `gorm:"primaryKey;size:32"`
	KULike    int       `gorm:"column:ku_like"`
	YULike    int       `gorm:"column:yu_like"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (LikeRow) TableName() string { return "likes" }

type CheerRow struct {
	Sport     string    `gorm:"primaryKey;size:32"`
	KUCheer   int       `gorm:"column:ku_cheer"`
	YUCheer   int       `gorm:"column:yu_cheer"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false"`
}

func (CheerRow) TableName() string { return "cheers" }

type MatchRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Sport     string `gorm:"size:32;index"`
	KUScore   *int   `gorm:"column:ku_score"`
	YUScore   *int   `gorm:"column:yu_score"`
	SettledAt *time.Time
}

func (MatchRow) TableName() string { return "matches" }

type BetAnswerRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	MatchID   string `gorm:"size:64;uniqueIndex:idx_answer_match_user"`
	UserID    string `gorm:"size:64;uniqueIndex:idx_answer_match_user"`
	Sport     string `gorm:"size:32"`
	Predicted string `gorm:"size:16"`
	Graded    bool
	Matched   bool
	GradedAt  *time.Time
}

func (BetAnswerRow) TableName() string { return "bet_answers" }

// Migrate creates or updates every table used by this package.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&TicketBalance{},
		&TicketLedger{},
		&ScoreRow{},
		&LikeRow{},
		&CheerRow{},
		&MatchRow{},
		&BetAnswerRow{},
	)
}

func scoreToRow(s *domain.Score) *ScoreRow {
	return &ScoreRow{
		Sport:       string(s.Sport),
		KUScore:     s.KUScore,
		YUScore:     s.YUScore,
		MatchStatus: string(s.MatchStatus),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func (r ScoreRow) toDomain() *domain.Score {
	return &domain.Score{
		Sport:       domain.Sport(r.Sport),
		KUScore:     r.KUScore,
		YUScore:     r.YUScore,
		MatchStatus: domain.MatchStatus(r.MatchStatus),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func likeToRow(l *domain.Like) *LikeRow {
	return &LikeRow{Sport: string(l.Sport), KULike: l.KULike, YULike: l.YULike, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt}
}

func (r LikeRow) toDomain() *domain.Like {
	return &domain.Like{Sport: domain.Sport(r.Sport), KULike: r.KULike, YULike: r.YULike, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
}

func cheerToRow(c *domain.Cheer) *CheerRow {
	return &CheerRow{Sport: string(c.Sport), KUCheer: c.KUCheer, YUCheer: c.YUCheer, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}

func (r CheerRow) toDomain() *domain.Cheer {
	return &domain.Cheer{Sport: domain.Sport(r.Sport), KUCheer: r.KUCheer, YUCheer: r.YUCheer, CreatedAt: r.CreatedAt.UTC(), UpdatedAt: r.UpdatedAt.UTC()}
}

func matchToRow(m *domain.Match) *MatchRow {
	row := &MatchRow{ID: m.ID, Sport: string(m.Sport), SettledAt: m.SettledAt}
	if m.Result != nil {
		ku, yu := m.Result.KUScore, m.Result.YUScore
		row.KUScore, row.YUScore = &ku, &yu
	}
	return row
}

func (r MatchRow) toDomain() *domain.Match {
	m := domain.NewMatch(r.ID, domain.Sport(r.Sport))
	if r.KUScore != nil && r.YUScore != nil {
		m.Result = &domain.MatchResult{KUScore: *r.KUScore, YUScore: *r.YUScore}
	}
	if r.SettledAt != nil {
		t := r.SettledAt.UTC()
		m.SettledAt = &t
	}
	return m
}

func answerToRow(a *domain.BetAnswer) *BetAnswerRow {
	return &BetAnswerRow{
		ID:        a.ID,
		MatchID:   a.MatchID,
		UserID:    a.UserID,
		Sport:     string(a.Sport),
		Predicted: string(a.Predicted),
		Graded:    a.Graded,
		Matched:   a.Matched,
		GradedAt:  a.GradedAt,
	}
}

func (r BetAnswerRow) toDomain() *domain.BetAnswer {
	a := &domain.BetAnswer{
		ID:        r.ID,
		MatchID:   r.MatchID,
		UserID:    r.UserID,
		Sport:     domain.Sport(r.Sport),
		Predicted: domain.Outcome(r.Predicted),
		Graded:    r.Graded,
		Matched:   r.Matched,
	}
	if r.GradedAt != nil {
		t := r.GradedAt.UTC()
		a.GradedAt = &t
	}
	return a
}
