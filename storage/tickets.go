package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/pagination"
)

// RankEntry is one leaderboard row.
type RankEntry struct {
	UserID  string `json:"userId"`
	Tickets int    `json:"tickets"`
}

// CursorData keys a ranking row for pagination.
func (e RankEntry) CursorData() pagination.CursorData {
	return pagination.CursorData{SortValue: float64(e.Tickets), ID: e.UserID}
}

// TicketStore owns ticket balances and the grant ledger.
type TicketStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTicketStore(db *gorm.DB) *TicketStore {
	return &TicketStore{db: db, now: time.Now}
}

// IncrementTickets adds amount to the user's balance and records the grant in
// one transaction.
func (s *TicketStore) IncrementTickets(ctx context.Context, userID string, amount int, reason string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: ticket amount must be positive", domain.ErrInvalidInput)
	}
	now := s.now().UTC()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"tickets":    gorm.Expr("ticket_balances.tickets + ?", amount),
				"updated_at": now,
			}),
		}).Create(&TicketBalance{UserID: userID, Tickets: amount, UpdatedAt: now})
		if upsert.Error != nil {
			return fmt.Errorf("increment tickets for %s: %w", userID, upsert.Error)
		}
		if err := tx.Create(&TicketLedger{UserID: userID, Amount: amount, Reason: reason, CreatedAt: now}).Error; err != nil {
			return fmt.Errorf("record ticket grant for %s: %w", userID, err)
		}
		return nil
	})
}

func (s *TicketStore) Balance(ctx context.Context, userID string) (int, error) {
	var row TicketBalance
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Take(&row).Error
	if err != nil {
		if isNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return row.Tickets, nil
}

// ListRanking returns one page of balances ordered by tickets, then user id
// ascending. req must be normalized.
func (s *TicketStore) ListRanking(ctx context.Context, req pagination.Request) (pagination.Page[RankEntry], error) {
	after, hasCursor, err := req.After()
	if err != nil {
		return pagination.Page[RankEntry]{}, err
	}
	cmp, dir := "<", "DESC"
	if req.Order == pagination.Asc {
		cmp, dir = ">", "ASC"
	}
	q := s.db.WithContext(ctx).Model(&TicketBalance{}).Select("user_id", "tickets")
	if hasCursor {
		q = q.Where("tickets "+cmp+" ? OR (tickets = ? AND user_id > ?)", after.SortValue, after.SortValue, after.ID)
	}
	var rows []RankEntry
	err = q.Order("tickets " + dir).Order("user_id ASC").Limit(req.Limit + 1).Scan(&rows).Error
	if err != nil {
		return pagination.Page[RankEntry]{}, fmt.Errorf("list ranking: %w", err)
	}
	return pagination.NewPage(rows, req.Limit, RankEntry.CursorData)
}

func (s *TicketStore) Ledger(ctx context.Context, userID string) ([]TicketLedger, error) {
	var rows []TicketLedger
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error
	return rows, err
}
