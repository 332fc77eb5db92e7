package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/toky-team/toky-back-sub001/domain"
	"github.com/toky-team/toky-back-sub001/pagination"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "failed to open test database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(db), "failed to migrate schema")
	return db
}

func TestTicketStore_IncrementTickets_UpsertsAndRecordsLedger(t *testing.T) {
	db := setupTestDB(t)
	store := NewTicketStore(db)
	ctx := context.Background()

	require.NoError(t, store.IncrementTickets(ctx, "u1", 5, "signup bonus"))
	require.NoError(t, store.IncrementTickets(ctx, "u1", 2, "correct prediction"))

	balance, err := store.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, balance)

	ledger, err := store.Ledger(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, "signup bonus", ledger[0].Reason)
	assert.Equal(t, 2, ledger[1].Amount)
}

func TestTicketStore_IncrementTickets_RejectsInvalidInput(t *testing.T) {
	store := NewTicketStore(setupTestDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, store.IncrementTickets(ctx, "", 1, "x"), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.IncrementTickets(ctx, "u1", 0, "x"), domain.ErrInvalidInput)

	balance, err := store.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestTicketStore_ListRanking_PagesAreComplete(t *testing.T) {
	db := setupTestDB(t)
	store := NewTicketStore(db)
	ctx := context.Background()

	require.NoError(t, store.IncrementTickets(ctx, "a", 10, "x"))
	require.NoError(t, store.IncrementTickets(ctx, "b", 10, "x"))
	require.NoError(t, store.IncrementTickets(ctx, "c", 5, "x"))

	req, err := pagination.Request{Limit: 2}.Normalize(20, 100)
	require.NoError(t, err)

	first, err := store.ListRanking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []RankEntry{{"a", 10}, {"b", 10}}, first.Items)
	require.True(t, first.HasNext)

	req.Cursor = first.NextCursor
	second, err := store.ListRanking(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []RankEntry{{"c", 5}}, second.Items)
	assert.False(t, second.HasNext)
	assert.Empty(t, second.NextCursor)
}

func TestTicketStore_ListRanking_RejectsZeroLimit(t *testing.T) {
	db := setupTestDB(t)
	store := NewTicketStore(db)
	ctx := context.Background()
	require.NoError(t, store.IncrementTickets(ctx, "a", 1, "x"))

	_, err := store.ListRanking(ctx, pagination.Request{})
	assert.ErrorIs(t, err, pagination.ErrInvalidLimit)
}

func TestTicketStore_ListRanking_AscendingAndLarge(t *testing.T) {
	db := setupTestDB(t)
	store := NewTicketStore(db)
	ctx := context.Background()

	for i := 0; i < 23; i++ {
		require.NoError(t, store.IncrementTickets(ctx, fmt.Sprintf("u%02d", i), 1+i%4, "x"))
	}
	for _, order := range []pagination.Order{pagination.Desc, pagination.Asc} {
		req := pagination.Request{Limit: 4, Order: order}
		var all []RankEntry
		for {
			page, err := store.ListRanking(ctx, req)
			require.NoError(t, err)
			all = append(all, page.Items...)
			if !page.HasNext {
				break
			}
			req.Cursor = page.NextCursor
		}
		require.Len(t, all, 23, "order %s", order)
		seen := map[string]bool{}
		for i, e := range all {
			assert.False(t, seen[e.UserID], "duplicate %s", e.UserID)
			seen[e.UserID] = true
			if i > 0 {
				assert.True(t, pagination.Before(all[i-1].CursorData(), e.CursorData(), order), "out of order at %d", i)
			}
		}
	}
}

func TestCounterStore_SaveAndFind(t *testing.T) {
	store := NewCounterStore(setupTestDB(t))
	ctx := context.Background()

	_, err := store.FindLike(ctx, domain.Football)
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)
	like := domain.NewLike(domain.Football, now)
	require.NoError(t, like.Add(domain.Korea, 3, "u1", now.Add(time.Second)))
	require.NoError(t, store.SaveLike(ctx, like))
	require.NoError(t, like.Add(domain.Yonsei, 1, "u2", now.Add(2*time.Second)))
	require.NoError(t, store.SaveLike(ctx, like))

	got, err := store.FindLike(ctx, domain.Football)
	require.NoError(t, err)
	assert.Equal(t, 3, got.KULike)
	assert.Equal(t, 1, got.YULike)
	assert.True(t, got.UpdatedAt.Equal(now.Add(2*time.Second)))
	assert.Empty(t, got.PullEvents(), "loaded aggregates carry no events")

	score := domain.NewScore(domain.Baseball, now)
	require.NoError(t, score.Update(4, 2, domain.MatchFinished, now))
	require.NoError(t, store.SaveScore(ctx, score))
	gotScore, err := store.FindScore(ctx, domain.Baseball)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchFinished, gotScore.MatchStatus)
	assert.Equal(t, 4, gotScore.KUScore)

	cheer := domain.NewCheer(domain.Rugby, now)
	require.NoError(t, cheer.Add(domain.Yonsei, "u3", now))
	require.NoError(t, store.SaveCheer(ctx, cheer))
	gotCheer, err := store.FindCheer(ctx, domain.Rugby)
	require.NoError(t, err)
	assert.Equal(t, 1, gotCheer.YUCheer)
}

func TestPredictionStore_MatchesAndAnswers(t *testing.T) {
	store := NewPredictionStore(setupTestDB(t))
	ctx := context.Background()

	_, err := store.FindMatch(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound)

	m := domain.NewMatch("m1", domain.Basketball)
	require.NoError(t, store.SaveMatch(ctx, m))
	for i, pick := range []domain.Outcome{domain.KoreaWins, domain.YonseiWins} {
		a, err := domain.NewBetAnswer(fmt.Sprintf("a%d", i), "m1", fmt.Sprintf("u%d", i), domain.Basketball, pick)
		require.NoError(t, err)
		require.NoError(t, store.SaveAnswer(ctx, a))
	}

	now := time.Now()
	require.NoError(t, m.SetResult(domain.MatchResult{KUScore: 70, YUScore: 65}, now))
	require.NoError(t, store.SaveMatch(ctx, m))

	found, err := store.FindAnswer(ctx, "m1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "a1", found.ID)
	assert.Equal(t, domain.YonseiWins, found.Predicted)
	_, err = store.FindAnswer(ctx, "m1", "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	answers, err := store.FindAnswersByMatch(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, answers, 2)
	for _, a := range answers {
		a.Grade(*m.Result, now)
	}
	require.NoError(t, store.SaveAnswers(ctx, answers))

	loaded, err := store.FindMatch(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Result)
	assert.Equal(t, domain.KoreaWins, loaded.Result.Winner())

	graded, err := store.FindAnswersByMatch(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, graded[0].Graded)
	assert.True(t, graded[0].Matched)
	assert.False(t, graded[1].Matched)
	assert.NotNil(t, graded[1].GradedAt)
}
