package domain

import (
	"fmt"
	"time"
)

type Sport string

const (
	Football   Sport = "football"
	Baseball   Sport = "baseball"
	Basketball Sport = "basketball"
	IceHockey  Sport = "ice_hockey"
	Rugby      Sport = "rugby"
)

// Sports lists every sport in schedule order.
var Sports = []Sport{Football, Baseball, Basketball, IceHockey, Rugby}

func ParseSport(s string) (Sport, error) {
	for _, sp := range Sports {
		if string(sp) == s {
			return sp, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSport, s)
}

// MaxCount is the largest counter value. Snapshots travel as JSON numbers,
// which hold integers exactly up to 2^53-1.
const MaxCount int64 = 1<<53 - 1

// MaxLikesPerRequest bounds a single Like.Add.
const MaxLikesPerRequest = 1000

type University string

const (
	Korea  University = "KOREA"
	Yonsei University = "YONSEI"
)

func ParseUniversity(s string) (University, error) {
	switch University(s) {
	case Korea, Yonsei:
		return University(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUniversity, s)
}

type MatchStatus string

const (
	MatchScheduled MatchStatus = "scheduled"
	MatchLive      MatchStatus = "live"
	MatchFinished  MatchStatus = "finished"
)

func ParseMatchStatus(s string) (MatchStatus, error) {
	switch MatchStatus(s) {
	case MatchScheduled, MatchLive, MatchFinished:
		return MatchStatus(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMatchStatus, s)
}

// Score is the live score of one sport.
type Score struct {
	AggregateRoot
	Sport       Sport
	KUScore     int
	YUScore     int
	MatchStatus MatchStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewScore(sport Sport, now time.Time) *Score {
	now = now.UTC()
	return &Score{Sport: sport, MatchStatus: MatchScheduled, CreatedAt: now, UpdatedAt: now}
}

// Update overwrites the score. Scores are set by an operator, not incremented.
func (s *Score) Update(ku, yu int, status MatchStatus, now time.Time) error {
	if ku < 0 || yu < 0 {
		return ErrNegativeCount
	}
	if int64(ku) > MaxCount || int64(yu) > MaxCount {
		return ErrCountOutOfRange
	}
	if _, err := ParseMatchStatus(string(status)); err != nil {
		return err
	}
	s.KUScore, s.YUScore, s.MatchStatus = ku, yu, status
	s.UpdatedAt = now.UTC()
	s.record(ScoreUpdated{
		EventBase:   NewEventBase(ScoreUpdatedEvent, string(s.Sport), ""),
		Sport:       s.Sport,
		KUScore:     ku,
		YUScore:     yu,
		MatchStatus: status,
	})
	return nil
}

func (s *Score) Snapshot() ScoreSnapshot {
	return ScoreSnapshot{
		Sport:       s.Sport,
		KUScore:     s.KUScore,
		YUScore:     s.YUScore,
		MatchStatus: s.MatchStatus,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// Like counts the likes given to each university during a sport.
type Like struct {
	AggregateRoot
	Sport     Sport
	KULike    int
	YULike    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewLike(sport Sport, now time.Time) *Like {
	now = now.UTC()
	return &Like{Sport: sport, CreatedAt: now, UpdatedAt: now}
}

func (l *Like) Add(univ University, count int, userID string, now time.Time) error {
	if count <= 0 {
		return fmt.Errorf("%w: like count must be positive", ErrInvalidInput)
	}
	if count > MaxLikesPerRequest {
		return fmt.Errorf("%w: like count must not exceed %d", ErrInvalidInput, MaxLikesPerRequest)
	}
	var target *int
	switch univ {
	case Korea:
		target = &l.KULike
	case Yonsei:
		target = &l.YULike
	default:
		return fmt.Errorf("%w: %q", ErrUnknownUniversity, univ)
	}
	if int64(*target) > MaxCount-int64(count) {
		return ErrCountOutOfRange
	}
	*target += count
	l.UpdatedAt = now.UTC()
	l.record(LikeAdded{
		EventBase:  NewEventBase(LikeAddedEvent, string(l.Sport), userID),
		Sport:      l.Sport,
		University: univ,
		Count:      count,
	})
	return nil
}

func (l *Like) Snapshot() LikeSnapshot {
	return LikeSnapshot{Sport: l.Sport, KULike: l.KULike, YULike: l.YULike, CreatedAt: l.CreatedAt, UpdatedAt: l.UpdatedAt}
}

// Cheer counts cheering fans per university during a sport.
type Cheer struct {
	AggregateRoot
	Sport     Sport
	KUCheer   int
	YUCheer   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCheer(sport Sport, now time.Time) *Cheer {
	now = now.UTC()
	return &Cheer{Sport: sport, CreatedAt: now, UpdatedAt: now}
}

func (c *Cheer) Add(univ University, userID string, now time.Time) error {
	var target *int
	switch univ {
	case Korea:
		target = &c.KUCheer
	case Yonsei:
		target = &c.YUCheer
	default:
		return fmt.Errorf("%w: %q", ErrUnknownUniversity, univ)
	}
	if int64(*target) >= MaxCount {
		return ErrCountOutOfRange
	}
	*target++
	c.UpdatedAt = now.UTC()
	c.record(CheerAdded{
		EventBase:  NewEventBase(CheerAddedEvent, string(c.Sport), userID),
		Sport:      c.Sport,
		University: univ,
	})
	return nil
}

func (c *Cheer) Snapshot() CheerSnapshot {
	return CheerSnapshot{Sport: c.Sport, KUCheer: c.KUCheer, YUCheer: c.YUCheer, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}
