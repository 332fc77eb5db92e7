package domain

import (
	"fmt"
	"time"
)

// Outcome is the predicted or actual winner of a match.
type Outcome string

const (
	KoreaWins  Outcome = "KOREA"
	YonseiWins Outcome = "YONSEI"
	Draw       Outcome = "DRAW"
)

func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case KoreaWins, YonseiWins, Draw:
		return Outcome(s), nil
	}
	return "", fmt.Errorf("%w: unknown outcome %q", ErrInvalidInput, s)
}

type MatchResult struct {
	KUScore int
	YUScore int
}

func (r MatchResult) Winner() Outcome {
	switch {
	case r.KUScore > r.YUScore:
		return KoreaWins
	case r.YUScore > r.KUScore:
		return YonseiWins
	default:
		return Draw
	}
}

type Match struct {
	AggregateRoot
	ID        string
	Sport     Sport
	Result    *MatchResult
	SettledAt *time.Time
}

func NewMatch(id string, sport Sport) *Match {
	return &Match{ID: id, Sport: sport}
}

// SetResult settles the match once. Setting the identical result again is a
// no-op so retried requests do not raise a second MatchResultSet.
func (m *Match) SetResult(res MatchResult, now time.Time) error {
	if res.KUScore < 0 || res.YUScore < 0 {
		return ErrNegativeCount
	}
	if m.Result != nil {
		if *m.Result == res {
			return nil
		}
		return ErrMatchSettled
	}
	settled := now.UTC()
	m.Result = &res
	m.SettledAt = &settled
	m.record(MatchResultSet{
		EventBase: NewEventBase(MatchResultSetEvent, m.ID, ""),
		Sport:     m.Sport,
		KUScore:   res.KUScore,
		YUScore:   res.YUScore,
	})
	return nil
}

// BetAnswer is one user's prediction for a match.
type BetAnswer struct {
	AggregateRoot
	ID        string
	MatchID   string
	UserID    string
	Sport     Sport
	Predicted Outcome
	Graded    bool
	Matched   bool
	GradedAt  *time.Time
}

// Grade compares the prediction with the result. An answer is graded at most
// once, which keeps BetAnswerMatched unique per answer.
func (a *BetAnswer) Grade(res MatchResult, now time.Time) {
	if a.Graded {
		return
	}
	graded := now.UTC()
	a.Graded = true
	a.GradedAt = &graded
	a.Matched = a.Predicted == res.Winner()
	if !a.Matched {
		return
	}
	a.record(BetAnswerMatched{
		EventBase: NewEventBase(BetAnswerMatchedEvent, a.ID, a.UserID),
		MatchID:   a.MatchID,
		Sport:     a.Sport,
	})
}

func NewBetAnswer(id, matchID, userID string, sport Sport, predicted Outcome) (*BetAnswer, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if _, err := ParseOutcome(string(predicted)); err != nil {
		return nil, err
	}
	return &BetAnswer{ID: id, MatchID: matchID, UserID: userID, Sport: sport, Predicted: predicted}, nil
}
