package domain

const (
	UserRegisteredEvent    = "user.registered"
	ReferralCompletedEvent = "user.referral_completed"
	BetSharedEvent         = "bet.shared"
	AttendanceCheckedEvent = "attendance.checked"
	BetAnswerMatchedEvent  = "bet.answer_matched"
	MatchResultSetEvent    = "match.result_set"
	ScoreUpdatedEvent      = "score.updated"
	LikeAddedEvent         = "like.added"
	CheerAddedEvent        = "cheer.added"
)

type UserRegistered struct {
	EventBase
}

func NewUserRegistered(userID string) UserRegistered {
	return UserRegistered{EventBase: NewEventBase(UserRegisteredEvent, userID, userID)}
}

func (e UserRegistered) withBase(b EventBase) Event { e.EventBase = b; return e }

// ReferralCompleted is raised for the referrer once an invited user registers.
type ReferralCompleted struct {
	EventBase
	ReferredUserID string `json:"referredUserId"`
}

func NewReferralCompleted(referrerID, referredUserID string) ReferralCompleted {
	return ReferralCompleted{
		EventBase:      NewEventBase(ReferralCompletedEvent, referredUserID, referrerID),
		ReferredUserID: referredUserID,
	}
}

func (e ReferralCompleted) withBase(b EventBase) Event { e.EventBase = b; return e }

type BetShared struct {
	EventBase
	MatchID string `json:"matchId"`
}

func NewBetShared(userID, matchID string) BetShared {
	return BetShared{
		EventBase: NewEventBase(BetSharedEvent, userID+":"+matchID, userID),
		MatchID:   matchID,
	}
}

func (e BetShared) withBase(b EventBase) Event { e.EventBase = b; return e }

// AttendanceChecked is keyed by user and day so one check-in per day is rewarded.
type AttendanceChecked struct {
	EventBase
	Day string `json:"day"`
}

func NewAttendanceChecked(userID, day string) AttendanceChecked {
	return AttendanceChecked{
		EventBase: NewEventBase(AttendanceCheckedEvent, userID+":"+day, userID),
		Day:       day,
	}
}

func (e AttendanceChecked) withBase(b EventBase) Event { e.EventBase = b; return e }

type BetAnswerMatched struct {
	EventBase
	MatchID string `json:"matchId"`
	Sport   Sport  `json:"sport"`
}

func (e BetAnswerMatched) withBase(b EventBase) Event { e.EventBase = b; return e }

type MatchResultSet struct {
	EventBase
	Sport   Sport `json:"sport"`
	KUScore int   `json:"KUScore"`
	YUScore int   `json:"YUScore"`
}

func (e MatchResultSet) withBase(b EventBase) Event { e.EventBase = b; return e }

type ScoreUpdated struct {
	EventBase
	Sport       Sport       `json:"sport"`
	KUScore     int         `json:"KUScore"`
	YUScore     int         `json:"YUScore"`
	MatchStatus MatchStatus `json:"matchStatus"`
}

func (e ScoreUpdated) withBase(b EventBase) Event { e.EventBase = b; return e }

type LikeAdded struct {
	EventBase
	Sport      Sport      `json:"sport"`
	University University `json:"university"`
	Count      int        `json:"count"`
}

func (e LikeAdded) withBase(b EventBase) Event { e.EventBase = b; return e }

type CheerAdded struct {
	EventBase
	Sport      Sport      `json:"sport"`
	University University `json:"university"`
}

func (e CheerAdded) withBase(b EventBase) Event { e.EventBase = b; return e }
