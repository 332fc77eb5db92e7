package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Wire keys shared by the counter snapshots.
const (
	keySport       = "sport"
	keyMatchStatus = "matchStatus"
	keyCreatedAt   = "createdAt"
	keyUpdatedAt   = "updatedAt"
)

// ScoreSnapshot is the broadcast form of a Score. It is a cache coherence hint;
// the database row stays authoritative.
type ScoreSnapshot struct {
	Sport       Sport       `json:"sport"`
	KUScore     int         `json:"KUScore"`
	YUScore     int         `json:"YUScore"`
	MatchStatus MatchStatus `json:"matchStatus,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type LikeSnapshot struct {
	Sport     Sport     `json:"sport"`
	KULike    int       `json:"KULike"`
	YULike    int       `json:"YULike"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CheerSnapshot struct {
	Sport     Sport     `json:"sport"`
	KUCheer   int       `json:"KUCheer"`
	YUCheer   int       `json:"YUCheer"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s ScoreSnapshot) Message() map[string]any {
	m := map[string]any{
		keySport:     string(s.Sport),
		"KUScore":    s.KUScore,
		"YUScore":    s.YUScore,
		keyCreatedAt: formatTime(s.CreatedAt),
		keyUpdatedAt: formatTime(s.UpdatedAt),
	}
	if s.MatchStatus != "" {
		m[keyMatchStatus] = string(s.MatchStatus)
	}
	return m
}

func (s LikeSnapshot) Message() map[string]any {
	return map[string]any{
		keySport:     string(s.Sport),
		"KULike":     s.KULike,
		"YULike":     s.YULike,
		keyCreatedAt: formatTime(s.CreatedAt),
		keyUpdatedAt: formatTime(s.UpdatedAt),
	}
}

func (s CheerSnapshot) Message() map[string]any {
	return map[string]any{
		keySport:     string(s.Sport),
		"KUCheer":    s.KUCheer,
		"YUCheer":    s.YUCheer,
		keyCreatedAt: formatTime(s.CreatedAt),
		keyUpdatedAt: formatTime(s.UpdatedAt),
	}
}

// ParseScoreSnapshot validates a decoded pub/sub payload. Every required field
// must be present with the right primitive type and enum value.
func ParseScoreSnapshot(m map[string]any) (ScoreSnapshot, error) {
	var (
		s   ScoreSnapshot
		err error
	)
	if s.Sport, err = requireSport(m); err != nil {
		return ScoreSnapshot{}, err
	}
	if s.KUScore, err = requireCount(m, "KUScore"); err != nil {
		return ScoreSnapshot{}, err
	}
	if s.YUScore, err = requireCount(m, "YUScore"); err != nil {
		return ScoreSnapshot{}, err
	}
	if raw, ok := m[keyMatchStatus]; ok && raw != nil {
		str, ok := raw.(string)
		if !ok {
			return ScoreSnapshot{}, malformed(keyMatchStatus, "string", raw)
		}
		if s.MatchStatus, err = ParseMatchStatus(str); err != nil {
			return ScoreSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
		}
	}
	if s.CreatedAt, s.UpdatedAt, err = requireTimestamps(m); err != nil {
		return ScoreSnapshot{}, err
	}
	return s, nil
}

func ParseLikeSnapshot(m map[string]any) (LikeSnapshot, error) {
	var (
		s   LikeSnapshot
		err error
	)
	if s.Sport, err = requireSport(m); err != nil {
		return LikeSnapshot{}, err
	}
	if s.KULike, err = requireCount(m, "KULike"); err != nil {
		return LikeSnapshot{}, err
	}
	if s.YULike, err = requireCount(m, "YULike"); err != nil {
		return LikeSnapshot{}, err
	}
	if s.CreatedAt, s.UpdatedAt, err = requireTimestamps(m); err != nil {
		return LikeSnapshot{}, err
	}
	return s, nil
}

func ParseCheerSnapshot(m map[string]any) (CheerSnapshot, error) {
	var (
		s   CheerSnapshot
		err error
	)
	if s.Sport, err = requireSport(m); err != nil {
		return CheerSnapshot{}, err
	}
	if s.KUCheer, err = requireCount(m, "KUCheer"); err != nil {
		return CheerSnapshot{}, err
	}
	if s.YUCheer, err = requireCount(m, "YUCheer"); err != nil {
		return CheerSnapshot{}, err
	}
	if s.CreatedAt, s.UpdatedAt, err = requireTimestamps(m); err != nil {
		return CheerSnapshot{}, err
	}
	return s, nil
}

func requireSport(m map[string]any) (Sport, error) {
	raw, ok := m[keySport]
	if !ok {
		return "", missing(keySport)
	}
	str, ok := raw.(string)
	if !ok {
		return "", malformed(keySport, "string", raw)
	}
	sport, err := ParseSport(str)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return sport, nil
}

// requireCount accepts any numeric representation a JSON decoder may produce,
// as long as it holds a non-negative integer.
func requireCount(m map[string]any, key string) (int, error) {
	raw, ok := m[key]
	if !ok {
		return 0, missing(key)
	}
	var f float64
	switch v := raw.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, malformed(key, "number", raw)
		}
		f = n
	default:
		return 0, malformed(key, "number", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f < 0 || f > float64(MaxCount) {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer, got %v", ErrMalformedSnapshot, key, raw)
	}
	return int(f), nil
}

func requireTimestamps(m map[string]any) (time.Time, time.Time, error) {
	created, err := requireTime(m, keyCreatedAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	updated, err := requireTime(m, keyUpdatedAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return created, updated, nil
}

func requireTime(m map[string]any, key string) (time.Time, error) {
	raw, ok := m[key]
	if !ok {
		return time.Time{}, missing(key)
	}
	str, ok := raw.(string)
	if !ok {
		return time.Time{}, malformed(key, "timestamp string", raw)
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrMalformedSnapshot, key, err)
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func missing(key string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformedSnapshot, key)
}

func malformed(key, want string, got any) error {
	return fmt.Errorf("%w: %s must be a %s, got %T", ErrMalformedSnapshot, key, want, got)
}
