package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func roundTrip(t *testing.T, m map[string]any) map[string]any {
	t.Helper()
	data, err := sonic.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := sonic.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func TestScoreSnapshotSurvivesWire(t *testing.T) {
	now := time.Date(2025, 9, 26, 14, 0, 0, 123456789, time.UTC)
	want := ScoreSnapshot{Sport: IceHockey, KUScore: 3, YUScore: 2, MatchStatus: MatchLive, CreatedAt: now, UpdatedAt: now.Add(time.Minute)}

	got, err := ParseScoreSnapshot(roundTrip(t, want.Message()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Sport != want.Sport || got.KUScore != 3 || got.YUScore != 2 || got.MatchStatus != MatchLive {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("timestamps changed: %+v", got)
	}
}

func TestScoreSnapshotStatusIsOptional(t *testing.T) {
	msg := ScoreSnapshot{Sport: Rugby, CreatedAt: time.Now(), UpdatedAt: time.Now()}.Message()
	if _, ok := msg["matchStatus"]; ok {
		t.Fatalf("empty status should be omitted")
	}
	if _, err := ParseScoreSnapshot(roundTrip(t, msg)); err != nil {
		t.Fatalf("parse: %v", err)
	}
}

func TestParseSnapshotRejectsMalformed(t *testing.T) {
	valid := func() map[string]any {
		return LikeSnapshot{Sport: Football, KULike: 10, YULike: 4, CreatedAt: time.Now(), UpdatedAt: time.Now()}.Message()
	}
	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"missing sport", func(m map[string]any) { delete(m, "sport") }},
		{"unknown sport", func(m map[string]any) { m["sport"] = "cricket" }},
		{"sport not string", func(m map[string]any) { m["sport"] = 7 }},
		{"missing count", func(m map[string]any) { delete(m, "KULike") }},
		{"count as string", func(m map[string]any) { m["YULike"] = "4" }},
		{"fractional count", func(m map[string]any) { m["KULike"] = 1.5 }},
		{"negative count", func(m map[string]any) { m["KULike"] = -1 }},
		{"count beyond range", func(m map[string]any) { m["KULike"] = float64(MaxCount) * 2 }},
		{"missing createdAt", func(m map[string]any) { delete(m, "createdAt") }},
		{"garbled updatedAt", func(m map[string]any) { m["updatedAt"] = "yesterday" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid()
			tt.mutate(m)
			if _, err := ParseLikeSnapshot(m); !errors.Is(err, ErrMalformedSnapshot) {
				t.Fatalf("expected ErrMalformedSnapshot, got %v", err)
			}
		})
	}
}

func TestParseScoreSnapshotRejectsUnknownStatus(t *testing.T) {
	m := ScoreSnapshot{Sport: Baseball, MatchStatus: MatchLive, CreatedAt: time.Now(), UpdatedAt: time.Now()}.Message()
	m["matchStatus"] = "postponed"
	if _, err := ParseScoreSnapshot(m); !errors.Is(err, ErrMalformedSnapshot) {
		t.Fatalf("expected ErrMalformedSnapshot, got %v", err)
	}
}

func TestParseCheerSnapshotErrorsAreClientInput(t *testing.T) {
	_, err := ParseCheerSnapshot(map[string]any{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("malformed snapshot should be an input error, got %v", err)
	}
}

func TestLikeSnapshotAtMaxCountSurvivesWire(t *testing.T) {
	bound := MaxCount
	l := NewLike(Baseball, time.Now())
	l.KULike = int(bound) - 3
	if err := l.Add(Korea, 3, "u", time.Now()); err != nil {
		t.Fatalf("add up to the bound: %v", err)
	}
	got, err := ParseLikeSnapshot(roundTrip(t, l.Snapshot().Message()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if int64(got.KULike) != MaxCount {
		t.Fatalf("expected %d, got %d", MaxCount, got.KULike)
	}
}
