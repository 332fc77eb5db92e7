package reward

import (
	"context"
	"testing"
)

func TestRedisDeduperAddRemove(t *testing.T) {
	deduper, _ := newDeduper(t)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil || !added {
		t.Fatalf("first add = %v, %v", added, err)
	}
	added, err = deduper.Add(ctx, "user", "k1")
	if err != nil || added {
		t.Fatalf("second add = %v, %v", added, err)
	}
	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if added, _ := deduper.Add(ctx, "user", "k1"); !added {
		t.Fatalf("expected key to be addable after removal")
	}
}

func TestRedisDeduperKeyNamespacing(t *testing.T) {
	deduper, client := newDeduper(t)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "user", "bet.shared:m1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	expectedKey := "user:" + dedupeKeyPrefix + ":bet.shared:m1"
	exists, err := client.Exists(ctx, expectedKey).Result()
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 1 {
		t.Fatalf("expected redis key %q to exist", expectedKey)
	}
	ttl, err := client.TTL(ctx, expectedKey).Result()
	if err != nil || ttl <= 0 {
		t.Fatalf("expected key to carry a ttl, got %v, %v", ttl, err)
	}
}
