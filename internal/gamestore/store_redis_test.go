package gamestore

import (
	"context"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s, err := DialStore(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("DialStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestStoreLifecycle(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	rec := NewRecord("g1")
	rec.White, rec.Black, rec.Color = "bubik0pf", "bob", ColorWhite
	if err := s.Begin(ctx, rec); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	active, err := s.Active(ctx)
	if err != nil || len(active) != 1 || active[0] != "g1" {
		t.Fatalf("Active=%v err=%v", active, err)
	}
	if ttl := mr.TTL("bridge:game:g1"); ttl <= 0 {
		t.Fatalf("expected ttl on game key, got %v", ttl)
	}

	rec.Moves = []string{"e2e4", "e7e5"}
	rec.MovesSubmitted = 1
	if err := s.Update(ctx, rec); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.Load(ctx, "g1")
	if err != nil || got == nil {
		t.Fatalf("Load: %v", err)
	}
	if got.SessionID != rec.SessionID || len(got.Moves) != 2 || got.MovesSubmitted != 1 {
		t.Fatalf("unexpected record %+v", got)
	}

	rec.Status, rec.Winner = "mate", ColorWhite
	if err := s.Finish(ctx, rec); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	active, _ = s.Active(ctx)
	if len(active) != 0 {
		t.Fatalf("finished game still active: %v", active)
	}
	got, _ = s.Load(ctx, "g1")
	if got == nil || got.Status != "mate" {
		t.Fatalf("finished record not kept: %+v", got)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Load(context.Background(), "nope")
	if err != nil || got != nil {
		t.Fatalf("Load missing=%v err=%v", got, err)
	}
}

func TestDialStoreRejectsBadURL(t *testing.T) {
	if _, err := DialStore(context.Background(), "http://localhost"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := DialStore(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}
