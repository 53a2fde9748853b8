package gamestore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	url := "sqlite://" + filepath.Join(t.TempDir(), "bridge.db")
	r, err := OpenRepository(context.Background(), url)
	if err != nil {
		t.Fatalf("OpenRepository: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSaveResultUpserts(t *testing.T) {
	r := newTestRepository(t)
	ctx := context.Background()

	rec := NewRecord("g1")
	rec.White, rec.Black, rec.Color = "bubik0pf", "bob", ColorWhite
	rec.Moves = []string{"e2e4", "e7e5"}
	if err := r.SaveResult(ctx, rec); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	rec.Moves = []string{"f2f3", "e7e5", "g2g4", "d8h4"}
	rec.Status, rec.Winner = "mate", ColorBlack
	rec.MovesSubmitted = 2
	rec.EndedAt = rec.StartedAt.Add(90 * time.Second)
	if err := r.SaveResult(ctx, rec); err != nil {
		t.Fatalf("SaveResult again: %v", err)
	}

	var (
		count     int
		result    string
		movesSAN  string
		pgn       string
		submitted int
		duration  int64
	)
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bridge_games`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
	row := r.db.QueryRowContext(ctx, `SELECT result, moves_san, pgn, moves_submitted, duration_ms FROM bridge_games WHERE game_id = ?`, "g1")
	if err := row.Scan(&result, &movesSAN, &pgn, &submitted, &duration); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result != "0-1" || submitted != 2 || duration != 90000 {
		t.Fatalf("unexpected row result=%s submitted=%d duration=%d", result, submitted, duration)
	}
	if !strings.HasPrefix(movesSAN, `["f3","e5","g4","Qh4`) {
		t.Fatalf("unexpected SAN %s", movesSAN)
	}
	if !strings.Contains(pgn, "1. f3 e5 2. g4 Qh4") || !strings.HasSuffix(pgn, " 0-1") {
		t.Fatalf("unexpected pgn:\n%s", pgn)
	}
}

func TestOpenRepositoryRejectsUnknownScheme(t *testing.T) {
	if _, err := OpenRepository(context.Background(), "mysql://x"); err == nil {
		t.Fatalf("expected scheme error")
	}
}

func TestRecorderWithoutBackends(t *testing.T) {
	r := &Recorder{}
	rec := NewRecord("g1")
	ctx := context.Background()
	if err := errors.Join(r.Begin(ctx, rec), r.Update(ctx, rec), r.Finish(ctx, rec)); err != nil {
		t.Fatalf("empty recorder: %v", err)
	}
}

func TestRecorderArchivesOnFinish(t *testing.T) {
	repo := newTestRepository(t)
	live, _ := newTestStore(t)
	r := &Recorder{Live: live, Archive: repo}
	ctx := context.Background()

	rec := NewRecord("g2")
	if err := r.Begin(ctx, rec); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rec.Status = "draw"
	if err := r.Finish(ctx, rec); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	var result string
	if err := repo.db.QueryRowContext(ctx, `SELECT result FROM bridge_games WHERE game_id = ?`, "g2").Scan(&result); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if result != "1/2-1/2" {
		t.Fatalf("unexpected result %q", result)
	}
	if active, _ := live.Active(ctx); len(active) != 0 {
		t.Fatalf("game still active after finish: %v", active)
	}
}
