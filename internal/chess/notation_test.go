package chess

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestSplitMoves(t *testing.T) {
	cases := map[string][]string{
		"":               {},
		"e2e4":           {"e2e4"},
		"e2e4 e7e5":      {"e2e4", "e7e5"},
		"  e2e4   e7e5 ": {"e2e4", "e7e5"},
	}
	for in, want := range cases {
		got := SplitMoves(in)
		if got == nil {
			t.Fatalf("SplitMoves(%q) returned nil", in)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("SplitMoves(%q)=%v want %v", in, got, want)
		}
	}
}

func TestCheckPlausibility(t *testing.T) {
	last := []string{"e2e4", "e7e5"}

	if err := CheckPlausibility([]string{"e2e4", "e7e5"}, last); err != nil {
		t.Fatalf("same history rejected: %v", err)
	}
	if err := CheckPlausibility([]string{"e2e4", "e7e5", "g1f3"}, last); err != nil {
		t.Fatalf("one new ply rejected: %v", err)
	}
	if err := CheckPlausibility([]string{"e2e4"}, last); !errors.Is(err, ErrImplausibleHistory) {
		t.Fatalf("shorter history: got %v", err)
	}
	if err := CheckPlausibility([]string{"e2e4", "e7e5", "g1f3", "b8c6"}, last); !errors.Is(err, ErrImplausibleHistory) {
		t.Fatalf("two new plies: got %v", err)
	}
	if err := CheckPlausibility([]string{"d2d4", "e7e5"}, last); !errors.Is(err, ErrImplausibleHistory) {
		t.Fatalf("rewritten ply: got %v", err)
	}
	if err := CheckPlausibility([]string{"e2e4", "e7e5", "g1f"}, last); !errors.Is(err, ErrImplausibleMove) {
		t.Fatalf("short ply: got %v", err)
	}
	if err := CheckPlausibility([]string{"e2e4", "e7e5", "a7a8qq"}, last); !errors.Is(err, ErrImplausibleMove) {
		t.Fatalf("long ply: got %v", err)
	}
}

func TestReplayRejectsIllegalMove(t *testing.T) {
	if _, err := Replay([]string{"e2e4", "e7e5", "e1e3"}); err == nil {
		t.Fatalf("expected illegal move error")
	}
	game, err := Replay([]string{"f2f3", "e7e5", "g2g4", "d8h4"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if !Finished(game) {
		t.Fatalf("fool's mate should be finished")
	}
}

func TestSANMoves(t *testing.T) {
	got := SANMoves([]string{"e2e4", "e7e5", "g1f3", "b8c6", "zzzz"})
	want := []string{"e4", "e5", "Nf3", "Nc6"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("SANMoves=%v want %v", got, want)
	}
}

func TestNullEngine(t *testing.T) {
	var e NullEngine
	if mv, _ := e.StartGame(context.Background(), true); !IsNull(mv) {
		t.Fatalf("StartGame=%q", mv)
	}
	if mv, _ := e.RespondTo(context.Background(), []string{"e2e4"}); !IsNull(mv) {
		t.Fatalf("RespondTo=%q", mv)
	}
}
