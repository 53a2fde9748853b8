package dispatch

import (
	"testing"
	"time"
)

func TestAdmissionReservesUntilStartOrExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	a := newAdmission(2)
	a.now = func() time.Time { return now }

	if !a.admit(0, "c1") || !a.admit(0, "c2") {
		t.Fatalf("expected two reservations under capacity 2")
	}
	if a.admit(0, "c3") {
		t.Fatalf("third reservation admitted over capacity")
	}

	a.release("c1")
	if !a.admit(0, "c3") {
		t.Fatalf("released slot not reusable")
	}
	if a.admit(0, "c4") {
		t.Fatalf("admitted with two pending")
	}
	if a.admit(1, "c4") {
		t.Fatalf("running game and pending reservations share the capacity")
	}

	now = now.Add(pendingTTL + time.Second)
	if !a.admit(1, "c5") {
		t.Fatalf("stale reservations should have expired")
	}
}

func TestAdmissionDefaultsToOne(t *testing.T) {
	a := newAdmission(0)
	if !a.admit(0, "c1") {
		t.Fatalf("first challenge refused")
	}
	if a.admit(0, "c2") {
		t.Fatalf("capacity should default to one")
	}
}
