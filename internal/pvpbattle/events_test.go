package pvpbattle

import (
	"context"
	"testing"
	"time"
)

func nextEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscription closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestEventsFollowCommittedTransitions(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := m.Subscribe(ctx, "ev")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	a, b := newSeat("alice", 1), newSeat("bob", 2)
	startGame(t, m, "ev", a, b)
	if _, err := m.FireShot(ctx, "ev", b.id, 0, 0); err == nil {
		t.Fatalf("expected out-of-turn rejection")
	}
	if _, err := m.FireShot(ctx, "ev", a.id, 3, 4); err != nil {
		t.Fatalf("FireShot: %v", err)
	}
	if _, _, err := m.RevealShotResult(ctx, "ev", b.id, true); err != nil {
		t.Fatalf("RevealShotResult: %v", err)
	}

	want := []EventType{EventGameCreated, EventGameJoined, EventShotFired, EventShotResolved}
	for _, w := range want {
		ev := nextEvent(t, sub)
		if ev.Type != w || ev.GameID != "ev" {
			t.Fatalf("got %s/%s, want %s", ev.Type, ev.GameID, w)
		}
		if w == EventShotResolved && (ev.Attributes["hit"] != "true" || ev.Attributes["x"] != "3" || ev.Attributes["y"] != "4") {
			t.Fatalf("unexpected attributes %v", ev.Attributes)
		}
	}
}

func TestSubscribeAllGames(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := m.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if _, err := m.InitializeGame(ctx, "one", "alice", newSeat("alice", 1).c); err != nil {
		t.Fatalf("init one: %v", err)
	}
	if _, err := m.InitializeGame(ctx, "two", "bob", newSeat("bob", 2).c); err != nil {
		t.Fatalf("init two: %v", err)
	}
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[nextEvent(t, sub).GameID] = true
	}
	if !seen["one"] || !seen["two"] {
		t.Fatalf("missing games in %v", seen)
	}

	cancel()
	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatalf("unexpected event after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed after cancel")
	}
}
