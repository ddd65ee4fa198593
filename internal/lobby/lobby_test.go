package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/atc-pixel/yks-arena-sub001/internal/engine"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func snapshotAt(version int64, mutate func(*engine.Match)) Snapshot {
	m := engine.NewRandomMatch("m1", "A", "B", "GENERAL", engine.VariantAsync, t0, engine.DefaultRules())
	m.Version = version
	if mutate != nil {
		mutate(&m)
	}
	return Snapshot{Version: version, Match: m}
}

// helper: receive one snapshot with a timeout so tests never hang
func recvSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return Snapshot{} // unreachable
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan Snapshot, within time.Duration) {
	t.Helper()
	select {
	case s, ok := <-ch:
		if !ok {
			// channel closed → no further snapshots possible
			return
		}
		t.Fatalf("expected no snapshot within %v, but got version %d", within, s.Version)
	case <-time.After(within):
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func TestLobby_Publish_BroadcastsNewerSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, snapshotAt(3, nil))

	clientOut := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "ch1", Outbox: clientOut}

	// on join the client gets the current snapshot right away
	first := recvSnapshot(t, clientOut, 100*time.Millisecond)
	if first.Version != 3 {
		t.Fatalf("after join: want version=3, got %d", first.Version)
	}

	l.Inbox() <- Publish{Snapshot: snapshotAt(4, func(m *engine.Match) { m.Turn.Phase = engine.PhaseQuestionActive })}
	next := recvSnapshot(t, clientOut, 100*time.Millisecond)
	if next.Version != 4 || next.Match.Turn.Phase != engine.PhaseQuestionActive {
		t.Fatalf("after publish: want version=4 QUESTION_ACTIVE, got %d %s", next.Version, next.Match.Turn.Phase)
	}

	l.Inbox() <- Shutdown{}
}

func TestLobby_DropsStaleVersions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, snapshotAt(1, nil))
	out := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "ch1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- Publish{Snapshot: snapshotAt(5, nil)}
	l.Inbox() <- Publish{Snapshot: snapshotAt(4, nil)}
	l.Inbox() <- Publish{Snapshot: snapshotAt(5, nil)}

	if got := recvSnapshot(t, out, 100*time.Millisecond); got.Version != 5 {
		t.Fatalf("want version=5, got %d", got.Version)
	}
	recvNoSnapshot(t, out, 100*time.Millisecond)

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	if v := recvView(t, reply, 100*time.Millisecond); v.Version != 5 || v.MatchID != "m1" {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestLobby_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, snapshotAt(1, nil))

	// the join snapshot fills the only slot
	clientOut := make(chan Snapshot, 1)
	l.Inbox() <- Join{ClientID: "ch1", Outbox: clientOut}
	l.Inbox() <- Publish{Snapshot: snapshotAt(2, nil)}

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 100*time.Millisecond)

	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
}

func TestLobby_TerminalSnapshotClosesLobby(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, snapshotAt(1, nil))
	out := make(chan Snapshot, 4)
	l.Inbox() <- Join{ClientID: "ch1", Outbox: out}
	_ = recvSnapshot(t, out, 100*time.Millisecond)

	l.Inbox() <- Publish{Snapshot: snapshotAt(2, func(m *engine.Match) {
		m.Status = engine.StatusFinished
		m.WinnerUID = "A"
	})}

	final := recvSnapshot(t, out, 100*time.Millisecond)
	if final.Match.Status != engine.StatusFinished {
		t.Fatalf("want the final snapshot before close, got %s", final.Match.Status)
	}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected outbox to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox was not closed")
	}

	select {
	case <-l.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("lobby still running")
	}
}

func TestLobby_Shutdown_NoFurtherSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewLobby(ctx, snapshotAt(1, nil))

	out := make(chan Snapshot, 2)
	l.Inbox() <- Join{ClientID: "c1", Outbox: out}
	_ = recvSnapshot(t, out, 500*time.Millisecond)

	l.Inbox() <- Shutdown{}
	l.Inbox() <- Publish{Snapshot: snapshotAt(2, nil)}

	recvNoSnapshot(t, out, 200*time.Millisecond)
}
