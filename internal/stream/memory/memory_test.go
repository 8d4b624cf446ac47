package memory

import (
	"testing"

	"github.com/openrover/drived/pkg/drive"
	"github.com/openrover/drived/pkg/streaming"
)

func TestSessionLifecycle(t *testing.T) {
	b := New(8)

	if err := b.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if b.Session() != nil {
		t.Error("expected no session before StartSession")
	}

	if err := b.StartSession(streaming.StartSessionPayload{SessionName: "s1"}); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if got := b.Session(); got == nil || got.SessionName != "s1" {
		t.Errorf("unexpected session: %+v", got)
	}

	if err := b.SendTick(drive.Snapshot{Tick: 1}); err != nil {
		t.Fatalf("SendTick failed: %v", err)
	}

	if err := b.EndSession(); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	if b.Session() != nil {
		t.Error("expected session cleared after EndSession")
	}
	if len(b.Events()) != 1 {
		t.Errorf("expected buffered events to survive EndSession, got %d", len(b.Events()))
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestStartSessionResetsBuffer(t *testing.T) {
	b := New(8)
	_ = b.StartSession(streaming.StartSessionPayload{SessionName: "a"})
	_ = b.SendTick(drive.Snapshot{Tick: 1})

	_ = b.StartSession(streaming.StartSessionPayload{SessionName: "b"})
	if len(b.Events()) != 0 {
		t.Errorf("expected fresh buffer on new session, got %d events", len(b.Events()))
	}
}

func TestRingEviction(t *testing.T) {
	b := New(3)
	_ = b.StartSession(streaming.StartSessionPayload{SessionName: "s"})

	for i := uint64(1); i <= 5; i++ {
		_ = b.SendTick(drive.Snapshot{Tick: i})
	}

	evs := b.Events()
	if len(evs) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(evs))
	}
	first := evs[0].Payload.(drive.Snapshot)
	last := evs[2].Payload.(drive.Snapshot)
	if first.Tick != 3 || last.Tick != 5 {
		t.Errorf("expected ticks 3..5, got %d..%d", first.Tick, last.Tick)
	}
	if b.Dropped() != 2 {
		t.Errorf("expected 2 dropped, got %d", b.Dropped())
	}

	if err := b.SendEvent(streaming.TypeFault, streaming.FaultPayload{Source: "actuator"}); err != nil {
		t.Fatalf("SendEvent failed: %v", err)
	}
	evs = b.Events()
	if evs[len(evs)-1].Type != streaming.TypeFault {
		t.Errorf("expected newest event to be a fault, got %q", evs[len(evs)-1].Type)
	}
}

func TestDefaultCapacity(t *testing.T) {
	b := New(0)
	if b.capacity != defaultCapacity {
		t.Errorf("expected default capacity %d, got %d", defaultCapacity, b.capacity)
	}
}
