package server

import (
	"testing"

	"arenasync/protocol"
)

func TestFlushCoalescesFieldUpdates(t *testing.T) {
	s := NewRoomState()
	s.CreatePlayer("abc")
	s.Flush(1)

	s.UpdatePlayer("abc", PlayerPatch{X: f64(1)})
	s.UpdatePlayer("abc", PlayerPatch{X: f64(2)})
	s.UpdatePlayer("abc", PlayerPatch{Z: f64(7)})

	patch := s.Flush(2)
	if len(patch.Events) != 1 {
		t.Fatalf("events = %d, want 1: %+v", len(patch.Events), patch.Events)
	}
	ev := patch.Events[0]
	if ev.Op != protocol.OpChange || ev.SessionID != "abc" {
		t.Fatalf("unexpected event %+v", ev)
	}
	f := ev.Fields
	if f.X == nil || *f.X != 2 {
		t.Fatalf("x = %v, want 2", f.X)
	}
	if f.Z == nil || *f.Z != 7 {
		t.Fatalf("z = %v, want 7", f.Z)
	}
	if f.Y != nil || f.RotationY != nil || f.Animation != nil || f.IsJumping != nil {
		t.Fatalf("unexpected fields in change: %+v", f)
	}
	if again := s.Flush(3); len(again.Events) != 0 {
		t.Fatalf("second flush should be empty, got %+v", again.Events)
	}
}

func TestFlushAddCarriesLatestValues(t *testing.T) {
	s := NewRoomState()
	s.CreatePlayer("abc")
	s.UpdatePlayer("abc", PlayerPatch{X: f64(4), Animation: str("walk")})

	patch := s.Flush(1)
	if len(patch.Events) != 1 || patch.Events[0].Op != protocol.OpAdd {
		t.Fatalf("want a single add, got %+v", patch.Events)
	}
	f := patch.Events[0].Fields
	if *f.X != 4 || *f.Animation != "walk" || *f.Y != 0 || *f.IsJumping {
		t.Fatalf("add fields = %+v", f)
	}
}

func TestFlushPreservesStructuralOrder(t *testing.T) {
	s := NewRoomState()
	s.CreatePlayer("a")
	s.Flush(1)

	s.CreatePlayer("b")
	s.UpdatePlayer("b", PlayerPatch{X: f64(9)})
	s.RemovePlayer("b")
	s.RemovePlayer("a")
	s.CreatePlayer("c")

	patch := s.Flush(2)
	want := []struct {
		op protocol.EventOp
		id string
	}{
		{protocol.OpAdd, "b"},
		{protocol.OpRemove, "b"},
		{protocol.OpRemove, "a"},
		{protocol.OpAdd, "c"},
	}
	if len(patch.Events) != len(want) {
		t.Fatalf("events = %+v", patch.Events)
	}
	for i, w := range want {
		if patch.Events[i].Op != w.op || patch.Events[i].SessionID != w.id {
			t.Fatalf("event %d = %+v, want %v %s", i, patch.Events[i], w.op, w.id)
		}
	}
	if x := patch.Events[0].Fields.X; x == nil || *x != 9 {
		t.Fatalf("add for removed player should carry its last state, got x=%v", x)
	}
}

func TestFlushDropsChangesOfRemovedPlayer(t *testing.T) {
	s := NewRoomState()
	s.CreatePlayer("a")
	s.Flush(1)
	s.UpdatePlayer("a", PlayerPatch{X: f64(1)})
	s.RemovePlayer("a")

	patch := s.Flush(2)
	if len(patch.Events) != 1 || patch.Events[0].Op != protocol.OpRemove {
		t.Fatalf("want a single remove, got %+v", patch.Events)
	}
}
