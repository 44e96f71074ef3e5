package client

import (
	"testing"

	"arenasync/protocol"
)

type call struct {
	kind     string
	id       string
	fields   protocol.PlayerFields
	from, to string
}

type recordingPresenter struct {
	calls []call
}

func (p *recordingPresenter) PlayerAdded(id string, v RemotePlayerView) {
	p.calls = append(p.calls, call{kind: "add", id: id})
}

func (p *recordingPresenter) PlayerChanged(id string, f protocol.PlayerFields) {
	p.calls = append(p.calls, call{kind: "change", id: id, fields: f})
}

func (p *recordingPresenter) AnimationChanged(id, from, to string) {
	p.calls = append(p.calls, call{kind: "animation", id: id, from: from, to: to})
}

func (p *recordingPresenter) PlayerRemoved(id string) {
	p.calls = append(p.calls, call{kind: "remove", id: id})
}

func f64(v float64) *float64 { return &v }
func str(v string) *string   { return &v }

func newTestReconciler(local string) (*Reconciler, *recordingPresenter) {
	p := &recordingPresenter{}
	return NewReconciler(func() string { return local }, p, nil), p
}

func TestReconcilerSuppressesLocalPlayer(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleAdd("me", protocol.PlayerFields{X: f64(1)})
	r.HandleChange("me", protocol.PlayerFields{X: f64(2), Animation: str("punch")})
	r.HandleRemove("me")
	if r.Len() != 0 || len(p.calls) != 0 {
		t.Fatalf("local events leaked: views=%d calls=%+v", r.Len(), p.calls)
	}
}

func TestReconcilerAddDefaultsMissingFields(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleAdd("other", protocol.PlayerFields{X: f64(3)})
	v, ok := r.View("other")
	if !ok {
		t.Fatalf("view not created")
	}
	if v.TargetPosition[0] != 3 || v.TargetPosition[1] != 0 || v.TargetPosition[2] != 0 || v.TargetRotationY != 0 {
		t.Fatalf("targets = %v rot %v", v.TargetPosition, v.TargetRotationY)
	}
	if v.Animation != "idle" {
		t.Fatalf("animation = %q", v.Animation)
	}
	if len(p.calls) != 1 || p.calls[0].kind != "add" {
		t.Fatalf("calls = %+v", p.calls)
	}
}

func TestReconcilerDuplicateAddIsNoop(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleAdd("other", protocol.PlayerFields{X: f64(3)})
	r.HandleAdd("other", protocol.PlayerFields{X: f64(9)})
	v, _ := r.View("other")
	if v.TargetPosition[0] != 3 {
		t.Fatalf("duplicate add overwrote view: %v", v.TargetPosition)
	}
	if len(p.calls) != 1 {
		t.Fatalf("duplicate add notified presenter: %+v", p.calls)
	}
}

func TestReconcilerChangeUpdatesOnlyPresentFields(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleAdd("other", protocol.PlayerFields{X: f64(1), Y: f64(2), Z: f64(3), RotationY: f64(0.5)})
	p.calls = nil

	r.HandleChange("other", protocol.PlayerFields{Y: f64(0)})
	v, _ := r.View("other")
	if v.TargetPosition[0] != 1 || v.TargetPosition[1] != 0 || v.TargetPosition[2] != 3 || v.TargetRotationY != 0.5 {
		t.Fatalf("targets = %v rot %v", v.TargetPosition, v.TargetRotationY)
	}
	if len(p.calls) != 1 || p.calls[0].kind != "change" {
		t.Fatalf("calls = %+v", p.calls)
	}
}

func TestReconcilerAnimationNotifiedSeparately(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleAdd("other", protocol.PlayerFields{})
	p.calls = nil

	r.HandleChange("other", protocol.PlayerFields{Animation: str("punch")})
	if len(p.calls) != 1 || p.calls[0].kind != "animation" || p.calls[0].from != "idle" || p.calls[0].to != "punch" {
		t.Fatalf("calls = %+v", p.calls)
	}

	p.calls = nil
	r.HandleChange("other", protocol.PlayerFields{X: f64(1), Animation: str("walk")})
	if len(p.calls) != 2 || p.calls[0].kind != "change" || p.calls[1].kind != "animation" {
		t.Fatalf("calls = %+v", p.calls)
	}
	if p.calls[0].fields.Animation != nil {
		t.Fatalf("transform notification should not carry animation")
	}
}

func TestReconcilerChangeForUnknownPlayer(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleChange("ghost", protocol.PlayerFields{X: f64(1)})
	if r.Len() != 0 || len(p.calls) != 0 {
		t.Fatalf("change for unknown player created state")
	}
}

func TestReconcilerRemove(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleAdd("other", protocol.PlayerFields{})
	r.HandleRemove("other")
	r.HandleRemove("other")
	if _, ok := r.View("other"); ok {
		t.Fatalf("view not removed")
	}
	if len(p.calls) != 2 || p.calls[1].kind != "remove" {
		t.Fatalf("calls = %+v", p.calls)
	}
}

func TestReconcilerFullStateReconciles(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleAdd("stale", protocol.PlayerFields{})
	r.HandleAdd("kept", protocol.PlayerFields{})
	p.calls = nil

	r.HandleFullState(protocol.FullState{
		"me":   {X: 5, Animation: "idle"},
		"kept": {X: 2, Animation: "idle"},
		"new":  {X: 7, Animation: "walk"},
	})

	if _, ok := r.View("me"); ok {
		t.Fatalf("local player tracked from full state")
	}
	if _, ok := r.View("stale"); ok {
		t.Fatalf("stale player not removed")
	}
	kept, _ := r.View("kept")
	if kept.TargetPosition[0] != 2 {
		t.Fatalf("kept not updated: %v", kept.TargetPosition)
	}
	n, ok := r.View("new")
	if !ok || n.Animation != "walk" || n.TargetPosition[0] != 7 {
		t.Fatalf("new = %+v ok %v", n, ok)
	}
	for _, c := range p.calls {
		if c.kind == "animation" && c.id == "kept" {
			t.Fatalf("unchanged animation should not be re-notified")
		}
	}
}

func TestReconcilerResetRemovesAll(t *testing.T) {
	r, p := newTestReconciler("me")
	r.HandleAdd("a", protocol.PlayerFields{})
	r.HandleAdd("b", protocol.PlayerFields{})
	p.calls = nil
	r.Reset()
	if r.Len() != 0 || len(p.calls) != 2 {
		t.Fatalf("views=%d calls=%+v", r.Len(), p.calls)
	}
}
