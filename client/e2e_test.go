package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arenasync/client"
	"arenasync/protocol"
	"arenasync/server"
)

type note struct {
	kind string
	id   string
	from string
	to   string
}

// chanPresenter 将通知转发到 channel，供测试在读协程之外等待
type chanPresenter struct {
	ch chan note
}

func newChanPresenter() *chanPresenter { return &chanPresenter{ch: make(chan note, 256)} }

func (p *chanPresenter) PlayerAdded(id string, _ client.RemotePlayerView) {
	p.ch <- note{kind: "add", id: id}
}

func (p *chanPresenter) PlayerChanged(id string, _ protocol.PlayerFields) {
	p.ch <- note{kind: "change", id: id}
}

func (p *chanPresenter) AnimationChanged(id, from, to string) {
	p.ch <- note{kind: "animation", id: id, from: from, to: to}
}

func (p *chanPresenter) PlayerRemoved(id string) {
	p.ch <- note{kind: "remove", id: id}
}

func (p *chanPresenter) waitFor(t *testing.T, match func(note) bool) note {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case n := <-p.ch:
			if match(n) {
				return n
			}
		case <-deadline:
			t.Fatalf("timed out waiting for notification")
		}
	}
}

func startArena(t *testing.T, mutate func(s *server.RoomSettings)) string {
	t.Helper()
	settings := server.DefaultRoomSettings()
	settings.PatchInterval = 10 * time.Millisecond
	if mutate != nil {
		mutate(&settings)
	}
	rm := server.NewRoomManager(protocol.DefaultRoomName, settings)
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS(rm))
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		rm.Shutdown()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type peer struct {
	session *client.Session
	rec     *client.Reconciler
	pres    *chanPresenter
	errs    chan error
	id      string
}

func join(t *testing.T, url string) *peer {
	t.Helper()
	p := &peer{pres: newChanPresenter(), errs: make(chan error, 16)}
	p.session = client.NewSession(client.Options{URL: url})
	p.rec = client.NewReconciler(p.session.SessionID, p.pres, nil)
	p.session.Attach(p.rec.Handlers(func(err error) { p.errs <- err }))
	id, err := p.session.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	p.id = id
	t.Cleanup(p.session.Cleanup)
	return p
}

func TestTwoPlayersSeeEachOther(t *testing.T) {
	url := startArena(t, nil)
	a := join(t, url)
	b := join(t, url)
	if a.id == b.id {
		t.Fatalf("duplicate session ids")
	}

	b.pres.waitFor(t, func(n note) bool { return n.kind == "add" && n.id == a.id })
	a.pres.waitFor(t, func(n note) bool { return n.kind == "add" && n.id == b.id })

	if !a.session.Move(1, 0, 2, 0.5) {
		t.Fatalf("move not sent")
	}
	b.pres.waitFor(t, func(n note) bool { return n.kind == "change" && n.id == a.id })
	v, ok := b.rec.View(a.id)
	if !ok || v.TargetPosition[0] != 1 || v.TargetPosition[2] != 2 || v.TargetRotationY != 0.5 {
		t.Fatalf("B's view of A = %+v", v)
	}

	a.session.Animate("punch")
	n := b.pres.waitFor(t, func(n note) bool { return n.kind == "animation" && n.id == a.id })
	if n.from != "idle" || n.to != "punch" {
		t.Fatalf("animation = %s → %s", n.from, n.to)
	}

	if _, ok := a.rec.View(a.id); ok {
		t.Fatalf("local player tracked as remote")
	}

	a.session.Cleanup()
	b.pres.waitFor(t, func(n note) bool { return n.kind == "remove" && n.id == a.id })
	if _, ok := b.rec.View(a.id); ok {
		t.Fatalf("A still visible to B")
	}
	a.session.Cleanup()
	if a.session.IsConnected() {
		t.Fatalf("A still connected after cleanup")
	}
}

func TestFullStateRequest(t *testing.T) {
	url := startArena(t, nil)
	a := join(t, url)
	a.session.Move(3, 0, 4, 0)
	b := join(t, url)
	b.pres.waitFor(t, func(n note) bool { return n.kind == "add" && n.id == a.id })

	if !b.session.RequestFullState() {
		t.Fatalf("request not sent")
	}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if v, ok := b.rec.View(a.id); ok && v.TargetPosition[0] == 3 && v.TargetPosition[2] == 4 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("full state never reconciled A's position")
}

func TestUnknownKindReportsRoomError(t *testing.T) {
	url := startArena(t, nil)
	a := join(t, url)
	if !a.session.SendMessage("teleport", map[string]float64{"x": 1}) {
		t.Fatalf("send failed")
	}
	select {
	case err := <-a.errs:
		var re *client.RoomError
		if !errors.As(err, &re) || re.Code != protocol.ErrCodeUnknownKind {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no room error")
	}
	if !a.session.IsConnected() {
		t.Fatalf("room error closed the session")
	}
}

func TestRoomFullRejectsConnect(t *testing.T) {
	url := startArena(t, func(s *server.RoomSettings) { s.MaxClients = 1 })
	join(t, url)
	s := client.NewSession(client.Options{URL: url})
	_, err := s.Connect(context.Background())
	var re *client.RoomError
	if !errors.As(err, &re) || re.Code != protocol.ErrCodeRoomFull {
		t.Fatalf("err = %v, want room_full", err)
	}
}

func TestReconnectDropsPlayersThatLeft(t *testing.T) {
	url := startArena(t, nil)
	a := join(t, url)
	b := join(t, url)
	a.pres.waitFor(t, func(n note) bool { return n.kind == "add" && n.id == b.id })

	a.session.Cleanup()
	a.pres.waitFor(t, func(n note) bool { return n.kind == "remove" && n.id == b.id })
	if a.rec.Len() != 0 {
		t.Fatalf("views survived cleanup: %d", a.rec.Len())
	}

	b.session.Cleanup()

	if !a.session.Attach(a.rec.Handlers(func(err error) { a.errs <- err })) {
		t.Fatalf("re-attach rejected after cleanup")
	}
	if _, err := a.session.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if a.rec.Tracked(b.id) {
		t.Fatalf("player that left while disconnected is still tracked")
	}
	if a.rec.Len() != 0 {
		t.Fatalf("views after reconnect = %+v", a.rec.Views())
	}
}
