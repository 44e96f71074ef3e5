package main

import (
	"context"
	"errors"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"arenasync/client"
	"arenasync/protocol"
)

// logPresenter 无渲染的表现层：只记录远端玩家变化
type logPresenter struct {
	log *zap.SugaredLogger
}

func (p logPresenter) PlayerAdded(id string, v client.RemotePlayerView) {
	p.log.Infow("remote add", "session", id, "pos", v.TargetPosition, "rotY", v.TargetRotationY, "anim", v.Animation)
}

func (p logPresenter) PlayerChanged(id string, f protocol.PlayerFields) {
	p.log.Debugw("remote change", "session", id, "fields", f)
}

func (p logPresenter) AnimationChanged(id, from, to string) {
	p.log.Infow("remote animation", "session", id, "from", from, "to", to)
}

func (p logPresenter) PlayerRemoved(id string) {
	p.log.Infow("remote remove", "session", id)
}

// arenaclient 无界面客户端：加入房间后绕圈行走，用于联调与压测
func main() {
	wsURL := flag.String("ws", "ws://localhost:2567/ws", "server websocket url")
	room := flag.String("room", protocol.DefaultRoomName, "room to join or create")
	radius := flag.Float64("radius", 3, "walk circle radius")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	session := client.NewSession(client.Options{URL: *wsURL, Room: *room, Logger: log})
	rec := client.NewReconciler(session.SessionID, logPresenter{log: log}, log)
	session.Attach(rec.Handlers(func(err error) {
		log.Warnw("session error", "err", err)
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	id, err := session.Connect(ctx)
	if err != nil {
		log.Errorw("connect failed", "err", err)
		os.Exit(1)
	}
	defer session.Cleanup()
	log.Infow("joined", "session", id)
	session.RequestFullState()

	start := time.Now()
	source := func() client.LocalTransform {
		t := time.Since(start).Seconds()
		return client.LocalTransform{
			X:         *radius * math.Cos(t),
			Z:         *radius * math.Sin(t),
			RotationY: -t,
			Animation: "walk",
		}
	}
	if err := client.RunUpdates(ctx, session, 0, source); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnw("update loop ended", "err", err)
	}
}
