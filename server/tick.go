package server

import (
	"time"

	"arenasync/protocol"
)

// StartTicker 启动房间协程（单线程推进：入站命令与广播 Tick 串行执行）
func (r *Room) StartTicker() {
	if r.tickerStarted {
		return
	}
	r.tickerStarted = true
	go r.Run()
}

// Run 房间主循环；命令处理与 Tick 互不抢占，Tick 总是看到一致的状态
func (r *Room) Run() {
	defer close(r.done)
	r.ticker = time.NewTicker(r.Settings().PatchInterval)
	defer r.ticker.Stop()

	r.idleSince = time.Now()
	r.phase.Store(int32(PhaseActive))
	Log.Infow("room active", "room", r.ID, "patchInterval", r.Settings().PatchInterval)

	for {
		select {
		case <-r.quit:
			r.dispose("shutdown")
			return
		case cmd := <-r.inbox:
			r.handleCommand(cmd)
		case now := <-r.ticker.C:
			// 核心循环：生成差量 → 广播 → 给新加入者全量同步
			start := time.Now()
			r.tick(now)
			r.metrics.AddTick(time.Since(start).Nanoseconds())
		}
		if r.Phase() == PhaseDisposed {
			return
		}
	}
}

func (r *Room) tick(now time.Time) {
	r.tickSeq++
	r.BroadcastDelta()
	r.syncJoiners()

	idle := r.Settings().IdleDispose
	if idle > 0 && len(r.members) == 0 && now.Sub(r.idleSince) >= idle {
		r.dispose("idle")
	}
}

// BroadcastDelta 将本 Tick 合并后的差量发给所有已同步的客户端
func (r *Room) BroadcastDelta() {
	patch := r.state.Flush(r.tickSeq)
	if len(patch.Events) == 0 {
		return
	}
	b, err := protocol.Encode(protocol.MsgPatch, patch)
	if err != nil {
		Log.Errorw("encode patch failed", "room", r.ID, "err", err)
		return
	}
	var failed []SessionID
	for id, m := range r.members {
		if !m.synced {
			continue
		}
		if err := r.sendRaw(m, b); err != nil {
			failed = append(failed, id)
		}
	}
	r.metrics.IncPatches()
	for _, id := range failed {
		r.dropSlow(id, ErrSendQueueFull)
	}
}

// syncJoiners 新加入者先收到全量快照（已包含本 Tick 的差量），之后才接收差量
func (r *Room) syncJoiners() {
	var (
		b      []byte
		failed []SessionID
	)
	for id, m := range r.members {
		if m.synced {
			continue
		}
		if b == nil {
			var err error
			b, err = protocol.Encode(protocol.MsgSnapshot, r.state.Snapshot(r.tickSeq))
			if err != nil {
				Log.Errorw("encode snapshot failed", "room", r.ID, "err", err)
				return
			}
		}
		if err := r.sendRaw(m, b); err != nil {
			failed = append(failed, id)
			continue
		}
		m.synced = true
		r.metrics.IncSnapshots()
	}
	for _, id := range failed {
		r.dropSlow(id, ErrSendQueueFull)
	}
}

// dispose 关闭所有连接并进入 Disposed
func (r *Room) dispose(reason string) {
	if r.Phase() == PhaseDisposed {
		return
	}
	for id, m := range r.members {
		m.conn.Close()
		delete(r.members, id)
	}
	r.numPlayers.Store(0)
	r.phase.Store(int32(PhaseDisposed))
	Log.Infow("room disposed", "room", r.ID, "reason", reason)
	if r.OnDispose != nil {
		r.OnDispose(r)
	}
}
