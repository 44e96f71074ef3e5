package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"arenasync/protocol"
)

var (
	// ErrRoomClosed 房间已销毁
	ErrRoomClosed = errors.New("room closed")
	// ErrRoomFull 达到最大客户端数
	ErrRoomFull = errors.New("room full")
)

// Conn 房间向客户端发送数据的抽象；Send 不得阻塞房间线程
type Conn interface {
	Send([]byte) error
	Close()
}

// RoomPhase Created → Active → Disposed
type RoomPhase int32

const (
	PhaseCreated RoomPhase = iota
	PhaseActive
	PhaseDisposed
)

func (p RoomPhase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseActive:
		return "active"
	case PhaseDisposed:
		return "disposed"
	}
	return "unknown"
}

// RoomSettings 房间参数，可通过 /admin/config 热更新
type RoomSettings struct {
	PatchInterval time.Duration // 差量广播间隔
	MaxClients    int           // 0 表示不限制
	IdleDispose   time.Duration // 无人后自动销毁的等待时间，0 表示永不
	MsgRate       float64       // 每连接每秒入站消息数，0 表示不限制；只作用于之后建立的连接
	MsgBurst      int           // 必须 > 0
}

func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		PatchInterval: time.Second / protocol.PatchHz,
		MaxClients:    16,
		MsgRate:       60,
		MsgBurst:      30,
	}
}

type member struct {
	conn   Conn
	synced bool // 是否已收到全量快照；之后才接收差量
}

type joinCmd struct {
	conn  Conn
	reply chan joinResult
}

type joinResult struct {
	id  SessionID
	err error
}

type leaveCmd struct {
	id        SessionID
	consented bool
}

type messageCmd struct {
	id  SessionID
	raw []byte
}

type execCmd struct {
	fn   func(r *Room)
	done chan struct{}
}

// Room 房间控制器：权威状态维护在内存，所有修改与广播在同一协程内串行执行
type Room struct {
	ID string

	state   *RoomState
	members map[SessionID]*member
	inbox   chan any
	quit    chan struct{}
	done    chan struct{}

	settingsMu sync.RWMutex
	settings   RoomSettings

	ticker    *time.Ticker
	tickSeq   uint64
	idleSince time.Time

	phase      atomic.Int32
	numPlayers atomic.Int32
	stopOnce   sync.Once

	tickerStarted bool
	metrics       *RoomMetrics

	// newSessionID 分配会话标识，测试中可替换
	newSessionID func() SessionID
	// OnDispose 房间销毁时在房间协程中回调
	OnDispose func(r *Room)
}

// NewRoom 创建房间，初始化数据结构
func NewRoom(id string, settings RoomSettings) *Room {
	if settings.PatchInterval <= 0 {
		settings.PatchInterval = DefaultRoomSettings().PatchInterval
	}
	return &Room{
		ID:           id,
		state:        NewRoomState(),
		members:      make(map[SessionID]*member),
		inbox:        make(chan any, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
		settings:     settings,
		metrics:      NewRoomMetrics(),
		newSessionID: func() SessionID { return SessionID(uuid.NewString()) },
	}
}

func (r *Room) Phase() RoomPhase { return RoomPhase(r.phase.Load()) }

func (r *Room) NumPlayers() int { return int(r.numPlayers.Load()) }

func (r *Room) Metrics() *RoomMetrics { return r.metrics }

// Done 房间协程退出后关闭
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Settings() RoomSettings {
	r.settingsMu.RLock()
	defer r.settingsMu.RUnlock()
	return r.settings
}

// Join 加入房间，返回分配的会话标识
func (r *Room) Join(conn Conn) (SessionID, error) {
	reply := make(chan joinResult, 1)
	select {
	case r.inbox <- joinCmd{conn: conn, reply: reply}:
	case <-r.done:
		return "", ErrRoomClosed
	}
	select {
	case res := <-reply:
		return res.id, res.err
	case <-r.done:
		select {
		case res := <-reply:
			return res.id, res.err
		default:
			return "", ErrRoomClosed
		}
	}
}

// Leave 请求在房间协程中移除玩家；为保证移除一定生效，这里阻塞写入
func (r *Room) Leave(id SessionID, consented bool) {
	select {
	case r.inbox <- leaveCmd{id: id, consented: consented}:
	case <-r.done:
	}
}

// Deliver 投递一条原始入站消息（非阻塞，收件箱满则丢弃）
func (r *Room) Deliver(id SessionID, raw []byte) {
	select {
	case r.inbox <- messageCmd{id: id, raw: raw}:
	default:
		r.metrics.IncChanFullDiscarded()
		Log.Warnw("room inbox full, message dropped", "room", r.ID, "session", id)
	}
}

// exec 在房间协程中执行 fn 并等待完成
func (r *Room) exec(fn func(r *Room)) error {
	done := make(chan struct{})
	select {
	case r.inbox <- execCmd{fn: fn, done: done}:
	case <-r.done:
		return ErrRoomClosed
	}
	select {
	case <-done:
		return nil
	case <-r.done:
		return ErrRoomClosed
	}
}

// UpdateSettings 修改房间参数，广播间隔立即生效
func (r *Room) UpdateSettings(fn func(s *RoomSettings)) error {
	return r.exec(func(r *Room) {
		r.settingsMu.Lock()
		fn(&r.settings)
		if r.settings.PatchInterval <= 0 {
			r.settings.PatchInterval = DefaultRoomSettings().PatchInterval
		}
		interval := r.settings.PatchInterval
		r.settingsMu.Unlock()
		if r.ticker != nil {
			r.ticker.Reset(interval)
		}
	})
}

// StateSnapshot 当前全量状态的副本
func (r *Room) StateSnapshot() (protocol.Snapshot, error) {
	var snap protocol.Snapshot
	err := r.exec(func(r *Room) { snap = r.state.Snapshot(r.tickSeq) })
	return snap, err
}

// Stop 关闭房间（进程退出时）
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

func (r *Room) handleCommand(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		id, err := r.handleJoin(c.conn)
		c.reply <- joinResult{id: id, err: err}
	case leaveCmd:
		r.handleLeave(c.id, c.consented)
	case messageCmd:
		r.handleMessage(c.id, c.raw)
	case execCmd:
		c.fn(r)
		close(c.done)
	}
}

func (r *Room) handleJoin(conn Conn) (SessionID, error) {
	if r.Phase() == PhaseDisposed {
		return "", ErrRoomClosed
	}
	if limit := r.Settings().MaxClients; limit > 0 && len(r.members) >= limit {
		Log.Warnw("join rejected, room full", "room", r.ID, "max", limit)
		return "", ErrRoomFull
	}
	id := r.newSessionID()
	if !r.state.CreatePlayer(id) {
		return "", errors.New("duplicate session id")
	}
	m := &member{conn: conn}
	r.members[id] = m
	r.numPlayers.Store(int32(len(r.members)))

	welcome := protocol.Welcome{
		SessionID: string(id),
		Room:      r.ID,
		PatchMs:   int(r.Settings().PatchInterval / time.Millisecond),
	}
	if err := r.send(m, protocol.MsgWelcome, welcome); err != nil {
		r.removeMember(id, false)
		return "", err
	}
	Log.Infow("player joined", "room", r.ID, "session", id, "players", r.state.Len())
	return id, nil
}

func (r *Room) handleLeave(id SessionID, consented bool) {
	if _, ok := r.members[id]; !ok {
		return
	}
	r.removeMember(id, consented)
	Log.Infow("player left", "room", r.ID, "session", id, "consented", consented, "players", r.state.Len())
}

// removeMember 关闭连接并从状态中移除，移除事件在下一个 Tick 广播
func (r *Room) removeMember(id SessionID, consented bool) {
	if m, ok := r.members[id]; ok {
		m.conn.Close()
		delete(r.members, id)
	}
	r.state.RemovePlayer(id)
	r.numPlayers.Store(int32(len(r.members)))
	if len(r.members) == 0 {
		r.idleSince = time.Now()
	}
}

// handleMessage 校验并分发入站消息；任何错误都只丢弃该消息
func (r *Room) handleMessage(id SessionID, raw []byte) {
	m, ok := r.members[id]
	if !ok {
		r.metrics.IncUnknownSession()
		Log.Warnw("message from unknown session, dropped", "room", r.ID, "session", id)
		return
	}
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		r.metrics.IncMalformed()
		Log.Warnw("message dropped", "room", r.ID, "session", id, "err", err)
		code := protocol.ErrCodeMalformed
		if errors.Is(err, ErrUnknownKind) {
			code = protocol.ErrCodeUnknownKind
		}
		r.sendError(id, m, code, err.Error())
		return
	}
	r.metrics.IncAccepted()
	switch msg := msg.(type) {
	case MoveMessage:
		r.state.UpdatePlayer(id, msg.Patch())
	case AnimationMessage:
		r.state.UpdatePlayer(id, msg.Patch())
	case JumpMessage:
		r.state.UpdatePlayer(id, msg.Patch())
	case RequestFullStateMessage:
		full := r.state.FullState()
		Log.Debugw("sending full state", "room", r.ID, "session", id, "players", len(full))
		if err := r.send(m, protocol.MsgFullStateResponse, full); err != nil {
			r.dropSlow(id, err)
		}
	}
}

func (r *Room) sendError(id SessionID, m *member, code, message string) {
	if err := r.send(m, protocol.MsgError, protocol.Error{Code: code, Message: message}); err != nil {
		r.dropSlow(id, err)
	}
}

func (r *Room) send(m *member, t string, payload any) error {
	b, err := protocol.Encode(t, payload)
	if err != nil {
		Log.Errorw("encode failed", "room", r.ID, "type", t, "err", err)
		return nil
	}
	return r.sendRaw(m, b)
}

func (r *Room) sendRaw(m *member, b []byte) error {
	if err := m.conn.Send(b); err != nil {
		return err
	}
	r.metrics.AddBytes(len(b))
	return nil
}

// dropSlow 发送失败的客户端会被移除，保证在线客户端不会漏掉任何结构变化
func (r *Room) dropSlow(id SessionID, err error) {
	r.metrics.IncSlowConsumers()
	Log.Warnw("dropping client after send failure", "room", r.ID, "session", id, "err", err)
	r.removeMember(id, false)
}
