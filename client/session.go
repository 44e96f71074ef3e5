package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arenasync/protocol"
)

var (
	ErrAlreadyConnected = errors.New("session already connecting")
	ErrNotConnected     = errors.New("session not connected")
	ErrHandshakeTimeout = errors.New("handshake timed out")
)

const (
	defaultHandshakeTimeout = 5 * time.Second
	writeWait               = 5 * time.Second
	closeWait               = time.Second
)

// ConnectError Connect 失败的原因（拨号失败、握手超时、服务端拒绝）
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("connect %s: %v", e.URL, e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// RoomError 服务端下发的房间级错误；不会终止连接
type RoomError struct {
	Code    string
	Message string
}

func (e *RoomError) Error() string { return fmt.Sprintf("room error %s: %s", e.Code, e.Message) }

// DisconnectError 非正常断开（关闭码不是 1000/1001）
type DisconnectError struct {
	Code int
	Err  error
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf("abnormal disconnect (code %d): %v", e.Code, e.Err)
}
func (e *DisconnectError) Unwrap() error { return e.Err }

// State Disconnected → Connecting → Connected → Disconnected
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Handlers 复制事件回调；均在会话的读协程中串行调用
type Handlers struct {
	OnAdd        func(id string, fields protocol.PlayerFields)
	OnChange     func(id string, fields protocol.PlayerFields)
	OnRemove     func(id string)
	OnFullState  func(state protocol.FullState)
	OnError      func(err error)
	OnDisconnect func(graceful bool, code int)
}

type Options struct {
	// URL 服务端 WebSocket 地址，如 ws://localhost:2567/ws
	URL string
	// Room 房间名（不存在则创建），默认 game_room
	Room             string
	HandshakeTimeout time.Duration
	Dialer           *websocket.Dialer
	Logger           *zap.SugaredLogger
}

// Session 客户端会话：一个连接对应一个房间
type Session struct {
	opts Options
	log  *zap.SugaredLogger

	mu                sync.Mutex
	state             State
	conn              *websocket.Conn
	sessionID         string
	handlers          Handlers
	listenersAttached bool
	readDone          chan struct{}

	writeMu sync.Mutex
}

func NewSession(opts Options) *Session {
	if opts.Room == "" {
		opts.Room = protocol.DefaultRoomName
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Session{opts: opts, log: log}
}

// Attach 注册事件回调；已注册时忽略并返回 false，直到 Cleanup 重置
func (s *Session) Attach(h Handlers) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listenersAttached {
		s.log.Warn("listeners already attached, ignoring")
		return false
	}
	s.handlers = h
	s.listenersAttached = true
	return true
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SessionID 本地会话标识；未连接时为空
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.conn != nil && s.sessionID != ""
}

func (s *Session) dialURL() (string, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("room", s.opts.Room)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect 连接并加入房间，返回服务端分配的会话标识。
// 已连接时不做任何事并返回当前标识；握手超过 HandshakeTimeout 返回 ErrHandshakeTimeout
func (s *Session) Connect(ctx context.Context) (string, error) {
	s.mu.Lock()
	switch s.state {
	case StateConnected:
		id := s.sessionID
		s.mu.Unlock()
		s.log.Warnw("connect called while connected", "session", id)
		return id, nil
	case StateConnecting:
		s.mu.Unlock()
		s.log.Warn("connect called while connecting")
		return "", ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.mu.Unlock()

	conn, welcome, err := s.handshake(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.log.Errorw("connect failed", "url", s.opts.URL, "err", err)
		return "", &ConnectError{URL: s.opts.URL, Err: err}
	}

	done := make(chan struct{})
	s.mu.Lock()
	if s.state != StateConnecting {
		// Cleanup 在握手期间被调用
		s.mu.Unlock()
		_ = conn.Close()
		return "", &ConnectError{URL: s.opts.URL, Err: ErrNotConnected}
	}
	s.state = StateConnected
	s.conn = conn
	s.sessionID = welcome.SessionID
	s.readDone = done
	s.mu.Unlock()

	s.log.Infow("connected", "room", welcome.Room, "session", welcome.SessionID, "patchMs", welcome.PatchMs)
	go s.readLoop(conn, done)
	return welcome.SessionID, nil
}

func (s *Session) handshake(ctx context.Context) (*websocket.Conn, protocol.Welcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.HandshakeTimeout)
	defer cancel()

	target, err := s.dialURL()
	if err != nil {
		return nil, protocol.Welcome{}, err
	}
	conn, _, err := s.opts.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, protocol.Welcome{}, fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
		}
		return nil, protocol.Welcome{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	welcome, err := readWelcome(conn)
	if err != nil {
		_ = conn.Close()
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil, protocol.Welcome{}, fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
		}
		return nil, protocol.Welcome{}, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return conn, welcome, nil
}

func readWelcome(conn *websocket.Conn) (protocol.Welcome, error) {
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return protocol.Welcome{}, err
		}
		env, err := protocol.DecodeEnvelope(b)
		if err != nil {
			continue
		}
		switch env.Type {
		case protocol.MsgWelcome:
			w, err := protocol.DecodePayload[protocol.Welcome](env)
			if err != nil {
				return protocol.Welcome{}, err
			}
			if w.SessionID == "" {
				return protocol.Welcome{}, errors.New("welcome without session id")
			}
			return w, nil
		case protocol.MsgError:
			e, _ := protocol.DecodePayload[protocol.Error](env)
			return protocol.Welcome{}, &RoomError{Code: e.Code, Message: e.Message}
		}
	}
}

// SendMessage 发送一条消息；失败时记录日志并返回 false
func (s *Session) SendMessage(kind string, payload any) bool {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()
	if state != StateConnected || conn == nil {
		s.log.Warnw("send while not connected", "type", kind)
		return false
	}
	b, err := protocol.Encode(kind, payload)
	if err != nil {
		s.log.Errorw("encode failed", "type", kind, "err", err)
		return false
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.log.Errorw("send failed", "type", kind, "err", err)
		return false
	}
	return true
}

func (s *Session) Move(x, y, z, rotationY float64) bool {
	return s.SendMessage(protocol.MsgMove, protocol.NewMove(x, y, z, rotationY))
}

func (s *Session) Animate(name string) bool {
	return s.SendMessage(protocol.MsgAnimation, protocol.NewAnimation(name))
}

func (s *Session) Jump(jumping bool) bool {
	return s.SendMessage(protocol.MsgJump, protocol.NewJump(jumping))
}

func (s *Session) RequestFullState() bool {
	return s.SendMessage(protocol.MsgRequestFullState, nil)
}

// Cleanup 离开房间并清空全部内部引用；可重复调用。
// 已连接时在连接关闭后回调一次 OnDisconnect(true, 1000)
func (s *Session) Cleanup() {
	s.mu.Lock()
	conn, done, h := s.conn, s.readDone, s.handlers
	s.conn = nil
	s.sessionID = ""
	s.readDone = nil
	s.state = StateDisconnected
	s.handlers = Handlers{}
	s.listenersAttached = false
	s.mu.Unlock()

	if conn == nil {
		return
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"), time.Now().Add(writeWait))
	s.writeMu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-time.After(closeWait):
		}
	}
	_ = conn.Close()
	s.log.Info("session cleaned up")
	if h.OnDisconnect != nil {
		h.OnDisconnect(true, websocket.CloseNormalClosure)
	}
}

func (s *Session) currentHandlers(conn *websocket.Conn) (Handlers, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != conn {
		return Handlers{}, false
	}
	return s.handlers, true
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		h, ok := s.currentHandlers(conn)
		if !ok {
			return
		}
		s.dispatch(h, b)
	}
}

// dispatch 将服务端消息拆分为 add / change / remove 回调
func (s *Session) dispatch(h Handlers, b []byte) {
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		s.log.Warnw("bad envelope from server", "err", err)
		return
	}
	switch env.Type {
	case protocol.MsgSnapshot:
		snap, err := protocol.DecodePayload[protocol.Snapshot](env)
		if err != nil {
			s.log.Warnw("bad snapshot", "err", err)
			return
		}
		ids := make([]string, 0, len(snap.Players))
		for id := range snap.Players {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			if h.OnAdd != nil {
				h.OnAdd(id, snap.Players[id].Fields())
			}
		}
	case protocol.MsgPatch:
		patch, err := protocol.DecodePayload[protocol.Patch](env)
		if err != nil {
			s.log.Warnw("bad patch", "err", err)
			return
		}
		for _, ev := range patch.Events {
			var fields protocol.PlayerFields
			if ev.Fields != nil {
				fields = *ev.Fields
			}
			switch ev.Op {
			case protocol.OpAdd:
				if h.OnAdd != nil {
					h.OnAdd(ev.SessionID, fields)
				}
			case protocol.OpChange:
				if h.OnChange != nil {
					h.OnChange(ev.SessionID, fields)
				}
			case protocol.OpRemove:
				if h.OnRemove != nil {
					h.OnRemove(ev.SessionID)
				}
			default:
				s.log.Warnw("unknown patch op", "op", ev.Op, "session", ev.SessionID)
			}
		}
	case protocol.MsgFullStateResponse:
		full, err := protocol.DecodePayload[protocol.FullState](env)
		if err != nil {
			s.log.Warnw("bad full state", "err", err)
			return
		}
		if h.OnFullState != nil {
			h.OnFullState(full)
		}
	case protocol.MsgError:
		e, err := protocol.DecodePayload[protocol.Error](env)
		if err != nil {
			s.log.Warnw("bad error envelope", "err", err)
			return
		}
		s.log.Warnw("room error", "code", e.Code, "message", e.Message)
		if h.OnError != nil {
			h.OnError(&RoomError{Code: e.Code, Message: e.Message})
		}
	case protocol.MsgWelcome:
	default:
		s.log.Debugw("ignoring server message", "type", env.Type)
	}
}

func (s *Session) handleDisconnect(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		// Cleanup 已接管
		s.mu.Unlock()
		return
	}
	h := s.handlers
	id := s.sessionID
	s.conn = nil
	s.sessionID = ""
	s.readDone = nil
	s.state = StateDisconnected
	s.mu.Unlock()
	_ = conn.Close()

	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}
	graceful := code == websocket.CloseNormalClosure || code == websocket.CloseGoingAway
	if graceful {
		s.log.Infow("disconnected", "session", id, "code", code)
	} else {
		s.log.Errorw("abnormal disconnect", "session", id, "code", code, "err", err)
		if h.OnError != nil {
			h.OnError(&DisconnectError{Code: code, Err: err})
		}
	}
	if h.OnDisconnect != nil {
		h.OnDisconnect(graceful, code)
	}
}
