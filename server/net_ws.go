package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"arenasync/protocol"
)

var (
	// ErrSendQueueFull 客户端消费过慢
	ErrSendQueueFull = errors.New("send queue full")
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 64 << 10
	sendQueueSize  = 256
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws     *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// Send 将要发送的消息压入队列（非阻塞，满则返回错误，由房间移除该客户端）
func (c *ClientConn) Send(b []byte) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close 通知写协程发送关闭帧并断开；可重复调用
func (c *ClientConn) Close() {
	c.once.Do(func() { close(c.closed) })
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			// 先把队列里剩余的消息写完，再发送关闭帧
			for {
				select {
				case msg := <-c.send:
					_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// readPump 读取客户端消息，限流后投递到房间
func (c *ClientConn) readPump(room *Room, id SessionID, limiter *rate.Limiter) {
	consented := false
	defer func() {
		// 读泵退出时，通知房间在房间协程中移除该玩家
		room.Leave(id, consented)
		c.Close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			consented = websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
			if !consented {
				Log.Infow("read ended", "room", room.ID, "session", id, "err", err)
			}
			return
		}
		if !limiter.Allow() {
			room.Metrics().IncRateLimited()
			Log.Debugw("message rate limited", "room", room.ID, "session", id)
			continue
		}
		room.Deliver(id, payload)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 浏览器客户端与服务端分开部署：允许所有来源
		return true
	},
}

// HandleWS WebSocket 接入：/ws?room=game_room（房间不存在则创建）
func HandleWS(rm *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			roomID = rm.DefaultRoom()
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			Log.Warnw("upgrade error", "err", err)
			return
		}

		client := NewClientConn(ws)
		room, id, err := rm.Join(roomID, client)
		if err != nil {
			code := protocol.ErrCodeRoomFull
			if !errors.Is(err, ErrRoomFull) {
				code = "join_failed"
			}
			if b, encErr := protocol.Encode(protocol.MsgError, protocol.Error{Code: code, Message: err.Error()}); encErr == nil {
				_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = ws.WriteMessage(websocket.TextMessage, b)
			}
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, code), time.Now().Add(writeWait))
			_ = ws.Close()
			Log.Warnw("join failed", "room", roomID, "err", err)
			return
		}

		s := room.Settings()
		limit := rate.Inf
		if s.MsgRate > 0 {
			limit = rate.Limit(s.MsgRate)
		}
		limiter := rate.NewLimiter(limit, s.MsgBurst)
		go client.writePump()
		go client.readPump(room, id, limiter)
	}
}
