package protocol

import (
	"encoding/json"
)

// 客户端 → 服务端
const (
	MsgMove             = "move"
	MsgAnimation        = "animation"
	MsgJump             = "jump"
	MsgRequestFullState = "request-full-state"
)

// 服务端 → 客户端
const (
	MsgWelcome           = "welcome"
	MsgSnapshot          = "snapshot"
	MsgPatch             = "patch"
	MsgFullStateResponse = "full-state-response"
	MsgError             = "error"
)

const (
	// DefaultRoomName 未指定房间时 join-or-create 的房间名
	DefaultRoomName = "game_room"
	// PatchHz 服务端差量广播频率（50ms）
	PatchHz = 20
	// ClientUpdateHz 客户端上行 move 的最高频率（50ms）
	ClientUpdateHz = 20
)

// Envelope 所有 WebSocket 文本消息的外层结构
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"` // raw payload bytes
}
