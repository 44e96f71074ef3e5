package protocol

// Welcome 连接建立后服务端下发的会话身份
type Welcome struct {
	SessionID string `json:"sessionId"`
	Room      string `json:"room"`
	PatchMs   int    `json:"patchMs"`
}

// PlayerSnapshot 完整的玩家记录
type PlayerSnapshot struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	RotationY float64 `json:"rotationY"`
	Animation string  `json:"animation"`
	IsJumping bool    `json:"isJumping"`
}

// PlayerFields 部分字段（nil = 本次未变化）
type PlayerFields struct {
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Z         *float64 `json:"z,omitempty"`
	RotationY *float64 `json:"rotationY,omitempty"`
	Animation *string  `json:"animation,omitempty"`
	IsJumping *bool    `json:"isJumping,omitempty"`
}

// Fields 将完整快照转换为全部字段存在的 PlayerFields
func (s PlayerSnapshot) Fields() PlayerFields {
	return PlayerFields{
		X:         &s.X,
		Y:         &s.Y,
		Z:         &s.Z,
		RotationY: &s.RotationY,
		Animation: &s.Animation,
		IsJumping: &s.IsJumping,
	}
}

// Empty 是否不包含任何字段
func (f PlayerFields) Empty() bool {
	return f.X == nil && f.Y == nil && f.Z == nil && f.RotationY == nil && f.Animation == nil && f.IsJumping == nil
}

type EventOp string

const (
	OpAdd    EventOp = "add"
	OpChange EventOp = "change"
	OpRemove EventOp = "remove"
)

// PlayerEvent 差量中的一条记录；add 携带全部字段，change 仅携带变化字段，remove 无字段
type PlayerEvent struct {
	Op        EventOp       `json:"op"`
	SessionID string        `json:"sessionId"`
	Fields    *PlayerFields `json:"fields,omitempty"`
}

// Patch 一个广播 Tick 内合并后的差量
type Patch struct {
	Tick   uint64        `json:"tick"`
	Events []PlayerEvent `json:"events"`
}

// Snapshot 新加入客户端在第一份差量前收到的全量状态
type Snapshot struct {
	Tick    uint64                    `json:"tick"`
	Players map[string]PlayerSnapshot `json:"players"`
}

// FullStateEntry request-full-state 的单播应答条目
type FullStateEntry struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	RotationY float64 `json:"rotationY"`
	Animation string  `json:"animation"`
}

type FullState map[string]FullStateEntry

// Error 房间级错误（不会因此断开连接）
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeMalformed   = "malformed"
	ErrCodeUnknownKind = "unknown_kind"
	ErrCodeRoomFull    = "room_full"
	ErrCodeRateLimited = "rate_limited"
)
