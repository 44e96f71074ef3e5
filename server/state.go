package server

import (
	"sort"

	"arenasync/protocol"
)

// RoomState 一个房间内全部玩家记录；只允许通过 CreatePlayer / RemovePlayer / UpdatePlayer 修改
type RoomState struct {
	players map[SessionID]*PlayerRecord
	changes changeTracker
}

func NewRoomState() *RoomState {
	return &RoomState{
		players: make(map[SessionID]*PlayerRecord),
		changes: newChangeTracker(),
	}
}

// CreatePlayer 以默认值插入玩家；已存在时不覆盖，返回 false
func (s *RoomState) CreatePlayer(id SessionID) bool {
	if _, ok := s.players[id]; ok {
		Log.Warnw("createPlayer ignored, session already present", "session", id)
		return false
	}
	s.players[id] = NewPlayerRecord()
	s.changes.added(id)
	Log.Debugw("player created", "session", id, "players", len(s.players))
	return true
}

// RemovePlayer 删除玩家；不存在时为 no-op
func (s *RoomState) RemovePlayer(id SessionID) bool {
	rec, ok := s.players[id]
	if !ok {
		return false
	}
	delete(s.players, id)
	s.changes.removed(id, *rec)
	Log.Debugw("player removed", "session", id, "players", len(s.players))
	return true
}

// UpdatePlayer 合并部分字段；未知会话记录警告并丢弃
func (s *RoomState) UpdatePlayer(id SessionID, patch PlayerPatch) bool {
	rec, ok := s.players[id]
	if !ok {
		Log.Warnw("updatePlayer for unknown session, dropped", "session", id)
		return false
	}
	s.changes.touched(id, rec.Apply(patch))
	return true
}

// Get 返回玩家记录的副本
func (s *RoomState) Get(id SessionID) (PlayerRecord, bool) {
	rec, ok := s.players[id]
	if !ok {
		return PlayerRecord{}, false
	}
	return *rec, true
}

func (s *RoomState) Has(id SessionID) bool {
	_, ok := s.players[id]
	return ok
}

func (s *RoomState) Len() int { return len(s.players) }

// IDs 当前所有会话（有序，便于测试与日志）
func (s *RoomState) IDs() []SessionID {
	ids := make([]SessionID, 0, len(s.players))
	for id := range s.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot 全量状态，用于新加入客户端的首次同步
func (s *RoomState) Snapshot(tick uint64) protocol.Snapshot {
	out := protocol.Snapshot{
		Tick:    tick,
		Players: make(map[string]protocol.PlayerSnapshot, len(s.players)),
	}
	for id, p := range s.players {
		out.Players[string(id)] = p.Snapshot()
	}
	return out
}

// FullState request-full-state 的应答内容
func (s *RoomState) FullState() protocol.FullState {
	out := make(protocol.FullState, len(s.players))
	for id, p := range s.players {
		out[string(id)] = protocol.FullStateEntry{
			X:         p.X,
			Y:         p.Y,
			Z:         p.Z,
			RotationY: p.RotationY,
			Animation: p.Animation,
		}
	}
	return out
}
