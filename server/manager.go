package server

import (
	"errors"
	"sort"
	"sync"
)

// RoomInfo 房间列表条目
type RoomInfo struct {
	ID      string `json:"id"`
	Players int    `json:"players"`
	Phase   string `json:"phase"`
}

// RoomManager 管理多个房间的生命周期；房间之间不共享可变状态
type RoomManager struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	defaultRoom string
	settings    RoomSettings
}

func NewRoomManager(defaultRoom string, settings RoomSettings) *RoomManager {
	return &RoomManager{
		rooms:       make(map[string]*Room),
		defaultRoom: defaultRoom,
		settings:    settings,
	}
}

func (m *RoomManager) DefaultRoom() string { return m.defaultRoom }

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick
func (m *RoomManager) GetOrCreateRoom(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		r = NewRoom(id, m.settings)
		r.OnDispose = m.removeRoom
		m.rooms[id] = r
		r.StartTicker()
	}
	return r
}

// Room 查找已存在的房间
func (m *RoomManager) Room(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Join join-or-create：房间恰好在销毁时重试一次新房间
func (m *RoomManager) Join(roomID string, conn Conn) (*Room, SessionID, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		room := m.GetOrCreateRoom(roomID)
		id, err := room.Join(conn)
		if err == nil {
			return room, id, nil
		}
		lastErr = err
		if !errors.Is(err, ErrRoomClosed) {
			break
		}
		<-room.Done()
	}
	return nil, "", lastErr
}

func (m *RoomManager) removeRoom(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.ID]; ok && cur == r {
		delete(m.rooms, r.ID)
	}
}

// ListRooms 所有存活房间
func (m *RoomManager) ListRooms() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, RoomInfo{ID: id, Players: r.NumPlayers(), Phase: r.Phase().String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shutdown 停止全部房间并等待其协程退出
func (m *RoomManager) Shutdown() {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()
	for _, r := range rooms {
		r.Stop()
	}
	for _, r := range rooms {
		<-r.Done()
	}
}
