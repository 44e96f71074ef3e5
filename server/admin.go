package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type adminConfig struct {
	PatchMs       *int     `json:"patchMs,omitempty"`
	MaxClients    *int     `json:"maxClients,omitempty"`
	IdleDisposeMs *int     `json:"idleDisposeMs,omitempty"`
	MsgRate       *float64 `json:"msgRate,omitempty"`
	MsgBurst      *int     `json:"msgBurst,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleAdminConfig 提供房间配置的读取与更新（热更新）
// GET /admin/config?room=game_room  返回当前配置
// POST /admin/config?room=game_room 以 JSON 载荷更新部分字段
// msgRate / msgBurst 只作用于修改之后建立的连接
func HandleAdminConfig(rm *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			roomID = rm.DefaultRoom()
		}
		room, ok := rm.Room(roomID)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		switch r.Method {
		case http.MethodGet:
			s := room.Settings()
			patchMs := int(s.PatchInterval / time.Millisecond)
			idleMs := int(s.IdleDispose / time.Millisecond)
			writeJSON(w, http.StatusOK, adminConfig{
				PatchMs:       &patchMs,
				MaxClients:    &s.MaxClients,
				IdleDisposeMs: &idleMs,
				MsgRate:       &s.MsgRate,
				MsgBurst:      &s.MsgBurst,
			})
		case http.MethodPost:
			var body adminConfig
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			if body.PatchMs != nil && *body.PatchMs <= 0 {
				http.Error(w, "patchMs must be > 0", http.StatusBadRequest)
				return
			}
			if body.MsgBurst != nil && *body.MsgBurst <= 0 {
				http.Error(w, "msgBurst must be > 0", http.StatusBadRequest)
				return
			}
			err := room.UpdateSettings(func(s *RoomSettings) {
				if body.PatchMs != nil {
					s.PatchInterval = time.Duration(*body.PatchMs) * time.Millisecond
				}
				if body.MaxClients != nil {
					s.MaxClients = *body.MaxClients
				}
				if body.IdleDisposeMs != nil {
					s.IdleDispose = time.Duration(*body.IdleDisposeMs) * time.Millisecond
				}
				if body.MsgRate != nil {
					s.MsgRate = *body.MsgRate
				}
				if body.MsgBurst != nil {
					s.MsgBurst = *body.MsgBurst
				}
			})
			if err != nil {
				http.Error(w, err.Error(), http.StatusGone)
				return
			}
			s := room.Settings()
			Log.Infow("config updated", "room", roomID, "patchInterval", s.PatchInterval,
				"maxClients", s.MaxClients, "idleDispose", s.IdleDispose, "msgRate", s.MsgRate, "msgBurst", s.MsgBurst)
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=game_room
func HandleMetrics(rm *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := r.URL.Query().Get("room")
		if roomID == "" {
			roomID = rm.DefaultRoom()
		}
		room, ok := rm.Room(roomID)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"room":    roomID,
			"phase":   room.Phase().String(),
			"players": room.NumPlayers(),
			"metrics": room.Metrics().Snapshot(),
		})
	}
}

// HandleRoomStatus 列出存活房间
func HandleRoomStatus(rm *RoomManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"rooms": rm.ListRooms()})
	}
}

// HandleStatus 简单存活状态
func HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "Server running",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
