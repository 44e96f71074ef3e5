package server

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// RoomMetrics 记录房间运行期的关键指标（用于监控与调试）
type RoomMetrics struct {
	TickCount         int64 // 广播 Tick 次数
	PatchesSent       int64 // 实际发出的非空差量
	SnapshotsSent     int64 // 新加入客户端的全量同步
	MessagesAccepted  int64 // 被接受的入站消息
	Malformed         int64 // 因格式错误被丢弃的消息
	UnknownSession    int64 // 找不到会话的消息
	RateLimited       int64 // 因限流被丢弃的消息
	ChanFullDiscarded int64 // 因房间收件箱满被丢弃的消息
	SlowConsumers     int64 // 因发送队列满被移除的客户端
	BytesSent         int64 // 发出的字节数（含单播）
	TotalTickNs       int64 // Tick 累计耗时（纳秒）

	startedAt time.Time
}

func NewRoomMetrics() *RoomMetrics {
	return &RoomMetrics{startedAt: time.Now()}
}

func (m *RoomMetrics) IncPatches()           { atomic.AddInt64(&m.PatchesSent, 1) }
func (m *RoomMetrics) IncSnapshots()         { atomic.AddInt64(&m.SnapshotsSent, 1) }
func (m *RoomMetrics) IncAccepted()          { atomic.AddInt64(&m.MessagesAccepted, 1) }
func (m *RoomMetrics) IncMalformed()         { atomic.AddInt64(&m.Malformed, 1) }
func (m *RoomMetrics) IncUnknownSession()    { atomic.AddInt64(&m.UnknownSession, 1) }
func (m *RoomMetrics) IncRateLimited()       { atomic.AddInt64(&m.RateLimited, 1) }
func (m *RoomMetrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *RoomMetrics) IncSlowConsumers()     { atomic.AddInt64(&m.SlowConsumers, 1) }
func (m *RoomMetrics) AddBytes(n int)        { atomic.AddInt64(&m.BytesSent, int64(n)) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	bytes := atomic.LoadInt64(&m.BytesSent)
	return map[string]any{
		"tick_count":          tick,
		"patches_sent":        atomic.LoadInt64(&m.PatchesSent),
		"snapshots_sent":      atomic.LoadInt64(&m.SnapshotsSent),
		"messages_accepted":   atomic.LoadInt64(&m.MessagesAccepted),
		"malformed":           atomic.LoadInt64(&m.Malformed),
		"unknown_session":     atomic.LoadInt64(&m.UnknownSession),
		"rate_limited":        atomic.LoadInt64(&m.RateLimited),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"slow_consumers":      atomic.LoadInt64(&m.SlowConsumers),
		"bytes_sent":          bytes,
		"bytes_sent_human":    humanize.Bytes(uint64(bytes)),
		"avg_tick_ms":         avgMs,
		"started":             humanize.Time(m.startedAt),
	}
}
