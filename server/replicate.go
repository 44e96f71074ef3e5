package server

import (
	"sort"

	"arenasync/protocol"
)

// structuralOp 一次结构变化（加入 / 移除）。加入后同 Tick 内又被移除时，
// frozen 保存移除前的最后状态，保证 add 事件仍能携带完整字段
type structuralOp struct {
	op     protocol.EventOp
	id     SessionID
	frozen *PlayerRecord
}

// changeTracker 记录两次广播之间的变化：结构变化按发生顺序，字段变化按字段合并
type changeTracker struct {
	ops   []structuralOp
	dirty map[SessionID]FieldMask
}

func newChangeTracker() changeTracker {
	return changeTracker{dirty: make(map[SessionID]FieldMask)}
}

func (t *changeTracker) added(id SessionID) {
	t.ops = append(t.ops, structuralOp{op: protocol.OpAdd, id: id})
	delete(t.dirty, id)
}

func (t *changeTracker) removed(id SessionID, last PlayerRecord) {
	for i := len(t.ops) - 1; i >= 0; i-- {
		if t.ops[i].id != id {
			continue
		}
		if t.ops[i].op == protocol.OpAdd && t.ops[i].frozen == nil {
			rec := last
			t.ops[i].frozen = &rec
		}
		break
	}
	t.ops = append(t.ops, structuralOp{op: protocol.OpRemove, id: id})
	delete(t.dirty, id)
}

func (t *changeTracker) touched(id SessionID, mask FieldMask) {
	if mask == FieldNone {
		return
	}
	t.dirty[id] |= mask
}

func (t *changeTracker) pending() bool {
	return len(t.ops) > 0 || len(t.dirty) > 0
}

func (t *changeTracker) reset() {
	t.ops = t.ops[:0]
	clear(t.dirty)
}

// Flush 生成自上次广播以来的差量并清空记录。
// 结构事件按服务端发生顺序输出；字段变化每个玩家最多一条 change，值为最新值
func (s *RoomState) Flush(tick uint64) protocol.Patch {
	patch := protocol.Patch{Tick: tick}
	if !s.changes.pending() {
		return patch
	}
	patch.Events = make([]protocol.PlayerEvent, 0, len(s.changes.ops)+len(s.changes.dirty))

	fresh := make(map[SessionID]bool)
	for _, op := range s.changes.ops {
		switch op.op {
		case protocol.OpAdd:
			rec := op.frozen
			if rec == nil {
				rec = s.players[op.id]
				fresh[op.id] = true
			}
			if rec == nil {
				continue
			}
			fields := rec.Fields(FieldAll)
			patch.Events = append(patch.Events, protocol.PlayerEvent{
				Op:        protocol.OpAdd,
				SessionID: string(op.id),
				Fields:    &fields,
			})
		case protocol.OpRemove:
			patch.Events = append(patch.Events, protocol.PlayerEvent{
				Op:        protocol.OpRemove,
				SessionID: string(op.id),
			})
		}
	}

	ids := make([]SessionID, 0, len(s.changes.dirty))
	for id := range s.changes.dirty {
		if !fresh[id] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		rec, ok := s.players[id]
		if !ok {
			continue
		}
		fields := rec.Fields(s.changes.dirty[id])
		patch.Events = append(patch.Events, protocol.PlayerEvent{
			Op:        protocol.OpChange,
			SessionID: string(id),
			Fields:    &fields,
		})
	}

	s.changes.reset()
	return patch
}
