package server

import (
	"math"

	"arenasync/protocol"
)

// SessionID 连接建立时分配的会话标识，在连接生命周期内稳定
type SessionID string

const DefaultAnimation = "idle"

// animations 允许复制的动画标签
var animations = map[string]struct{}{
	"idle":        {},
	"walk":        {},
	"run":         {},
	"punch":       {},
	"torso_punch": {},
	"hit":         {},
	"jump":        {},
}

// ValidAnimation 判断动画标签是否在词表内
func ValidAnimation(name string) bool {
	_, ok := animations[name]
	return ok
}

// FieldMask 标记玩家记录中被写入过的字段
type FieldMask uint8

const (
	FieldX FieldMask = 1 << iota
	FieldY
	FieldZ
	FieldRotationY
	FieldAnimation
	FieldIsJumping

	FieldNone FieldMask = 0
	FieldAll            = FieldX | FieldY | FieldZ | FieldRotationY | FieldAnimation | FieldIsJumping
)

// PlayerRecord 房间内每个会话的权威复制数据
type PlayerRecord struct {
	X         float64
	Y         float64
	Z         float64
	RotationY float64 // 弧度，(-π, π]
	Animation string
	IsJumping bool
}

func NewPlayerRecord() *PlayerRecord {
	return &PlayerRecord{Animation: DefaultAnimation}
}

// PlayerPatch 部分更新；nil 字段保持不变（合并语义，0/false 也会覆盖）
type PlayerPatch struct {
	X         *float64
	Y         *float64
	Z         *float64
	RotationY *float64
	Animation *string
	IsJumping *bool
}

// Apply 合并 patch 中存在的字段，返回被写入的字段集合
func (p *PlayerRecord) Apply(patch PlayerPatch) FieldMask {
	var mask FieldMask
	if patch.X != nil {
		p.X = *patch.X
		mask |= FieldX
	}
	if patch.Y != nil {
		p.Y = *patch.Y
		mask |= FieldY
	}
	if patch.Z != nil {
		p.Z = *patch.Z
		mask |= FieldZ
	}
	if patch.RotationY != nil {
		p.RotationY = NormalizeYaw(*patch.RotationY)
		mask |= FieldRotationY
	}
	if patch.Animation != nil {
		p.Animation = *patch.Animation
		mask |= FieldAnimation
	}
	if patch.IsJumping != nil {
		p.IsJumping = *patch.IsJumping
		mask |= FieldIsJumping
	}
	return mask
}

// Snapshot 完整字段
func (p *PlayerRecord) Snapshot() protocol.PlayerSnapshot {
	return protocol.PlayerSnapshot{
		X:         p.X,
		Y:         p.Y,
		Z:         p.Z,
		RotationY: p.RotationY,
		Animation: p.Animation,
		IsJumping: p.IsJumping,
	}
}

// Fields 仅导出 mask 中的字段（值为当前最新值）
func (p *PlayerRecord) Fields(mask FieldMask) protocol.PlayerFields {
	var f protocol.PlayerFields
	if mask&FieldX != 0 {
		x := p.X
		f.X = &x
	}
	if mask&FieldY != 0 {
		y := p.Y
		f.Y = &y
	}
	if mask&FieldZ != 0 {
		z := p.Z
		f.Z = &z
	}
	if mask&FieldRotationY != 0 {
		r := p.RotationY
		f.RotationY = &r
	}
	if mask&FieldAnimation != 0 {
		a := p.Animation
		f.Animation = &a
	}
	if mask&FieldIsJumping != 0 {
		j := p.IsJumping
		f.IsJumping = &j
	}
	return f
}

// NormalizeYaw 将任意角度归一化到 (-π, π]
func NormalizeYaw(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
