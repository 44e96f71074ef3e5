package client

import (
	"context"
	"math"
	"time"

	"arenasync/protocol"
)

const (
	positionEpsilon   = 0.001
	rotationEpsilon   = 0.01
	keepaliveInterval = 2 * time.Second
)

// LocalTransform 表现层每个上行周期提供的本地玩家状态
type LocalTransform struct {
	X, Y, Z   float64
	RotationY float64
	Animation string
	IsJumping bool
}

// Sender 上行通道（由 Session 实现）
type Sender interface {
	IsConnected() bool
	SendMessage(kind string, payload any) bool
}

// Updater 决定本周期需要发送哪些消息：位置变化超过阈值或超过保活间隔才发送 move，
// 动画与跳跃状态仅在变化时发送
type Updater struct {
	sender Sender

	sentMove      bool
	lastMove      LocalTransform
	lastMoveAt    time.Time
	lastAnimation string
	lastJumping   bool
	sentJump      bool
}

func NewUpdater(sender Sender) *Updater {
	return &Updater{sender: sender}
}

// Step 处理一次上行周期
func (u *Updater) Step(now time.Time, t LocalTransform) {
	if !u.sender.IsConnected() {
		return
	}
	if u.shouldSendMove(now, t) {
		if u.sender.SendMessage(protocol.MsgMove, protocol.NewMove(t.X, t.Y, t.Z, t.RotationY)) {
			u.sentMove = true
			u.lastMove = t
			u.lastMoveAt = now
		}
	}
	if t.Animation != "" && t.Animation != u.lastAnimation {
		if u.sender.SendMessage(protocol.MsgAnimation, protocol.NewAnimation(t.Animation)) {
			u.lastAnimation = t.Animation
		}
	}
	if !u.sentJump || t.IsJumping != u.lastJumping {
		if u.sender.SendMessage(protocol.MsgJump, protocol.NewJump(t.IsJumping)) {
			u.sentJump = true
			u.lastJumping = t.IsJumping
		}
	}
}

func (u *Updater) shouldSendMove(now time.Time, t LocalTransform) bool {
	if !u.sentMove {
		return true
	}
	if now.Sub(u.lastMoveAt) >= keepaliveInterval {
		return true
	}
	p := u.lastMove
	return math.Abs(t.X-p.X) > positionEpsilon ||
		math.Abs(t.Y-p.Y) > positionEpsilon ||
		math.Abs(t.Z-p.Z) > positionEpsilon ||
		math.Abs(t.RotationY-p.RotationY) > rotationEpsilon
}

// RunUpdates 每个 interval 读取一次本地状态并上行，直到 ctx 结束
func RunUpdates(ctx context.Context, sender Sender, interval time.Duration, source func() LocalTransform) error {
	if interval <= 0 {
		interval = time.Second / protocol.ClientUpdateHz
	}
	u := NewUpdater(sender)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			u.Step(now, source())
		}
	}
}
