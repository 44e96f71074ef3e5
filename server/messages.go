package server

import (
	"errors"
	"fmt"
	"math"

	"arenasync/protocol"
)

var (
	// ErrMalformedMessage payload 缺少必填字段或类型错误
	ErrMalformedMessage = errors.New("malformed message")
	// ErrUnknownKind 未知消息类型
	ErrUnknownKind = errors.New("unknown message kind")
)

// ClientMessage 经过校验的入站消息（封闭集合）
type ClientMessage interface {
	Kind() string
	isClientMessage()
}

// MoveMessage {"type":"move","payload":{"x":1,"y":0,"z":2,"rotationY":0.5}}
type MoveMessage struct {
	X, Y, Z   float64
	RotationY float64
}

type AnimationMessage struct {
	Animation string
}

type JumpMessage struct {
	IsJumping bool
}

type RequestFullStateMessage struct{}

func (MoveMessage) Kind() string             { return protocol.MsgMove }
func (AnimationMessage) Kind() string        { return protocol.MsgAnimation }
func (JumpMessage) Kind() string             { return protocol.MsgJump }
func (RequestFullStateMessage) Kind() string { return protocol.MsgRequestFullState }

func (MoveMessage) isClientMessage()             {}
func (AnimationMessage) isClientMessage()        {}
func (JumpMessage) isClientMessage()             {}
func (RequestFullStateMessage) isClientMessage() {}

// Patch 转换为对应的部分更新
func (m MoveMessage) Patch() PlayerPatch {
	return PlayerPatch{X: &m.X, Y: &m.Y, Z: &m.Z, RotationY: &m.RotationY}
}

func (m AnimationMessage) Patch() PlayerPatch { return PlayerPatch{Animation: &m.Animation} }

func (m JumpMessage) Patch() PlayerPatch { return PlayerPatch{IsJumping: &m.IsJumping} }

// DecodeClientMessage 解析并校验一条文本消息；任何错误都只会导致该消息被丢弃
func DecodeClientMessage(b []byte) (ClientMessage, error) {
	env, err := protocol.DecodeEnvelope(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	switch env.Type {
	case protocol.MsgMove:
		p, err := protocol.DecodePayload[protocol.Move](env)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if p.X == nil || p.Y == nil || p.Z == nil || p.RotationY == nil {
			return nil, fmt.Errorf("%w: move requires x, y, z and rotationY", ErrMalformedMessage)
		}
		m := MoveMessage{X: *p.X, Y: *p.Y, Z: *p.Z, RotationY: *p.RotationY}
		if !finite(m.X, m.Y, m.Z, m.RotationY) {
			return nil, fmt.Errorf("%w: move has non-finite values", ErrMalformedMessage)
		}
		return m, nil
	case protocol.MsgAnimation:
		p, err := protocol.DecodePayload[protocol.Animation](env)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if p.Animation == nil {
			return nil, fmt.Errorf("%w: animation requires animation", ErrMalformedMessage)
		}
		if !ValidAnimation(*p.Animation) {
			return nil, fmt.Errorf("%w: unknown animation %q", ErrMalformedMessage, *p.Animation)
		}
		return AnimationMessage{Animation: *p.Animation}, nil
	case protocol.MsgJump:
		p, err := protocol.DecodePayload[protocol.Jump](env)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if p.IsJumping == nil {
			return nil, fmt.Errorf("%w: jump requires isJumping", ErrMalformedMessage)
		}
		return JumpMessage{IsJumping: *p.IsJumping}, nil
	case protocol.MsgRequestFullState:
		return RequestFullStateMessage{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
