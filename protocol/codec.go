package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyPayload 表示消息缺少 payload
var ErrEmptyPayload = errors.New("protocol: empty payload")

// Encode 将 payload 包装为 Envelope 并序列化；payload 可为 nil（如 request-full-state）
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("protocol: encode envelope with empty type")
	}
	env := Envelope{Type: t}
	if payload != nil {
		pb, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("protocol: encode %s payload: %w", t, err)
		}
		env.Payload = pb
	}
	return json.Marshal(env)
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("protocol: decode envelope of size 0")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %w", err)
	}
	if e.Type == "" {
		return Envelope{}, fmt.Errorf("protocol: envelope without type")
	}
	return e, nil
}

// DecodePayload 将 Envelope 的 payload 解码为 T
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return out, fmt.Errorf("%w for type %q", ErrEmptyPayload, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("protocol: decode %s payload: %w", env.Type, err)
	}
	return out, nil
}
