package server

import (
	"errors"
	"testing"
)

func TestDecodeClientMessage(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    ClientMessage
		wantErr error
	}{
		{"move", `{"type":"move","payload":{"x":1,"y":0,"z":2,"rotationY":0.5}}`, MoveMessage{X: 1, Y: 0, Z: 2, RotationY: 0.5}, nil},
		{"move zeros", `{"type":"move","payload":{"x":0,"y":0,"z":0,"rotationY":0}}`, MoveMessage{}, nil},
		{"move missing z", `{"type":"move","payload":{"x":1,"y":0,"rotationY":0.5}}`, nil, ErrMalformedMessage},
		{"move wrong type", `{"type":"move","payload":{"x":"1","y":0,"z":2,"rotationY":0.5}}`, nil, ErrMalformedMessage},
		{"move no payload", `{"type":"move"}`, nil, ErrMalformedMessage},
		{"animation", `{"type":"animation","payload":{"animation":"punch"}}`, AnimationMessage{Animation: "punch"}, nil},
		{"animation unknown", `{"type":"animation","payload":{"animation":"moonwalk"}}`, nil, ErrMalformedMessage},
		{"animation missing", `{"type":"animation","payload":{}}`, nil, ErrMalformedMessage},
		{"jump false", `{"type":"jump","payload":{"isJumping":false}}`, JumpMessage{IsJumping: false}, nil},
		{"jump wrong type", `{"type":"jump","payload":{"isJumping":1}}`, nil, ErrMalformedMessage},
		{"full state", `{"type":"request-full-state"}`, RequestFullStateMessage{}, nil},
		{"unknown kind", `{"type":"teleport","payload":{}}`, nil, ErrUnknownKind},
		{"garbage", `not json`, nil, ErrMalformedMessage},
		{"no type", `{"payload":{}}`, nil, ErrMalformedMessage},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := DecodeClientMessage([]byte(c.raw))
			if c.wantErr != nil {
				if !errors.Is(err, c.wantErr) {
					t.Fatalf("err = %v, want %v", err, c.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("got %#v, want %#v", got, c.want)
			}
		})
	}
}
