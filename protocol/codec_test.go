package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeWithoutPayload(t *testing.T) {
	b, err := Encode(MsgRequestFullState, nil)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "payload") {
		t.Fatalf("nil payload serialized: %s", b)
	}
	env, err := DecodeEnvelope(b)
	if err != nil || env.Type != MsgRequestFullState {
		t.Fatalf("decode = %+v, %v", env, err)
	}
	if _, err := DecodePayload[Move](env); !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("err = %v, want ErrEmptyPayload", err)
	}
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	for _, in := range []string{"", "{", `{"payload":{}}`, `{"type":""}`} {
		if _, err := DecodeEnvelope([]byte(in)); err == nil {
			t.Errorf("DecodeEnvelope(%q) accepted", in)
		}
	}
}

func TestPlayerFieldsOmitAbsent(t *testing.T) {
	y := 0.0
	b, err := Encode(MsgPatch, Patch{Tick: 1, Events: []PlayerEvent{
		{Op: OpChange, SessionID: "a", Fields: &PlayerFields{Y: &y}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	env, _ := DecodeEnvelope(b)
	p, err := DecodePayload[Patch](env)
	if err != nil {
		t.Fatal(err)
	}
	f := p.Events[0].Fields
	if f == nil || f.Y == nil || *f.Y != 0 {
		t.Fatalf("zero y lost: %+v", f)
	}
	if f.X != nil || f.Animation != nil || f.IsJumping != nil {
		t.Fatalf("absent fields materialised: %+v", f)
	}
}
