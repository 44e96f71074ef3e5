package client

import (
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

func TestLerpPosition(t *testing.T) {
	got := LerpPosition(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{2, 4, -2}, 0.5)
	if !got.ApproxEqual(mgl64.Vec3{1, 2, -1}) {
		t.Fatalf("got %v", got)
	}
	if got := LerpPosition(mgl64.Vec3{}, mgl64.Vec3{1, 1, 1}, 3); !got.ApproxEqual(mgl64.Vec3{1, 1, 1}) {
		t.Fatalf("alpha should clamp to 1, got %v", got)
	}
}

func TestLerpYawTakesShortestArc(t *testing.T) {
	from := math.Pi - 0.1
	to := -math.Pi + 0.1
	got := LerpYaw(from, to, 0.5)
	if math.Abs(math.Abs(got)-math.Pi) > 1e-9 {
		t.Fatalf("expected to cross ±π, got %v", got)
	}
}

func TestSmoothingAlpha(t *testing.T) {
	if a := SmoothingAlpha(10, 0); a != 0 {
		t.Fatalf("zero dt alpha = %v", a)
	}
	a := SmoothingAlpha(10, 16*time.Millisecond)
	if a <= 0 || a >= 1 {
		t.Fatalf("alpha = %v", a)
	}
}
