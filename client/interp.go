package client

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// SmoothingAlpha 帧率无关的插值系数：1 - e^(-rate*dt)
func SmoothingAlpha(rate float64, dt time.Duration) float64 {
	if rate <= 0 || dt <= 0 {
		return 0
	}
	return mgl64.Clamp(1-math.Exp(-rate*dt.Seconds()), 0, 1)
}

// LerpPosition 将渲染位置向目标推进 alpha
func LerpPosition(rendered, target mgl64.Vec3, alpha float64) mgl64.Vec3 {
	alpha = mgl64.Clamp(alpha, 0, 1)
	return rendered.Add(target.Sub(rendered).Mul(alpha))
}

// LerpYaw 沿最短弧线插值朝向，结果位于 (-π, π]
func LerpYaw(rendered, target, alpha float64) float64 {
	alpha = mgl64.Clamp(alpha, 0, 1)
	diff := math.Mod(target-rendered, 2*math.Pi)
	if diff > math.Pi {
		diff -= 2 * math.Pi
	} else if diff < -math.Pi {
		diff += 2 * math.Pi
	}
	return normalizeYaw(rendered + diff*alpha)
}

func normalizeYaw(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	} else if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
