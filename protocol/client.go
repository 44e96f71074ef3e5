package protocol

// 客户端上行消息。字段均为指针：nil 表示“未发送”，与零值（0 / false）区分

type Move struct {
	X         *float64 `json:"x"`
	Y         *float64 `json:"y"`
	Z         *float64 `json:"z"`
	RotationY *float64 `json:"rotationY"`
}

type Animation struct {
	Animation *string `json:"animation"`
}

type Jump struct {
	IsJumping *bool `json:"isJumping"`
}

// NewMove 构造一条完整的 move 消息
func NewMove(x, y, z, rotationY float64) Move {
	return Move{X: &x, Y: &y, Z: &z, RotationY: &rotationY}
}

func NewAnimation(name string) Animation { return Animation{Animation: &name} }

func NewJump(jumping bool) Jump { return Jump{IsJumping: &jumping} }
