package policy

import (
	"fmt"

	"wisefido-floor/internal/models"
)

// Color 面板显示颜色（0xRRGGBB）
type Color uint32

// 面板颜色
const (
	Red    Color = 0xff0000 // 危急
	Yellow Color = 0xffff00 // 需要医护
	Green  Color = 0x00ff00 // 正常（默认）
)

// Hex 返回 #rrggbb 形式
func (c Color) Hex() string {
	return fmt.Sprintf("#%06x", uint32(c))
}

// ColorFor 根据生命体征状态标签返回面板颜色
// 纯函数：未知或缺失的标签一律为绿色
func ColorFor(state string) Color {
	switch state {
	case models.StateCritical:
		return Red
	case models.StateNeedsMedics:
		return Yellow
	default:
		return Green
	}
}
