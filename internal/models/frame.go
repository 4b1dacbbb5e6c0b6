package models

import "encoding/json"

// FrameTypeRoster 名册快照帧；其它任意数值（含小数）均视为生命体征批次
const FrameTypeRoster = 0.0

// Frame 数据源推送的 JSON 帧：{ "type": number, "array": [...] }
type Frame struct {
	Type  float64         `json:"type"` // 数据源可能发送 0.0、1.0 这类浮点数
	Array json.RawMessage `json:"array"`
}

// IsRoster 是否为名册快照帧
func (f Frame) IsRoster() bool {
	return f.Type == FrameTypeRoster
}
