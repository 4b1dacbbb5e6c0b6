package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wisefido-floor/internal/models"
)

// ErrMalformedFrame 帧无法解析或缺少必要字段
var ErrMalformedFrame = errors.New("malformed frame")

// Dispatcher 接收分类后的消息（由会话实现）
type Dispatcher interface {
	HandleRoster(ctx context.Context, persons []models.Person)
	HandleVitals(ctx context.Context, batch []models.VitalsSnapshot)
}

// Source 持久数据源：Run 阻塞直到 ctx 取消或连接故障
type Source interface {
	Run(ctx context.Context) error
}

type wireFrame struct {
	Type  *float64        `json:"type"`
	Array json.RawMessage `json:"array"`
}

// Decode 解析一帧；type 和 array 均为必填
func Decode(data []byte) (models.Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if w.Type == nil {
		return models.Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	if len(w.Array) == 0 {
		return models.Frame{}, fmt.Errorf("%w: missing array", ErrMalformedFrame)
	}
	return models.Frame{Type: *w.Type, Array: w.Array}, nil
}

// Dispatch 解析并分发一帧：type 为 0 时整体替换名册，否则整体替换生命体征
// 解析失败时不调用 Dispatcher
func Dispatch(ctx context.Context, d Dispatcher, data []byte) error {
	frame, err := Decode(data)
	if err != nil {
		return err
	}

	if frame.IsRoster() {
		var persons []models.Person
		if err := json.Unmarshal(frame.Array, &persons); err != nil {
			return fmt.Errorf("%w: roster: %v", ErrMalformedFrame, err)
		}
		d.HandleRoster(ctx, persons)
		return nil
	}

	var batch []models.VitalsSnapshot
	if err := json.Unmarshal(frame.Array, &batch); err != nil {
		return fmt.Errorf("%w: vitals (type %v): %v", ErrMalformedFrame, frame.Type, err)
	}
	d.HandleVitals(ctx, batch)
	return nil
}
