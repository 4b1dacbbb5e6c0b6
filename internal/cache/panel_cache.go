package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-floor/internal/session"

	"go.uber.org/zap"
)

// PanelSnapshot 缓存中的面板状态
type PanelSnapshot struct {
	SessionID string               `json:"session_id"`
	UpdatedAt int64                `json:"updated_at"`
	Panels    []session.PanelState `json:"panels"`
}

// CriticalBarSnapshot 缓存中的危急条日报
type CriticalBarSnapshot struct {
	SessionID string      `json:"session_id"`
	UpdatedAt int64       `json:"updated_at"`
	Bars      [][]float64 `json:"bars"`
	Current   []float64   `json:"current"` // 当前未完成区块
}

// PanelChangeEvent 面板颜色变化事件
type PanelChangeEvent struct {
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	PID       string `json:"pid"`
	State     string `json:"state"`
	Color     string `json:"color"`
	Urgent    bool   `json:"urgent"`
	Timestamp int64  `json:"timestamp"`
}

// PanelCache 把最新面板状态写入 Redis，并把颜色变化追加到事件流
// 实现 session.Sink
type PanelCache struct {
	kv     KVStore
	events EventAppender
	stream string
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewPanelCache 创建面板缓存；events 为 nil 或 stream 为空时不发布事件
func NewPanelCache(kv KVStore, events EventAppender, stream string, ttl time.Duration, logger *zap.Logger) *PanelCache {
	return &PanelCache{
		kv:     kv,
		events: events,
		stream: stream,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// PanelsKey 面板状态缓存键
func PanelsKey(sessionID string) string {
	return fmt.Sprintf("floor:session:%s:panels", sessionID)
}

// CriticalBarsKey 危急条缓存键
func CriticalBarsKey(sessionID string) string {
	return fmt.Sprintf("floor:session:%s:critical-bars", sessionID)
}

// Publish 实现 session.Sink
// 事件追加失败只记录日志，不影响面板状态写入
func (c *PanelCache) Publish(ctx context.Context, sessionID string, states []session.PanelState, changed []session.PanelState) error {
	now := c.now()

	snapshot := PanelSnapshot{
		SessionID: sessionID,
		UpdatedAt: now.Unix(),
		Panels:    states,
	}
	if err := c.setJSON(ctx, PanelsKey(sessionID), snapshot); err != nil {
		return fmt.Errorf("failed to update panel cache: %w", err)
	}

	if c.events == nil || c.stream == "" {
		return nil
	}
	for _, st := range changed {
		event := PanelChangeEvent{
			SessionID: sessionID,
			Index:     st.Index,
			PID:       st.PID,
			State:     st.State,
			Color:     st.Color,
			Urgent:    st.Urgent,
			Timestamp: now.Unix(),
		}
		if err := c.events.Append(ctx, c.stream, event); err != nil {
			c.logger.Warn("Failed to append panel change event",
				zap.String("stream", c.stream),
				zap.String("pid", st.PID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// GetPanels 读取面板状态缓存
func (c *PanelCache) GetPanels(ctx context.Context, sessionID string) (*PanelSnapshot, error) {
	var snapshot PanelSnapshot
	if err := c.getJSON(ctx, PanelsKey(sessionID), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// UpdateCriticalBars 写入危急条日报
func (c *PanelCache) UpdateCriticalBars(ctx context.Context, sessionID string, bars [][]float64, current []float64) error {
	snapshot := CriticalBarSnapshot{
		SessionID: sessionID,
		UpdatedAt: c.now().Unix(),
		Bars:      bars,
		Current:   current,
	}
	if err := c.setJSON(ctx, CriticalBarsKey(sessionID), snapshot); err != nil {
		return fmt.Errorf("failed to update critical bar cache: %w", err)
	}
	return nil
}

// GetCriticalBars 读取危急条日报
func (c *PanelCache) GetCriticalBars(ctx context.Context, sessionID string) (*CriticalBarSnapshot, error) {
	var snapshot CriticalBarSnapshot
	if err := c.getJSON(ctx, CriticalBarsKey(sessionID), &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (c *PanelCache) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return c.kv.Set(ctx, key, string(data), c.ttl)
}

func (c *PanelCache) getJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}
