package scene

import (
	"context"
	"sync"

	"wisefido-floor/internal/models"
	"wisefido-floor/internal/policy"
	"wisefido-floor/internal/registry"
)

// Builder 场景构建协作方：为住户在指定槽位生成可变色面板
// 实现可以阻塞（例如等待字体资源加载）
type Builder interface {
	CreatePanel(ctx context.Context, person models.Person, slot Slot) (registry.PanelHandle, error)
}

// Panel 内存中的面板实现（无渲染，供服务端状态镜像和测试使用）
type Panel struct {
	mu    sync.RWMutex
	label string
	slot  Slot
	color policy.Color
}

// NewPanel 创建面板，初始为默认颜色
func NewPanel(label string, slot Slot) *Panel {
	return &Panel{label: label, slot: slot, color: policy.Green}
}

// SetColor 只修改材质颜色，不触碰位置和标签
func (p *Panel) SetColor(c policy.Color) {
	p.mu.Lock()
	p.color = c
	p.mu.Unlock()
}

// Color 当前颜色
func (p *Panel) Color() policy.Color {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.color
}

// Label 面板标签
func (p *Panel) Label() string { return p.label }

// Slot 面板位置
func (p *Panel) Slot() Slot { return p.slot }

// MemoryBuilder 生成内存面板的 Builder
type MemoryBuilder struct{}

// CreatePanel 实现 Builder
func (MemoryBuilder) CreatePanel(ctx context.Context, person models.Person, slot Slot) (registry.PanelHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewPanel(person.DisplayName(), slot), nil
}
