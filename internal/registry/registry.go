package registry

import (
	"sync"

	"wisefido-floor/internal/policy"
)

// PanelHandle 场景中可变色的住户面板（由场景构建方提供）
type PanelHandle interface {
	SetColor(c policy.Color)
	Color() policy.Color
}

// Entry 槽位与面板的关联记录
type Entry struct {
	Index int
	PID   string
	Panel PanelHandle
}

// Registry 槽位 → 面板注册表
// 仅追加：按名册顺序注册，会话期间不删除、不重排
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	byPID   map[string]int
}

// New 创建注册表，capacity 为预期住户数
func New(capacity int) *Registry {
	if capacity < 0 {
		capacity = 0
	}
	return &Registry{
		entries: make([]Entry, 0, capacity),
		byPID:   make(map[string]int, capacity),
	}
}

// Register 追加一个面板，返回其关联记录
// 重复的 pid 仍占用新槽位，但 ByPID 始终指向最先注册的槽位
func (r *Registry) Register(pid string, panel PanelHandle) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := Entry{Index: len(r.entries), PID: pid, Panel: panel}
	r.entries = append(r.entries, e)
	if _, exists := r.byPID[pid]; !exists && pid != "" {
		r.byPID[pid] = e.Index
	}
	return e
}

// Len 已注册面板数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Ready 注册数恰好等于预期住户数时才可接受更新
func (r *Registry) Ready(expected int) bool {
	return r.Len() == expected
}

// At 按槽位取关联记录
func (r *Registry) At(index int) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.entries) {
		return Entry{}, false
	}
	return r.entries[index], true
}

// ByPID 按住户身份取关联记录
func (r *Registry) ByPID(pid string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byPID[pid]
	if !ok {
		return Entry{}, false
	}
	return r.entries[idx], true
}

// Entries 返回按槽位排序的关联记录副本
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
