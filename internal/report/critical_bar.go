package report

import (
	"sync"

	"wisefido-floor/internal/models"
)

// 危急条参数
const (
	ChunkSize       = 60   // 每个区块包含的更新周期数
	MaxChunks       = 24   // 每名住户保留的区块数
	BaseBar         = 0.05 // 区块起始值
	CriticalStep    = 0.1
	NeedsMedicsStep = 0.05
	MaxBar          = 1.0
)

type meter struct {
	current float64
	samples int
	chunks  []float64
}

// CriticalBars 每名住户的危急程度条（日报用）
// 只累计区块值，不保存原始生命体征
type CriticalBars struct {
	mu     sync.Mutex
	meters []meter
}

// NewCriticalBars 为 occupants 名住户创建危急条
func NewCriticalBars(occupants int) *CriticalBars {
	meters := make([]meter, occupants)
	for i := range meters {
		meters[i].current = BaseBar
	}
	return &CriticalBars{meters: meters}
}

// Observe 记录一个周期的状态；index 超出范围时忽略
func (c *CriticalBars) Observe(index int, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= len(c.meters) {
		return
	}
	m := &c.meters[index]

	switch state {
	case models.StateCritical:
		m.current += CriticalStep
	case models.StateNeedsMedics:
		m.current += NeedsMedicsStep
	}
	if m.current > MaxBar {
		m.current = MaxBar
	}

	m.samples++
	if m.samples == ChunkSize {
		m.chunks = append(m.chunks, m.current)
		if len(m.chunks) > MaxChunks {
			m.chunks = m.chunks[len(m.chunks)-MaxChunks:]
		}
		m.current = BaseBar
		m.samples = 0
	}
}

// Completed 各住户已完成区块的值（按时间顺序）
func (c *CriticalBars) Completed() [][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([][]float64, len(c.meters))
	for i, m := range c.meters {
		out[i] = append([]float64(nil), m.chunks...)
	}
	return out
}

// Current 各住户当前未完成区块的值
func (c *CriticalBars) Current() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]float64, len(c.meters))
	for i, m := range c.meters {
		out[i] = m.current
	}
	return out
}
