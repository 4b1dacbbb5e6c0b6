package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wisefido-floor/internal/models"
	"wisefido-floor/internal/policy"
	"wisefido-floor/internal/registry"
	"wisefido-floor/internal/report"
	"wisefido-floor/internal/scene"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrRosterIncomplete 等待超时时名册仍未达到预期人数
	ErrRosterIncomplete = errors.New("roster incomplete")
	// ErrAlreadyBuilt 场景已构建（每个会话只构建一次）
	ErrAlreadyBuilt = errors.New("scene already built")
)

// PanelState 一个槽位在最近一批更新后的状态
type PanelState struct {
	Index  int    `json:"index"`
	PID    string `json:"pid"`
	State  string `json:"state"`
	Color  string `json:"color"`
	Urgent bool   `json:"urgent"`
}

// Sink 接收每批生命体征应用后的面板状态
// changed 仅包含颜色发生变化的槽位
type Sink interface {
	Publish(ctx context.Context, sessionID string, states []PanelState, changed []PanelState) error
}

// Session 楼层视图会话：持有名册、最新生命体征、面板注册表和名册就绪门
// 数据源和场景构建方各自持有它的引用
type Session struct {
	id       string
	expected int
	sink     Sink
	logger   *zap.Logger

	mu       sync.Mutex
	persons  []models.Person
	latest   []models.VitalsSnapshot
	states   []PanelState
	building bool
	dropped  int

	registry *registry.Registry
	bars     *report.CriticalBars

	readyOnce   sync.Once
	rosterReady chan struct{}
	readyRoster []models.Person
}

// New 创建会话；expected 为预期住户数，sink 可为 nil
func New(expected int, sink Sink, logger *zap.Logger) *Session {
	return &Session{
		id:          uuid.New().String(),
		expected:    expected,
		sink:        sink,
		logger:      logger,
		registry:    registry.New(expected),
		bars:        report.NewCriticalBars(expected),
		rosterReady: make(chan struct{}),
	}
}

// ID 会话标识
func (s *Session) ID() string { return s.id }

// Expected 预期住户数
func (s *Session) Expected() int { return s.expected }

// Registry 面板注册表
func (s *Session) Registry() *registry.Registry { return s.registry }

// HandleRoster 整体替换名册；人数恰好等于预期时放行就绪门（只放行一次）
func (s *Session) HandleRoster(ctx context.Context, persons []models.Person) {
	roster := append([]models.Person(nil), persons...)

	s.mu.Lock()
	s.persons = roster
	s.mu.Unlock()

	if len(roster) != s.expected {
		s.logger.Warn("Roster size does not match expected occupants",
			zap.String("session_id", s.id),
			zap.Int("received", len(roster)),
			zap.Int("expected", s.expected),
		)
		return
	}

	s.readyOnce.Do(func() {
		s.readyRoster = roster
		close(s.rosterReady)
		s.logger.Info("Roster complete",
			zap.String("session_id", s.id),
			zap.Int("occupants", len(roster)),
		)
	})
}

// WaitRoster 等待名册就绪
// timeout 为 0 时不设超时；超时返回 ErrRosterIncomplete
func (s *Session) WaitRoster(ctx context.Context, timeout time.Duration) ([]models.Person, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-s.rosterReady:
		return append([]models.Person(nil), s.readyRoster...), nil
	case <-expired:
		return nil, fmt.Errorf("%w: received %d of %d occupants after %s",
			ErrRosterIncomplete, len(s.Roster()), s.expected, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Build 等待名册就绪后按名册顺序创建面板并注册
// 等待失败可以重试；一旦开始创建面板，会话不再允许再次构建
func (s *Session) Build(ctx context.Context, builder scene.Builder, timeout time.Duration) error {
	s.mu.Lock()
	if s.building {
		s.mu.Unlock()
		return ErrAlreadyBuilt
	}
	s.building = true
	s.mu.Unlock()

	roster, err := s.WaitRoster(ctx, timeout)
	if err != nil {
		s.mu.Lock()
		s.building = false
		s.mu.Unlock()
		return err
	}

	slots := scene.Layout(len(roster))
	for i, person := range roster {
		panel, err := builder.CreatePanel(ctx, person, slots[i])
		if err != nil {
			return fmt.Errorf("failed to create panel %d (pid=%s): %w", i, person.PID, err)
		}
		s.registry.Register(person.PID, panel)
	}

	grid := scene.GridFor(len(roster))
	s.logger.Info("Scene built",
		zap.String("session_id", s.id),
		zap.Int("panels", s.registry.Len()),
		zap.Int("grid_columns", grid.Columns),
		zap.Int("grid_rows", grid.Rows),
	)
	return nil
}

// HandleVitals 整体替换最新生命体征；注册表就绪时重新着色所有面板
// 注册表未就绪时丢弃本批（不排队、不重试）
func (s *Session) HandleVitals(ctx context.Context, batch []models.VitalsSnapshot) {
	s.mu.Lock()
	s.latest = append([]models.VitalsSnapshot(nil), batch...)

	if !s.registry.Ready(s.expected) {
		s.dropped++
		s.mu.Unlock()
		s.logger.Debug("Vitals batch dropped, panels not ready",
			zap.String("session_id", s.id),
			zap.Int("panels", s.registry.Len()),
			zap.Int("expected", s.expected),
		)
		return
	}

	if len(batch) != s.expected {
		s.logger.Warn("Vitals batch size does not match roster",
			zap.String("session_id", s.id),
			zap.Int("received", len(batch)),
			zap.Int("expected", s.expected),
		)
	}

	states, changed := s.apply(batch)
	s.states = states
	s.mu.Unlock()

	if s.sink == nil {
		return
	}
	if err := s.sink.Publish(ctx, s.id, states, changed); err != nil {
		s.logger.Error("Failed to publish panel states",
			zap.String("session_id", s.id),
			zap.Error(err),
		)
	}
}

// apply 为每个槽位匹配生命体征并着色（调用方持有 s.mu）
func (s *Session) apply(batch []models.VitalsSnapshot) ([]PanelState, []PanelState) {
	// 只收录能对应到已注册面板的 pid
	byPID := make(map[string]models.VitalsSnapshot)
	var unknown []string
	for _, v := range batch {
		if v.PID == "" {
			continue
		}
		if _, ok := s.registry.ByPID(v.PID); !ok {
			unknown = append(unknown, v.PID)
			continue
		}
		byPID[v.PID] = v
	}
	if len(unknown) > 0 {
		s.logger.Warn("Vitals entries with unknown pid, matched by position",
			zap.String("session_id", s.id),
			zap.Strings("pids", unknown),
		)
	}

	entries := s.registry.Entries()
	states := make([]PanelState, 0, len(entries))
	var changed []PanelState

	for _, e := range entries {
		snap := matchVitals(e, batch, byPID)
		color := policy.ColorFor(snap.State)
		prev := e.Panel.Color()
		e.Panel.SetColor(color)
		// 危急条按已应用的批次计数：同一批次重放两次会计两个周期
		s.bars.Observe(e.Index, snap.State)

		st := PanelState{
			Index:  e.Index,
			PID:    e.PID,
			State:  snap.State,
			Color:  color.Hex(),
			Urgent: snap.Urgent,
		}
		states = append(states, st)
		if prev != color {
			changed = append(changed, st)
		}
	}
	return states, changed
}

// matchVitals 先按 pid 匹配；未命中时取同位置的条目，
// 除非该条目的 pid 属于另一个已注册面板。都不满足时返回零值（默认颜色）
func matchVitals(e registry.Entry, batch []models.VitalsSnapshot, byPID map[string]models.VitalsSnapshot) models.VitalsSnapshot {
	if v, ok := byPID[e.PID]; ok && e.PID != "" {
		return v
	}
	if e.Index >= len(batch) {
		return models.VitalsSnapshot{}
	}
	pos := batch[e.Index]
	if _, claimed := byPID[pos.PID]; claimed {
		return models.VitalsSnapshot{}
	}
	return pos
}

// Roster 当前名册副本
func (s *Session) Roster() []models.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Person(nil), s.persons...)
}

// LatestVitals 最近一批生命体征副本
func (s *Session) LatestVitals() []models.VitalsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.VitalsSnapshot(nil), s.latest...)
}

// PanelStates 最近一次着色后的面板状态
func (s *Session) PanelStates() []PanelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PanelState(nil), s.states...)
}

// Dropped 因注册表未就绪而丢弃的批次数
func (s *Session) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// CriticalBars 各住户已完成区块的危急条
func (s *Session) CriticalBars() [][]float64 {
	return s.bars.Completed()
}

// CurrentCriticalBars 各住户当前未完成区块的值
func (s *Session) CurrentCriticalBars() []float64 {
	return s.bars.Current()
}
