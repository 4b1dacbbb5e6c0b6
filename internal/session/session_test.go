package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"wisefido-floor/internal/models"
	"wisefido-floor/internal/policy"
	"wisefido-floor/internal/registry"
	"wisefido-floor/internal/scene"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSink struct {
	mu      sync.Mutex
	calls   int
	changed [][]PanelState
	err     error
}

func (r *recordingSink) Publish(ctx context.Context, sessionID string, states []PanelState, changed []PanelState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.changed = append(r.changed, changed)
	return r.err
}

type failingBuilder struct {
	failAt int
	calls  int
}

func (f *failingBuilder) CreatePanel(ctx context.Context, person models.Person, slot scene.Slot) (registry.PanelHandle, error) {
	defer func() { f.calls++ }()
	if f.calls == f.failAt {
		return nil, errors.New("font asset failed to load")
	}
	return scene.NewPanel(person.DisplayName(), slot), nil
}

func testRoster(n int) []models.Person {
	out := make([]models.Person, n)
	for i := range out {
		out[i] = models.Person{PID: fmt.Sprintf("p-%d", i), Name: fmt.Sprintf("Resident%d", i)}
	}
	return out
}

func stableBatch(n int) []models.VitalsSnapshot {
	out := make([]models.VitalsSnapshot, n)
	for i := range out {
		out[i] = models.VitalsSnapshot{State: "stable"}
	}
	return out
}

func colors(s *Session) []policy.Color {
	var out []policy.Color
	for _, e := range s.Registry().Entries() {
		out = append(out, e.Panel.Color())
	}
	return out
}

func builtSession(t *testing.T, n int, sink Sink) *Session {
	t.Helper()
	s := New(n, sink, zap.NewNop())
	ctx := context.Background()
	s.HandleRoster(ctx, testRoster(n))
	require.NoError(t, s.Build(ctx, scene.MemoryBuilder{}, time.Second))
	return s
}

func TestBuild_RegistersPanelsInRosterOrder(t *testing.T) {
	s := builtSession(t, 8, nil)

	entries := s.Registry().Entries()
	require.Len(t, entries, 8)
	for i, e := range entries {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, fmt.Sprintf("p-%d", i), e.PID)
		assert.Equal(t, fmt.Sprintf("Resident%d", i), e.Panel.(*scene.Panel).Label())
	}
	assert.True(t, s.Registry().Ready(8))
}

func TestBuild_WaitsForRoster(t *testing.T) {
	s := New(8, nil, zap.NewNop())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- s.Build(ctx, scene.MemoryBuilder{}, 5*time.Second) }()

	// 人数不足不放行
	s.HandleRoster(ctx, testRoster(5))
	select {
	case err := <-done:
		t.Fatalf("build finished before roster was complete: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 0, s.Registry().Len())

	s.HandleRoster(ctx, testRoster(8))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("build did not resume after roster completed")
	}
	assert.Equal(t, 8, s.Registry().Len())
}

func TestWaitRoster_TimeoutReturnsRosterIncomplete(t *testing.T) {
	s := New(8, nil, zap.NewNop())
	s.HandleRoster(context.Background(), testRoster(3))

	_, err := s.WaitRoster(context.Background(), 20*time.Millisecond)
	require.ErrorIs(t, err, ErrRosterIncomplete)
	assert.Contains(t, err.Error(), "received 3 of 8")
}

func TestWaitRoster_ContextCanceled(t *testing.T) {
	s := New(2, nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WaitRoster(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitRoster_ReturnsRosterThatResolvedGate(t *testing.T) {
	s := New(2, nil, zap.NewNop())
	ctx := context.Background()
	s.HandleRoster(ctx, testRoster(2))
	s.HandleRoster(ctx, testRoster(1))

	roster, err := s.WaitRoster(ctx, time.Second)
	require.NoError(t, err)
	assert.Len(t, roster, 2)
	assert.Len(t, s.Roster(), 1)
}

func TestBuild_OnlyOnce(t *testing.T) {
	s := builtSession(t, 2, nil)
	err := s.Build(context.Background(), scene.MemoryBuilder{}, time.Second)
	assert.ErrorIs(t, err, ErrAlreadyBuilt)
	assert.Equal(t, 2, s.Registry().Len())
}

func TestBuild_RetryAfterTimeout(t *testing.T) {
	s := New(2, nil, zap.NewNop())
	ctx := context.Background()

	err := s.Build(ctx, scene.MemoryBuilder{}, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrRosterIncomplete)

	s.HandleRoster(ctx, testRoster(2))
	require.NoError(t, s.Build(ctx, scene.MemoryBuilder{}, time.Second))
	assert.Equal(t, 2, s.Registry().Len())
}

func TestBuild_PanelCreationError(t *testing.T) {
	s := New(3, nil, zap.NewNop())
	ctx := context.Background()
	s.HandleRoster(ctx, testRoster(3))

	err := s.Build(ctx, &failingBuilder{failAt: 1}, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pid=p-1")
	assert.Equal(t, 1, s.Registry().Len())
	assert.False(t, s.Registry().Ready(3))
}

func TestHandleVitals_RecolorsByPosition(t *testing.T) {
	s := builtSession(t, 8, nil)

	batch := stableBatch(8)
	batch[0].State = "critical"
	batch[3].State = "needs medics"
	s.HandleVitals(context.Background(), batch)

	got := colors(s)
	for i, c := range got {
		assert.Equal(t, policy.ColorFor(batch[i].State), c, "slot %d", i)
	}
	assert.Equal(t, policy.Red, got[0])
	assert.Equal(t, policy.Green, got[1])
	assert.Equal(t, policy.Yellow, got[3])
}

func TestHandleVitals_EndToEnd(t *testing.T) {
	s := builtSession(t, 8, nil)

	// 只提供前两项，其余按缺失处理
	s.HandleVitals(context.Background(), []models.VitalsSnapshot{{State: "critical"}, {State: "stable"}})

	got := colors(s)
	assert.Equal(t, policy.Red, got[0])
	for i := 1; i < 8; i++ {
		assert.Equal(t, policy.Green, got[i], "slot %d", i)
	}
}

func TestHandleVitals_DroppedBeforeReady(t *testing.T) {
	sink := &recordingSink{}
	s := New(4, sink, zap.NewNop())
	ctx := context.Background()

	s.HandleVitals(ctx, []models.VitalsSnapshot{{State: "critical"}})
	assert.Equal(t, 1, s.Dropped())
	assert.Equal(t, 0, sink.calls)
	assert.Len(t, s.LatestVitals(), 1)

	s.HandleRoster(ctx, testRoster(4))
	require.NoError(t, s.Build(ctx, scene.MemoryBuilder{}, time.Second))

	// 之前的批次不会补应用
	for _, c := range colors(s) {
		assert.Equal(t, policy.Green, c)
	}
	assert.Empty(t, s.PanelStates())
}

func TestHandleVitals_Idempotent(t *testing.T) {
	sink := &recordingSink{}
	s := builtSession(t, 3, sink)
	batch := []models.VitalsSnapshot{{State: "critical"}, {State: "needs medics"}, {State: "normal"}}

	s.HandleVitals(context.Background(), batch)
	once := colors(s)
	s.HandleVitals(context.Background(), batch)

	assert.Equal(t, once, colors(s))
	require.Equal(t, 2, sink.calls)
	assert.Len(t, sink.changed[0], 2)
	assert.Empty(t, sink.changed[1])
}

func TestHandleVitals_MatchesByPID(t *testing.T) {
	s := builtSession(t, 3, nil)

	// 顺序打乱，但带有 pid
	s.HandleVitals(context.Background(), []models.VitalsSnapshot{
		{PID: "p-2", State: "critical"},
		{PID: "p-0", State: "needs medics"},
		{PID: "p-1", State: "normal"},
	})

	assert.Equal(t, []policy.Color{policy.Yellow, policy.Green, policy.Red}, colors(s))
}

func TestHandleVitals_UnknownPIDFallsBackToPosition(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := New(2, nil, zap.New(core))
	ctx := context.Background()
	s.HandleRoster(ctx, testRoster(2))
	require.NoError(t, s.Build(ctx, scene.MemoryBuilder{}, time.Second))

	// 数据源使用另一套编号，无法按身份匹配
	s.HandleVitals(ctx, []models.VitalsSnapshot{
		{PID: "1", State: "critical"},
		{PID: "2", State: "needs medics"},
	})
	assert.Equal(t, []policy.Color{policy.Red, policy.Yellow}, colors(s))

	warned := logs.FilterMessage("Vitals entries with unknown pid, matched by position").All()
	require.Len(t, warned, 1)
	assert.Equal(t, []interface{}{"1", "2"}, warned[0].ContextMap()["pids"])
}

func TestHandleVitals_MixedKnownAndUnknownPID(t *testing.T) {
	s := builtSession(t, 2, nil)
	s.HandleVitals(context.Background(), []models.VitalsSnapshot{
		{PID: "stranger", State: "critical"},
		{State: "needs medics"},
	})
	assert.Equal(t, []policy.Color{policy.Red, policy.Yellow}, colors(s))
}

func TestHandleVitals_PositionClaimedByAnotherPanel(t *testing.T) {
	s := builtSession(t, 3, nil)
	// 第 2 个槽位的同位置条目属于 p-0，不能借用
	s.HandleVitals(context.Background(), []models.VitalsSnapshot{
		{PID: "p-1", State: "critical"},
		{PID: "ghost", State: "needs medics"},
		{PID: "p-0", State: "critical"},
	})
	assert.Equal(t, []policy.Color{policy.Red, policy.Red, policy.Green}, colors(s))
}

func TestHandleVitals_ReplayAdvancesCriticalBar(t *testing.T) {
	s := builtSession(t, 1, nil)
	batch := []models.VitalsSnapshot{{State: "critical"}}
	s.HandleVitals(context.Background(), batch)
	once := s.CurrentCriticalBars()
	s.HandleVitals(context.Background(), batch)

	// 颜色幂等，但危急条按批次计数
	assert.Equal(t, []policy.Color{policy.Red}, colors(s))
	assert.InDelta(t, once[0]+0.1, s.CurrentCriticalBars()[0], 1e-9)
}

func TestHandleVitals_PanelStatesAndSinkError(t *testing.T) {
	sink := &recordingSink{err: errors.New("redis down")}
	s := builtSession(t, 2, sink)

	s.HandleVitals(context.Background(), []models.VitalsSnapshot{{State: "critical", Urgent: true}, {}})

	states := s.PanelStates()
	require.Len(t, states, 2)
	assert.Equal(t, PanelState{Index: 0, PID: "p-0", State: "critical", Color: "#ff0000", Urgent: true}, states[0])
	assert.Equal(t, "#00ff00", states[1].Color)
	assert.Equal(t, 1, sink.calls)
}

func TestHandleVitals_FeedsCriticalBars(t *testing.T) {
	s := builtSession(t, 1, nil)
	for i := 0; i < 60; i++ {
		s.HandleVitals(context.Background(), []models.VitalsSnapshot{{State: "critical"}})
	}
	bars := s.CriticalBars()
	require.Len(t, bars, 1)
	require.Len(t, bars[0], 1)
	assert.InDelta(t, 1.0, bars[0][0], 1e-9)
}

func TestNew_AssignsSessionID(t *testing.T) {
	a := New(1, nil, zap.NewNop())
	b := New(1, nil, zap.NewNop())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, 1, a.Expected())
}
