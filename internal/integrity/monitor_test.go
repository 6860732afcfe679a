package integrity

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor-session-service/internal/risk"
	"proctor-session-service/internal/timer"
)

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

type switchableEvaluator struct {
	mu      sync.Mutex
	verdict risk.Verdict
	err     error
}

func (s *switchableEvaluator) set(v risk.Verdict, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdict, s.err = v, err
}

func (s *switchableEvaluator) Detect(context.Context) (risk.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verdict, s.err
}

func newTestMonitor(eval risk.Evaluator) (*Monitor, *manualTicker) {
	tk := &manualTicker{ch: make(chan time.Time)}
	m := NewMonitor(eval, zerolog.Nop(), WithTicker(func(time.Duration) timer.Ticker { return tk }))
	return m, tk
}

func collect() (Sink, <-chan Event) {
	ch := make(chan Event, 8)
	return func(e Event) { ch <- e }, ch
}

func TestObserveIgnoredWhileDisarmed(t *testing.T) {
	m, _ := newTestMonitor(&switchableEvaluator{})
	v := m.Observe(Signal{Kind: SignalKeyDown, Key: "PrintScreen"})
	assert.Equal(t, Verdict{}, v)
	assert.False(t, m.Armed())
}

func TestObservePublishesDisqualification(t *testing.T) {
	m, _ := newTestMonitor(&switchableEvaluator{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink, events := collect()
	m.Arm(ctx, risk.LevelLow, sink)

	v := m.Observe(Signal{Kind: SignalCopy})
	assert.Equal(t, WarningCopy, v.Warning)

	v = m.Observe(Signal{Kind: SignalKeyDown, Key: "PrintScreen"})
	assert.True(t, v.Block)
	select {
	case e := <-events:
		assert.Equal(t, ReasonScreenshot, e.Reason)
	case <-time.After(time.Second):
		t.Fatal("expected integrity event")
	}
	assert.Len(t, events, 0)
}

func TestRecheckEscalationFromLowDisqualifies(t *testing.T) {
	eval := &switchableEvaluator{}
	m, tk := newTestMonitor(eval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink, events := collect()
	m.Arm(ctx, risk.LevelLow, sink)

	tk.ch <- time.Now()
	eval.set(risk.Verdict{IsVirtualMachine: true}, nil)
	tk.ch <- time.Now()

	select {
	case e := <-events:
		assert.Equal(t, ReasonEnvironment, e.Reason)
		assert.Equal(t, "environment-recheck", e.Source)
	case <-time.After(time.Second):
		t.Fatal("expected environment violation")
	}
}

func TestRecheckKeepsHighBaselineAndSwallowsErrors(t *testing.T) {
	eval := &switchableEvaluator{verdict: risk.Verdict{IsRemoteAccess: true}}
	m, tk := newTestMonitor(eval)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink, events := collect()
	m.Arm(ctx, risk.LevelHigh, sink)

	tk.ch <- time.Now()
	eval.set(risk.Verdict{}, context.DeadlineExceeded)
	tk.ch <- time.Now()
	// a third tick guarantees the second recheck completed
	tk.ch <- time.Now()

	assert.Len(t, events, 0)
}

func TestDisarmOnContextCancel(t *testing.T) {
	m, _ := newTestMonitor(&switchableEvaluator{})
	ctx, cancel := context.WithCancel(context.Background())
	sink, events := collect()
	m.Arm(ctx, risk.LevelLow, sink)
	require.True(t, m.Armed())

	cancel()
	require.Eventually(t, func() bool { return !m.Armed() }, time.Second, 5*time.Millisecond)
	m.Observe(Signal{Kind: SignalVisibility, Hidden: true})
	assert.Len(t, events, 0)
}
