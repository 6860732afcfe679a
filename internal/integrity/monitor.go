package integrity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctor-session-service/internal/risk"
	"proctor-session-service/internal/timer"
)

// DefaultRecheckInterval is how often the environment is re-evaluated.
const DefaultRecheckInterval = 30 * time.Second

// Event is published by every detector that wants the attempt ended.
type Event struct {
	Reason string    `json:"reason"`
	Source string    `json:"source"`
	At     time.Time `json:"at"`
}

// Sink receives integrity events. It must not block.
type Sink func(Event)

// Monitor owns the passive detectors of one attempt. It is inert until Arm
// and returns to inert when the armed context ends.
type Monitor struct {
	evaluator risk.Evaluator
	interval  time.Duration
	newTicker timer.TickerFunc
	now       func() time.Time
	log       zerolog.Logger

	mu       sync.Mutex
	sink     Sink
	baseline risk.Level
	armedCtx context.Context
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithRecheckInterval overrides the environment re-check cadence.
func WithRecheckInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithTicker swaps the ticker factory, for tests.
func WithTicker(f timer.TickerFunc) Option {
	return func(m *Monitor) { m.newTicker = f }
}

// WithClock swaps the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(evaluator risk.Evaluator, log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		evaluator: evaluator,
		interval:  DefaultRecheckInterval,
		newTicker: timer.NewTicker,
		now:       time.Now,
		log:       log.With().Str("component", "integrity_monitor").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Arm enables the detectors until ctx is done. baseline is the risk level
// accepted when the attempt started.
func (m *Monitor) Arm(ctx context.Context, baseline risk.Level, sink Sink) {
	m.mu.Lock()
	m.sink = sink
	m.baseline = baseline
	m.armedCtx = ctx
	m.mu.Unlock()

	go m.recheckLoop(ctx)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		if m.armedCtx == ctx {
			m.sink = nil
			m.armedCtx = nil
		}
		m.mu.Unlock()
	}()
}

// Armed reports whether detectors are currently listening.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armedLocked()
}

func (m *Monitor) armedLocked() bool {
	return m.sink != nil && m.armedCtx != nil && m.armedCtx.Err() == nil
}

// Observe classifies a client signal. Disqualifying signals are published to
// the sink; the verdict is returned so the caller can relay blocks and
// warnings. Signals are ignored while disarmed.
func (m *Monitor) Observe(sig Signal) Verdict {
	m.mu.Lock()
	if !m.armedLocked() {
		m.mu.Unlock()
		return Verdict{}
	}
	sink := m.sink
	m.mu.Unlock()

	v := Classify(sig)
	if v.Disqualifies() {
		m.log.Warn().Str("signal", string(sig.Kind)).Str("reason", v.Reason).Msg("integrity violation")
		sink(Event{Reason: v.Reason, Source: sourceClient, At: m.now()})
	}
	return v
}

func (m *Monitor) recheckLoop(ctx context.Context) {
	t := m.newTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			m.recheck(ctx)
		}
	}
}

func (m *Monitor) recheck(ctx context.Context) {
	verdict, err := risk.SafeDetect(ctx, m.evaluator)
	if err != nil {
		if ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("environment re-check failed")
		}
		return
	}

	m.mu.Lock()
	if !m.armedLocked() || m.armedCtx != ctx {
		m.mu.Unlock()
		return
	}
	baseline := m.baseline
	sink := m.sink
	m.mu.Unlock()

	if verdict.Risky() && baseline != risk.LevelHigh {
		m.log.Warn().
			Bool("remote_access", verdict.IsRemoteAccess).
			Bool("virtual_machine", verdict.IsVirtualMachine).
			Str("previous_risk", string(baseline)).
			Msg("environment changed during assessment")
		sink(Event{Reason: ReasonEnvironment, Source: sourceEnvironmentCheck, At: m.now()})
	}
}
