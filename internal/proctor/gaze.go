// Package proctor aggregates webcam gaze observations reported by the client
// into threshold-based disqualification events.
package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctor-session-service/internal/integrity"
	"proctor-session-service/internal/risk"
	"proctor-session-service/internal/timer"
)

const (
	ReasonLookingAway = "Looking away for more than 5 seconds"
	ReasonFaceMissing = "Face not detected for more than 5 seconds"
	ReasonRepeated    = "Repeated gaze violations detected"
	ReasonHighRisk    = "High-risk environment detected during assessment"

	source = "proctor"
)

// Sample is one analysed webcam frame.
type Sample struct {
	FacePresent bool    `json:"facePresent"`
	EyeRatio    float64 `json:"eyeRatio" validate:"gte=0,lte=1"`
}

// Config holds the gaze thresholds.
type Config struct {
	// LookAwayThreshold is how long one look-away must last to count as a violation.
	LookAwayThreshold time.Duration
	// DisqualifyAfter is the continuous look-away that disqualifies at once.
	DisqualifyAfter time.Duration
	// MaxViolations must be exceeded to disqualify.
	MaxViolations int
	// StaleAfter treats a silent feed as a missing face.
	StaleAfter     time.Duration
	SampleInterval time.Duration
	MinEyeRatio    float64
	MaxEyeRatio    float64
}

// DefaultConfig mirrors the thresholds the proctoring client was tuned for.
func DefaultConfig() Config {
	return Config{
		LookAwayThreshold: 2 * time.Second,
		DisqualifyAfter:   5 * time.Second,
		MaxViolations:     5,
		StaleAfter:        3 * time.Second,
		SampleInterval:    time.Second,
		MinEyeRatio:       0.24,
		MaxEyeRatio:       0.45,
	}
}

// GazeFeed is the proctor feed of one attempt.
type GazeFeed struct {
	cfg       Config
	newTicker timer.TickerFunc
	now       func() time.Time
	log       zerolog.Logger

	mu          sync.Mutex
	sink        integrity.Sink
	armedCtx    context.Context
	lastSample  time.Time
	awaySince   time.Time
	faceMissing bool
	counted     bool
	violations  int
	fired       bool
	paused      bool
}

// Option customizes a GazeFeed.
type Option func(*GazeFeed)

func WithTicker(f timer.TickerFunc) Option {
	return func(g *GazeFeed) { g.newTicker = f }
}

func WithClock(now func() time.Time) Option {
	return func(g *GazeFeed) { g.now = now }
}

func NewGazeFeed(cfg Config, log zerolog.Logger, opts ...Option) *GazeFeed {
	def := DefaultConfig()
	if cfg.LookAwayThreshold <= 0 {
		cfg.LookAwayThreshold = def.LookAwayThreshold
	}
	if cfg.DisqualifyAfter <= 0 {
		cfg.DisqualifyAfter = def.DisqualifyAfter
	}
	if cfg.MaxViolations <= 0 {
		cfg.MaxViolations = def.MaxViolations
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = def.SampleInterval
	}
	if cfg.MaxEyeRatio <= cfg.MinEyeRatio {
		cfg.MinEyeRatio, cfg.MaxEyeRatio = def.MinEyeRatio, def.MaxEyeRatio
	}
	g := &GazeFeed{
		cfg:       cfg,
		newTicker: timer.NewTicker,
		now:       time.Now,
		log:       log.With().Str("component", "gaze_feed").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start arms the feed until ctx is done and runs its sampling loop.
func (g *GazeFeed) Start(ctx context.Context, sink integrity.Sink) {
	g.mu.Lock()
	g.sink = sink
	g.armedCtx = ctx
	g.lastSample = g.now()
	g.awaySince = time.Time{}
	g.counted = false
	g.violations = 0
	g.fired = false
	g.mu.Unlock()

	go g.loop(ctx)
}

// Pause suspends the feed while no client can send samples. A silent feed
// is not treated as a missing face until Resume.
func (g *GazeFeed) Pause() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

// Resume restarts sampling from a clean episode.
func (g *GazeFeed) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	g.lastSample = g.now()
	g.awaySince = time.Time{}
	g.faceMissing = false
	g.counted = false
}

// Violations returns the number of counted look-away episodes.
func (g *GazeFeed) Violations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.violations
}

// Observe records one sample. Samples are ignored while disarmed or paused.
func (g *GazeFeed) Observe(s Sample) {
	g.mu.Lock()
	if !g.armedLocked() || g.paused {
		g.mu.Unlock()
		return
	}
	now := g.now()
	g.lastSample = now
	away := !s.FacePresent || s.EyeRatio < g.cfg.MinEyeRatio || s.EyeRatio > g.cfg.MaxEyeRatio
	switch {
	case away && g.awaySince.IsZero():
		g.awaySince = now
		g.counted = false
		g.faceMissing = !s.FacePresent
	case away:
		g.faceMissing = !s.FacePresent
	default:
		g.awaySince = time.Time{}
	}
	ev, fire := g.checkLocked(now)
	sink := g.sink
	g.mu.Unlock()

	if fire {
		sink(ev)
	}
}

// ObserveRisk escalates a client-reported environment risk.
func (g *GazeFeed) ObserveRisk(level risk.Level) {
	if level != risk.LevelHigh {
		return
	}
	g.mu.Lock()
	if !g.armedLocked() || g.fired {
		g.mu.Unlock()
		return
	}
	g.fired = true
	sink := g.sink
	now := g.now()
	g.mu.Unlock()

	g.log.Warn().Msg("client reported high-risk environment")
	sink(integrity.Event{Reason: ReasonHighRisk, Source: source, At: now})
}

func (g *GazeFeed) armedLocked() bool {
	return g.sink != nil && g.armedCtx != nil && g.armedCtx.Err() == nil
}

func (g *GazeFeed) loop(ctx context.Context) {
	t := g.newTicker(g.cfg.SampleInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			g.mu.Lock()
			if g.armedCtx == ctx {
				g.sink = nil
				g.armedCtx = nil
			}
			g.mu.Unlock()
			return
		case <-t.C():
			g.sweep(ctx)
		}
	}
}

func (g *GazeFeed) sweep(ctx context.Context) {
	g.mu.Lock()
	if !g.armedLocked() || g.armedCtx != ctx || g.paused {
		g.mu.Unlock()
		return
	}
	now := g.now()
	if g.awaySince.IsZero() && now.Sub(g.lastSample) >= g.cfg.StaleAfter {
		g.awaySince = g.lastSample
		g.counted = false
		g.faceMissing = true
	}
	ev, fire := g.checkLocked(now)
	sink := g.sink
	g.mu.Unlock()

	if fire {
		sink(ev)
	}
}

func (g *GazeFeed) checkLocked(now time.Time) (integrity.Event, bool) {
	if g.fired || g.awaySince.IsZero() {
		return integrity.Event{}, false
	}
	away := now.Sub(g.awaySince)
	if away >= g.cfg.LookAwayThreshold && !g.counted {
		g.counted = true
		g.violations++
		g.log.Debug().Int("violations", g.violations).Dur("away", away).Msg("gaze violation")
	}

	var reason string
	switch {
	case away >= g.cfg.DisqualifyAfter && g.faceMissing:
		reason = ReasonFaceMissing
	case away >= g.cfg.DisqualifyAfter:
		reason = ReasonLookingAway
	case g.violations > g.cfg.MaxViolations:
		reason = ReasonRepeated
	default:
		return integrity.Event{}, false
	}
	g.fired = true
	g.log.Warn().Str("reason", reason).Int("violations", g.violations).Msg("proctor threshold reached")
	return integrity.Event{Reason: reason, Source: source, At: now}, true
}
