package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proctor-session-service/internal/catalog"
	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/integrity"
	"proctor-session-service/internal/proctor"
	"proctor-session-service/internal/recommend"
	"proctor-session-service/internal/risk"
	"proctor-session-service/internal/timer"
)

const (
	defaultIOTimeout = 5 * time.Second
	inboxSize        = 32
	alertBuffer      = 16
	subscriberBuffer = 8
)

// ResultReporter persists graded attempts.
type ResultReporter interface {
	SaveResult(ctx context.Context, userID, assessmentID string, sub domain.Submission) error
}

// Transition describes one phase change of an attempt.
type Transition struct {
	AssessmentID string
	UserID       string
	From         Phase
	To           Phase
	Reason       string
	Risk         risk.Level
	Result       *domain.Submission
	At           time.Time
}

// TransitionFunc observes phase changes. It runs on the controller loop and
// must not block.
type TransitionFunc func(Transition)

// Deps are the collaborators of one attempt.
type Deps struct {
	Countdown   *timer.Countdown
	Evaluator   risk.Evaluator
	Monitor     *integrity.Monitor
	Feed        *proctor.GazeFeed
	Results     ResultReporter
	Recommender recommend.Recommender
	Log         zerolog.Logger
}

type Option func(*Controller)

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTicker swaps the countdown ticker factory.
func WithTicker(f timer.TickerFunc) Option {
	return func(c *Controller) { c.newTicker = f }
}

func WithTransitions(fns ...TransitionFunc) Option {
	return func(c *Controller) { c.transitions = append(c.transitions, fns...) }
}

func WithIOTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.ioTimeout = d
		}
	}
}

type request struct {
	ev    Event
	reply chan reply
}

type reply struct {
	snap Snapshot
	err  error
}

type alert struct {
	generation uint64
	event      integrity.Event
}

// Controller owns the State of one attempt on a single goroutine. Every
// input, from user commands to detector alerts and countdown ticks, is
// serialized through it.
type Controller struct {
	deps        Deps
	now         func() time.Time
	newTicker   timer.TickerFunc
	ioTimeout   time.Duration
	transitions []TransitionFunc
	log         zerolog.Logger

	state       State
	entryCancel context.CancelFunc

	inbox  chan request
	alerts chan alert
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once

	mu          sync.RWMutex
	last        Snapshot
	subscribers map[chan Snapshot]struct{}
}

func NewController(userID, assessmentID string, deps Deps, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		deps:        deps,
		now:         time.Now,
		newTicker:   timer.NewTicker,
		ioTimeout:   defaultIOTimeout,
		state:       NewState(userID, assessmentID),
		inbox:       make(chan request, inboxSize),
		alerts:      make(chan alert, alertBuffer),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		subscribers: make(map[chan Snapshot]struct{}),
		log: deps.Log.With().
			Str("component", "session").
			Str("user_id", userID).
			Str("assessment_id", assessmentID).
			Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.last = c.state.Snapshot()
	return c
}

// Start loads content, restores any persisted attempt and starts the loop.
// A persisted disqualification wins over a persisted deadline.
func (c *Controller) Start(ctx context.Context, content catalog.Repository) error {
	var err error
	c.startOnce.Do(func() {
		err = c.restore(ctx, content)
		go c.loop()
	})
	return err
}

func (c *Controller) restore(ctx context.Context, repo catalog.Repository) error {
	loaded, err := repo.GetContent(ctx, c.state.AssessmentID)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to load assessment")
		_, _ = c.apply(LoadFailed{Err: err})
	} else {
		_, _ = c.apply(Loaded{Content: loaded})
	}

	reason, err := c.deps.Countdown.Reason(ctx)
	if err != nil {
		return fmt.Errorf("restore disqualification: %w", err)
	}
	if reason != "" {
		_, err = c.apply(RestoreDisqualified{Reason: reason})
		return err
	}

	end, ok, err := c.deps.Countdown.EndTime(ctx)
	if err != nil {
		return fmt.Errorf("restore deadline: %w", err)
	}
	if !ok || !c.state.Loaded {
		return nil
	}
	level, err := c.deps.Countdown.Risk(ctx)
	if err != nil {
		return fmt.Errorf("restore risk: %w", err)
	}
	c.log.Info().Time("end_time", end).Msg("resuming attempt from persisted deadline")
	_, err = c.apply(Resume{EndTime: end, Risk: risk.Level(level)})
	return err
}

// Dispatch applies a user command and returns the resulting snapshot.
func (c *Controller) Dispatch(ctx context.Context, ev Event) (Snapshot, error) {
	req := request{ev: ev, reply: make(chan reply, 1)}
	select {
	case c.inbox <- req:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.done:
		return Snapshot{}, domain.ErrAttemptClosed
	}
	select {
	case res := <-req.reply:
		return res.snap, res.err
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.done:
		// the loop may have answered right before stopping
		select {
		case res := <-req.reply:
			return res.snap, res.err
		default:
			return Snapshot{}, domain.ErrAttemptClosed
		}
	}
}

// Snapshot returns the latest published view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Observe forwards a client integrity signal to the monitor.
func (c *Controller) Observe(sig integrity.Signal) integrity.Verdict {
	return c.deps.Monitor.Observe(sig)
}

// ObserveGaze forwards one analysed webcam frame to the proctor feed.
func (c *Controller) ObserveGaze(s proctor.Sample) {
	if c.deps.Feed != nil {
		c.deps.Feed.Observe(s)
	}
}

// ReportRisk forwards a client-side environment risk escalation.
func (c *Controller) ReportRisk(level risk.Level) {
	if c.deps.Feed != nil {
		c.deps.Feed.ObserveRisk(level)
	}
}

// ReportFingerprint updates the environment evaluator when it accepts
// client fingerprints.
func (c *Controller) ReportFingerprint(fp risk.Fingerprint) bool {
	u, ok := c.deps.Evaluator.(interface{ Update(risk.Fingerprint) })
	if ok {
		u.Update(fp)
	}
	return ok
}

// Subscribe returns a channel of snapshots, starting with the current one.
// Slow subscribers only ever miss intermediate snapshots.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.last
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[ch]; ok {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// Done is closed once the loop has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Close stops the loop, the detectors and pending background work.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.startOnce.Do(func() { close(c.done) })
		c.cancel()
		<-c.done
		c.wg.Wait()

		c.mu.Lock()
		for ch := range c.subscribers {
			delete(c.subscribers, ch)
			close(ch)
		}
		c.mu.Unlock()
	})
}

func (c *Controller) loop() {
	defer close(c.done)
	defer c.stopEntry()
	for {
		c.drainAlerts()
		select {
		case <-c.ctx.Done():
			return
		case a := <-c.alerts:
			c.handleAlert(a)
		case req := <-c.inbox:
			// a violation raised before this event was dequeued wins over it
			c.drainAlerts()
			snap, err := c.apply(req.ev)
			if req.reply != nil {
				req.reply <- reply{snap: snap, err: err}
			} else if err != nil {
				c.log.Debug().Err(err).Str("event", req.ev.eventName()).Msg("internal event rejected")
			}
		}
	}
}

func (c *Controller) drainAlerts() {
	for {
		select {
		case a := <-c.alerts:
			c.handleAlert(a)
		default:
			return
		}
	}
}

func (c *Controller) handleAlert(a alert) {
	if _, err := c.apply(Disqualify{Generation: a.generation, Reason: a.event.Reason, Source: a.event.Source}); err != nil {
		c.log.Error().Err(err).Msg("failed to apply disqualification")
	}
}

func (c *Controller) apply(ev Event) (Snapshot, error) {
	prev := c.state
	next, effects, err := Reduce(prev, ev, c.now())
	if err != nil {
		return prev.Snapshot(), err
	}
	c.state = next
	for _, eff := range effects {
		c.execute(eff)
	}
	if prev.Phase != next.Phase {
		c.notify(prev, next)
	}
	snap := next.Snapshot()
	c.publish(snap)
	return snap, nil
}

func (c *Controller) execute(eff Effect) {
	switch e := eff.(type) {
	case DetectEnvironment:
		c.background(func(ctx context.Context) {
			v, err := risk.SafeDetect(ctx, c.deps.Evaluator)
			if err != nil {
				c.log.Warn().Err(err).Msg("environment check failed")
			}
			c.post(Verdict{Generation: e.Generation, Verdict: v, Err: err})
		})
	case StartAttempt:
		c.startEntry(e)
	case StopAttempt:
		c.stopEntry()
	case ClearTimer:
		ctx, cancel := context.WithTimeout(c.ctx, c.ioTimeout)
		defer cancel()
		if err := c.deps.Countdown.Clear(ctx); err != nil {
			c.log.Error().Err(err).Msg("failed to clear persisted deadline")
		}
	case PersistDisqualification:
		c.log.Warn().
			Str("reason", e.Reason).
			Str("risk", string(c.state.Risk)).
			Msg("attempt disqualified")
		ctx, cancel := context.WithTimeout(c.ctx, c.ioTimeout)
		defer cancel()
		if err := c.deps.Countdown.Disqualify(ctx, e.Reason); err != nil {
			c.log.Error().Err(err).Msg("failed to persist disqualification")
		}
	case ClearDisqualification:
		ctx, cancel := context.WithTimeout(c.ctx, c.ioTimeout)
		defer cancel()
		if err := c.deps.Countdown.ClearReason(ctx); err != nil {
			c.log.Error().Err(err).Msg("failed to clear disqualification reason")
		}
	case SubmitResults:
		if c.deps.Results == nil {
			return
		}
		userID, assessmentID := c.state.UserID, c.state.AssessmentID
		// a graded attempt is saved even when the controller is closed right after
		c.backgroundFrom(context.WithoutCancel(c.ctx), func(ctx context.Context) {
			if err := c.deps.Results.SaveResult(ctx, userID, assessmentID, e.Submission); err != nil {
				c.log.Error().Err(err).Msg("failed to save assessment results")
				return
			}
			c.log.Info().Int("percentage", e.Submission.Percentage).Bool("passing", e.Submission.IsPassing).Msg("assessment results saved")
		})
	case RequestRecommendations:
		c.background(func(ctx context.Context) {
			c.post(c.recommend(ctx, e))
		})
	default:
		c.log.Error().Str("effect", eff.effectName()).Msg("unhandled effect")
	}
}

func (c *Controller) recommend(ctx context.Context, e RequestRecommendations) Recommendations {
	out := Recommendations{Generation: e.Generation}
	if c.deps.Recommender != nil {
		topics, err := c.deps.Recommender.Recommend(ctx, e.Request)
		if err == nil {
			out.Topics = topics
			return out
		}
		c.log.Warn().Err(err).Msg("recommendations unavailable, using focus areas")
	}
	out.FocusAreas = recommend.FocusAreas(e.Prompts)
	return out
}

func (c *Controller) startEntry(e StartAttempt) {
	c.stopEntry()

	if e.Persist {
		ctx, cancel := context.WithTimeout(c.ctx, c.ioTimeout)
		if err := c.deps.Countdown.Persist(ctx, e.EndTime); err != nil {
			c.log.Error().Err(err).Msg("failed to persist deadline")
		}
		if err := c.deps.Countdown.SetRisk(ctx, string(e.Risk), e.EndTime); err != nil {
			c.log.Error().Err(err).Msg("failed to persist risk level")
		}
		cancel()
	}

	entry, cancel := context.WithCancel(c.ctx)
	c.entryCancel = cancel
	sink := c.sinkFor(e.Generation)
	c.deps.Monitor.Arm(entry, e.Risk, sink)
	if c.deps.Feed != nil {
		c.deps.Feed.Start(entry, sink)
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.countdown(entry, e.Generation)
	}()
}

func (c *Controller) stopEntry() {
	if c.entryCancel != nil {
		c.entryCancel()
		c.entryCancel = nil
	}
}

// sinkFor stamps detector events with the entry they were armed for.
func (c *Controller) sinkFor(generation uint64) integrity.Sink {
	return func(ev integrity.Event) {
		select {
		case c.alerts <- alert{generation: generation, event: ev}:
		default:
			// the attempt is already being disqualified
			c.log.Debug().Str("reason", ev.Reason).Msg("integrity alert dropped")
		}
	}
}

// countdown re-reads the persisted deadline every second.
func (c *Controller) countdown(ctx context.Context, generation uint64) {
	t := c.newTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
			tick := Tick{Generation: generation}
			end, ok, err := c.deps.Countdown.EndTime(ctx)
			switch {
			case err != nil && ctx.Err() != nil:
				return
			case err != nil:
				c.log.Warn().Err(err).Msg("failed to read persisted deadline")
			case ok:
				tick.EndTime = end
			}
			c.postCtx(ctx, tick)
		}
	}
}

func (c *Controller) background(fn func(ctx context.Context)) {
	c.backgroundFrom(c.ctx, fn)
}

func (c *Controller) backgroundFrom(parent context.Context, fn func(ctx context.Context)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(parent, 4*c.ioTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (c *Controller) post(ev Event) {
	c.postCtx(c.ctx, ev)
}

func (c *Controller) postCtx(ctx context.Context, ev Event) {
	select {
	case c.inbox <- request{ev: ev}:
	case <-ctx.Done():
	case <-c.done:
	}
}

func (c *Controller) notify(prev, next State) {
	t := Transition{
		AssessmentID: next.AssessmentID,
		UserID:       next.UserID,
		From:         prev.Phase,
		To:           next.Phase,
		Reason:       next.Reason,
		Risk:         next.Risk,
		At:           c.now(),
	}
	if next.Phase == PhaseResults && next.Result != nil {
		sub := next.Result.Submission()
		t.Result = &sub
	}
	c.log.Info().Str("from", string(t.From)).Str("to", string(t.To)).Msg("phase changed")
	for _, fn := range c.transitions {
		fn(t)
	}
}

func (c *Controller) publish(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = snap
	for ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			// drop the oldest pending snapshot so a slow client never blocks the loop
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
