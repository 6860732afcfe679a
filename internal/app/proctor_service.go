package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"proctor-session-service/internal/catalog"
	"proctor-session-service/internal/integrity"
	"proctor-session-service/internal/proctor"
	"proctor-session-service/internal/recommend"
	"proctor-session-service/internal/risk"
	"proctor-session-service/internal/session"
	"proctor-session-service/internal/timer"
)

// AttemptRepository abstracts where live attempts are registered (in-memory, Redis, etc).
type AttemptRepository interface {
	Get(userID, assessmentID string) (*Attempt, bool)
	// Add registers a unless an attempt for the same pair exists. It returns
	// the registered attempt and whether a was stored.
	Add(a *Attempt) (*Attempt, bool)
	// Remove forgets a if it is still the registered attempt for its pair.
	Remove(a *Attempt)
	// Touch extends any external liveness marker of a registered attempt.
	Touch(a *Attempt)
	All() []*Attempt
}

// Settings tune the per-attempt collaborators.
type Settings struct {
	TimerTTL        time.Duration
	ReasonTTL       time.Duration
	RecheckInterval time.Duration
	Proctor         proctor.Config
}

// Dependencies are shared by every attempt the service opens.
type Dependencies struct {
	Content     catalog.Repository
	Timers      timer.Store
	Results     session.ResultReporter
	Recommender recommend.Recommender
	Transitions []session.TransitionFunc
	Log         zerolog.Logger
}

// ProctorService contains the attempt lifecycle use cases.
type ProctorService struct {
	attempts AttemptRepository
	deps     Dependencies
	settings Settings
	now      func() time.Time
	sf       singleflight.Group
}

func NewProctorService(attempts AttemptRepository, deps Dependencies, settings Settings) *ProctorService {
	return &ProctorService{
		attempts: attempts,
		deps:     deps,
		settings: settings,
		now:      time.Now,
	}
}

// Attempt is one user's live attempt at one assessment.
type Attempt struct {
	*session.Controller

	ID           string
	UserID       string
	AssessmentID string
	OpenedAt     time.Time

	feed *proctor.GazeFeed

	mu       sync.Mutex
	conns    int
	ready    bool
	finished bool
	released bool
}

// NewAttempt is exported for infrastructure layers that need to seed registries.
func NewAttempt(userID, assessmentID string, ctrl *session.Controller) *Attempt {
	return &Attempt{
		Controller:   ctrl,
		ID:           uuid.NewString(),
		UserID:       userID,
		AssessmentID: assessmentID,
		OpenedAt:     time.Now(),
	}
}

// Key identifies the user/assessment pair of an attempt.
func Key(userID, assessmentID string) string {
	return userID + ":" + assessmentID
}

func (a *Attempt) Key() string {
	return Key(a.UserID, a.AssessmentID)
}

// Closed reports whether the attempt's controller has stopped.
func (a *Attempt) Closed() bool {
	select {
	case <-a.Done():
		return true
	default:
		return false
	}
}

// IsIdle reports whether no client is attached.
func (a *Attempt) IsIdle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conns == 0
}

func (a *Attempt) isReleased() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.released
}

// attach fails once the attempt has been released.
func (a *Attempt) attach() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return false
	}
	a.conns++
	if a.conns == 1 && a.feed != nil {
		a.feed.Resume()
	}
	return true
}

// detach reports whether the last client left and whether the attempt had
// already reached a terminal phase by then.
func (a *Attempt) detach() (idle, finished bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conns > 0 {
		a.conns--
	}
	if a.conns == 0 && a.feed != nil {
		a.feed.Pause()
	}
	return a.conns == 0, a.finished
}

func (a *Attempt) markReady() {
	a.mu.Lock()
	a.ready = true
	a.mu.Unlock()
}

// setFinished records whether the attempt is in a terminal phase and reports
// whether it can be released right away.
func (a *Attempt) setFinished(v bool) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finished = v
	return v && a.ready && a.conns == 0 && !a.released
}

// markReleased claims the release of an idle attempt exactly once.
func (a *Attempt) markReleased() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released || a.conns > 0 {
		return false
	}
	a.released = true
	return true
}

// Open returns the live attempt for the pair, starting a new one (content
// load plus restore of persisted timer state) when none is running. Every
// successful Open must be paired with Leave.
func (s *ProctorService) Open(ctx context.Context, userID, assessmentID string) (*Attempt, error) {
	key := Key(userID, assessmentID)
	for {
		result, err, _ := s.sf.Do(key, func() (interface{}, error) {
			if a, ok := s.attempts.Get(userID, assessmentID); ok {
				if !a.Closed() && !a.isReleased() {
					return a, nil
				}
				s.attempts.Remove(a)
			}

			a := s.newAttempt(userID, assessmentID)
			if err := a.Start(ctx, s.deps.Content); err != nil {
				a.Close()
				return nil, err
			}
			stored, added := s.attempts.Add(a)
			if !added {
				a.Close()
			} else {
				a.markReady()
				s.deps.Log.Info().
					Str("attempt_id", a.ID).
					Str("user_id", userID).
					Str("assessment_id", assessmentID).
					Str("phase", string(a.Snapshot().Phase)).
					Msg("attempt opened")
			}
			return stored, nil
		})
		if err != nil {
			return nil, err
		}
		a := result.(*Attempt)
		if a.attach() {
			return a, nil
		}
		// released between lookup and attach; open a fresh one
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Get returns the live attempt for the pair without opening one.
func (s *ProctorService) Get(userID, assessmentID string) (*Attempt, bool) {
	a, ok := s.attempts.Get(userID, assessmentID)
	if !ok || a.Closed() || a.isReleased() {
		return nil, false
	}
	return a, true
}

// Leave detaches a client. The last client leaving stops and forgets the
// attempt unless it is in progress; in-progress attempts keep running so a
// reconnect reattaches to the same countdown and detectors. The gaze feed is
// paused while nobody is attached.
func (s *ProctorService) Leave(_ context.Context, a *Attempt) {
	idle, finished := a.detach()
	if !idle {
		return
	}
	if !finished && a.Snapshot().Phase == session.PhaseInProgress {
		return
	}
	s.release(a)
}

// onTransition tracks terminal phases and releases an attempt that ends
// while no client is attached, e.g. on expiry or a detector firing after the
// user went away. It runs on the controller loop, so the release happens on
// another goroutine.
func (s *ProctorService) onTransition(a *Attempt, t session.Transition) {
	terminal := t.To == session.PhaseResults || t.To == session.PhaseDisqualified
	if a.setFinished(terminal) {
		go s.release(a)
		return
	}
	go s.attempts.Touch(a)
}

// KeepAlive refreshes the liveness of every registered attempt until ctx is
// done. Long in-progress attempts see no transitions, so this keeps them
// visible to other instances.
func (s *ProctorService) KeepAlive(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return nil
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			for _, a := range s.attempts.All() {
				s.attempts.Touch(a)
			}
		}
	}
}

func (s *ProctorService) release(a *Attempt) {
	if !a.markReleased() {
		return
	}
	s.attempts.Remove(a)
	a.Close()
	s.deps.Log.Debug().Str("attempt_id", a.ID).Msg("attempt released")
}

// Close stops every live attempt. Persisted deadlines survive, so attempts
// resume on the next process.
func (s *ProctorService) Close() {
	for _, a := range s.attempts.All() {
		s.attempts.Remove(a)
		a.Close()
	}
}

func (s *ProctorService) newAttempt(userID, assessmentID string) *Attempt {
	var a *Attempt
	log := s.deps.Log.With().Str("user_id", userID).Str("assessment_id", assessmentID).Logger()
	probe := risk.NewProbe()
	feed := proctor.NewGazeFeed(s.settings.Proctor, log)
	countdown := timer.NewCountdown(
		s.deps.Timers,
		timer.Keys{UserID: userID, AssessmentID: assessmentID},
		s.settings.TimerTTL,
		s.settings.ReasonTTL,
	)
	ctrl := session.NewController(userID, assessmentID, session.Deps{
		Countdown:   countdown,
		Evaluator:   probe,
		Monitor:     integrity.NewMonitor(probe, log, integrity.WithRecheckInterval(s.settings.RecheckInterval)),
		Feed:        feed,
		Results:     s.deps.Results,
		Recommender: s.deps.Recommender,
		Log:         s.deps.Log,
	}, session.WithTransitions(s.deps.Transitions...), session.WithTransitions(func(t session.Transition) {
		s.onTransition(a, t)
	}))

	a = NewAttempt(userID, assessmentID, ctrl)
	a.feed = feed
	a.OpenedAt = s.now()
	return a
}
