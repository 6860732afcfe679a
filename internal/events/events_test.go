package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/integrity"
	"proctor-session-service/internal/session"
)

type memorySink struct {
	mu     sync.Mutex
	events []Lifecycle
	fail   int
}

func (m *memorySink) RecordEvent(_ context.Context, ev Lifecycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail > 0 {
		m.fail--
		return errors.New("db down")
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *memorySink) recorded() []Lifecycle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Lifecycle(nil), m.events...)
}

func TestFromTransition(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ev := FromTransition(session.Transition{
		AssessmentID: "a1", UserID: "u1",
		From: session.PhaseInProgress, To: session.PhaseResults,
		Result: &domain.Submission{Score: 3, MaxScore: 4, Percentage: 75, IsPassing: true},
		At:     at,
	})
	assert.Equal(t, TypeCompleted, ev.Type)
	assert.NotEmpty(t, ev.ID)
	require.NotNil(t, ev.Percentage)
	assert.Equal(t, 75, *ev.Percentage)
	assert.True(t, *ev.IsPassing)
	assert.Equal(t, at, ev.Timestamp)

	dq := FromTransition(session.Transition{From: session.PhaseInProgress, To: session.PhaseDisqualified, Reason: integrity.ReasonTabSwitch})
	assert.Equal(t, TypeDisqualified, dq.Type)
	assert.Equal(t, integrity.ReasonTabSwitch, dq.Reason)
	assert.Nil(t, dq.Percentage)
}

func TestPublishAndAuditOverInProcessPubSub(t *testing.T) {
	log := zerolog.Nop()
	bus := NewInProcess(log)
	sink := &memorySink{fail: 1}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- RunAudit(ctx, bus, "", sink, log) }()

	// gochannel drops messages published before a subscriber exists
	require.Eventually(t, func() bool {
		probe := NewPublisher(noopCloser{bus}, DefaultTopic, log)
		defer probe.Close()
		return probe.Publish(ctx, Lifecycle{ID: "probe", Type: TypeReset}) == nil && len(sink.recorded()) > 0
	}, 2*time.Second, 20*time.Millisecond)

	pub := NewPublisher(bus, "", log)
	pub.ObserveTransition(session.Transition{AssessmentID: "a1", UserID: "u1", From: session.PhaseIntro, To: session.PhaseEnvironmentCheck})
	pub.ObserveTransition(session.Transition{AssessmentID: "a1", UserID: "u1", From: session.PhaseEnvironmentCheck, To: session.PhaseInProgress, Risk: "low"})

	byType := func() map[Type]Lifecycle {
		out := map[Type]Lifecycle{}
		for _, ev := range sink.recorded() {
			out[ev.Type] = ev
		}
		return out
	}
	require.Eventually(t, func() bool {
		got := byType()
		_, checked := got[TypeEnvironmentCheck]
		_, started := got[TypeStarted]
		return checked && started
	}, 2*time.Second, 10*time.Millisecond)
	started := byType()[TypeStarted]
	assert.Equal(t, "low", started.Risk)
	assert.Equal(t, "a1", started.AssessmentID)

	require.NoError(t, pub.Close())
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("audit consumer did not stop")
	}
}

// noopCloser keeps a shared publisher open when a wrapper is closed.
type noopCloser struct{ message.Publisher }

func (noopCloser) Close() error { return nil }
