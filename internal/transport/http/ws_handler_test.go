package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor-session-service/internal/app"
	"proctor-session-service/internal/catalog"
	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/infra/memory"
	"proctor-session-service/internal/integrity"
	"proctor-session-service/internal/metrics"
	"proctor-session-service/internal/session"
)

type testServer struct {
	*httptest.Server
	service *app.ProctorService
	metrics *metrics.Metrics
	results *memory.ResultStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := metrics.New()
	results := memory.NewResultStore()
	service := app.NewProctorService(memory.NewAttemptStore(), app.Dependencies{
		Content:     memory.NewAssessmentRepository(sampleLoader(), time.Minute),
		Timers:      memory.NewTimerStore(),
		Results:     results,
		Transitions: []session.TransitionFunc{m.ObserveTransition},
		Log:         zerolog.Nop(),
	}, app.Settings{TimerTTL: time.Hour, ReasonTTL: time.Hour})
	t.Cleanup(service.Close)

	router := NewRouter(service, NewWSHandler(service, m, zerolog.Nop()), m, zerolog.Nop())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, service: service, metrics: m, results: results}
}

func (s *testServer) dial(t *testing.T, assessmentID, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?assessmentId=" + assessmentID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readNext(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	var msg wireMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readSnapshot skips messages until a snapshot satisfies cond.
func readSnapshot(t *testing.T, conn *websocket.Conn, cond func(session.Snapshot) bool) session.Snapshot {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readNext(t, conn)
		if msg.Type != "snapshot" {
			continue
		}
		var snap session.Snapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &snap))
		if cond(snap) {
			return snap
		}
	}
	t.Fatalf("snapshot condition not met")
	return session.Snapshot{}
}

func readType(t *testing.T, conn *websocket.Conn, typ string) wireMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		msg := readNext(t, conn)
		if msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %s message received", typ)
	return wireMessage{}
}

func sendMsg(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

func phaseIs(p session.Phase) func(session.Snapshot) bool {
	return func(s session.Snapshot) bool { return s.Phase == p }
}

func startAttempt(t *testing.T, conn *websocket.Conn) session.Snapshot {
	t.Helper()
	intro := readSnapshot(t, conn, phaseIs(session.PhaseIntro))
	require.NotNil(t, intro.Assessment)

	sendMsg(t, conn, "fingerprint", map[string]any{
		"userAgent":           "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)",
		"platform":            "MacIntel",
		"screenWidth":         2560,
		"screenHeight":        1440,
		"hardwareConcurrency": 8,
	})
	sendMsg(t, conn, "begin", nil)
	readSnapshot(t, conn, func(s session.Snapshot) bool { return s.Prompt == session.PromptConsent })

	sendMsg(t, conn, "consent", map[string]any{"accepted": true})
	return readSnapshot(t, conn, phaseIs(session.PhaseInProgress))
}

func TestWebSocketAnswerFlow(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "go-101", "u1")

	started := startAttempt(t, conn)
	require.NotNil(t, started.Question)
	assert.Equal(t, "q1", started.Question.ID)
	assert.InDelta(t, 600, started.Remaining, 2)

	sendMsg(t, conn, "answer", map[string]any{"questionId": "q1", "selectedOptions": []string{"b"}})
	next := readSnapshot(t, conn, func(s session.Snapshot) bool { return s.Question != nil && s.Question.ID == "q2" })
	assert.Contains(t, next.Answers, "q1")

	sendMsg(t, conn, "answer", map[string]any{"questionId": "q2", "selectedOptions": []string{"t"}})
	sendMsg(t, conn, "submit", nil)
	done := readSnapshot(t, conn, phaseIs(session.PhaseResults))
	require.NotNil(t, done.Result)
	assert.Equal(t, 100, done.Result.Percentage)
	assert.True(t, done.Result.IsPassing)

	require.Eventually(t, func() bool { return len(srv.results.Results("u1")) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.ClientMessages.WithLabelValues("submit", "ok")))
}

func TestWebSocketScreenshotDisqualifies(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "go-101", "u2")
	startAttempt(t, conn)

	sendMsg(t, conn, "signal", map[string]any{"kind": "keydown", "key": "PrintScreen"})

	// the warning reply and the pushed snapshot race each other
	var (
		warned bool
		snap   *session.Snapshot
	)
	for i := 0; i < 20 && (!warned || snap == nil); i++ {
		msg := readNext(t, conn)
		switch msg.Type {
		case "warning":
			var payload warningPayload
			require.NoError(t, json.Unmarshal(msg.Payload, &payload))
			assert.True(t, payload.Block)
			warned = true
		case "snapshot":
			var s session.Snapshot
			require.NoError(t, json.Unmarshal(msg.Payload, &s))
			if s.Phase == session.PhaseDisqualified {
				snap = &s
			}
		}
	}
	require.True(t, warned)
	require.NotNil(t, snap)
	assert.Equal(t, integrity.ReasonScreenshot, snap.Reason)
	assert.NotEmpty(t, snap.Explanation)

	sendMsg(t, conn, "answer", map[string]any{"questionId": "q1", "selectedOptions": []string{"b"}})
	errMsg := readType(t, conn, "error")
	assert.Contains(t, string(errMsg.Payload), domain.ErrNotInProgress.Error())
}

func TestWebSocketRejectsInvalidMessages(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t, "go-101", "u3")
	readSnapshot(t, conn, phaseIs(session.PhaseIntro))

	sendMsg(t, conn, "teleport", nil)
	assert.Contains(t, string(readType(t, conn, "error").Payload), "unsupported message type")

	sendMsg(t, conn, "navigate", map[string]any{"delta": 3})
	readType(t, conn, "error")

	sendMsg(t, conn, "signal", map[string]any{"kind": "telepathy"})
	readType(t, conn, "error")

	sendMsg(t, conn, "answer", nil)
	assert.Contains(t, string(readType(t, conn, "error").Payload), "missing payload")

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.ClientMessages.WithLabelValues("unknown", "error")))
}

func TestWebSocketRequiresIdentity(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/ws?assessmentId=go-101")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAttemptStateEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/attempts/go-101/state?userId=u4")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn := srv.dial(t, "go-101", "u4")
	startAttempt(t, conn)

	resp, err = http.Get(srv.URL + "/api/attempts/go-101/state?userId=u4")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, session.PhaseInProgress, snap.Phase)
	require.NotNil(t, snap.Question)
	for _, opt := range snap.Question.Options {
		assert.NotEmpty(t, opt.ID)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func sampleLoader() *catalog.StaticLoader {
	q1 := domain.Question{
		ID:         "q1",
		Prompt:     "Which keyword starts a goroutine?",
		Type:       domain.QuestionMultipleChoice,
		AnswerType: domain.AnswerSingle,
		Options: []domain.Option{
			{ID: "a", Text: "defer"},
			{ID: "b", Text: "go", IsCorrect: true},
		},
	}
	q2 := domain.Question{
		ID:     "q2",
		Prompt: "Channels are safe for concurrent use.",
		Type:   domain.QuestionTrueFalse,
		Options: []domain.Option{
			{ID: "t", Text: "true", IsCorrect: true},
			{ID: "f", Text: "false"},
		},
	}
	return catalog.NewStaticLoader(map[string]domain.AssessmentDocument{
		"go-101": {
			Assessment: domain.Assessment{ID: "go-101", Title: "Go Basics", Category: "go", Duration: 10, PassPercentage: 70},
			Questions:  []domain.QuestionRef{{ID: "q1", Question: &q1}, {ID: "q2", Question: &q2}},
		},
	}, nil)
}
