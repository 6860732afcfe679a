package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"proctor-session-service/internal/app"
	"proctor-session-service/internal/domain"
	"proctor-session-service/internal/integrity"
	"proctor-session-service/internal/metrics"
	"proctor-session-service/internal/proctor"
	"proctor-session-service/internal/risk"
	"proctor-session-service/internal/session"
)

type WSHandler struct {
	service  *app.ProctorService
	metrics  *metrics.Metrics
	validate *validator.Validate
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ProctorService, m *metrics.Metrics, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service:  service,
		metrics:  m,
		validate: validator.New(),
		log:      log.With().Str("component", "ws").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type consentPayload struct {
	Accepted bool `json:"accepted"`
}

type answerPayload struct {
	QuestionID      string   `json:"questionId" validate:"required,max=128"`
	SelectedOptions []string `json:"selectedOptions" validate:"max=32,dive,required,max=128"`
	Text            string   `json:"text" validate:"max=20000"`
}

type navigatePayload struct {
	Delta int `json:"delta" validate:"oneof=-1 1"`
}

type riskPayload struct {
	Level risk.Level `json:"level" validate:"required,oneof=low high"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type warningPayload struct {
	Message string `json:"message,omitempty"`
	Block   bool   `json:"block"`
}

var errUnsupportedType = errors.New("unsupported message type")

// ServeWS upgrades HTTP requests to websockets and attaches them to the
// user's attempt. Snapshots are pushed on every state change.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	assessmentID := r.URL.Query().Get("assessmentId")
	userID := r.URL.Query().Get("userId")
	if assessmentID == "" || userID == "" {
		http.Error(w, "missing assessmentId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("user_id", userID).Str("assessment_id", assessmentID).Logger()
	attempt, err := h.service.Open(r.Context(), userID, assessmentID)
	if err != nil {
		log.Error().Err(err).Msg("failed to open attempt")
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer h.service.Leave(context.Background(), attempt)

	if h.metrics != nil {
		h.metrics.Connections.Inc()
		defer h.metrics.Connections.Dec()
	}

	updates, cancel := attempt.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "snapshot", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply, err := h.handle(r.Context(), attempt, inbound)
		switch {
		case err != nil:
			h.count(inbound.Type, "error")
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
		case reply != nil:
			h.count(inbound.Type, "ok")
			send <- *reply
		default:
			h.count(inbound.Type, "ok")
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handle applies one inbound message. Commands answer through the snapshot
// stream; only integrity signals produce a direct reply.
func (h *WSHandler) handle(ctx context.Context, attempt *app.Attempt, msg inboundMessage) (*outboundMessage[any], error) {
	var ev session.Event
	switch msg.Type {
	case "begin":
		ev = session.Begin{}
	case "retry-environment":
		ev = session.RetryEnvironment{}
	case "proceed":
		ev = session.ProceedWithRisk{}
	case "cancel":
		ev = session.CancelEnvironment{}
	case "submit":
		ev = session.Submit{}
	case "reset":
		ev = session.Reset{}
	case "consent":
		p, err := decode[consentPayload](h.validate, msg.Payload)
		if err != nil {
			return nil, err
		}
		ev = session.Consent{Accepted: p.Accepted}
	case "answer":
		p, err := decode[answerPayload](h.validate, msg.Payload)
		if err != nil {
			return nil, err
		}
		ev = session.Answer{Answer: domain.UserAnswer{
			QuestionID:      p.QuestionID,
			SelectedOptions: p.SelectedOptions,
			Text:            p.Text,
		}}
	case "navigate":
		p, err := decode[navigatePayload](h.validate, msg.Payload)
		if err != nil {
			return nil, err
		}
		ev = session.Navigate{Delta: p.Delta}
	case "signal":
		sig, err := decode[integrity.Signal](h.validate, msg.Payload)
		if err != nil {
			return nil, err
		}
		verdict := attempt.Observe(sig)
		if verdict.Warning == "" && !verdict.Block {
			return nil, nil
		}
		return &outboundMessage[any]{Type: "warning", Payload: warningPayload{Message: verdict.Warning, Block: verdict.Block}}, nil
	case "fingerprint":
		fp, err := decode[risk.Fingerprint](h.validate, msg.Payload)
		if err != nil {
			return nil, err
		}
		attempt.ReportFingerprint(fp)
		return nil, nil
	case "gaze":
		sample, err := decode[proctor.Sample](h.validate, msg.Payload)
		if err != nil {
			return nil, err
		}
		attempt.ObserveGaze(sample)
		return nil, nil
	case "environment-risk":
		p, err := decode[riskPayload](h.validate, msg.Payload)
		if err != nil {
			return nil, err
		}
		attempt.ReportRisk(p.Level)
		return nil, nil
	default:
		return nil, errUnsupportedType
	}

	_, err := attempt.Dispatch(ctx, ev)
	return nil, err
}

func decode[T any](validate *validator.Validate, raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, errors.New("missing payload")
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errors.New("invalid payload")
	}
	if err := validate.Struct(v); err != nil {
		return v, err
	}
	return v, nil
}

func (h *WSHandler) count(msgType, status string) {
	if h.metrics == nil {
		return
	}
	switch msgType {
	case "begin", "retry-environment", "proceed", "cancel", "consent", "answer", "navigate",
		"submit", "reset", "signal", "fingerprint", "gaze", "environment-risk":
	default:
		msgType = "unknown"
	}
	h.metrics.ClientMessages.WithLabelValues(msgType, status).Inc()
}
