package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"proctor-session-service/internal/session"
)

const queueSize = 256

// Publisher sends lifecycle events to a Watermill topic. Transitions are
// queued and published off the session loop.
type Publisher struct {
	publisher message.Publisher
	topic     string
	log       zerolog.Logger

	mu        sync.RWMutex
	closed    bool
	queue     chan Lifecycle
	done      chan struct{}
	closeOnce sync.Once
}

func NewPublisher(pub message.Publisher, topic string, log zerolog.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	p := &Publisher{
		publisher: pub,
		topic:     topic,
		log:       log.With().Str("component", "event_publisher").Logger(),
		queue:     make(chan Lifecycle, queueSize),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

// NewKafkaPublisher builds a Kafka-backed Watermill publisher.
func NewKafkaPublisher(brokers []string, log zerolog.Logger) (message.Publisher, error) {
	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   brokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, NewLoggerAdapter(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}
	return pub, nil
}

// NewKafkaSubscriber builds a Kafka-backed Watermill subscriber.
func NewKafkaSubscriber(brokers []string, group string, log zerolog.Logger) (message.Subscriber, error) {
	sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:       brokers,
		Unmarshaler:   kafka.DefaultMarshaler{},
		ConsumerGroup: group,
	}, NewLoggerAdapter(log))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}
	return sub, nil
}

// NewInProcess returns an in-memory pub/sub used when no broker is configured.
func NewInProcess(log zerolog.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: queueSize}, NewLoggerAdapter(log))
}

// Publish sends one event synchronously.
func (p *Publisher) Publish(ctx context.Context, ev Lifecycle) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal lifecycle event: %w", err)
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", string(ev.Type))
	msg.Metadata.Set("source", ev.Source)
	msg.Metadata.Set("version", ev.Version)
	msg.Metadata.Set("timestamp", ev.Timestamp.Format(time.RFC3339))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		p.log.Error().Err(err).Str("event_id", ev.ID).Str("event_type", string(ev.Type)).Msg("failed to publish lifecycle event")
		return fmt.Errorf("failed to publish lifecycle event: %w", err)
	}
	p.log.Debug().Str("event_id", ev.ID).Str("event_type", string(ev.Type)).Str("topic", p.topic).Msg("published lifecycle event")
	return nil
}

// ObserveTransition queues a transition without blocking. Events are dropped
// when the queue is full or the publisher is closed.
func (p *Publisher) ObserveTransition(t session.Transition) {
	ev := FromTransition(t)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- ev:
	default:
		p.log.Warn().Str("event_type", string(ev.Type)).Msg("lifecycle queue full, event dropped")
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = p.Publish(ctx, ev)
		cancel()
	}
}

// Close flushes queued events and closes the underlying publisher.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		<-p.done
		err = p.publisher.Close()
	})
	return err
}
