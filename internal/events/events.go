package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/segmentio/kafka-go"

	"github.com/CyberTechArmor/NEON-sub002/internal/config"
)

// Event types published downstream
const (
	TypeMessageSent      = "message.sent"
	TypeMessageEdited    = "message.edited"
	TypeMessageDeleted   = "message.deleted"
	TypeCallEnded        = "call.ended"
	TypeMeetingCreated   = "meeting.created"
	TypeMeetingStarted   = "meeting.started"
	TypeMeetingEnded     = "meeting.ended"
	TypeMeetingCancelled = "meeting.cancelled"
)

// Event is one record on the stream. Key selects the partition, so events
// sharing a key (a conversation, a call) keep their order.
type Event struct {
	Type    string
	Key     string
	Payload interface{}
	At      time.Time
}

type record struct {
	Type    string      `json:"type"`
	At      int64       `json:"at"`
	Payload interface{} `json:"payload"`
}

// Publisher ships domain events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// New returns a kafka publisher, or a no-op one when no broker is configured
func New(cfg config.KafkaConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		log.Info("kafka brokers not configured, domain events disabled")
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// KafkaPublisher writes events to a kafka topic
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a KafkaPublisher
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

// Publish writes one event
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := encode(ev)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		log.CtxWarn(ctx, "publish event failed: type=%s, key=%s, error=%v", ev.Type, ev.Key, err)
		return err
	}
	return nil
}

// Close flushes and closes the writer
func (p *KafkaPublisher) Close() error { return p.writer.Close() }

func encode(ev Event) (kafka.Message, error) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	value, err := json.Marshal(record{Type: ev.Type, At: ev.At.UnixMilli(), Payload: ev.Payload})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(ev.Key),
		Value:   value,
		Time:    ev.At,
		Headers: []kafka.Header{{Key: "type", Value: []byte(ev.Type)}},
	}, nil
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
