// Package kafkabus is the durable event pipeline. Every send, edit, delete
// and reaction change is appended to the event topic; the Relay consumes it
// and fans events out to the per-surface live feed channels. Moderation
// verdicts go to a separate audit topic.
package kafkabus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/upsidedowncan/bank-mannru-sub002/internal/backend"
)

type Producer struct {
	events *kafka.Writer
	audit  *kafka.Writer
}

func NewProducer(brokers []string, eventTopic, auditTopic string) *Producer {
	return &Producer{
		events: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    eventTopic,
			Balancer: &kafka.LeastBytes{},
		},
		audit: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    auditTopic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishEvent appends a row change to the event topic, keyed by surface so
// per-surface ordering is preserved within a partition.
func (p *Producer) PublishEvent(ctx context.Context, ev backend.Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	return p.events.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.SurfaceID),
		Value: data,
		Time:  time.Now(),
	})
}

// PublishAudit records a moderation verdict or other advisory outcome.
func (p *Producer) PublishAudit(ctx context.Context, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.audit.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
}

func (p *Producer) Close() error {
	err := p.events.Close()
	if cerr := p.audit.Close(); err == nil {
		err = cerr
	}
	return err
}
