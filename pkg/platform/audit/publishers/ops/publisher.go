// Package ops provides a fire-and-forget audit sink that streams events to
// Kafka for downstream operational consumers (dashboards, pharmacy feeds).
//
// Events are fire-and-forget with no retry. Use for high-frequency events
// such as credential_verified and qr_encoded; the store-backed publisher
// remains the durable record.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	audit "rxcred/pkg/platform/audit"
)

const defaultTopic = "rx.audit.events"

// Producer is the subset of the Kafka producer used by the ops sink.
// Satisfied by kafka/producer.Producer and NoopProducer.
type Producer interface {
	ProduceAsync(msg *ProducerMessage) error
}

// ProducerMessage mirrors the platform producer message shape so this package
// does not import internal packages.
type ProducerMessage struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Publisher streams audit events to Kafka with fire-and-forget semantics.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
	metrics  *Metrics

	tracked        int64
	dropped        int64
	encodeFailures int64
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithTopic overrides the destination topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// New creates an ops publisher streaming to the given producer.
func New(producer Producer, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    defaultTopic,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit implements audit.Emitter. Streaming is best-effort: a dropped event is
// never surfaced to the domain caller.
func (p *Publisher) Emit(_ context.Context, event audit.Event) error {
	p.Track(event)
	return nil
}

// Track streams an event to Kafka. Never blocks, no delivery guarantees.
func (p *Publisher) Track(event audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	value, err := json.Marshal(streamEvent{
		Timestamp:      event.Timestamp,
		PrescriptionID: event.PrescriptionID.String(),
		CredentialID:   event.CredentialID.String(),
		Actor:          event.Actor,
		Action:         event.Action,
		Decision:       event.Decision,
		Reason:         event.Reason,
		RequestID:      event.RequestID,
	})
	if err != nil {
		atomic.AddInt64(&p.encodeFailures, 1)
		return
	}

	msg := &ProducerMessage{
		Topic: p.topic,
		Key:   []byte(event.PrescriptionID.String()),
		Value: value,
		Headers: map[string]string{
			"content-type": "application/json",
			"action":       event.Action,
		},
	}

	if err := p.producer.ProduceAsync(msg); err != nil {
		atomic.AddInt64(&p.dropped, 1)
		if p.metrics != nil {
			p.metrics.IncDropped()
		}
		if p.logger != nil {
			p.logger.Warn("audit stream produce failed",
				"error", err,
				"action", event.Action,
			)
		}
		return
	}

	atomic.AddInt64(&p.tracked, 1)
	if p.metrics != nil {
		p.metrics.IncTracked()
	}
}

// Close is a no-op for the ops publisher (no buffering).
func (p *Publisher) Close() error {
	return nil
}

// Stats returns tracking statistics for monitoring.
func (p *Publisher) Stats() Stats {
	return Stats{
		Tracked:        atomic.LoadInt64(&p.tracked),
		Dropped:        atomic.LoadInt64(&p.dropped),
		EncodeFailures: atomic.LoadInt64(&p.encodeFailures),
	}
}

// Stats holds tracking statistics.
type Stats struct {
	Tracked        int64
	Dropped        int64
	EncodeFailures int64
}

// streamEvent is the wire shape published to the audit topic.
type streamEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	PrescriptionID string    `json:"prescription_id,omitempty"`
	CredentialID   string    `json:"credential_id,omitempty"`
	Actor          string    `json:"actor,omitempty"`
	Action         string    `json:"action"`
	Decision       string    `json:"decision,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
}
