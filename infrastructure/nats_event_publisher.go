package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"minebot/events"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// EventEnvelope wraps every event published to NATS
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// messagePublisher is the part of NATSClient the event publisher needs
type messagePublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NewEnvelope serializes event into a fresh envelope
func NewEnvelope(event events.Event, now time.Time) (*EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     now.UTC(),
		SourceService: "minebot",
		Payload:       payload,
	}, nil
}

// NATSEventPublisher publishes domain events to NATS and to an optional
// in-process bus
type NATSEventPublisher struct {
	client        messagePublisher
	subjectMapper *EventSubjectMapper
	local         *events.Bus
	metrics       publishMetrics
}

type publishMetrics interface {
	RecordEventPublished(eventType string)
}

// NewNATSEventPublisher creates a new NATS event publisher. local and metrics may be nil.
func NewNATSEventPublisher(client messagePublisher, subjectMapper *EventSubjectMapper, local *events.Bus, metrics publishMetrics) *NATSEventPublisher {
	return &NATSEventPublisher{
		client:        client,
		subjectMapper: subjectMapper,
		local:         local,
		metrics:       metrics,
	}
}

// Publish emits the event locally first and then publishes it to NATS
func (p *NATSEventPublisher) Publish(event events.Event) error {
	if p.local != nil {
		p.local.Emit(context.Background(), event)
	}

	envelope, err := NewEnvelope(event, time.Now())
	if err != nil {
		return err
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := p.subjectMapper.MapEventToSubject(event)

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to NATS: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordEventPublished(envelope.EventType)
	}

	log.WithFields(log.Fields{
		"eventType": envelope.EventType,
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Successfully published event to NATS")

	return nil
}

// EnsureDomainEventStream creates the stream carrying every mining subject
func EnsureDomainEventStream(client *NATSClient, subjectMapper *EventSubjectMapper) error {
	return client.EnsureStream(DomainEventStream, subjectMapper.GetAllSubjects())
}
