package infrastructure

import (
	"fmt"

	"minebot/events"
)

const (
	SubjectOperationStarted  = "mining.operation.started"
	SubjectOperationStopped  = "mining.operation.stopped"
	SubjectPayrollCalculated = "mining.payroll.calculated"

	DomainEventStream = "mining_events"
)

// EventSubjectMapper maps domain events to NATS subjects
type EventSubjectMapper struct{}

// NewEventSubjectMapper creates a new event subject mapper
func NewEventSubjectMapper() *EventSubjectMapper {
	return &EventSubjectMapper{}
}

// MapEventToSubject converts a domain event to its NATS subject
func (m *EventSubjectMapper) MapEventToSubject(event events.Event) string {
	switch event.Type() {
	case events.EventTypeOperationStarted:
		return SubjectOperationStarted
	case events.EventTypeOperationStopped:
		return SubjectOperationStopped
	case events.EventTypePayrollCalculated:
		return SubjectPayrollCalculated
	default:
		return fmt.Sprintf("mining.unknown.%s", event.Type())
	}
}

// GetAllSubjects returns all subjects this service publishes to
func (m *EventSubjectMapper) GetAllSubjects() []string {
	return []string{
		SubjectOperationStarted,
		SubjectOperationStopped,
		SubjectPayrollCalculated,
	}
}
