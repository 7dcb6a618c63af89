package events

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeOperationStarted  EventType = "operation_started"
	EventTypeOperationStopped  EventType = "operation_stopped"
	EventTypePayrollCalculated EventType = "payroll_calculated"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// OperationStartedEvent is emitted once an operation becomes active
type OperationStartedEvent struct {
	OperationID        int64     `json:"operation_id"`
	GuildID            int64     `json:"guild_id"`
	OrganizerDiscordID int64     `json:"organizer_discord_id"`
	ChannelIDs         []int64   `json:"channel_ids"`
	BackfilledMembers  int       `json:"backfilled_members"`
	StartedAt          time.Time `json:"started_at"`
}

func (e OperationStartedEvent) Type() EventType {
	return EventTypeOperationStarted
}

// OperationStoppedEvent is emitted once an operation is closed
type OperationStoppedEvent struct {
	OperationID  int64     `json:"operation_id"`
	GuildID      int64     `json:"guild_id"`
	Participants int       `json:"participants"`
	EndedAt      time.Time `json:"ended_at"`
}

func (e OperationStoppedEvent) Type() EventType {
	return EventTypeOperationStopped
}

// PayrollCalculatedEvent is emitted once payout records are persisted
type PayrollCalculatedEvent struct {
	OperationID      int64     `json:"operation_id"`
	GuildID          int64     `json:"guild_id"`
	TotalValue       int64     `json:"total_value"`
	DonatedAmount    int64     `json:"donated_amount"`
	UnallocatedValue int64     `json:"unallocated_value"`
	Recipients       int       `json:"recipients"`
	Donors           int       `json:"donors"`
	CalculatedAt     time.Time `json:"calculated_at"`
}

func (e PayrollCalculatedEvent) Type() EventType {
	return EventTypePayrollCalculated
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages in-process event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// Publish emits the event and never fails, so the bus can stand in for a
// remote publisher
func (b *Bus) Publish(event Event) error {
	b.Emit(context.Background(), event)
	return nil
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers on main event bus")

	// Handlers run asynchronously so a slow subscriber never stalls the publisher
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Publisher is anything that accepts events for delivery
type Publisher interface {
	Publish(event Event) error
}

// TransactionalBus holds pending events coupled to a unit of work and
// forwards them to the real publisher after commit
type TransactionalBus struct {
	real    Publisher
	mu      sync.Mutex
	pending []Event
}

func NewTransactionalBus(real Publisher) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
	return nil
}

// Flush is called after a successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"pendingEventCount": len(pending),
	}).Debug("Flushing pending events from transactional bus")

	for _, ev := range pending {
		if err := b.real.Publish(ev); err != nil {
			// The transaction already committed; delivery is best effort
			log.WithFields(log.Fields{
				"eventType": ev.Type(),
				"error":     err,
			}).Error("Failed to publish event during flush")
		}
	}
	return nil
}

// Discard is called after a rollback
func (b *TransactionalBus) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}

// Pending returns how many events wait for Flush
func (b *TransactionalBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
