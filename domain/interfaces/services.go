package interfaces

import (
	"context"

	"minebot/domain/entities"
	"minebot/events"
)

// UnitOfWork groups repositories that share one database transaction
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and then flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	OperationRepository() OperationRepository
	TrackedChannelRepository() TrackedChannelRepository
	ParticipationRepository() ParticipationRepository
	PayoutRepository() PayoutRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// EventPublisher publishes domain events
type EventPublisher interface {
	Publish(event events.Event) error
}

// VoiceMembershipSource reports who is currently connected to voice channels
type VoiceMembershipSource interface {
	// ChannelMembers returns the members connected to any of the given channels
	ChannelMembers(ctx context.Context, guildID int64, channelIDs []int64) ([]entities.VoiceMember, error)
}
