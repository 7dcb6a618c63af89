package interfaces

import (
	"context"
	"time"

	"minebot/domain/entities"
)

// OperationRepository defines the interface for operation data access
type OperationRepository interface {
	// Create inserts a new operation and fills in its id and timestamps
	Create(ctx context.Context, op *entities.Operation) error

	// GetByID retrieves an operation, returning nil when it does not exist
	GetByID(ctx context.Context, id int64) (*entities.Operation, error)

	// GetByIDForUpdate retrieves an operation and locks its row for the transaction
	GetByIDForUpdate(ctx context.Context, id int64) (*entities.Operation, error)

	// GetActiveByGuild returns the active operation of a guild, or nil
	GetActiveByGuild(ctx context.Context, guildID int64) (*entities.Operation, error)

	// GetAllActive returns every active operation across guilds
	GetAllActive(ctx context.Context) ([]*entities.Operation, error)

	// Update persists status, timestamps and payroll fields
	Update(ctx context.Context, op *entities.Operation) error

	// ListRecentByGuild returns the most recent operations of a guild
	ListRecentByGuild(ctx context.Context, guildID int64, limit int) ([]*entities.Operation, error)
}

// TrackedChannelRepository defines the interface for tracked channel configuration
type TrackedChannelRepository interface {
	// CreateBatch inserts the tracked channels of an operation
	CreateBatch(ctx context.Context, channels []*entities.TrackedChannel) error

	// GetByOperation returns the tracked channels of an operation
	GetByOperation(ctx context.Context, operationID int64) ([]*entities.TrackedChannel, error)

	// Deactivate clears the active flag of every channel of an operation
	Deactivate(ctx context.Context, operationID int64) error
}

// ParticipationRepository is the durable store of participation intervals.
// Every write is idempotent so the tracker can retry or replay it.
type ParticipationRepository interface {
	// OpenInterval upserts a durability snapshot of an open interval ending at
	// snapshotAt. It never reopens or changes an interval that is already closed.
	OpenInterval(ctx context.Context, key entities.IntervalKey, snapshotAt time.Time) error

	// CloseInterval records the interval as closed at leftAt, replacing any
	// snapshot. Closing an already closed interval is a no-op.
	CloseInterval(ctx context.Context, key entities.IntervalKey, leftAt time.Time) error

	// DiscardInterval deletes an open snapshot that turned out to be below the
	// participation threshold
	DiscardInterval(ctx context.Context, key entities.IntervalKey) error

	// CloseOpenIntervals closes every still-open interval of an operation at its
	// last snapshot time and returns how many rows were closed
	CloseOpenIntervals(ctx context.Context, operationID int64) (int64, error)

	// UpsertParticipant records the identity of a participant in an operation
	UpsertParticipant(ctx context.Context, participant *entities.OperationParticipant) error

	// ListIntervals returns all intervals of an operation ordered by join time
	ListIntervals(ctx context.Context, operationID int64) ([]*entities.ParticipationInterval, error)

	// Aggregate returns per-participant totals with the primary channel
	Aggregate(ctx context.Context, operationID int64) ([]*entities.AggregatedParticipation, error)
}

// PayoutRepository defines the interface for payout record storage
type PayoutRepository interface {
	// ReplaceForOperation deletes earlier payout rows of the operation and
	// inserts the given records
	ReplaceForOperation(ctx context.Context, operationID int64, records []*entities.PayoutRecord) error

	// GetByOperation returns payout rows ordered by final payout descending
	GetByOperation(ctx context.Context, operationID int64) ([]*entities.PayoutRecord, error)
}
