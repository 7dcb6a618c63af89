package repository

import (
	"context"
	"errors"
	"fmt"

	"minebot/database"
	"minebot/domain/interfaces"
	"minebot/events"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	db                 *database.DB
	tx                 pgx.Tx
	ctx                context.Context
	transactionalBus   *events.TransactionalBus
	operationRepo      interfaces.OperationRepository
	trackedChannelRepo interfaces.TrackedChannelRepository
	participationRepo  interfaces.ParticipationRepository
	payoutRepo         interfaces.PayoutRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory. Events published
// through a unit of work reach publisher only after its transaction commits.
func NewUnitOfWorkFactory(db *database.DB, publisher events.Publisher) interfaces.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:        db,
		publisher: publisher,
	}
}

type unitOfWorkFactory struct {
	db        *database.DB
	publisher events.Publisher
}

func (f *unitOfWorkFactory) Create() interfaces.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		transactionalBus: events.NewTransactionalBus(f.publisher),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx

	u.operationRepo = newOperationRepositoryWithTx(tx)
	u.trackedChannelRepo = newTrackedChannelRepositoryWithTx(tx)
	u.participationRepo = newParticipationRepositoryWithTx(tx)
	u.payoutRepo = newPayoutRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and flushes pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalBus != nil {
		u.transactionalBus.Flush(u.ctx)
	}

	return nil
}

// Rollback rolls back the transaction and drops pending events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	u.tx = nil

	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}

	return nil
}

// OperationRepository returns the operation repository for this unit of work
func (u *unitOfWork) OperationRepository() interfaces.OperationRepository {
	if u.operationRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.operationRepo
}

// TrackedChannelRepository returns the tracked channel repository for this unit of work
func (u *unitOfWork) TrackedChannelRepository() interfaces.TrackedChannelRepository {
	if u.trackedChannelRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.trackedChannelRepo
}

// ParticipationRepository returns the participation repository for this unit of work
func (u *unitOfWork) ParticipationRepository() interfaces.ParticipationRepository {
	if u.participationRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.participationRepo
}

// PayoutRepository returns the payout repository for this unit of work
func (u *unitOfWork) PayoutRepository() interfaces.PayoutRepository {
	if u.payoutRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.payoutRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
