package testhelpers

import (
	"context"
	"sync"

	"minebot/domain/interfaces"

	"github.com/stretchr/testify/mock"
)

// FakeUnitOfWork hands out fixed repositories and records transaction calls
type FakeUnitOfWork struct {
	Operations    *MockOperationRepository
	Channels      *MockTrackedChannelRepository
	Participation interfaces.ParticipationRepository
	Payouts       *MockPayoutRepository
	Events        *MockEventPublisher
	BeginErr      error
	CommitErr     error

	mu        sync.Mutex
	begins    int
	commits   int
	rollbacks int
	committed bool
}

// NewFakeUnitOfWork creates a unit of work over fresh mocks and the given
// participation store
func NewFakeUnitOfWork(participation interfaces.ParticipationRepository) *FakeUnitOfWork {
	return &FakeUnitOfWork{
		Operations:    &MockOperationRepository{},
		Channels:      &MockTrackedChannelRepository{},
		Participation: participation,
		Payouts:       &MockPayoutRepository{},
		Events:        &MockEventPublisher{},
	}
}

func (u *FakeUnitOfWork) Begin(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.begins++
	u.committed = false
	return u.BeginErr
}

func (u *FakeUnitOfWork) Commit() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.CommitErr != nil {
		return u.CommitErr
	}
	u.commits++
	u.committed = true
	return nil
}

// Rollback after a successful commit is a no-op, matching pgx transactions
func (u *FakeUnitOfWork) Rollback() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.committed {
		return nil
	}
	u.rollbacks++
	return nil
}

func (u *FakeUnitOfWork) OperationRepository() interfaces.OperationRepository {
	return u.Operations
}

func (u *FakeUnitOfWork) TrackedChannelRepository() interfaces.TrackedChannelRepository {
	return u.Channels
}

func (u *FakeUnitOfWork) ParticipationRepository() interfaces.ParticipationRepository {
	return u.Participation
}

func (u *FakeUnitOfWork) PayoutRepository() interfaces.PayoutRepository {
	return u.Payouts
}

func (u *FakeUnitOfWork) EventBus() interfaces.EventPublisher {
	return u.Events
}

// Commits returns how many transactions were committed
func (u *FakeUnitOfWork) Commits() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.commits
}

// Rollbacks returns how many transactions were rolled back without a commit
func (u *FakeUnitOfWork) Rollbacks() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rollbacks
}

// AssertExpectations checks every mock held by the unit of work
func (u *FakeUnitOfWork) AssertExpectations(t mock.TestingT) {
	u.Operations.AssertExpectations(t)
	u.Channels.AssertExpectations(t)
	u.Payouts.AssertExpectations(t)
	u.Events.AssertExpectations(t)
}

// FakeUnitOfWorkFactory always returns the same unit of work
type FakeUnitOfWorkFactory struct {
	UoW *FakeUnitOfWork
}

func (f *FakeUnitOfWorkFactory) Create() interfaces.UnitOfWork {
	return f.UoW
}
