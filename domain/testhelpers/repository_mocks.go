package testhelpers

import (
	"context"

	"minebot/domain/entities"
	"minebot/events"

	"github.com/stretchr/testify/mock"
)

// MockOperationRepository is a mock implementation of OperationRepository
type MockOperationRepository struct {
	mock.Mock
}

func (m *MockOperationRepository) Create(ctx context.Context, op *entities.Operation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockOperationRepository) GetByID(ctx context.Context, id int64) (*entities.Operation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Operation), args.Error(1)
}

func (m *MockOperationRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Operation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Operation), args.Error(1)
}

func (m *MockOperationRepository) GetActiveByGuild(ctx context.Context, guildID int64) (*entities.Operation, error) {
	args := m.Called(ctx, guildID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Operation), args.Error(1)
}

func (m *MockOperationRepository) GetAllActive(ctx context.Context) ([]*entities.Operation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Operation), args.Error(1)
}

func (m *MockOperationRepository) Update(ctx context.Context, op *entities.Operation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockOperationRepository) ListRecentByGuild(ctx context.Context, guildID int64, limit int) ([]*entities.Operation, error) {
	args := m.Called(ctx, guildID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Operation), args.Error(1)
}

// MockTrackedChannelRepository is a mock implementation of TrackedChannelRepository
type MockTrackedChannelRepository struct {
	mock.Mock
}

func (m *MockTrackedChannelRepository) CreateBatch(ctx context.Context, channels []*entities.TrackedChannel) error {
	args := m.Called(ctx, channels)
	return args.Error(0)
}

func (m *MockTrackedChannelRepository) GetByOperation(ctx context.Context, operationID int64) ([]*entities.TrackedChannel, error) {
	args := m.Called(ctx, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.TrackedChannel), args.Error(1)
}

func (m *MockTrackedChannelRepository) Deactivate(ctx context.Context, operationID int64) error {
	args := m.Called(ctx, operationID)
	return args.Error(0)
}

// MockPayoutRepository is a mock implementation of PayoutRepository
type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) ReplaceForOperation(ctx context.Context, operationID int64, records []*entities.PayoutRecord) error {
	args := m.Called(ctx, operationID, records)
	return args.Error(0)
}

func (m *MockPayoutRepository) GetByOperation(ctx context.Context, operationID int64) ([]*entities.PayoutRecord, error) {
	args := m.Called(ctx, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.PayoutRecord), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockVoiceMembershipSource is a mock implementation of VoiceMembershipSource
type MockVoiceMembershipSource struct {
	mock.Mock
}

func (m *MockVoiceMembershipSource) ChannelMembers(ctx context.Context, guildID int64, channelIDs []int64) ([]entities.VoiceMember, error) {
	args := m.Called(ctx, guildID, channelIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.VoiceMember), args.Error(1)
}
