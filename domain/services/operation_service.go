package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"minebot/domain/clock"
	"minebot/domain/entities"
	"minebot/domain/interfaces"
	"minebot/events"

	log "github.com/sirupsen/logrus"
)

// ChannelSpec names a voice channel to track
type ChannelSpec struct {
	ChannelID int64
	Name      string
}

// StartOperationRequest is the input of OperationService.Start
type StartOperationRequest struct {
	GuildID     int64
	OrganizerID int64
	Name        string
	Channels    []ChannelSpec
}

// OperationOverview is what the status command shows for one operation
type OperationOverview struct {
	Operation *entities.Operation
	Channels  []*entities.TrackedChannel
	Live      []entities.LiveParticipation
	Totals    []*entities.AggregatedParticipation // Stored totals once closed
	AsOf      time.Time
}

// OperationService drives the planned → active → closed lifecycle of
// operations and keeps the voice tracker in step with the store
type OperationService struct {
	uowFactory interfaces.UnitOfWorkFactory
	tracker    *VoiceSessionTracker
	members    interfaces.VoiceMembershipSource
	clock      clock.Clock
	metrics    interfaces.TrackerMetrics
}

// NewOperationService creates a new operation service
func NewOperationService(
	uowFactory interfaces.UnitOfWorkFactory,
	tracker *VoiceSessionTracker,
	members interfaces.VoiceMembershipSource,
	clk clock.Clock,
	metrics interfaces.TrackerMetrics,
) *OperationService {
	if metrics == nil {
		metrics = interfaces.NoopTrackerMetrics{}
	}
	return &OperationService{
		uowFactory: uowFactory,
		tracker:    tracker,
		members:    members,
		clock:      clk,
		metrics:    metrics,
	}
}

// Start creates an active operation for the guild and begins tracking its channels
func (s *OperationService) Start(ctx context.Context, req StartOperationRequest) (*entities.Operation, error) {
	specs := dedupeChannels(req.Channels)
	if len(specs) == 0 {
		return nil, &entities.NoTrackedChannelsError{GuildID: req.GuildID}
	}
	if activeID, ok := s.tracker.ActiveOperation(req.GuildID); ok {
		return nil, &entities.AlreadyActiveError{GuildID: req.GuildID, ActiveOperationID: activeID}
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	active, err := uow.OperationRepository().GetActiveByGuild(ctx, req.GuildID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active operation: %w", err)
	}
	if active != nil {
		return nil, &entities.AlreadyActiveError{GuildID: req.GuildID, ActiveOperationID: active.ID}
	}

	now := s.clock.Now()
	op := &entities.Operation{
		GuildID:            req.GuildID,
		Name:               req.Name,
		Status:             entities.OperationStatusPlanned,
		OrganizerDiscordID: req.OrganizerID,
	}
	if err := op.Activate(now); err != nil {
		return nil, err
	}
	if err := uow.OperationRepository().Create(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to create operation: %w", err)
	}

	channels := make([]*entities.TrackedChannel, len(specs))
	channelIDs := make([]int64, len(specs))
	for i, spec := range specs {
		channels[i] = &entities.TrackedChannel{
			OperationID: op.ID,
			GuildID:     op.GuildID,
			ChannelID:   spec.ChannelID,
			Name:        spec.Name,
			Active:      true,
		}
		channelIDs[i] = spec.ChannelID
	}
	if err := uow.TrackedChannelRepository().CreateBatch(ctx, channels); err != nil {
		return nil, fmt.Errorf("failed to create tracked channels: %w", err)
	}

	members, err := s.members.ChannelMembers(ctx, op.GuildID, channelIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot voice membership: %w", err)
	}

	if err := uow.EventBus().Publish(events.OperationStartedEvent{
		OperationID:        op.ID,
		GuildID:            op.GuildID,
		OrganizerDiscordID: op.OrganizerDiscordID,
		ChannelIDs:         channelIDs,
		BackfilledMembers:  len(members),
		StartedAt:          now,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish operation started event: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if err := s.tracker.Register(op, channels, members, now); err != nil {
		return nil, fmt.Errorf("failed to register operation %d with tracker: %w", op.ID, err)
	}
	s.metrics.UpdateActiveOperations(1)

	log.WithFields(log.Fields{
		"operation_id": op.ID,
		"guild_id":     op.GuildID,
		"organizer_id": op.OrganizerDiscordID,
		"channels":     len(channels),
		"backfilled":   len(members),
	}).Info("Operation started")

	return op, nil
}

// Stop finalizes participation and closes an active operation. Stopping an
// operation that is not active fails with NotActiveError and changes nothing.
func (s *OperationService) Stop(ctx context.Context, operationID int64) (*entities.Operation, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	op, err := uow.OperationRepository().GetByIDForUpdate(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	if op == nil {
		return nil, &entities.OperationNotFoundError{OperationID: operationID}
	}
	if !op.IsActive() {
		return nil, &entities.NotActiveError{OperationID: op.ID, Status: op.Status}
	}

	channels, err := uow.TrackedChannelRepository().GetByOperation(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked channels: %w", err)
	}

	now := s.clock.Now()
	tracked := true
	if _, err := s.tracker.FinalizeOperation(ctx, op.ID, now); err != nil {
		if errors.Is(err, ErrOperationNotTracked) {
			tracked = false
			log.WithField("operation_id", op.ID).Warn("Stopping operation without live tracker state")
		} else {
			s.reattach(ctx, op, channels, tracked)
			return nil, fmt.Errorf("failed to finalize participation: %w", err)
		}
	}

	// Closing the operation with writes still parked would drop their time
	if err := s.tracker.SettleOperation(ctx, op.ID); err != nil {
		log.WithFields(log.Fields{
			"operation_id": op.ID,
			"error":        err,
		}).Error("Participation writes not persisted, operation left active")
		s.reattach(ctx, op, channels, tracked)
		return nil, fmt.Errorf("failed to persist participation: %w", err)
	}

	// Leaves are queued outside this transaction; once the tracker is done
	// only snapshots from an earlier process can still be open
	stale, err := uow.ParticipationRepository().CloseOpenIntervals(ctx, op.ID)
	if err != nil {
		s.reattach(ctx, op, channels, tracked)
		return nil, fmt.Errorf("failed to close open intervals: %w", err)
	}

	if err := op.Close(now); err != nil {
		s.reattach(ctx, op, channels, tracked)
		return nil, err
	}
	if err := uow.OperationRepository().Update(ctx, op); err != nil {
		s.reattach(ctx, op, channels, tracked)
		return nil, fmt.Errorf("failed to update operation: %w", err)
	}
	if err := uow.TrackedChannelRepository().Deactivate(ctx, op.ID); err != nil {
		s.reattach(ctx, op, channels, tracked)
		return nil, fmt.Errorf("failed to deactivate tracked channels: %w", err)
	}

	aggregated, err := uow.ParticipationRepository().Aggregate(ctx, op.ID)
	if err != nil {
		s.reattach(ctx, op, channels, tracked)
		return nil, fmt.Errorf("failed to aggregate participation: %w", err)
	}
	participants := entities.FilterByMinimum(aggregated, s.tracker.MinParticipation())

	if err := uow.EventBus().Publish(events.OperationStoppedEvent{
		OperationID:  op.ID,
		GuildID:      op.GuildID,
		Participants: len(participants),
		EndedAt:      now,
	}); err != nil {
		s.reattach(ctx, op, channels, tracked)
		return nil, fmt.Errorf("failed to publish operation stopped event: %w", err)
	}

	if err := uow.Commit(); err != nil {
		s.reattach(ctx, op, channels, tracked)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.tracker.ReleaseOperation(op.ID)
	if tracked {
		s.metrics.UpdateActiveOperations(-1)
	}

	log.WithFields(log.Fields{
		"operation_id":    op.ID,
		"guild_id":        op.GuildID,
		"participants":    len(participants),
		"stale_intervals": stale,
		"elapsed":         op.Elapsed(now).String(),
	}).Info("Operation stopped")

	return op, nil
}

// Resume re-registers every active operation after a restart. Snapshot rows
// left open by the previous process are closed at their snapshot time and
// members currently in voice start fresh intervals.
func (s *OperationService) Resume(ctx context.Context) (int, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	active, err := uow.OperationRepository().GetAllActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get active operations: %w", err)
	}

	type resumable struct {
		op       *entities.Operation
		channels []*entities.TrackedChannel
	}
	pending := make([]resumable, 0, len(active))

	for _, op := range active {
		if _, ok := s.tracker.ActiveOperation(op.GuildID); ok {
			continue
		}
		channels, err := uow.TrackedChannelRepository().GetByOperation(ctx, op.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to get tracked channels for operation %d: %w", op.ID, err)
		}
		stale, err := uow.ParticipationRepository().CloseOpenIntervals(ctx, op.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to close stale intervals for operation %d: %w", op.ID, err)
		}
		if stale > 0 {
			log.WithFields(log.Fields{
				"operation_id":    op.ID,
				"stale_intervals": stale,
			}).Info("Closed intervals left open by previous process")
		}
		pending = append(pending, resumable{op: op, channels: channels})
	}

	if err := uow.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	resumed := 0
	for _, r := range pending {
		if err := s.track(ctx, r.op, r.channels, s.clock.Now()); err != nil {
			log.WithFields(log.Fields{
				"operation_id": r.op.ID,
				"guild_id":     r.op.GuildID,
				"error":        err,
			}).Error("Failed to resume operation tracking")
			continue
		}
		s.metrics.UpdateActiveOperations(1)
		resumed++
	}

	if resumed > 0 {
		log.WithField("operations", resumed).Info("Resumed active operations")
	}
	return resumed, nil
}

// Get returns an operation by id
func (s *OperationService) Get(ctx context.Context, operationID int64) (*entities.Operation, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	op, err := uow.OperationRepository().GetByID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	if op == nil {
		return nil, &entities.OperationNotFoundError{OperationID: operationID}
	}
	return op, nil
}

// ActiveForGuild returns the guild's active operation, or nil when there is none
func (s *OperationService) ActiveForGuild(ctx context.Context, guildID int64) (*entities.Operation, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	op, err := uow.OperationRepository().GetActiveByGuild(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active operation: %w", err)
	}
	return op, nil
}

// Overview returns the operation with its channels and either the live
// participation seen by the tracker or, once closed, the stored totals
func (s *OperationService) Overview(ctx context.Context, operationID int64) (*OperationOverview, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	op, err := uow.OperationRepository().GetByID(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	if op == nil {
		return nil, &entities.OperationNotFoundError{OperationID: operationID}
	}
	channels, err := uow.TrackedChannelRepository().GetByOperation(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked channels: %w", err)
	}

	now := s.clock.Now()
	overview := &OperationOverview{Operation: op, Channels: channels, AsOf: now}
	if op.IsActive() {
		live, err := s.tracker.Snapshot(op.ID, now)
		if err != nil && !errors.Is(err, ErrOperationNotTracked) {
			return nil, err
		}
		overview.Live = live
	}
	if op.IsClosed() {
		totals, err := uow.ParticipationRepository().Aggregate(ctx, op.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate participation: %w", err)
		}
		overview.Totals = entities.FilterByMinimum(totals, s.tracker.MinParticipation())
	}
	return overview, nil
}

// Recent returns the latest operations of a guild, newest first
func (s *OperationService) Recent(ctx context.Context, guildID int64, limit int) ([]*entities.Operation, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	ops, err := uow.OperationRepository().ListRecentByGuild(ctx, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	return ops, nil
}

// track snapshots voice membership and registers the operation with the tracker
func (s *OperationService) track(ctx context.Context, op *entities.Operation, channels []*entities.TrackedChannel, at time.Time) error {
	members, err := s.members.ChannelMembers(ctx, op.GuildID, entities.ActiveChannelIDs(channels))
	if err != nil {
		return fmt.Errorf("failed to snapshot voice membership: %w", err)
	}
	return s.tracker.Register(op, channels, members, at)
}

// reattach restores live tracking when a stop could not be committed
func (s *OperationService) reattach(ctx context.Context, op *entities.Operation, channels []*entities.TrackedChannel, wasTracked bool) {
	if !wasTracked {
		return
	}
	// The failed transaction may have flipped the in-memory status
	restored := *op
	restored.Status = entities.OperationStatusActive
	restored.EndedAt = nil
	if err := s.track(ctx, &restored, channels, s.clock.Now()); err != nil {
		log.WithFields(log.Fields{
			"operation_id": op.ID,
			"error":        err,
		}).Error("Failed to restore tracking after aborted stop")
	}
}

func dedupeChannels(specs []ChannelSpec) []ChannelSpec {
	seen := make(map[int64]bool, len(specs))
	unique := make([]ChannelSpec, 0, len(specs))
	for _, spec := range specs {
		if spec.ChannelID == 0 || seen[spec.ChannelID] {
			continue
		}
		seen[spec.ChannelID] = true
		unique = append(unique, spec)
	}
	return unique
}
