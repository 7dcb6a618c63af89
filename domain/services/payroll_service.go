package services

import (
	"context"
	"errors"
	"fmt"

	"minebot/domain/clock"
	"minebot/domain/entities"
	"minebot/domain/interfaces"
	"minebot/events"

	log "github.com/sirupsen/logrus"
)

// CalculatePayrollRequest is the input of PayrollService.Calculate.
// Materials priced through Prices are added to TotalValue.
type CalculatePayrollRequest struct {
	OperationID int64
	TotalValue  int64
	DonorIDs    []int64
	Materials   []entities.MaterialAmount
	Prices      entities.PriceTable
}

// PayrollService computes and stores the payout table of an operation
type PayrollService struct {
	uowFactory interfaces.UnitOfWorkFactory
	operations *OperationService
	engine     *PayrollEngine
	clock      clock.Clock
	metrics    interfaces.TrackerMetrics
}

// NewPayrollService creates a new payroll service
func NewPayrollService(
	uowFactory interfaces.UnitOfWorkFactory,
	operations *OperationService,
	engine *PayrollEngine,
	clk clock.Clock,
	metrics interfaces.TrackerMetrics,
) *PayrollService {
	if metrics == nil {
		metrics = interfaces.NoopTrackerMetrics{}
	}
	return &PayrollService{
		uowFactory: uowFactory,
		operations: operations,
		engine:     engine,
		clock:      clk,
		metrics:    metrics,
	}
}

// Calculate stops the operation if it is still active, then splits the total
// value over the finalized participation. Recalculating replaces the earlier
// payout table. Nothing is stored when the calculation fails.
func (s *PayrollService) Calculate(ctx context.Context, req CalculatePayrollRequest) (*entities.PayrollResult, error) {
	if req.TotalValue < 0 {
		return nil, &entities.InvalidTotalValueError{TotalValue: req.TotalValue}
	}

	total := req.TotalValue
	if len(req.Materials) > 0 {
		materialValue, err := s.engine.ResolveMaterialValue(req.Prices, req.Materials)
		if err != nil {
			return nil, err
		}
		total += materialValue
	}

	op, err := s.operations.Get(ctx, req.OperationID)
	if err != nil {
		return nil, err
	}
	if op.IsActive() {
		if _, err := s.operations.Stop(ctx, op.ID); err != nil {
			var notActive *entities.NotActiveError
			if !errors.As(err, &notActive) {
				return nil, fmt.Errorf("failed to stop operation before payroll: %w", err)
			}
		}
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	op, err = uow.OperationRepository().GetByIDForUpdate(ctx, req.OperationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	if op == nil {
		return nil, &entities.OperationNotFoundError{OperationID: req.OperationID}
	}
	if !op.IsClosed() {
		return nil, &entities.NotActiveError{OperationID: op.ID, Status: op.Status}
	}

	aggregated, err := uow.ParticipationRepository().Aggregate(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate participation: %w", err)
	}
	eligible := entities.FilterByMinimum(aggregated, s.operations.tracker.MinParticipation())

	participants := make([]PayrollParticipant, len(eligible))
	for i, row := range eligible {
		participants[i] = PayrollParticipant{
			DiscordID:     row.DiscordID,
			Username:      row.Username,
			TotalDuration: row.TotalDuration,
			IsOrgMember:   row.IsOrgMember,
		}
	}

	result, err := s.engine.Calculate(PayrollInput{
		OperationID:  op.ID,
		TotalValue:   total,
		Participants: participants,
		DonorIDs:     req.DonorIDs,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result.CalculatedAt = now
	for _, rec := range result.Records {
		rec.CreatedAt = now
	}

	if err := uow.PayoutRepository().ReplaceForOperation(ctx, op.ID, result.Records); err != nil {
		return nil, fmt.Errorf("failed to store payout records: %w", err)
	}
	op.RecordPayroll(result.TotalValue, result.UnallocatedValue, now)
	if err := uow.OperationRepository().Update(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to update operation: %w", err)
	}

	if err := uow.EventBus().Publish(events.PayrollCalculatedEvent{
		OperationID:      op.ID,
		GuildID:          op.GuildID,
		TotalValue:       result.TotalValue,
		DonatedAmount:    result.DonatedAmount,
		UnallocatedValue: result.UnallocatedValue,
		Recipients:       len(result.Recipients()),
		Donors:           result.DonorCount(),
		CalculatedAt:     now,
	}); err != nil {
		return nil, fmt.Errorf("failed to publish payroll calculated event: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.metrics.RecordPayrollCalculation(len(result.Recipients()), result.DonorCount())

	log.WithFields(log.Fields{
		"operation_id": op.ID,
		"guild_id":     op.GuildID,
		"total_value":  result.TotalValue,
		"donated":      result.DonatedAmount,
		"unallocated":  result.UnallocatedValue,
		"recipients":   len(result.Recipients()),
		"donors":       result.DonorCount(),
	}).Info("Payroll calculated")

	return result, nil
}

// Records returns the stored payout table of an operation
func (s *PayrollService) Records(ctx context.Context, operationID int64) ([]*entities.PayoutRecord, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	records, err := uow.PayoutRepository().GetByOperation(ctx, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout records: %w", err)
	}
	return records, nil
}
