package entities

import (
	"fmt"
	"strings"
)

// UserFacingError is implemented by errors whose message can be shown
// verbatim to the officer who issued the command
type UserFacingError interface {
	error
	UserMessage() string
}

// NoTrackedChannelsError is returned when an operation is started without channels
type NoTrackedChannelsError struct {
	GuildID int64
}

func (e *NoTrackedChannelsError) Error() string {
	return fmt.Sprintf("no tracked channels supplied for guild %d", e.GuildID)
}

func (e *NoTrackedChannelsError) UserMessage() string {
	return "At least one voice channel must be tracked to start an operation."
}

// AlreadyActiveError is returned when a guild already has an active operation
type AlreadyActiveError struct {
	GuildID           int64
	ActiveOperationID int64
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("guild %d already has active operation %d", e.GuildID, e.ActiveOperationID)
}

func (e *AlreadyActiveError) UserMessage() string {
	if e.ActiveOperationID == 0 {
		return "An operation is already active in this server. Stop it before starting another."
	}
	return fmt.Sprintf("Operation #%d is already active in this server. Stop it before starting another.", e.ActiveOperationID)
}

// NotActiveError is returned when stopping an operation that is not active
type NotActiveError struct {
	OperationID int64
	Status      OperationStatus
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("operation %d is not active (status %s)", e.OperationID, e.Status)
}

func (e *NotActiveError) UserMessage() string {
	return fmt.Sprintf("Operation #%d is not active (it is %s).", e.OperationID, e.Status)
}

// OperationNotFoundError is returned for unknown operation ids
type OperationNotFoundError struct {
	OperationID int64
}

func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("operation %d not found", e.OperationID)
}

func (e *OperationNotFoundError) UserMessage() string {
	return fmt.Sprintf("Operation #%d does not exist.", e.OperationID)
}

// NoParticipantsError is returned when there is no participation to pay out
type NoParticipantsError struct {
	OperationID int64
}

func (e *NoParticipantsError) Error() string {
	return fmt.Sprintf("operation %d has no participation to pay out", e.OperationID)
}

func (e *NoParticipantsError) UserMessage() string {
	return "Nobody accumulated participation time in this operation, so there is nothing to pay out."
}

// InvalidTotalValueError is returned for a negative total value
type InvalidTotalValueError struct {
	TotalValue int64
}

func (e *InvalidTotalValueError) Error() string {
	return fmt.Sprintf("total value %d must not be negative", e.TotalValue)
}

func (e *InvalidTotalValueError) UserMessage() string {
	return "The total value must be zero or greater."
}

// UnknownDonorError is returned when a donor id is not among the participants
type UnknownDonorError struct {
	DiscordIDs []int64
}

func (e *UnknownDonorError) Error() string {
	return fmt.Sprintf("donor ids not found among participants: %v", e.DiscordIDs)
}

func (e *UnknownDonorError) UserMessage() string {
	mentions := make([]string, len(e.DiscordIDs))
	for i, id := range e.DiscordIDs {
		mentions[i] = fmt.Sprintf("<@%d>", id)
	}
	return fmt.Sprintf("These donors did not participate in the operation: %s", strings.Join(mentions, ", "))
}

// UnresolvedMaterialError is returned when collected materials have no price
type UnresolvedMaterialError struct {
	Materials []string
}

func (e *UnresolvedMaterialError) Error() string {
	return fmt.Sprintf("no price for materials: %s", strings.Join(e.Materials, ", "))
}

func (e *UnresolvedMaterialError) UserMessage() string {
	return fmt.Sprintf("No price is known for: %s", strings.Join(e.Materials, ", "))
}
