package bot

import (
	"context"

	"minebot/events"

	log "github.com/sirupsen/logrus"
)

// RegisterBotSubscriptions registers the audit log handlers on the local bus
func RegisterBotSubscriptions(bus *events.Bus) {
	bus.Subscribe(events.EventTypeOperationStarted, logOperationStarted)
	bus.Subscribe(events.EventTypeOperationStopped, logOperationStopped)
	bus.Subscribe(events.EventTypePayrollCalculated, logPayrollCalculated)

	log.Info("Bot event subscriptions registered successfully")
}

func logOperationStarted(ctx context.Context, event events.Event) {
	e, ok := event.(events.OperationStartedEvent)
	if !ok {
		log.Error("received non-OperationStartedEvent in operation started handler")
		return
	}
	log.WithFields(log.Fields{
		"operation_id": e.OperationID,
		"guild_id":     e.GuildID,
		"organizer_id": e.OrganizerDiscordID,
		"channels":     e.ChannelIDs,
		"backfilled":   e.BackfilledMembers,
	}).Info("Audit: operation started")
}

func logOperationStopped(ctx context.Context, event events.Event) {
	e, ok := event.(events.OperationStoppedEvent)
	if !ok {
		log.Error("received non-OperationStoppedEvent in operation stopped handler")
		return
	}
	log.WithFields(log.Fields{
		"operation_id": e.OperationID,
		"guild_id":     e.GuildID,
		"participants": e.Participants,
		"ended_at":     e.EndedAt,
	}).Info("Audit: operation stopped")
}

func logPayrollCalculated(ctx context.Context, event events.Event) {
	e, ok := event.(events.PayrollCalculatedEvent)
	if !ok {
		log.Error("received non-PayrollCalculatedEvent in payroll handler")
		return
	}
	log.WithFields(log.Fields{
		"operation_id": e.OperationID,
		"guild_id":     e.GuildID,
		"total_value":  e.TotalValue,
		"donated":      e.DonatedAmount,
		"unallocated":  e.UnallocatedValue,
		"recipients":   e.Recipients,
		"donors":       e.Donors,
	}).Info("Audit: payroll calculated")
}
