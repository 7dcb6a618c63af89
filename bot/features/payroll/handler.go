package payroll

import (
	"context"

	"minebot/bot/common"
	"minebot/domain/services"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// handleCalculate splits a haul over the targeted operation's participants.
// An active operation is stopped first.
func (f *Feature) handleCalculate(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	guildID, officerID, err := common.GuildAndUser(i)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	opts := common.OptionMap(options)
	req := services.CalculatePayrollRequest{}
	if total := common.OptionalInt(opts, "total"); total != nil {
		req.TotalValue = *total
	}
	if req.DonorIDs, err = parseDonorIDs(common.OptionalString(opts, "donors")); err != nil {
		common.HandleError(s, i, err, false)
		return
	}
	if req.Materials, err = parseMaterials(common.OptionalString(opts, "materials")); err != nil {
		common.HandleError(s, i, err, false)
		return
	}
	if req.Prices, err = parsePrices(common.OptionalString(opts, "prices")); err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	if err := common.DeferResponse(s, i); err != nil {
		log.Errorf("Error deferring payroll response: %v", err)
		return
	}

	op, err := common.ResolveOperation(ctx, f.operations, guildID, common.OptionalInt(opts, "operation"))
	if err != nil {
		common.HandleError(s, i, err, true)
		return
	}
	req.OperationID = op.ID

	result, err := f.payroll.Calculate(ctx, req)
	if err != nil {
		common.HandleError(s, i, err, true)
		return
	}

	log.WithFields(log.Fields{
		"operation_id": op.ID,
		"guild_id":     guildID,
		"officer_id":   officerID,
		"total_value":  result.TotalValue,
	}).Info("Payroll calculated from command")

	common.FollowUpWithEmbed(s, i, buildPayrollEmbed(op, result, f.currencyLabel))
}

// handleShow shows the stored payout table of the targeted operation
func (f *Feature) handleShow(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	guildID, _, err := common.GuildAndUser(i)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	op, err := common.ResolveOperation(ctx, f.operations, guildID, common.OptionalInt(common.OptionMap(options), "operation"))
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}
	if !op.HasPayroll() {
		common.HandleError(s, i, common.NewUserError(
			"Payroll has not been calculated for this operation yet. Use /payroll calculate.",
			"payroll show before calculate",
		), false)
		return
	}

	records, err := f.payroll.Records(ctx, op.ID)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	common.RespondWithEmbed(s, i, buildRecordsEmbed(op, records, f.currencyLabel))
}
