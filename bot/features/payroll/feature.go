package payroll

import (
	"minebot/bot/common"
	"minebot/domain/services"

	"github.com/bwmarrin/discordgo"
)

// Feature handles the /payroll command
type Feature struct {
	operations    common.OperationLookup
	payroll       *services.PayrollService
	currencyLabel string
}

// NewFeature creates a new payroll feature instance
func NewFeature(operations common.OperationLookup, payroll *services.PayrollService, currencyLabel string) *Feature {
	return &Feature{
		operations:    operations,
		payroll:       payroll,
		currencyLabel: currencyLabel,
	}
}

// HandleCommand handles the /payroll command and its subcommands
func (f *Feature) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		common.RespondWithError(s, i, "Please specify a subcommand: calculate or show")
		return
	}

	switch options[0].Name {
	case "calculate":
		f.handleCalculate(s, i, options[0].Options)
	case "show":
		f.handleShow(s, i, options[0].Options)
	default:
		common.RespondWithError(s, i, "Unknown subcommand")
	}
}
