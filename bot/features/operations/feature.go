package operations

import (
	"minebot/bot/common"
	"minebot/domain/services"

	"github.com/bwmarrin/discordgo"
)

// VoiceLocator finds the voice channel a user is connected to
type VoiceLocator interface {
	CurrentChannel(guildID, userID string) (string, bool)
}

// Feature handles the /operation command
type Feature struct {
	operations *services.OperationService
	voice      VoiceLocator
}

// NewFeature creates a new operations feature instance
func NewFeature(operations *services.OperationService, voice VoiceLocator) *Feature {
	return &Feature{
		operations: operations,
		voice:      voice,
	}
}

// HandleCommand handles the /operation command and its subcommands
func (f *Feature) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		common.RespondWithError(s, i, "Please specify a subcommand: start, stop, status or list")
		return
	}

	switch options[0].Name {
	case "start":
		f.handleStart(s, i, options[0].Options)
	case "stop":
		f.handleStop(s, i, options[0].Options)
	case "status":
		f.handleStatus(s, i, options[0].Options)
	case "list":
		f.handleList(s, i)
	default:
		common.RespondWithError(s, i, "Unknown subcommand")
	}
}
