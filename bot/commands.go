package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

var (
	officerPermissions int64 = discordgo.PermissionManageEvents
	minOperationID           = 1.0
	minTotalValue            = 0.0
)

func operationIDOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        name,
		Description: description,
		MinValue:    &minOperationID,
	}
}

func voiceChannelOption(name, description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionChannel,
		Name:         name,
		Description:  description,
		ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice, discordgo.ChannelTypeGuildStageVoice},
	}
}

// commandDefinitions lists every slash command the bot serves
func commandDefinitions() []*discordgo.ApplicationCommand {
	dmPermission := false
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "operation",
			Description:              "Track participation in a mining operation",
			DefaultMemberPermissions: &officerPermissions,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "start",
					Description: "Start tracking voice channels for a new operation",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "name",
							Description: "Operation name",
							MaxLength:   100,
						},
						voiceChannelOption("channel", "Voice channel to track (defaults to the one you are in)"),
						voiceChannelOption("channel2", "Additional voice channel to track"),
						voiceChannelOption("channel3", "Additional voice channel to track"),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "stop",
					Description: "Stop the operation and finalize participation",
					Options: []*discordgo.ApplicationCommandOption{
						operationIDOption("id", "Operation ID (defaults to the active operation)"),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "status",
					Description: "Show participation so far",
					Options: []*discordgo.ApplicationCommandOption{
						operationIDOption("id", "Operation ID (defaults to the active or latest operation)"),
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List recent operations",
				},
			},
		},
		{
			Name:                     "payroll",
			Description:              "Split an operation's haul by time share",
			DefaultMemberPermissions: &officerPermissions,
			DMPermission:             &dmPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "calculate",
					Description: "Calculate payouts for an operation",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "total",
							Description: "Total cash value to split",
							Required:    true,
							MinValue:    &minTotalValue,
						},
						operationIDOption("operation", "Operation ID (defaults to the active or latest operation)"),
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "donors",
							Description: "Members donating their share, as mentions",
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "materials",
							Description: "Collected materials, e.g. quantanium=32.5,laranite=10",
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "prices",
							Description: "Unit prices, e.g. quantanium=88,laranite=30",
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "show",
					Description: "Show the stored payout table",
					Options: []*discordgo.ApplicationCommandOption{
						operationIDOption("operation", "Operation ID (defaults to the active or latest operation)"),
					},
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	for _, cmd := range commandDefinitions() {
		if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, "", cmd); err != nil {
			return fmt.Errorf("cannot create '%s' command: %w", cmd.Name, err)
		}
		log.WithField("command", cmd.Name).Debug("Registered slash command")
	}
	return nil
}
