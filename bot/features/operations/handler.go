package operations

import (
	"context"
	"strconv"

	"minebot/bot/common"
	"minebot/domain/services"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

const recentOperationsLimit = 10

var channelOptionNames = []string{"channel", "channel2", "channel3"}

// handleStart starts an operation on the chosen channels, or on the
// organizer's current voice channel when none is chosen
func (f *Feature) handleStart(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	guildID, organizerID, err := common.GuildAndUser(i)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	opts := common.OptionMap(options)
	channels := make([]services.ChannelSpec, 0, len(channelOptionNames))
	for _, name := range channelOptionNames {
		opt, ok := opts[name]
		if !ok {
			continue
		}
		ch := opt.ChannelValue(s)
		spec, err := channelSpec(ch.ID, ch.Name)
		if err != nil {
			common.HandleError(s, i, common.NewSystemError(err, "failed to parse channel option"), false)
			return
		}
		channels = append(channels, spec)
	}

	if len(channels) == 0 && f.voice != nil {
		if channelID, ok := f.voice.CurrentChannel(i.GuildID, common.InteractionUserID(i)); ok {
			name := ""
			if ch, err := s.State.Channel(channelID); err == nil {
				name = ch.Name
			}
			if spec, err := channelSpec(channelID, name); err == nil {
				channels = append(channels, spec)
			}
		}
	}

	op, err := f.operations.Start(ctx, services.StartOperationRequest{
		GuildID:     guildID,
		OrganizerID: organizerID,
		Name:        common.OptionalString(opts, "name"),
		Channels:    channels,
	})
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	log.WithFields(log.Fields{
		"operation_id": op.ID,
		"guild_id":     guildID,
		"organizer_id": organizerID,
		"channels":     len(channels),
	}).Info("Operation started from command")

	common.RespondWithEmbed(s, i, buildStartedEmbed(op, channels))
}

// handleStop closes the targeted operation and shows its final participation
func (f *Feature) handleStop(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	guildID, _, err := common.GuildAndUser(i)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	// Finalizing participation touches every open interval
	if err := common.DeferResponse(s, i); err != nil {
		log.Errorf("Error deferring operation stop response: %v", err)
		return
	}

	op, err := common.ResolveOperation(ctx, f.operations, guildID, common.OptionalInt(common.OptionMap(options), "id"))
	if err != nil {
		common.HandleError(s, i, err, true)
		return
	}

	if _, err := f.operations.Stop(ctx, op.ID); err != nil {
		common.HandleError(s, i, err, true)
		return
	}

	overview, err := f.operations.Overview(ctx, op.ID)
	if err != nil {
		common.HandleError(s, i, err, true)
		return
	}

	common.FollowUpWithEmbed(s, i, buildOverviewEmbed(overview))
}

// handleStatus shows live or final participation of the targeted operation
func (f *Feature) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	guildID, _, err := common.GuildAndUser(i)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	op, err := common.ResolveOperation(ctx, f.operations, guildID, common.OptionalInt(common.OptionMap(options), "id"))
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	overview, err := f.operations.Overview(ctx, op.ID)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	common.RespondWithEmbed(s, i, buildOverviewEmbed(overview))
}

// handleList shows the latest operations of the guild
func (f *Feature) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	guildID, _, err := common.GuildAndUser(i)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	ops, err := f.operations.Recent(ctx, guildID, recentOperationsLimit)
	if err != nil {
		common.HandleError(s, i, err, false)
		return
	}

	common.RespondWithEmbed(s, i, buildListEmbed(ops))
}

func channelSpec(id, name string) (services.ChannelSpec, error) {
	channelID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return services.ChannelSpec{}, err
	}
	return services.ChannelSpec{ChannelID: channelID, Name: name}, nil
}
