package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"minebot/domain/entities"

	"github.com/bwmarrin/discordgo"
)

// stateVoiceMembers answers voice membership questions from the gateway
// state cache, which discordgo fills from GUILD_CREATE and voice updates
type stateVoiceMembers struct {
	state     *discordgo.State
	orgRoleID string
}

func newStateVoiceMembers(state *discordgo.State, orgRoleID string) *stateVoiceMembers {
	return &stateVoiceMembers{state: state, orgRoleID: orgRoleID}
}

// ChannelMembers returns the non-bot members connected to any of channelIDs
func (m *stateVoiceMembers) ChannelMembers(ctx context.Context, guildID int64, channelIDs []int64) ([]entities.VoiceMember, error) {
	guild, err := m.state.Guild(strconv.FormatInt(guildID, 10))
	if err != nil {
		return nil, fmt.Errorf("guild %d not in state cache: %w", guildID, err)
	}

	wanted := make(map[string]int64, len(channelIDs))
	for _, id := range channelIDs {
		wanted[strconv.FormatInt(id, 10)] = id
	}

	// Copy under the read lock; member lookups take the lock themselves
	m.state.RLock()
	states := make([]discordgo.VoiceState, 0, len(guild.VoiceStates))
	for _, vs := range guild.VoiceStates {
		if _, ok := wanted[vs.ChannelID]; ok {
			states = append(states, *vs)
		}
	}
	m.state.RUnlock()

	members := make([]entities.VoiceMember, 0, len(states))
	for _, vs := range states {
		userID, err := strconv.ParseInt(vs.UserID, 10, 64)
		if err != nil {
			continue
		}

		member := vs.Member
		if cached, err := m.state.Member(guild.ID, vs.UserID); err == nil {
			member = cached
		}
		if member != nil && member.User != nil && member.User.Bot {
			continue
		}

		members = append(members, entities.VoiceMember{
			DiscordID:   userID,
			ChannelID:   wanted[vs.ChannelID],
			Username:    memberName(member),
			IsOrgMember: isOrgMember(member, m.orgRoleID),
		})
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].DiscordID < members[j].DiscordID
	})
	return members, nil
}

// CurrentChannel returns the voice channel a user is connected to, if any
func (m *stateVoiceMembers) CurrentChannel(guildID, userID string) (string, bool) {
	vs, err := m.state.VoiceState(guildID, userID)
	if err != nil || vs.ChannelID == "" {
		return "", false
	}
	return vs.ChannelID, true
}
