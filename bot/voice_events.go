package bot

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"minebot/domain/entities"

	"github.com/bwmarrin/discordgo"
)

// membershipChange turns a gateway voice update into a tracker event. The
// previous channel comes from the state cache discordgo keeps before applying
// the update. ok is false for updates that never affect participation.
func membershipChange(v *discordgo.VoiceStateUpdate, orgRoleID string, at time.Time) (entities.ChannelMembershipChanged, bool, error) {
	var ev entities.ChannelMembershipChanged
	if v == nil || v.VoiceState == nil {
		return ev, false, nil
	}
	if v.Member != nil && v.Member.User != nil && v.Member.User.Bot {
		return ev, false, nil
	}

	guildID, err := strconv.ParseInt(v.GuildID, 10, 64)
	if err != nil {
		return ev, false, fmt.Errorf("invalid guild id %q: %w", v.GuildID, err)
	}
	userID, err := strconv.ParseInt(v.UserID, 10, 64)
	if err != nil {
		return ev, false, fmt.Errorf("invalid user id %q: %w", v.UserID, err)
	}

	previous, err := optionalID(beforeChannel(v))
	if err != nil {
		return ev, false, fmt.Errorf("invalid previous channel id: %w", err)
	}
	current, err := optionalID(v.ChannelID)
	if err != nil {
		return ev, false, fmt.Errorf("invalid channel id: %w", err)
	}

	// Mute, deafen and stream toggles repeat the same channel
	if previous == nil && current == nil {
		return ev, false, nil
	}
	if previous != nil && current != nil && *previous == *current {
		return ev, false, nil
	}

	ev = entities.ChannelMembershipChanged{
		GuildID:           guildID,
		ParticipantID:     userID,
		PreviousChannelID: previous,
		NewChannelID:      current,
		At:                at,
		Username:          memberName(v.Member),
		IsOrgMember:       isOrgMember(v.Member, orgRoleID),
	}
	return ev, true, nil
}

func beforeChannel(v *discordgo.VoiceStateUpdate) string {
	if v.BeforeUpdate == nil {
		return ""
	}
	return v.BeforeUpdate.ChannelID
}

func optionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// isOrgMember reports whether member holds the org role. With no role
// configured every member counts.
func isOrgMember(member *discordgo.Member, orgRoleID string) bool {
	if orgRoleID == "" {
		return true
	}
	if member == nil {
		return false
	}
	return slices.Contains(member.Roles, orgRoleID)
}

func memberName(member *discordgo.Member) string {
	if member == nil {
		return ""
	}
	if member.Nick != "" {
		return member.Nick
	}
	if member.User == nil {
		return ""
	}
	if member.User.GlobalName != "" {
		return member.User.GlobalName
	}
	return member.User.Username
}
