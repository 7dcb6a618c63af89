package bot

import (
	"context"
	"testing"

	"minebot/domain/entities"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(t *testing.T) *discordgo.State {
	t.Helper()
	state := discordgo.NewState()
	err := state.GuildAdd(&discordgo.Guild{
		ID: "100",
		Members: []*discordgo.Member{
			{GuildID: "100", User: &discordgo.User{ID: "1001", Username: "alice"}, Roles: []string{orgRole}},
			{GuildID: "100", User: &discordgo.User{ID: "1002", Username: "bob"}},
			{GuildID: "100", User: &discordgo.User{ID: "1003", Username: "drillbot", Bot: true}},
			{GuildID: "100", User: &discordgo.User{ID: "1004", Username: "dave"}, Roles: []string{orgRole}},
		},
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "100", UserID: "1002", ChannelID: "9002"},
			{GuildID: "100", UserID: "1001", ChannelID: "9001"},
			{GuildID: "100", UserID: "1003", ChannelID: "9001"},
			{GuildID: "100", UserID: "1004", ChannelID: "9100"},
		},
	})
	require.NoError(t, err)
	return state
}

func TestStateVoiceMembers_ChannelMembers(t *testing.T) {
	members := newStateVoiceMembers(testState(t), orgRole)

	got, err := members.ChannelMembers(context.Background(), 100, []int64{9001, 9002})
	require.NoError(t, err)
	assert.Equal(t, []entities.VoiceMember{
		{DiscordID: 1001, ChannelID: 9001, Username: "alice", IsOrgMember: true},
		{DiscordID: 1002, ChannelID: 9002, Username: "bob", IsOrgMember: false},
	}, got)
}

func TestStateVoiceMembers_UnknownGuild(t *testing.T) {
	members := newStateVoiceMembers(testState(t), orgRole)

	_, err := members.ChannelMembers(context.Background(), 555, []int64{9001})
	assert.Error(t, err)
}

func TestStateVoiceMembers_CurrentChannel(t *testing.T) {
	members := newStateVoiceMembers(testState(t), orgRole)

	channel, ok := members.CurrentChannel("100", "1004")
	assert.True(t, ok)
	assert.Equal(t, "9100", channel)

	_, ok = members.CurrentChannel("100", "4242")
	assert.False(t, ok)
}
