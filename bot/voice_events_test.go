package bot

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orgRole = "7000"

var eventTime = time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

func voiceUpdate(before, after string) *discordgo.VoiceStateUpdate {
	v := &discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{
			GuildID:   "100",
			UserID:    "1001",
			ChannelID: after,
			Member: &discordgo.Member{
				User:  &discordgo.User{ID: "1001", Username: "alice"},
				Roles: []string{orgRole},
			},
		},
	}
	if before != "" {
		v.BeforeUpdate = &discordgo.VoiceState{GuildID: "100", UserID: "1001", ChannelID: before}
	}
	return v
}

func TestMembershipChange(t *testing.T) {
	tests := []struct {
		name     string
		update   *discordgo.VoiceStateUpdate
		wantOK   bool
		previous *int64
		current  *int64
	}{
		{"join", voiceUpdate("", "9001"), true, nil, ptr(9001)},
		{"leave", voiceUpdate("9001", ""), true, ptr(9001), nil},
		{"move", voiceUpdate("9001", "9002"), true, ptr(9001), ptr(9002)},
		{"mute toggle", voiceUpdate("9001", "9001"), false, nil, nil},
		{"no channel either side", voiceUpdate("", ""), false, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok, err := membershipChange(tt.update, orgRole, eventTime)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, int64(100), ev.GuildID)
			assert.Equal(t, int64(1001), ev.ParticipantID)
			assert.Equal(t, tt.previous, ev.PreviousChannelID)
			assert.Equal(t, tt.current, ev.NewChannelID)
			assert.Equal(t, eventTime, ev.At)
			assert.Equal(t, "alice", ev.Username)
			assert.True(t, ev.IsOrgMember)
		})
	}
}

func TestMembershipChange_SkipsBots(t *testing.T) {
	update := voiceUpdate("", "9001")
	update.Member.User.Bot = true

	_, ok, err := membershipChange(update, orgRole, eventTime)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMembershipChange_InvalidIDs(t *testing.T) {
	update := voiceUpdate("", "not-a-channel")
	_, _, err := membershipChange(update, orgRole, eventTime)
	assert.Error(t, err)
}

func TestIsOrgMember(t *testing.T) {
	member := &discordgo.Member{Roles: []string{"1", orgRole}}
	assert.True(t, isOrgMember(member, orgRole))
	assert.False(t, isOrgMember(&discordgo.Member{Roles: []string{"1"}}, orgRole))
	assert.False(t, isOrgMember(nil, orgRole))
	assert.True(t, isOrgMember(nil, ""))
}

func TestMemberName(t *testing.T) {
	assert.Equal(t, "Rock Breaker", memberName(&discordgo.Member{Nick: "Rock Breaker", User: &discordgo.User{Username: "alice"}}))
	assert.Equal(t, "Alice", memberName(&discordgo.Member{User: &discordgo.User{Username: "alice", GlobalName: "Alice"}}))
	assert.Equal(t, "alice", memberName(&discordgo.Member{User: &discordgo.User{Username: "alice"}}))
	assert.Empty(t, memberName(nil))
}

func ptr(v int64) *int64 {
	return &v
}
