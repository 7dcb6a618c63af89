package testutil

import (
	"time"

	"minebot/domain/entities"
)

// CreateTestOperation creates an active operation started at startedAt
func CreateTestOperation(guildID, organizerID int64, startedAt time.Time) *entities.Operation {
	start := startedAt.UTC()
	return &entities.Operation{
		GuildID:            guildID,
		Name:               "Test Operation",
		Status:             entities.OperationStatusActive,
		OrganizerDiscordID: organizerID,
		StartedAt:          &start,
	}
}

// CreateTestTrackedChannels creates active tracked channels for an operation
func CreateTestTrackedChannels(op *entities.Operation, channelIDs ...int64) []*entities.TrackedChannel {
	channels := make([]*entities.TrackedChannel, 0, len(channelIDs))
	for _, id := range channelIDs {
		channels = append(channels, &entities.TrackedChannel{
			OperationID: op.ID,
			GuildID:     op.GuildID,
			ChannelID:   id,
			Name:        "Mining Station",
			Active:      true,
		})
	}
	return channels
}

// CreateTestParticipant creates a participant identity first seen at seenAt
func CreateTestParticipant(operationID, discordID int64, username string, seenAt time.Time) *entities.OperationParticipant {
	return &entities.OperationParticipant{
		OperationID: operationID,
		DiscordID:   discordID,
		Username:    username,
		IsOrgMember: true,
		FirstSeenAt: seenAt.UTC(),
	}
}

// IntervalKey builds the key of a stay starting at joinedAt
func IntervalKey(operationID, discordID, channelID int64, joinedAt time.Time) entities.IntervalKey {
	return entities.IntervalKey{
		OperationID:          operationID,
		ParticipantDiscordID: discordID,
		ChannelID:            channelID,
		JoinedAt:             joinedAt.UTC(),
	}
}
