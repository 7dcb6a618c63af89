package services

import (
	"context"
	"testing"
	"time"

	"minebot/domain/entities"
	"minebot/domain/testhelpers"

	"github.com/stretchr/testify/require"
)

const (
	testGuildID      int64 = 555555555
	testOtherGuildID int64 = 666666666
	testOperationID  int64 = 77
	stationAlpha     int64 = 9001
	stationBravo     int64 = 9002
	lobbyChannel     int64 = 9100
)

var opStart = time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)

func testWriterConfig() DurabilityWriterConfig {
	return DurabilityWriterConfig{
		Workers:        4,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		WriteTimeout:   time.Second,
	}
}

func newTestTracker(t *testing.T) (*VoiceSessionTracker, *DurabilityWriter, *testhelpers.InMemoryParticipationRepository) {
	t.Helper()

	store := testhelpers.NewInMemoryParticipationRepository()
	writer := NewDurabilityWriter(store, testWriterConfig(), nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = writer.Close(ctx)
	})

	return NewVoiceSessionTracker(writer, entities.DefaultMinParticipation, nil), writer, store
}

func testOperation(id, guildID int64) *entities.Operation {
	started := opStart
	return &entities.Operation{
		ID:                 id,
		GuildID:            guildID,
		Name:               "Aaron Halo run",
		Status:             entities.OperationStatusActive,
		OrganizerDiscordID: 42,
		StartedAt:          &started,
	}
}

func testChannels(operationID, guildID int64, ids ...int64) []*entities.TrackedChannel {
	channels := make([]*entities.TrackedChannel, len(ids))
	for i, id := range ids {
		channels[i] = &entities.TrackedChannel{
			OperationID: operationID,
			GuildID:     guildID,
			ChannelID:   id,
			Name:        "station",
			Active:      true,
		}
	}
	return channels
}

func registerTestOperation(t *testing.T, tracker *VoiceSessionTracker, members ...entities.VoiceMember) {
	t.Helper()
	err := tracker.Register(
		testOperation(testOperationID, testGuildID),
		testChannels(testOperationID, testGuildID, stationAlpha, stationBravo),
		members,
		opStart,
	)
	require.NoError(t, err)
}

func miner(id int64) ParticipantIdentity {
	return ParticipantIdentity{DiscordID: id, Username: "miner", IsOrgMember: true}
}

func waitIdle(t *testing.T, writer *DurabilityWriter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, writer.WaitIdle(ctx))
}

func aggregateByID(t *testing.T, store *testhelpers.InMemoryParticipationRepository, operationID int64) map[int64]*entities.AggregatedParticipation {
	t.Helper()
	rows, err := store.Aggregate(context.Background(), operationID)
	require.NoError(t, err)
	byID := make(map[int64]*entities.AggregatedParticipation, len(rows))
	for _, row := range rows {
		byID[row.DiscordID] = row
	}
	return byID
}

func ptr(v int64) *int64 {
	return &v
}
