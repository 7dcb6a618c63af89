package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"minebot/domain/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceSessionTracker_JoinLeavePersistsInterval(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart.Add(time.Minute))
	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(46*time.Minute))
	waitIdle(t, writer)

	intervals, err := store.ListIntervals(context.Background(), testOperationID)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.True(t, intervals[0].Closed)
	assert.Equal(t, 45*time.Minute, intervals[0].Duration)
	assert.Equal(t, stationAlpha, intervals[0].ChannelID)

	agg := aggregateByID(t, store, testOperationID)
	require.Contains(t, agg, int64(1))
	assert.Equal(t, 45*time.Minute, agg[1].TotalDuration)
	assert.True(t, agg[1].IsOrgMember)
	assert.Equal(t, "miner", agg[1].Username)
}

func TestVoiceSessionTracker_ShortStayIsNotStored(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart)
	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(29*time.Second))
	waitIdle(t, writer)

	intervals, err := store.ListIntervals(context.Background(), testOperationID)
	require.NoError(t, err)
	assert.Empty(t, intervals)
	assert.Empty(t, aggregateByID(t, store, testOperationID))
}

func TestVoiceSessionTracker_FlushThenLeaveDoesNotDoubleCount(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart)
	assert.Equal(t, 1, tracker.Flush(opStart.Add(2*time.Minute)))
	waitIdle(t, writer)

	agg := aggregateByID(t, store, testOperationID)
	assert.Equal(t, 2*time.Minute, agg[1].TotalDuration, "snapshot counts open time")

	tracker.Flush(opStart.Add(4 * time.Minute))
	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(5*time.Minute))
	waitIdle(t, writer)

	intervals, err := store.ListIntervals(context.Background(), testOperationID)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.True(t, intervals[0].Closed)
	assert.Equal(t, 5*time.Minute, aggregateByID(t, store, testOperationID)[1].TotalDuration)
}

func TestVoiceSessionTracker_FlushSkipsStaysBelowThreshold(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart)
	assert.Equal(t, 0, tracker.Flush(opStart.Add(10*time.Second)))
	waitIdle(t, writer)

	intervals, err := store.ListIntervals(context.Background(), testOperationID)
	require.NoError(t, err)
	assert.Empty(t, intervals)
	assert.Equal(t, 0, store.Calls("OpenInterval"))

	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(20*time.Second))
	waitIdle(t, writer)
	assert.Equal(t, 0, store.Calls("DiscardInterval"))

	// A stay that reaches the threshold is snapshotted
	tracker.OnJoin(testGuildID, miner(1), stationBravo, opStart.Add(time.Minute))
	assert.Equal(t, 1, tracker.Flush(opStart.Add(time.Minute+entities.DefaultMinParticipation)))
	waitIdle(t, writer)

	intervals, err = store.ListIntervals(context.Background(), testOperationID)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.False(t, intervals[0].Closed)
	assert.Equal(t, entities.DefaultMinParticipation, intervals[0].Duration)
}

func TestVoiceSessionTracker_SwitchChannelsSplitsIntervals(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart)
	// Joining another station without leaving closes the first stay
	tracker.OnJoin(testGuildID, miner(1), stationBravo, opStart.Add(10*time.Minute))
	tracker.OnLeave(testGuildID, 1, stationBravo, opStart.Add(40*time.Minute))
	waitIdle(t, writer)

	intervals, err := store.ListIntervals(context.Background(), testOperationID)
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.Equal(t, stationAlpha, intervals[0].ChannelID)
	assert.Equal(t, 10*time.Minute, intervals[0].Duration)
	assert.Equal(t, stationBravo, intervals[1].ChannelID)
	assert.Equal(t, 30*time.Minute, intervals[1].Duration)
	assert.False(t, intervals[1].JoinedAt.Before(*intervals[0].LeftAt), "intervals must not overlap")

	agg := aggregateByID(t, store, testOperationID)
	assert.Equal(t, 40*time.Minute, agg[1].TotalDuration)
	assert.Equal(t, stationBravo, agg[1].PrimaryChannelID)
}

func TestVoiceSessionTracker_DuplicateEventsAreNoOps(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart)
	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart)
	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart.Add(5*time.Minute))
	tracker.OnLeave(testGuildID, 1, stationBravo, opStart.Add(6*time.Minute))
	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(10*time.Minute))
	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(11*time.Minute))
	waitIdle(t, writer)

	intervals, err := store.ListIntervals(context.Background(), testOperationID)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.Equal(t, opStart, intervals[0].JoinedAt)
	assert.Equal(t, 10*time.Minute, intervals[0].Duration)
}

func TestVoiceSessionTracker_IgnoresUntrackedChannelsAndGuilds(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), lobbyChannel, opStart)
	tracker.OnJoin(testOtherGuildID, miner(2), stationAlpha, opStart)
	tracker.OnLeave(testGuildID, 1, lobbyChannel, opStart.Add(time.Hour))
	tracker.OnLeave(testOtherGuildID, 2, stationAlpha, opStart.Add(time.Hour))
	waitIdle(t, writer)

	assert.Empty(t, aggregateByID(t, store, testOperationID))
	assert.Equal(t, 0, store.Calls("UpsertParticipant"))
}

func TestVoiceSessionTracker_HandleMembershipChange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		events     func() []entities.ChannelMembershipChanged
		wantTotal  time.Duration
		wantRows   int
		wantInside bool
	}{
		{
			name: "join then disconnect",
			events: func() []entities.ChannelMembershipChanged {
				return []entities.ChannelMembershipChanged{
					{NewChannelID: ptr(stationAlpha), At: opStart},
					{PreviousChannelID: ptr(stationAlpha), At: opStart.Add(20 * time.Minute)},
				}
			},
			wantTotal: 20 * time.Minute,
			wantRows:  1,
		},
		{
			name: "move between stations",
			events: func() []entities.ChannelMembershipChanged {
				return []entities.ChannelMembershipChanged{
					{NewChannelID: ptr(stationAlpha), At: opStart},
					{PreviousChannelID: ptr(stationAlpha), NewChannelID: ptr(stationBravo), At: opStart.Add(5 * time.Minute)},
					{PreviousChannelID: ptr(stationBravo), At: opStart.Add(15 * time.Minute)},
				}
			},
			wantTotal: 15 * time.Minute,
			wantRows:  2,
		},
		{
			name: "move to untracked channel with stale previous channel",
			events: func() []entities.ChannelMembershipChanged {
				return []entities.ChannelMembershipChanged{
					{NewChannelID: ptr(stationAlpha), At: opStart},
					{PreviousChannelID: ptr(lobbyChannel), NewChannelID: ptr(lobbyChannel), At: opStart.Add(12 * time.Minute)},
				}
			},
			wantTotal: 12 * time.Minute,
			wantRows:  1,
		},
		{
			name: "mute toggles keep the interval open",
			events: func() []entities.ChannelMembershipChanged {
				return []entities.ChannelMembershipChanged{
					{NewChannelID: ptr(stationAlpha), At: opStart},
					{PreviousChannelID: ptr(stationAlpha), NewChannelID: ptr(stationAlpha), At: opStart.Add(time.Minute)},
					{PreviousChannelID: ptr(stationAlpha), NewChannelID: ptr(stationAlpha), At: opStart.Add(2 * time.Minute)},
				}
			},
			wantInside: true,
		},
		{
			name: "lobby traffic is ignored",
			events: func() []entities.ChannelMembershipChanged {
				return []entities.ChannelMembershipChanged{
					{NewChannelID: ptr(lobbyChannel), At: opStart},
					{PreviousChannelID: ptr(lobbyChannel), At: opStart.Add(time.Hour)},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracker, writer, store := newTestTracker(t)
			registerTestOperation(t, tracker)

			for _, ev := range tt.events() {
				ev.GuildID = testGuildID
				ev.ParticipantID = 1
				ev.Username = "miner"
				tracker.HandleMembershipChange(ev)
			}
			waitIdle(t, writer)

			intervals, err := store.ListIntervals(context.Background(), testOperationID)
			require.NoError(t, err)
			closed := 0
			for _, iv := range intervals {
				if iv.Closed {
					closed++
				}
			}
			assert.Equal(t, tt.wantRows, closed)

			var total time.Duration
			if row, ok := aggregateByID(t, store, testOperationID)[1]; ok {
				total = row.TotalDuration
			}
			assert.Equal(t, tt.wantTotal, total)

			live, err := tracker.Snapshot(testOperationID, opStart.Add(time.Hour))
			require.NoError(t, err)
			inside := false
			for _, l := range live {
				if l.DiscordID == 1 && l.CurrentChannelID != nil {
					inside = true
				}
			}
			assert.Equal(t, tt.wantInside, inside)
		})
	}
}

func TestVoiceSessionTracker_RegisterBackfillsPresentMembers(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker,
		entities.VoiceMember{DiscordID: 1, ChannelID: stationAlpha, Username: "early", IsOrgMember: true},
		entities.VoiceMember{DiscordID: 2, ChannelID: lobbyChannel, Username: "lobby"},
		entities.VoiceMember{DiscordID: 3, ChannelID: stationBravo, Username: "guest"},
	)

	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(30*time.Minute))
	tracker.OnLeave(testGuildID, 3, stationBravo, opStart.Add(10*time.Minute))
	waitIdle(t, writer)

	agg := aggregateByID(t, store, testOperationID)
	require.Len(t, agg, 2)
	assert.Equal(t, 30*time.Minute, agg[1].TotalDuration)
	assert.Equal(t, 10*time.Minute, agg[3].TotalDuration)
	assert.False(t, agg[3].IsOrgMember)
	assert.Equal(t, "guest", agg[3].Username)
	assert.Nil(t, store.Participant(testOperationID, 2))
}

func TestVoiceSessionTracker_RegisterRejectsInvalidConfiguration(t *testing.T) {
	t.Parallel()

	tracker, _, _ := newTestTracker(t)

	err := tracker.Register(testOperation(1, testGuildID), nil, nil, opStart)
	var noChannels *entities.NoTrackedChannelsError
	assert.ErrorAs(t, err, &noChannels)

	inactive := testChannels(1, testGuildID, stationAlpha)
	inactive[0].Active = false
	err = tracker.Register(testOperation(1, testGuildID), inactive, nil, opStart)
	assert.ErrorAs(t, err, &noChannels)

	require.NoError(t, tracker.Register(testOperation(1, testGuildID), testChannels(1, testGuildID, stationAlpha), nil, opStart))
	err = tracker.Register(testOperation(2, testGuildID), testChannels(2, testGuildID, stationBravo), nil, opStart)
	var active *entities.AlreadyActiveError
	require.ErrorAs(t, err, &active)
	assert.Equal(t, int64(1), active.ActiveOperationID)

	// Another guild is independent
	require.NoError(t, tracker.Register(testOperation(3, testOtherGuildID), testChannels(3, testOtherGuildID, stationAlpha), nil, opStart))
	assert.Equal(t, []int64{1, 3}, tracker.TrackedOperations())
}

func TestVoiceSessionTracker_FinalizeClosesOpenIntervals(t *testing.T) {
	t.Parallel()

	tracker, _, store := newTestTracker(t)
	registerTestOperation(t, tracker,
		entities.VoiceMember{DiscordID: 1, ChannelID: stationAlpha, Username: "a"},
	)
	tracker.OnJoin(testGuildID, miner(2), stationBravo, opStart.Add(time.Hour))
	tracker.OnJoin(testGuildID, miner(3), stationBravo, opStart.Add(2*time.Hour-10*time.Second))
	tracker.Flush(opStart.Add(90 * time.Minute))

	summary, err := tracker.FinalizeOperation(context.Background(), testOperationID, opStart.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, summary, 2)
	assert.Equal(t, int64(1), summary[0].DiscordID)
	assert.Equal(t, 2*time.Hour, summary[0].Accumulated)

	agg := aggregateByID(t, store, testOperationID)
	require.Len(t, agg, 2)
	assert.Equal(t, 2*time.Hour, agg[1].TotalDuration)
	assert.Equal(t, time.Hour, agg[2].TotalDuration)

	intervals, _ := store.ListIntervals(context.Background(), testOperationID)
	for _, iv := range intervals {
		assert.True(t, iv.Closed)
	}

	// Events after finalization are dropped
	tracker.OnLeave(testGuildID, 2, stationBravo, opStart.Add(3*time.Hour))
	_, ok := tracker.ActiveOperation(testGuildID)
	assert.False(t, ok)

	_, err = tracker.FinalizeOperation(context.Background(), testOperationID, opStart.Add(3*time.Hour))
	assert.ErrorIs(t, err, ErrOperationNotTracked)
	assert.Equal(t, time.Hour, aggregateByID(t, store, testOperationID)[2].TotalDuration)
}

func TestVoiceSessionTracker_SnapshotReportsLiveTime(t *testing.T) {
	t.Parallel()

	tracker, _, _ := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart)
	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(10*time.Minute))
	tracker.OnJoin(testGuildID, miner(1), stationBravo, opStart.Add(20*time.Minute))
	tracker.OnJoin(testGuildID, miner(2), stationAlpha, opStart.Add(50*time.Minute))

	live, err := tracker.Snapshot(testOperationID, opStart.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, int64(1), live[0].DiscordID)
	assert.Equal(t, 10*time.Minute, live[0].Accumulated)
	assert.Equal(t, 50*time.Minute, live[0].Total(opStart.Add(time.Hour)))
	require.NotNil(t, live[0].CurrentChannelID)
	assert.Equal(t, stationBravo, *live[0].CurrentChannelID)
	assert.Equal(t, 10*time.Minute, live[1].Total(opStart.Add(time.Hour)))

	_, err = tracker.Snapshot(999, opStart)
	assert.ErrorIs(t, err, ErrOperationNotTracked)
}

func TestVoiceSessionTracker_RetriesTransientWriteFailures(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart)
	waitIdle(t, writer)

	store.FailNext(1, errors.New("connection reset"))
	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(time.Hour))
	waitIdle(t, writer)

	assert.Equal(t, 2, store.Calls("CloseInterval"))
	assert.Equal(t, 0, writer.Parked())
	assert.Equal(t, time.Hour, aggregateByID(t, store, testOperationID)[1].TotalDuration)
}

func TestVoiceSessionTracker_ParkedWritesAreRetriedOnFlush(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	registerTestOperation(t, tracker)

	tracker.OnJoin(testGuildID, miner(1), stationAlpha, opStart)
	waitIdle(t, writer)

	// One attempt plus two retries
	store.FailNext(3, errors.New("database unavailable"))
	tracker.OnLeave(testGuildID, 1, stationAlpha, opStart.Add(time.Hour))
	waitIdle(t, writer)

	assert.Equal(t, 1, writer.Parked())
	assert.Empty(t, aggregateByID(t, store, testOperationID))

	// Live state is not rolled back by the failure
	live, err := tracker.Snapshot(testOperationID, opStart.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, time.Hour, live[0].Accumulated)

	tracker.Flush(opStart.Add(2 * time.Hour))
	waitIdle(t, writer)

	assert.Equal(t, 0, writer.Parked())
	assert.Equal(t, time.Hour, aggregateByID(t, store, testOperationID)[1].TotalDuration)
}

func TestVoiceSessionTracker_ConcurrentGuildsAndParticipants(t *testing.T) {
	t.Parallel()

	tracker, writer, store := newTestTracker(t)
	require.NoError(t, tracker.Register(testOperation(1, testGuildID), testChannels(1, testGuildID, stationAlpha, stationBravo), nil, opStart))
	require.NoError(t, tracker.Register(testOperation(2, testOtherGuildID), testChannels(2, testOtherGuildID, stationAlpha, stationBravo), nil, opStart))

	const participants = 25
	const cycles = 8

	var wg sync.WaitGroup
	for _, guildID := range []int64{testGuildID, testOtherGuildID} {
		for p := int64(1); p <= participants; p++ {
			wg.Add(1)
			go func(guildID, participantID int64) {
				defer wg.Done()
				at := opStart
				for c := 0; c < cycles; c++ {
					channel := stationAlpha
					if c%2 == 1 {
						channel = stationBravo
					}
					tracker.OnJoin(guildID, miner(participantID), channel, at)
					at = at.Add(time.Duration(participantID) * time.Minute)
					tracker.OnLeave(guildID, participantID, channel, at)
					at = at.Add(time.Minute)
				}
			}(guildID, p)
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			tracker.Flush(opStart.Add(time.Duration(i) * time.Minute))
		}
	}()
	wg.Wait()

	for opID := int64(1); opID <= 2; opID++ {
		_, err := tracker.FinalizeOperation(context.Background(), opID, opStart.Add(24*time.Hour))
		require.NoError(t, err)
	}
	waitIdle(t, writer)

	for opID := int64(1); opID <= 2; opID++ {
		agg := aggregateByID(t, store, opID)
		require.Len(t, agg, participants)
		for p := int64(1); p <= participants; p++ {
			assert.Equal(t, time.Duration(cycles*p)*time.Minute, agg[p].TotalDuration, "operation %d participant %d", opID, p)
		}
	}
}
