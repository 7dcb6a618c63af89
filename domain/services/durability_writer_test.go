package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"minebot/domain/entities"
	"minebot/domain/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurabilityWriter_ParkedSnapshotDoesNotResurrectDiscardedInterval(t *testing.T) {
	t.Parallel()

	store := testhelpers.NewInMemoryParticipationRepository()
	writer := NewDurabilityWriter(store, testWriterConfig(), nil)
	defer writer.Close(context.Background())

	key := entities.IntervalKey{OperationID: 1, ParticipantDiscordID: 10, ChannelID: stationAlpha, JoinedAt: opStart}

	store.FailNext(3, errors.New("timeout"))
	writer.enqueue(testGuildID, 10, &intervalWrite{kind: writeSnapshot, key: key, at: opStart.Add(10 * time.Second)})
	waitIdle(t, writer)
	require.Equal(t, 1, writer.Parked())

	writer.enqueue(testGuildID, 10, &intervalWrite{kind: writeDiscard, key: key})
	waitIdle(t, writer)
	assert.Equal(t, 0, writer.Parked(), "a newer write to the same row clears the parked one")

	assert.Equal(t, 0, writer.RetryParked())
	waitIdle(t, writer)

	intervals, err := store.ListIntervals(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, intervals)
}

func TestDurabilityWriter_RetriedParkedWriteHonorsNewerWrites(t *testing.T) {
	t.Parallel()

	store := testhelpers.NewInMemoryParticipationRepository()
	writer := NewDurabilityWriter(store, testWriterConfig(), nil)
	defer writer.Close(context.Background())

	key := entities.IntervalKey{OperationID: 1, ParticipantDiscordID: 10, ChannelID: stationAlpha, JoinedAt: opStart}

	store.FailNext(3, errors.New("timeout"))
	writer.enqueue(testGuildID, 10, &intervalWrite{kind: writeSnapshot, key: key, at: opStart.Add(time.Minute)})
	waitIdle(t, writer)

	writer.enqueue(testGuildID, 10, &intervalWrite{kind: writeClose, key: key, at: opStart.Add(5 * time.Minute)})
	writer.RetryParked()
	waitIdle(t, writer)

	intervals, err := store.ListIntervals(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.True(t, intervals[0].Closed)
	assert.Equal(t, 5*time.Minute, intervals[0].Duration)
}

func TestDurabilityWriter_RetryParkedForLeavesOtherOperations(t *testing.T) {
	t.Parallel()

	store := testhelpers.NewInMemoryParticipationRepository()
	writer := NewDurabilityWriter(store, testWriterConfig(), nil)
	defer writer.Close(context.Background())

	first := entities.IntervalKey{OperationID: 1, ParticipantDiscordID: 10, ChannelID: stationAlpha, JoinedAt: opStart}
	second := entities.IntervalKey{OperationID: 2, ParticipantDiscordID: 10, ChannelID: stationBravo, JoinedAt: opStart}

	store.FailNext(6, errors.New("connection reset"))
	writer.enqueue(testGuildID, 10, &intervalWrite{kind: writeClose, key: first, at: opStart.Add(time.Hour)})
	writer.enqueue(testOtherGuildID, 10, &intervalWrite{kind: writeClose, key: second, at: opStart.Add(time.Hour)})
	waitIdle(t, writer)
	require.Equal(t, 1, writer.ParkedFor(1))
	require.Equal(t, 1, writer.ParkedFor(2))

	assert.Equal(t, 1, writer.RetryParkedFor(1))
	waitIdle(t, writer)
	assert.Equal(t, 0, writer.ParkedFor(1))
	assert.Equal(t, 1, writer.ParkedFor(2))

	rows, err := store.ListIntervals(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, time.Hour, rows[0].Duration)
}

func TestDurabilityWriter_SealedOperationDropsWrites(t *testing.T) {
	t.Parallel()

	store := testhelpers.NewInMemoryParticipationRepository()
	writer := NewDurabilityWriter(store, testWriterConfig(), nil)
	defer writer.Close(context.Background())

	key := entities.IntervalKey{OperationID: 1, ParticipantDiscordID: 10, ChannelID: stationAlpha, JoinedAt: opStart}

	store.FailNext(3, errors.New("connection reset"))
	writer.enqueue(testGuildID, 10, &intervalWrite{kind: writeClose, key: key, at: opStart.Add(time.Hour)})
	waitIdle(t, writer)
	require.Equal(t, 1, writer.Parked())

	assert.Equal(t, 1, writer.SealOperation(1))
	assert.Equal(t, 0, writer.Parked())
	assert.Equal(t, 0, writer.RetryParked())

	writer.enqueue(testGuildID, 10, &intervalWrite{kind: writeSnapshot, key: key, at: opStart.Add(2 * time.Hour)})
	waitIdle(t, writer)

	rows, err := store.ListIntervals(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 0, store.Calls("OpenInterval"))
}

func TestDurabilityWriter_CloseDrainsQueue(t *testing.T) {
	t.Parallel()

	store := testhelpers.NewInMemoryParticipationRepository()
	writer := NewDurabilityWriter(store, testWriterConfig(), nil)

	for i := int64(1); i <= 20; i++ {
		key := entities.IntervalKey{OperationID: 1, ParticipantDiscordID: i, ChannelID: stationAlpha, JoinedAt: opStart}
		writer.enqueue(testGuildID, i, &intervalWrite{kind: writeClose, key: key, at: opStart.Add(time.Hour)})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, writer.Close(ctx))
	require.NoError(t, writer.Close(ctx))

	intervals, err := store.ListIntervals(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, intervals, 20)

	// Writes after shutdown are dropped without blocking waiters
	writer.enqueue(testGuildID, 99, &intervalWrite{kind: writeDiscard, key: entities.IntervalKey{OperationID: 1}})
	assert.NoError(t, writer.WaitIdle(ctx))
}

func TestShardIndexIsStable(t *testing.T) {
	t.Parallel()

	for p := int64(0); p < 100; p++ {
		idx := shardIndex(testGuildID, p, 7)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 7)
		assert.Equal(t, idx, shardIndex(testGuildID, p, 7))
	}
}
