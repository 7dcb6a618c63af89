package repository

import (
	"context"
	"testing"
	"time"

	"minebot/domain/entities"
	"minebot/domain/interfaces"
	"minebot/repository/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupParticipation(t *testing.T, guildID int64) (interfaces.ParticipationRepository, *entities.Operation) {
	t.Helper()
	testDB := testutil.SetupTestDatabase(t)
	op := testutil.CreateTestOperation(guildID, 5001, testStart)
	require.NoError(t, NewOperationRepository(testDB.DB).Create(context.Background(), op))
	return NewParticipationRepository(testDB.DB), op
}

func TestParticipationRepository_SnapshotThenClose(t *testing.T) {
	t.Parallel()
	repo, op := setupParticipation(t, 601)
	ctx := context.Background()
	key := testutil.IntervalKey(op.ID, 1001, 9001, testStart)

	require.NoError(t, repo.OpenInterval(ctx, key, testStart.Add(10*time.Minute)))
	require.NoError(t, repo.OpenInterval(ctx, key, testStart.Add(20*time.Minute)))

	rows, err := repo.ListIntervals(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Closed)
	assert.Equal(t, 20*time.Minute, rows[0].Duration)

	require.NoError(t, repo.CloseInterval(ctx, key, testStart.Add(45*time.Minute)))
	// Replayed writes leave the closed row alone
	require.NoError(t, repo.CloseInterval(ctx, key, testStart.Add(50*time.Minute)))
	require.NoError(t, repo.OpenInterval(ctx, key, testStart.Add(55*time.Minute)))
	require.NoError(t, repo.DiscardInterval(ctx, key))

	rows, err = repo.ListIntervals(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Closed)
	assert.Equal(t, 45*time.Minute, rows[0].Duration)
	require.NotNil(t, rows[0].LeftAt)
	assert.True(t, testStart.Add(45*time.Minute).Equal(*rows[0].LeftAt))
}

func TestParticipationRepository_CloseWithoutSnapshot(t *testing.T) {
	t.Parallel()
	repo, op := setupParticipation(t, 602)
	ctx := context.Background()
	key := testutil.IntervalKey(op.ID, 1001, 9001, testStart)

	require.NoError(t, repo.CloseInterval(ctx, key, testStart.Add(time.Hour)))

	rows, err := repo.ListIntervals(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Closed)
	assert.Equal(t, time.Hour, rows[0].Duration)
}

func TestParticipationRepository_DiscardOpenSnapshot(t *testing.T) {
	t.Parallel()
	repo, op := setupParticipation(t, 603)
	ctx := context.Background()
	key := testutil.IntervalKey(op.ID, 1001, 9001, testStart)

	require.NoError(t, repo.OpenInterval(ctx, key, testStart.Add(10*time.Second)))
	require.NoError(t, repo.DiscardInterval(ctx, key))
	// Discarding twice is harmless
	require.NoError(t, repo.DiscardInterval(ctx, key))

	rows, err := repo.ListIntervals(ctx, op.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestParticipationRepository_CloseOpenIntervals(t *testing.T) {
	t.Parallel()
	repo, op := setupParticipation(t, 604)
	ctx := context.Background()

	open := testutil.IntervalKey(op.ID, 1001, 9001, testStart)
	closed := testutil.IntervalKey(op.ID, 1002, 9001, testStart)
	require.NoError(t, repo.OpenInterval(ctx, open, testStart.Add(30*time.Minute)))
	require.NoError(t, repo.CloseInterval(ctx, closed, testStart.Add(40*time.Minute)))

	n, err := repo.CloseOpenIntervals(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.CloseOpenIntervals(ctx, op.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	rows, err := repo.ListIntervals(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.True(t, row.Closed)
	}
	assert.Equal(t, 30*time.Minute, rows[0].Duration)
	assert.Equal(t, 40*time.Minute, rows[1].Duration)
}

func TestParticipationRepository_Aggregate(t *testing.T) {
	t.Parallel()
	repo, op := setupParticipation(t, 605)
	ctx := context.Background()

	require.NoError(t, repo.UpsertParticipant(ctx, testutil.CreateTestParticipant(op.ID, 1001, "alice", testStart)))
	guest := testutil.CreateTestParticipant(op.ID, 1002, "bob", testStart)
	guest.IsOrgMember = false
	require.NoError(t, repo.UpsertParticipant(ctx, guest))

	// alice: 40m in 9002, 30m + 10m in 9001, tie goes to the lower channel
	require.NoError(t, repo.CloseInterval(ctx, testutil.IntervalKey(op.ID, 1001, 9001, testStart), testStart.Add(30*time.Minute)))
	require.NoError(t, repo.CloseInterval(ctx, testutil.IntervalKey(op.ID, 1001, 9002, testStart.Add(30*time.Minute)), testStart.Add(70*time.Minute)))
	require.NoError(t, repo.CloseInterval(ctx, testutil.IntervalKey(op.ID, 1001, 9001, testStart.Add(70*time.Minute)), testStart.Add(80*time.Minute)))
	// bob: one open snapshot in 9002
	require.NoError(t, repo.OpenInterval(ctx, testutil.IntervalKey(op.ID, 1002, 9002, testStart), testStart.Add(15*time.Minute)))
	// carol has no identity row
	require.NoError(t, repo.CloseInterval(ctx, testutil.IntervalKey(op.ID, 1003, 9001, testStart), testStart.Add(5*time.Minute)))

	rows, err := repo.Aggregate(ctx, op.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, int64(1001), rows[0].DiscordID)
	assert.Equal(t, "alice", rows[0].Username)
	assert.Equal(t, 80*time.Minute, rows[0].TotalDuration)
	assert.Equal(t, int64(9001), rows[0].PrimaryChannelID)
	assert.True(t, rows[0].IsOrgMember)

	assert.Equal(t, int64(1002), rows[1].DiscordID)
	assert.Equal(t, 15*time.Minute, rows[1].TotalDuration)
	assert.Equal(t, int64(9002), rows[1].PrimaryChannelID)
	assert.False(t, rows[1].IsOrgMember)

	assert.Equal(t, int64(1003), rows[2].DiscordID)
	assert.Empty(t, rows[2].Username)

	filtered := entities.FilterByMinimum(rows, 10*time.Minute)
	assert.Len(t, filtered, 2)
}

func TestParticipationRepository_AggregateIsRepeatable(t *testing.T) {
	t.Parallel()
	repo, op := setupParticipation(t, 607)
	ctx := context.Background()

	require.NoError(t, repo.UpsertParticipant(ctx, testutil.CreateTestParticipant(op.ID, 1001, "alice", testStart)))
	require.NoError(t, repo.UpsertParticipant(ctx, testutil.CreateTestParticipant(op.ID, 1002, "bob", testStart)))
	require.NoError(t, repo.CloseInterval(ctx, testutil.IntervalKey(op.ID, 1001, 9001, testStart), testStart.Add(time.Hour)))
	require.NoError(t, repo.CloseInterval(ctx, testutil.IntervalKey(op.ID, 1002, 9002, testStart), testStart.Add(20*time.Minute)))
	require.NoError(t, repo.CloseInterval(ctx, testutil.IntervalKey(op.ID, 1002, 9001, testStart.Add(30*time.Minute)), testStart.Add(time.Hour)))

	first, err := repo.Aggregate(ctx, op.ID)
	require.NoError(t, err)
	second, err := repo.Aggregate(ctx, op.ID)
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, 50*time.Minute, first[1].TotalDuration)

	rows, err := repo.ListIntervals(ctx, op.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestParticipationRepository_UpsertParticipantKeepsFirstSeen(t *testing.T) {
	t.Parallel()
	testDB := testutil.SetupTestDatabase(t)
	ctx := context.Background()
	op := testutil.CreateTestOperation(606, 5001, testStart)
	require.NoError(t, NewOperationRepository(testDB.DB).Create(ctx, op))
	repo := NewParticipationRepository(testDB.DB)

	require.NoError(t, repo.UpsertParticipant(ctx, testutil.CreateTestParticipant(op.ID, 1001, "alice", testStart)))
	require.NoError(t, repo.UpsertParticipant(ctx, testutil.CreateTestParticipant(op.ID, 1001, "alice_renamed", testStart.Add(time.Hour))))

	var username string
	var firstSeen time.Time
	err := testDB.DB.QueryRow(ctx,
		`SELECT username, first_seen_at FROM operation_participants WHERE operation_id = $1 AND discord_id = $2`,
		op.ID, int64(1001),
	).Scan(&username, &firstSeen)
	require.NoError(t, err)
	assert.Equal(t, "alice_renamed", username)
	assert.True(t, testStart.Equal(firstSeen))
}
