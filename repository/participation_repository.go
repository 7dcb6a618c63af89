package repository

import (
	"context"
	"fmt"
	"time"

	"minebot/database"
	"minebot/domain/entities"
	"minebot/domain/interfaces"
)

type participationRepository struct {
	q queryable
}

// NewParticipationRepository creates a new participation repository
func NewParticipationRepository(db *database.DB) interfaces.ParticipationRepository {
	return &participationRepository{q: db.Pool}
}

func newParticipationRepositoryWithTx(tx queryable) interfaces.ParticipationRepository {
	return &participationRepository{q: tx}
}

// OpenInterval upserts the snapshot of an open interval. Closed rows are left untouched.
func (r *participationRepository) OpenInterval(ctx context.Context, key entities.IntervalKey, snapshotAt time.Time) error {
	query := `
		INSERT INTO participation_intervals
			(operation_id, participant_discord_id, channel_id, joined_at, left_at, duration_ms, closed)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		ON CONFLICT (operation_id, participant_discord_id, channel_id, joined_at)
		DO UPDATE SET
			left_at = EXCLUDED.left_at,
			duration_ms = EXCLUDED.duration_ms
		WHERE NOT participation_intervals.closed
	`

	_, err := r.q.Exec(ctx, query,
		key.OperationID,
		key.ParticipantDiscordID,
		key.ChannelID,
		key.JoinedAt,
		snapshotAt,
		durationMillis(key.JoinedAt, snapshotAt),
	)
	if err != nil {
		return fmt.Errorf("failed to snapshot interval for participant %d: %w", key.ParticipantDiscordID, err)
	}
	return nil
}

// CloseInterval writes the final end of an interval, replacing any snapshot
func (r *participationRepository) CloseInterval(ctx context.Context, key entities.IntervalKey, leftAt time.Time) error {
	query := `
		INSERT INTO participation_intervals
			(operation_id, participant_discord_id, channel_id, joined_at, left_at, duration_ms, closed)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (operation_id, participant_discord_id, channel_id, joined_at)
		DO UPDATE SET
			left_at = EXCLUDED.left_at,
			duration_ms = EXCLUDED.duration_ms,
			closed = TRUE
		WHERE NOT participation_intervals.closed
	`

	_, err := r.q.Exec(ctx, query,
		key.OperationID,
		key.ParticipantDiscordID,
		key.ChannelID,
		key.JoinedAt,
		leftAt,
		durationMillis(key.JoinedAt, leftAt),
	)
	if err != nil {
		return fmt.Errorf("failed to close interval for participant %d: %w", key.ParticipantDiscordID, err)
	}
	return nil
}

// DiscardInterval removes an open snapshot
func (r *participationRepository) DiscardInterval(ctx context.Context, key entities.IntervalKey) error {
	query := `
		DELETE FROM participation_intervals
		WHERE operation_id = $1
		  AND participant_discord_id = $2
		  AND channel_id = $3
		  AND joined_at = $4
		  AND NOT closed
	`

	_, err := r.q.Exec(ctx, query, key.OperationID, key.ParticipantDiscordID, key.ChannelID, key.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to discard interval for participant %d: %w", key.ParticipantDiscordID, err)
	}
	return nil
}

// CloseOpenIntervals closes leftover snapshots at their last recorded end
func (r *participationRepository) CloseOpenIntervals(ctx context.Context, operationID int64) (int64, error) {
	query := `
		UPDATE participation_intervals
		SET closed = TRUE,
			left_at = COALESCE(left_at, joined_at)
		WHERE operation_id = $1 AND NOT closed
	`

	tag, err := r.q.Exec(ctx, query, operationID)
	if err != nil {
		return 0, fmt.Errorf("failed to close open intervals of operation %d: %w", operationID, err)
	}
	return tag.RowsAffected(), nil
}

// UpsertParticipant keeps first_seen_at from the first write and refreshes the identity
func (r *participationRepository) UpsertParticipant(ctx context.Context, participant *entities.OperationParticipant) error {
	query := `
		INSERT INTO operation_participants (operation_id, discord_id, username, is_org_member, first_seen_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (operation_id, discord_id)
		DO UPDATE SET
			username = EXCLUDED.username,
			is_org_member = EXCLUDED.is_org_member
	`

	_, err := r.q.Exec(ctx, query,
		participant.OperationID,
		participant.DiscordID,
		participant.Username,
		participant.IsOrgMember,
		participant.FirstSeenAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert participant %d: %w", participant.DiscordID, err)
	}
	return nil
}

// ListIntervals returns every interval of an operation
func (r *participationRepository) ListIntervals(ctx context.Context, operationID int64) ([]*entities.ParticipationInterval, error) {
	query := `
		SELECT id, operation_id, participant_discord_id, channel_id, joined_at, left_at, duration_ms, closed
		FROM participation_intervals
		WHERE operation_id = $1
		ORDER BY joined_at, participant_discord_id, channel_id
	`

	rows, err := r.q.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list intervals: %w", err)
	}
	defer rows.Close()

	var intervals []*entities.ParticipationInterval
	for rows.Next() {
		var interval entities.ParticipationInterval
		var durationMs int64
		err := rows.Scan(
			&interval.ID,
			&interval.OperationID,
			&interval.ParticipantDiscordID,
			&interval.ChannelID,
			&interval.JoinedAt,
			&interval.LeftAt,
			&durationMs,
			&interval.Closed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interval: %w", err)
		}
		interval.Duration = time.Duration(durationMs) * time.Millisecond
		intervals = append(intervals, &interval)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interval rows: %w", err)
	}

	return intervals, nil
}

// Aggregate sums interval durations per participant. The primary channel is
// the one with the most time, ties going to the lower channel id.
func (r *participationRepository) Aggregate(ctx context.Context, operationID int64) ([]*entities.AggregatedParticipation, error) {
	query := `
		WITH per_channel AS (
			SELECT participant_discord_id,
				   channel_id,
				   SUM(duration_ms)::BIGINT AS channel_ms
			FROM participation_intervals
			WHERE operation_id = $1
			GROUP BY participant_discord_id, channel_id
		),
		ranked AS (
			SELECT participant_discord_id,
				   channel_id,
				   channel_ms,
				   SUM(channel_ms) OVER (PARTITION BY participant_discord_id)::BIGINT AS total_ms,
				   ROW_NUMBER() OVER (
					   PARTITION BY participant_discord_id
					   ORDER BY channel_ms DESC, channel_id ASC
				   ) AS rank
			FROM per_channel
		)
		SELECT r.participant_discord_id,
			   COALESCE(p.username, ''),
			   r.total_ms,
			   r.channel_id,
			   COALESCE(p.is_org_member, FALSE)
		FROM ranked r
		LEFT JOIN operation_participants p
			ON p.operation_id = $1 AND p.discord_id = r.participant_discord_id
		WHERE r.rank = 1
		ORDER BY r.participant_discord_id
	`

	rows, err := r.q.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate participation: %w", err)
	}
	defer rows.Close()

	var result []*entities.AggregatedParticipation
	for rows.Next() {
		agg := entities.AggregatedParticipation{OperationID: operationID}
		var totalMs int64
		err := rows.Scan(
			&agg.DiscordID,
			&agg.Username,
			&totalMs,
			&agg.PrimaryChannelID,
			&agg.IsOrgMember,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan aggregated participation: %w", err)
		}
		agg.TotalDuration = time.Duration(totalMs) * time.Millisecond
		result = append(result, &agg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aggregated rows: %w", err)
	}

	return result, nil
}

func durationMillis(from, to time.Time) int64 {
	ms := to.Sub(from).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
