package repository

import (
	"context"
	"fmt"

	"minebot/database"
	"minebot/domain/entities"
	"minebot/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

type trackedChannelRepository struct {
	q queryable
}

// NewTrackedChannelRepository creates a new tracked channel repository
func NewTrackedChannelRepository(db *database.DB) interfaces.TrackedChannelRepository {
	return &trackedChannelRepository{q: db.Pool}
}

func newTrackedChannelRepositoryWithTx(tx queryable) interfaces.TrackedChannelRepository {
	return &trackedChannelRepository{q: tx}
}

// CreateBatch inserts all channels in a single round trip
func (r *trackedChannelRepository) CreateBatch(ctx context.Context, channels []*entities.TrackedChannel) error {
	if len(channels) == 0 {
		return nil
	}

	query := `
		INSERT INTO tracked_channels (operation_id, guild_id, channel_id, name, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	batch := &pgx.Batch{}
	for _, ch := range channels {
		batch.Queue(query, ch.OperationID, ch.GuildID, ch.ChannelID, ch.Name, ch.Active)
	}

	results := r.q.SendBatch(ctx, batch)
	defer results.Close()

	for _, ch := range channels {
		if err := results.QueryRow().Scan(&ch.ID, &ch.CreatedAt); err != nil {
			return fmt.Errorf("failed to create tracked channel %d: %w", ch.ChannelID, err)
		}
	}

	return nil
}

// GetByOperation returns the channels of an operation ordered by channel id
func (r *trackedChannelRepository) GetByOperation(ctx context.Context, operationID int64) ([]*entities.TrackedChannel, error) {
	query := `
		SELECT id, operation_id, guild_id, channel_id, name, active, created_at
		FROM tracked_channels
		WHERE operation_id = $1
		ORDER BY channel_id
	`

	rows, err := r.q.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tracked channels: %w", err)
	}
	defer rows.Close()

	var channels []*entities.TrackedChannel
	for rows.Next() {
		var ch entities.TrackedChannel
		err := rows.Scan(
			&ch.ID,
			&ch.OperationID,
			&ch.GuildID,
			&ch.ChannelID,
			&ch.Name,
			&ch.Active,
			&ch.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked channel: %w", err)
		}
		channels = append(channels, &ch)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tracked channel rows: %w", err)
	}

	return channels, nil
}

// Deactivate marks every channel of an operation inactive
func (r *trackedChannelRepository) Deactivate(ctx context.Context, operationID int64) error {
	_, err := r.q.Exec(ctx, `UPDATE tracked_channels SET active = FALSE WHERE operation_id = $1`, operationID)
	if err != nil {
		return fmt.Errorf("failed to deactivate tracked channels: %w", err)
	}
	return nil
}
