package repository

import (
	"context"
	"fmt"
	"time"

	"minebot/database"
	"minebot/domain/entities"
	"minebot/domain/interfaces"

	"github.com/jackc/pgx/v5"
)

type payoutRepository struct {
	q queryable
}

// NewPayoutRepository creates a new payout repository
func NewPayoutRepository(db *database.DB) interfaces.PayoutRepository {
	return &payoutRepository{q: db.Pool}
}

func newPayoutRepositoryWithTx(tx queryable) interfaces.PayoutRepository {
	return &payoutRepository{q: tx}
}

// ReplaceForOperation swaps the payout table of an operation. Callers run it
// inside a unit of work so readers never see a partial table.
func (r *payoutRepository) ReplaceForOperation(ctx context.Context, operationID int64, records []*entities.PayoutRecord) error {
	if _, err := r.q.Exec(ctx, `DELETE FROM payout_records WHERE operation_id = $1`, operationID); err != nil {
		return fmt.Errorf("failed to clear payout records: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO payout_records (
			operation_id, discord_id, username, total_duration_ms, time_share,
			base_payout, donation_bonus, final_payout, is_donor, is_org_member
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at
	`

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query,
			operationID,
			rec.DiscordID,
			rec.Username,
			rec.TotalDuration.Milliseconds(),
			rec.TimeShare,
			rec.BasePayout,
			rec.DonationBonus,
			rec.FinalPayout,
			rec.IsDonor,
			rec.IsOrgMember,
		)
	}

	results := r.q.SendBatch(ctx, batch)
	defer results.Close()

	for _, rec := range records {
		if err := results.QueryRow().Scan(&rec.ID, &rec.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert payout record for %d: %w", rec.DiscordID, err)
		}
		rec.OperationID = operationID
	}

	return nil
}

// GetByOperation returns the stored payout table, largest payout first
func (r *payoutRepository) GetByOperation(ctx context.Context, operationID int64) ([]*entities.PayoutRecord, error) {
	query := `
		SELECT id, operation_id, discord_id, username, total_duration_ms, time_share,
			   base_payout, donation_bonus, final_payout, is_donor, is_org_member, created_at
		FROM payout_records
		WHERE operation_id = $1
		ORDER BY final_payout DESC, total_duration_ms DESC, discord_id ASC
	`

	rows, err := r.q.Query(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payout records: %w", err)
	}
	defer rows.Close()

	var records []*entities.PayoutRecord
	for rows.Next() {
		var rec entities.PayoutRecord
		var durationMs int64
		err := rows.Scan(
			&rec.ID,
			&rec.OperationID,
			&rec.DiscordID,
			&rec.Username,
			&durationMs,
			&rec.TimeShare,
			&rec.BasePayout,
			&rec.DonationBonus,
			&rec.FinalPayout,
			&rec.IsDonor,
			&rec.IsOrgMember,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payout record: %w", err)
		}
		rec.TotalDuration = time.Duration(durationMs) * time.Millisecond
		records = append(records, &rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payout rows: %w", err)
	}

	return records, nil
}
