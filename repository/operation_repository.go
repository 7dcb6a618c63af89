package repository

import (
	"context"
	"errors"
	"fmt"

	"minebot/database"
	"minebot/domain/entities"
	"minebot/domain/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation        = "23505"
	oneActivePerGuildIndex = "idx_operations_one_active_per_guild"
)

const operationColumns = `
	id, guild_id, name, status, organizer_discord_id, started_at, ended_at,
	total_value, unallocated_value, payroll_calculated_at, created_at, updated_at
`

type operationRepository struct {
	q queryable
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(db *database.DB) interfaces.OperationRepository {
	return &operationRepository{q: db.Pool}
}

// newOperationRepositoryWithTx creates a new operation repository with a transaction
func newOperationRepositoryWithTx(tx queryable) interfaces.OperationRepository {
	return &operationRepository{q: tx}
}

// Create inserts a new operation. A second active operation in the same guild
// is reported as an AlreadyActiveError.
func (r *operationRepository) Create(ctx context.Context, op *entities.Operation) error {
	query := `
		INSERT INTO operations (guild_id, name, status, organizer_discord_id, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		op.GuildID,
		op.Name,
		string(op.Status),
		op.OrganizerDiscordID,
		op.StartedAt,
		op.EndedAt,
	).Scan(&op.ID, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		if isActiveOperationConflict(err) {
			return &entities.AlreadyActiveError{GuildID: op.GuildID}
		}
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// GetByID retrieves an operation by its id
func (r *operationRepository) GetByID(ctx context.Context, id int64) (*entities.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1`

	op, err := scanOperation(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %d: %w", id, err)
	}
	return op, nil
}

// GetByIDForUpdate retrieves an operation and locks its row
func (r *operationRepository) GetByIDForUpdate(ctx context.Context, id int64) (*entities.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE id = $1 FOR UPDATE`

	op, err := scanOperation(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation %d for update: %w", id, err)
	}
	return op, nil
}

// GetActiveByGuild returns the active operation of a guild
func (r *operationRepository) GetActiveByGuild(ctx context.Context, guildID int64) (*entities.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE guild_id = $1 AND status = 'active'`

	op, err := scanOperation(r.q.QueryRow(ctx, query, guildID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active operation for guild %d: %w", guildID, err)
	}
	return op, nil
}

// GetAllActive returns every active operation, oldest first
func (r *operationRepository) GetAllActive(ctx context.Context) ([]*entities.Operation, error) {
	query := `SELECT ` + operationColumns + ` FROM operations WHERE status = 'active' ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active operations: %w", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

// Update persists the mutable fields of an operation
func (r *operationRepository) Update(ctx context.Context, op *entities.Operation) error {
	query := `
		UPDATE operations
		SET name = $2,
			status = $3,
			started_at = $4,
			ended_at = $5,
			total_value = $6,
			unallocated_value = $7,
			payroll_calculated_at = $8
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		op.ID,
		op.Name,
		string(op.Status),
		op.StartedAt,
		op.EndedAt,
		op.TotalValue,
		op.UnallocatedValue,
		op.PayrollCalculatedAt,
	).Scan(&op.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &entities.OperationNotFoundError{OperationID: op.ID}
	}
	if err != nil {
		if isActiveOperationConflict(err) {
			return &entities.AlreadyActiveError{GuildID: op.GuildID}
		}
		return fmt.Errorf("failed to update operation %d: %w", op.ID, err)
	}

	return nil
}

// ListRecentByGuild returns the newest operations of a guild
func (r *operationRepository) ListRecentByGuild(ctx context.Context, guildID int64, limit int) ([]*entities.Operation, error) {
	query := `
		SELECT ` + operationColumns + `
		FROM operations
		WHERE guild_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, guildID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations for guild %d: %w", guildID, err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

func scanOperation(row pgx.Row) (*entities.Operation, error) {
	var op entities.Operation
	var status string
	err := row.Scan(
		&op.ID,
		&op.GuildID,
		&op.Name,
		&status,
		&op.OrganizerDiscordID,
		&op.StartedAt,
		&op.EndedAt,
		&op.TotalValue,
		&op.UnallocatedValue,
		&op.PayrollCalculatedAt,
		&op.CreatedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	op.Status = entities.OperationStatus(status)
	return &op, nil
}

func collectOperations(rows pgx.Rows) ([]*entities.Operation, error) {
	var ops []*entities.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operation rows: %w", err)
	}
	return ops, nil
}

func isActiveOperationConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolation &&
		pgErr.ConstraintName == oneActivePerGuildIndex
}
