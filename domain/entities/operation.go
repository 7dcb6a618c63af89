package entities

import (
	"fmt"
	"time"
)

// OperationStatus represents the lifecycle state of a mining operation
type OperationStatus string

const (
	OperationStatusPlanned OperationStatus = "planned"
	OperationStatusActive  OperationStatus = "active"
	OperationStatusClosed  OperationStatus = "closed"
)

// Operation represents one timed group mining session in a guild
type Operation struct {
	ID                  int64           `db:"id"`
	GuildID             int64           `db:"guild_id"`
	Name                string          `db:"name"`
	Status              OperationStatus `db:"status"`
	OrganizerDiscordID  int64           `db:"organizer_discord_id"`
	StartedAt           *time.Time      `db:"started_at"`
	EndedAt             *time.Time      `db:"ended_at"`
	TotalValue          *int64          `db:"total_value"`       // Set by payroll
	UnallocatedValue    *int64          `db:"unallocated_value"` // Set by payroll
	PayrollCalculatedAt *time.Time      `db:"payroll_calculated_at"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

// IsActive reports whether the operation is currently tracking participation
func (o *Operation) IsActive() bool {
	return o.Status == OperationStatusActive
}

// IsClosed reports whether the operation reached its terminal state
func (o *Operation) IsClosed() bool {
	return o.Status == OperationStatusClosed
}

// HasPayroll reports whether a payroll calculation has been recorded
func (o *Operation) HasPayroll() bool {
	return o.PayrollCalculatedAt != nil
}

// Activate moves a planned operation to active
func (o *Operation) Activate(at time.Time) error {
	if o.Status != OperationStatusPlanned {
		return fmt.Errorf("operation %d cannot be activated from status %s", o.ID, o.Status)
	}
	o.Status = OperationStatusActive
	o.StartedAt = &at
	return nil
}

// Close moves an active operation to closed
func (o *Operation) Close(at time.Time) error {
	if o.Status != OperationStatusActive {
		return &NotActiveError{OperationID: o.ID, Status: o.Status}
	}
	o.Status = OperationStatusClosed
	o.EndedAt = &at
	return nil
}

// RecordPayroll stores the payroll-linked fields, the only mutation allowed once closed
func (o *Operation) RecordPayroll(totalValue, unallocated int64, at time.Time) {
	o.TotalValue = &totalValue
	o.UnallocatedValue = &unallocated
	o.PayrollCalculatedAt = &at
}

// Elapsed returns how long the operation has been running, or its full length once closed
func (o *Operation) Elapsed(now time.Time) time.Duration {
	if o.StartedAt == nil {
		return 0
	}
	end := now
	if o.EndedAt != nil {
		end = *o.EndedAt
	}
	return end.Sub(*o.StartedAt)
}

// DisplayName returns the operation name, falling back to its id
func (o *Operation) DisplayName() string {
	if o.Name != "" {
		return o.Name
	}
	return fmt.Sprintf("Operation #%d", o.ID)
}
