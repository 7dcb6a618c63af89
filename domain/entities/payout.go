package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// PayoutRecord is one participant's line in a payroll calculation
type PayoutRecord struct {
	ID            int64           `db:"id"`
	OperationID   int64           `db:"operation_id"`
	DiscordID     int64           `db:"discord_id"`
	Username      string          `db:"username"`
	TotalDuration time.Duration   `db:"total_duration_ms"`
	TimeShare     decimal.Decimal `db:"time_share"`
	BasePayout    int64           `db:"base_payout"`
	DonationBonus int64           `db:"donation_bonus"`
	FinalPayout   int64           `db:"final_payout"`
	IsDonor       bool            `db:"is_donor"`
	IsOrgMember   bool            `db:"is_org_member"`
	CreatedAt     time.Time       `db:"created_at"`
}

// PayrollResult is the finalized payout table of one calculation
type PayrollResult struct {
	OperationID      int64
	TotalValue       int64
	DonatedAmount    int64
	UnallocatedValue int64 // Donated value with no recipient left to receive it
	TotalDuration    time.Duration
	Records          []*PayoutRecord
	CalculatedAt     time.Time
}

// TotalPaid returns the sum of final payouts
func (r *PayrollResult) TotalPaid() int64 {
	var total int64
	for _, rec := range r.Records {
		total += rec.FinalPayout
	}
	return total
}

// Recipients returns the records of participants who did not donate
func (r *PayrollResult) Recipients() []*PayoutRecord {
	recipients := make([]*PayoutRecord, 0, len(r.Records))
	for _, rec := range r.Records {
		if !rec.IsDonor {
			recipients = append(recipients, rec)
		}
	}
	return recipients
}

// DonorCount returns how many participants donated their share
func (r *PayrollResult) DonorCount() int {
	count := 0
	for _, rec := range r.Records {
		if rec.IsDonor {
			count++
		}
	}
	return count
}
