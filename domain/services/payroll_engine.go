package services

import (
	"fmt"
	"sort"
	"time"

	"minebot/domain/entities"

	"github.com/shopspring/decimal"
)

// PayrollParticipant is one row of the finalized participation table fed to
// the payroll engine
type PayrollParticipant struct {
	DiscordID     int64
	Username      string
	TotalDuration time.Duration
	IsOrgMember   bool
}

// PayrollInput contains everything a payroll calculation depends on
type PayrollInput struct {
	OperationID  int64
	TotalValue   int64 // Smallest currency unit
	Participants []PayrollParticipant
	DonorIDs     []int64
}

// PayrollEngine computes payout tables. It holds no state and performs no I/O,
// so one engine can serve concurrent calculations.
//
// Every participant is paid by time share alone. Organization membership is
// carried through to the records for reporting but never scales a share.
type PayrollEngine struct{}

// NewPayrollEngine creates a new PayrollEngine
func NewPayrollEngine() *PayrollEngine {
	return &PayrollEngine{}
}

type payoutLine struct {
	record      *entities.PayoutRecord
	duration    decimal.Decimal
	base        decimal.Decimal
	exactFinal  decimal.Decimal
	isRecipient bool
}

// Calculate splits the total value by time share and redistributes donated
// shares to the remaining recipients in proportion to their time.
//
// Rounding is half-up to the smallest currency unit. A leftover goes to the
// largest recipient payout, ties going to the longer duration and then the
// lower Discord id; an overshoot is taken back one unit per recipient in that
// order without driving any payout negative. The payouts plus the unallocated
// value always equal the total exactly.
func (e *PayrollEngine) Calculate(input PayrollInput) (*entities.PayrollResult, error) {
	if input.TotalValue < 0 {
		return nil, &entities.InvalidTotalValueError{TotalValue: input.TotalValue}
	}

	var totalDuration time.Duration
	for _, p := range input.Participants {
		if p.TotalDuration < 0 {
			return nil, fmt.Errorf("participant %d has negative duration %s", p.DiscordID, p.TotalDuration)
		}
		totalDuration += p.TotalDuration
	}
	if len(input.Participants) == 0 || totalDuration == 0 {
		return nil, &entities.NoParticipantsError{OperationID: input.OperationID}
	}

	donors, err := resolveDonors(input.Participants, input.DonorIDs)
	if err != nil {
		return nil, err
	}

	total := decimal.NewFromInt(input.TotalValue)
	durationSum := decimal.NewFromInt(totalDuration.Milliseconds())

	lines := make([]*payoutLine, 0, len(input.Participants))
	donated := decimal.Zero
	recipientDuration := decimal.Zero

	for _, p := range input.Participants {
		duration := decimal.NewFromInt(p.TotalDuration.Milliseconds())
		share := duration.Div(durationSum)
		base := total.Mul(duration).Div(durationSum)
		_, isDonor := donors[p.DiscordID]

		line := &payoutLine{
			record: &entities.PayoutRecord{
				OperationID:   input.OperationID,
				DiscordID:     p.DiscordID,
				Username:      p.Username,
				TotalDuration: p.TotalDuration,
				TimeShare:     share.Round(6),
				BasePayout:    roundHalfUp(base),
				IsDonor:       isDonor,
				IsOrgMember:   p.IsOrgMember,
			},
			duration:    duration,
			base:        base,
			isRecipient: !isDonor,
		}

		if isDonor {
			donated = donated.Add(base)
			line.exactFinal = decimal.Zero
		} else {
			recipientDuration = recipientDuration.Add(duration)
			line.exactFinal = base
		}
		lines = append(lines, line)
	}

	result := &entities.PayrollResult{
		OperationID:   input.OperationID,
		TotalValue:    input.TotalValue,
		TotalDuration: totalDuration,
		DonatedAmount: roundHalfUp(donated),
	}

	hasRecipients := countRecipients(lines) > 0
	if !hasRecipients {
		// Everyone donated; the value has nowhere to go
		result.UnallocatedValue = input.TotalValue
	}

	redistribute := hasRecipients && donated.GreaterThan(decimal.Zero)
	for _, line := range lines {
		if !line.isRecipient {
			continue
		}
		if redistribute && recipientDuration.GreaterThan(decimal.Zero) {
			bonus := donated.Mul(line.duration).Div(recipientDuration)
			line.exactFinal = line.base.Add(bonus)
			line.record.DonationBonus = roundHalfUp(bonus)
		}
		line.record.FinalPayout = roundHalfUp(line.exactFinal)
	}

	if hasRecipients {
		if redistribute && recipientDuration.IsZero() {
			// Only zero-duration recipients remain; split the donation evenly
			splitEvenly(lines, donated)
		}
		applyRemainder(lines, input.TotalValue, redistribute)
	}

	records := make([]*entities.PayoutRecord, len(lines))
	for i, line := range lines {
		records[i] = line.record
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].FinalPayout != records[j].FinalPayout {
			return records[i].FinalPayout > records[j].FinalPayout
		}
		if records[i].TotalDuration != records[j].TotalDuration {
			return records[i].TotalDuration > records[j].TotalDuration
		}
		return records[i].DiscordID < records[j].DiscordID
	})
	result.Records = records

	return result, nil
}

// ResolveMaterialValue prices collected materials and returns their value in
// the smallest currency unit, rounded half-up
func (e *PayrollEngine) ResolveMaterialValue(prices entities.PriceTable, collected []entities.MaterialAmount) (int64, error) {
	var unresolved []string
	seen := make(map[string]bool)
	value := decimal.Zero

	for _, material := range collected {
		if material.Amount.IsNegative() {
			return 0, fmt.Errorf("collected amount of %s must not be negative", material.Name)
		}
		price, ok := prices.Lookup(material.Name)
		if !ok {
			name := entities.NormalizeMaterialName(material.Name)
			if !seen[name] {
				seen[name] = true
				unresolved = append(unresolved, name)
			}
			continue
		}
		value = value.Add(material.Amount.Mul(price))
	}

	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return 0, &entities.UnresolvedMaterialError{Materials: unresolved}
	}
	return roundHalfUp(value), nil
}

func resolveDonors(participants []PayrollParticipant, donorIDs []int64) (map[int64]struct{}, error) {
	known := make(map[int64]struct{}, len(participants))
	for _, p := range participants {
		known[p.DiscordID] = struct{}{}
	}

	donors := make(map[int64]struct{}, len(donorIDs))
	var unknown []int64
	for _, id := range donorIDs {
		if _, ok := known[id]; !ok {
			if _, dup := donors[id]; !dup {
				unknown = append(unknown, id)
			}
			donors[id] = struct{}{}
			continue
		}
		donors[id] = struct{}{}
	}

	if len(unknown) > 0 {
		sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
		return nil, &entities.UnknownDonorError{DiscordIDs: unknown}
	}
	return donors, nil
}

func countRecipients(lines []*payoutLine) int {
	count := 0
	for _, line := range lines {
		if line.isRecipient {
			count++
		}
	}
	return count
}

func splitEvenly(lines []*payoutLine, donated decimal.Decimal) {
	n := decimal.NewFromInt(int64(countRecipients(lines)))
	each := donated.Div(n)
	for _, line := range lines {
		if !line.isRecipient {
			continue
		}
		line.exactFinal = line.base.Add(each)
		line.record.DonationBonus = roundHalfUp(each)
		line.record.FinalPayout = roundHalfUp(line.exactFinal)
	}
}

// applyRemainder settles the rounding difference so recipient payouts sum to
// target. Recipients are ranked by payout, then duration, then lower Discord
// id. A surplus goes to the top-ranked recipient; a shortfall is taken one
// unit at a time down the ranking and never takes a payout below zero.
func applyRemainder(lines []*payoutLine, target int64, redistributed bool) {
	ranked := make([]*payoutLine, 0, len(lines))
	var paid int64
	for _, line := range lines {
		if !line.isRecipient {
			continue
		}
		ranked = append(ranked, line)
		paid += line.record.FinalPayout
	}

	remainder := target - paid
	if remainder == 0 || len(ranked) == 0 {
		return
	}
	sort.SliceStable(ranked, func(i, j int) bool { return outranks(ranked[i], ranked[j]) })

	if remainder > 0 {
		settlePayout(ranked[0], ranked[0].record.FinalPayout+remainder, redistributed)
		return
	}

	for remainder < 0 {
		taken := false
		for _, line := range ranked {
			if remainder == 0 {
				break
			}
			if line.record.FinalPayout == 0 {
				continue
			}
			settlePayout(line, line.record.FinalPayout-1, redistributed)
			remainder++
			taken = true
		}
		if !taken {
			return
		}
	}
}

// settlePayout sets a recipient's final payout and keeps base plus bonus equal to it
func settlePayout(line *payoutLine, final int64, redistributed bool) {
	rec := line.record
	rec.FinalPayout = final
	if !redistributed {
		rec.BasePayout = final
		return
	}
	rec.DonationBonus = final - rec.BasePayout
	if rec.DonationBonus < 0 {
		rec.BasePayout = final
		rec.DonationBonus = 0
	}
}

func outranks(a, b *payoutLine) bool {
	if a.record.FinalPayout != b.record.FinalPayout {
		return a.record.FinalPayout > b.record.FinalPayout
	}
	if !a.duration.Equal(b.duration) {
		return a.duration.GreaterThan(b.duration)
	}
	return a.record.DiscordID < b.record.DiscordID
}

func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
