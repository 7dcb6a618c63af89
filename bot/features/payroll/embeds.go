package payroll

import (
	"fmt"
	"strings"

	"minebot/bot/common"
	"minebot/domain/entities"

	"github.com/bwmarrin/discordgo"
)

func buildPayrollEmbed(op *entities.Operation, result *entities.PayrollResult, currency string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "💰 Payroll: " + op.DisplayName(),
		Description: fmt.Sprintf("Split over %s of participation.", common.FormatDuration(result.TotalDuration)),
		Color:       common.ColorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Total", Value: common.FormatCurrency(result.TotalValue, currency), Inline: true},
			{Name: "Donated", Value: common.FormatCurrency(result.DonatedAmount, currency), Inline: true},
			{Name: "Paid out", Value: common.FormatCurrency(result.TotalPaid(), currency), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Operation #%d", op.ID)},
	}
	if result.UnallocatedValue > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Unallocated",
			Value: common.FormatCurrency(result.UnallocatedValue, currency) + " (everyone donated)",
		})
	}
	embed.Fields = append(embed.Fields, payoutFields(result.Records, currency)...)
	return embed
}

func buildRecordsEmbed(op *entities.Operation, records []*entities.PayoutRecord, currency string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "💰 Payroll: " + op.DisplayName(),
		Color: common.ColorPrimary,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Operation #%d", op.ID),
		},
	}
	if op.TotalValue != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Total", Value: common.FormatCurrency(*op.TotalValue, currency), Inline: true,
		})
	}
	if op.UnallocatedValue != nil && *op.UnallocatedValue > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Unallocated", Value: common.FormatCurrency(*op.UnallocatedValue, currency), Inline: true,
		})
	}
	if op.PayrollCalculatedAt != nil {
		embed.Description = "Calculated " + common.FormatDiscordTimestamp(*op.PayrollCalculatedAt, "R")
	}
	embed.Fields = append(embed.Fields, payoutFields(records, currency)...)
	return embed
}

// payoutFields renders recipients and donors as separate fields
func payoutFields(records []*entities.PayoutRecord, currency string) []*discordgo.MessageEmbedField {
	var recipients, donors strings.Builder
	rank := 0
	for _, rec := range records {
		if rec.IsDonor {
			fmt.Fprintf(&donors, "%s (%s)\n", common.MentionUser(rec.DiscordID), common.FormatDuration(rec.TotalDuration))
			continue
		}
		rank++
		fmt.Fprintf(&recipients, "%d. %s: **%s**", rank, common.MentionUser(rec.DiscordID), common.FormatCurrency(rec.FinalPayout, currency))
		fmt.Fprintf(&recipients, " (%s, %s", common.FormatShare(rec.TimeShare), common.FormatDuration(rec.TotalDuration))
		if rec.DonationBonus > 0 {
			fmt.Fprintf(&recipients, ", +%s bonus", common.FormatAmount(rec.DonationBonus))
		}
		recipients.WriteString(")\n")
	}

	fields := []*discordgo.MessageEmbedField{{
		Name:  fmt.Sprintf("Payouts (%d)", rank),
		Value: fieldValue(recipients.String(), "Nobody receives a payout."),
	}}
	if donors.Len() > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Donated their share",
			Value: fieldValue(donors.String(), ""),
		})
	}
	return fields
}

func fieldValue(s, empty string) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return empty
	}
	return common.Truncate(s, common.MaxFieldValueChars)
}
