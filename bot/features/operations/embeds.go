package operations

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"minebot/bot/common"
	"minebot/domain/entities"
	"minebot/domain/services"

	"github.com/bwmarrin/discordgo"
)

func buildStartedEmbed(op *entities.Operation, channels []services.ChannelSpec) *discordgo.MessageEmbed {
	mentions := make([]string, 0, len(channels))
	for _, ch := range channels {
		mentions = append(mentions, common.MentionChannel(ch.ChannelID))
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("⛏️ %s started", op.DisplayName()),
		Description: fmt.Sprintf("Organized by %s. Time in the tracked channels now counts toward payroll.", common.MentionUser(op.OrganizerDiscordID)),
		Color:       common.ColorSuccess,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Channels", Value: strings.Join(mentions, "\n"), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Operation #%d", op.ID)},
	}
	if op.StartedAt != nil {
		embed.Timestamp = op.StartedAt.Format(time.RFC3339)
	}
	return embed
}

// participantLine is one row of the participation field
type participantLine struct {
	discordID int64
	total     time.Duration
	inVoice   bool
}

func buildOverviewEmbed(overview *services.OperationOverview) *discordgo.MessageEmbed {
	op := overview.Operation

	color := common.ColorInfo
	if op.IsClosed() {
		color = common.ColorPrimary
	}

	var desc strings.Builder
	fmt.Fprintf(&desc, "Status: **%s**", op.Status)
	if op.StartedAt != nil {
		fmt.Fprintf(&desc, "\nStarted %s", common.FormatDiscordTimestamp(*op.StartedAt, "R"))
		fmt.Fprintf(&desc, "\nDuration: %s", common.FormatDuration(op.Elapsed(overview.AsOf)))
	}

	embed := &discordgo.MessageEmbed{
		Title:       "⛏️ " + op.DisplayName(),
		Description: desc.String(),
		Color:       color,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Operation #%d", op.ID)},
	}

	channels := make([]string, 0, len(overview.Channels))
	for _, ch := range overview.Channels {
		channels = append(channels, common.MentionChannel(ch.ChannelID))
	}
	if len(channels) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Channels",
			Value: strings.Join(channels, "\n"),
		})
	}

	lines := participantLines(overview)
	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  fmt.Sprintf("Participants (%d)", len(lines)),
		Value: formatParticipants(lines),
	})
	return embed
}

// participantLines orders participants by time, longest first
func participantLines(overview *services.OperationOverview) []participantLine {
	var lines []participantLine
	if overview.Operation.IsClosed() {
		for _, p := range overview.Totals {
			lines = append(lines, participantLine{discordID: p.DiscordID, total: p.TotalDuration})
		}
	} else {
		for _, p := range overview.Live {
			lines = append(lines, participantLine{
				discordID: p.DiscordID,
				total:     p.Total(overview.AsOf),
				inVoice:   p.CurrentChannelID != nil,
			})
		}
	}

	sort.Slice(lines, func(i, j int) bool {
		if lines[i].total != lines[j].total {
			return lines[i].total > lines[j].total
		}
		return lines[i].discordID < lines[j].discordID
	})
	return lines
}

func formatParticipants(lines []participantLine) string {
	if len(lines) == 0 {
		return "No participation recorded yet."
	}

	var b strings.Builder
	for idx, line := range lines {
		marker := ""
		if line.inVoice {
			marker = " 🔊"
		}
		fmt.Fprintf(&b, "%d. %s: %s%s\n", idx+1, common.MentionUser(line.discordID), common.FormatDuration(line.total), marker)
	}
	return common.Truncate(strings.TrimRight(b.String(), "\n"), common.MaxFieldValueChars)
}

func buildListEmbed(ops []*entities.Operation) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "⛏️ Recent operations",
		Color: common.ColorPrimary,
	}
	if len(ops) == 0 {
		embed.Description = "No operations have been run in this server yet."
		return embed
	}

	var b strings.Builder
	for _, op := range ops {
		fmt.Fprintf(&b, "**#%d** %s (%s)", op.ID, op.DisplayName(), op.Status)
		if op.StartedAt != nil {
			fmt.Fprintf(&b, " %s", common.FormatDiscordTimestamp(*op.StartedAt, "d"))
		}
		if op.HasPayroll() {
			b.WriteString(" 💰")
		}
		b.WriteString("\n")
	}
	embed.Description = strings.TrimRight(b.String(), "\n")
	return embed
}
