package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// FormatAmount formats a currency amount with thousand separators
func FormatAmount(amount int64) string {
	if amount < 0 {
		return "-" + FormatAmount(-amount)
	}

	str := fmt.Sprintf("%d", amount)
	n := len(str)
	if n <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(digit)
	}

	return result.String()
}

// FormatCurrency formats an amount followed by the currency label
func FormatCurrency(amount int64, label string) string {
	return fmt.Sprintf("%s %s", FormatAmount(amount), label)
}

// FormatShare renders a 0..1 share as a percentage with two decimals
func FormatShare(share decimal.Decimal) string {
	return share.Shift(2).StringFixed(2) + "%"
}

// FormatDiscordTimestamp formats a time as a Discord timestamp that displays in user's local timezone
// Format types: "t" = short time, "T" = long time, "d" = short date, "D" = long date,
// "f" = short date/time, "F" = long date/time, "R" = relative time
func FormatDiscordTimestamp(t time.Time, format string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), format)
}

// FormatDuration formats a duration in a human-readable format
// Examples: "2h 14m", "45m 10s", "30s"
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	// Seconds only matter for short stays
	if seconds > 0 && hours == 0 {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	if len(parts) == 0 {
		return "0s"
	}

	return strings.Join(parts, " ")
}

// MentionUser renders a user mention from a numeric id
func MentionUser(discordID int64) string {
	return fmt.Sprintf("<@%d>", discordID)
}

// MentionChannel renders a channel mention from a numeric id
func MentionChannel(channelID int64) string {
	return fmt.Sprintf("<#%d>", channelID)
}

// Truncate shortens s to max runes, marking the cut with an ellipsis
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}
