package entities

import (
	"time"
)

// DefaultMinParticipation is the shortest stay that earns participation credit
const DefaultMinParticipation = 30 * time.Second

// ParticipationInterval is one contiguous stay of one participant in one
// tracked channel. While Closed is false, LeftAt holds the latest durability
// snapshot rather than a real leave.
type ParticipationInterval struct {
	ID                   int64         `db:"id"`
	OperationID          int64         `db:"operation_id"`
	ParticipantDiscordID int64         `db:"participant_discord_id"`
	ChannelID            int64         `db:"channel_id"`
	JoinedAt             time.Time     `db:"joined_at"`
	LeftAt               *time.Time    `db:"left_at"`
	Duration             time.Duration `db:"duration_ms"`
	Closed               bool          `db:"closed"`
}

// IntervalKey identifies an interval independent of its snapshot or close state
type IntervalKey struct {
	OperationID          int64
	ParticipantDiscordID int64
	ChannelID            int64
	JoinedAt             time.Time
}

// Key returns the identity of the interval
func (p *ParticipationInterval) Key() IntervalKey {
	return IntervalKey{
		OperationID:          p.OperationID,
		ParticipantDiscordID: p.ParticipantDiscordID,
		ChannelID:            p.ChannelID,
		JoinedAt:             p.JoinedAt,
	}
}

// NewInterval builds an interval spanning joinedAt to leftAt
func NewInterval(key IntervalKey, leftAt time.Time, closed bool) *ParticipationInterval {
	duration := leftAt.Sub(key.JoinedAt)
	if duration < 0 {
		duration = 0
	}
	return &ParticipationInterval{
		OperationID:          key.OperationID,
		ParticipantDiscordID: key.ParticipantDiscordID,
		ChannelID:            key.ChannelID,
		JoinedAt:             key.JoinedAt,
		LeftAt:               &leftAt,
		Duration:             duration,
		Closed:               closed,
	}
}

// OperationParticipant records who a participant was when first seen in an operation
type OperationParticipant struct {
	OperationID int64     `db:"operation_id"`
	DiscordID   int64     `db:"discord_id"`
	Username    string    `db:"username"`
	IsOrgMember bool      `db:"is_org_member"`
	FirstSeenAt time.Time `db:"first_seen_at"`
}

// AggregatedParticipation is the per-participant total across all channels of
// an operation. It is always derived from interval rows.
type AggregatedParticipation struct {
	OperationID      int64         `db:"operation_id"`
	DiscordID        int64         `db:"participant_discord_id"`
	Username         string        `db:"username"`
	TotalDuration    time.Duration `db:"total_duration_ms"`
	PrimaryChannelID int64         `db:"primary_channel_id"`
	IsOrgMember      bool          `db:"is_org_member"`
}

// FilterByMinimum drops participants whose total stays below min
func FilterByMinimum(rows []*AggregatedParticipation, min time.Duration) []*AggregatedParticipation {
	filtered := make([]*AggregatedParticipation, 0, len(rows))
	for _, row := range rows {
		if row.TotalDuration >= min {
			filtered = append(filtered, row)
		}
	}
	return filtered
}

// ChannelMembershipChanged is a voice channel transition for one member.
// A nil channel means the member was not in any voice channel on that side.
type ChannelMembershipChanged struct {
	GuildID           int64
	ParticipantID     int64
	PreviousChannelID *int64
	NewChannelID      *int64
	At                time.Time
	Username          string
	IsOrgMember       bool
}

// VoiceMember is a member found in a voice channel when tracking starts
type VoiceMember struct {
	DiscordID   int64
	ChannelID   int64
	Username    string
	IsOrgMember bool
}

// LiveParticipation is a point-in-time view of a participant's accumulated
// time as seen by the tracker
type LiveParticipation struct {
	DiscordID        int64
	Username         string
	Accumulated      time.Duration
	CurrentChannelID *int64
	CurrentSince     *time.Time
}

// Total returns accumulated plus currently open time at now
func (l *LiveParticipation) Total(now time.Time) time.Duration {
	total := l.Accumulated
	if l.CurrentSince != nil && now.After(*l.CurrentSince) {
		total += now.Sub(*l.CurrentSince)
	}
	return total
}
