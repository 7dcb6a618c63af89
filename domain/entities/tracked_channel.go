package entities

import "time"

// TrackedChannel is a voice channel whose members earn participation credit
// for an operation
type TrackedChannel struct {
	ID          int64     `db:"id"`
	OperationID int64     `db:"operation_id"`
	GuildID     int64     `db:"guild_id"`
	ChannelID   int64     `db:"channel_id"`
	Name        string    `db:"name"`
	Active      bool      `db:"active"`
	CreatedAt   time.Time `db:"created_at"`
}

// ActiveChannelIDs returns the ids of the channels still flagged active
func ActiveChannelIDs(channels []*TrackedChannel) []int64 {
	ids := make([]int64, 0, len(channels))
	for _, ch := range channels {
		if ch.Active {
			ids = append(ids, ch.ChannelID)
		}
	}
	return ids
}
