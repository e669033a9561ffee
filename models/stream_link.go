package models

// StreamProvider identifies where a participant broadcasts.
type StreamProvider string

const (
	ProviderTwitch  StreamProvider = "twitch"
	ProviderYouTube StreamProvider = "youtube"
	ProviderKick    StreamProvider = "kick"
)

// StreamLink binds a participant's channel to a match for verification.
// One link per (match, user); re-linking overwrites.
type StreamLink struct {
	ID        string         `gorm:"primaryKey;type:uuid;not null" json:"id"`
	MatchID   string         `gorm:"not null;uniqueIndex:idx_stream_link_once,priority:1" json:"match_id"`
	UserID    string         `gorm:"not null;uniqueIndex:idx_stream_link_once,priority:2" json:"user_id"`
	Provider  StreamProvider `gorm:"type:varchar(16);not null" json:"provider"`
	ChannelID string         `gorm:"not null" json:"channel_id"`

	Timestamps
}
