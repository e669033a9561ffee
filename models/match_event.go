package models

import "time"

// MatchEvent is the persisted audit record of one state transition. The
// same payload is published to the event bus for downstream delivery.
type MatchEvent struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	MatchID   string     `gorm:"index;not null" json:"match_id"`
	FromState MatchState `gorm:"type:varchar(16);not null" json:"from_state"`
	ToState   MatchState `gorm:"type:varchar(16);not null" json:"to_state"`
	Reason    string     `gorm:"type:text" json:"reason,omitempty"`
	ActorID   string     `json:"actor_id,omitempty"` // empty for system events
	CreatedAt time.Time  `gorm:"autoCreateTime;not null" json:"created_at"`
}
