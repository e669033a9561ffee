package models

// MinSideStakeFC is the minimum stake for a side challenge.
const MinSideStakeFC = 25

// SideChallenge is a peer-to-peer prop wager between the two participants of
// a private-server match: the creator backs PickID to win, the other
// participant takes the opposite side by accepting. Both stakes are escrowed
// once accepted, and the challenge settles atomically with the parent match.
type SideChallenge struct {
	ID        string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	MatchID   string `gorm:"index;not null" json:"match_id"`
	CreatorID string `gorm:"not null" json:"creator_id"`

	// PickID is the participant the creator backs.
	PickID  string `gorm:"not null" json:"pick_id"`
	StakeFC int64  `gorm:"not null" json:"stake_fc"`

	// AcceptorID is set when the other participant takes the bet; only
	// accepted challenges carry escrow.
	AcceptorID *string `json:"acceptor_id,omitempty"`

	Settled bool `gorm:"default:false" json:"settled"`

	Timestamps
}

// Accepted reports whether both sides of the challenge are committed.
func (s *SideChallenge) Accepted() bool {
	return s.AcceptorID != nil
}
