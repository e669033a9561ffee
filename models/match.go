package models

import "time"

// MatchState is the canonical lifecycle state of a wagered match.
// PENDING, COMPLETE, CANCELLED and DISPUTED-resolved-out states are
// written only by the lifecycle controller.
type MatchState string

const (
	MatchStatePending    MatchState = "PENDING"
	MatchStateReadyCheck MatchState = "READY_CHECK"
	MatchStateReady      MatchState = "READY"
	MatchStateCountdown  MatchState = "COUNTDOWN"
	MatchStateActive     MatchState = "ACTIVE"
	MatchStateComplete   MatchState = "COMPLETE"
	MatchStateCancelled  MatchState = "CANCELLED"
	MatchStateDisputed   MatchState = "DISPUTED"
)

// MatchResult is a participant's self-reported outcome.
type MatchResult string

const (
	ResultWin  MatchResult = "win"
	ResultLoss MatchResult = "loss"
	ResultDraw MatchResult = "draw"
)

// Match is a head-to-head wager between two players. Both entry stakes are
// held in escrow from the moment each side is locked in until settlement.
type Match struct {
	ID       string  `gorm:"primaryKey;type:uuid;not null" json:"id"`
	HostID   string  `gorm:"index;not null" json:"host_id"`
	OppID    *string `gorm:"index" json:"opp_id,omitempty"` // nil until someone joins
	GameID   string  `gorm:"not null" json:"game_id"`
	Platform string  `gorm:"type:varchar(32);not null" json:"platform"`
	Region   string  `gorm:"type:varchar(32)" json:"region"`
	BestOf   int     `gorm:"default:1" json:"best_of"`

	// EntryFC is the per-player stake in FC credits. Always positive.
	EntryFC int64 `gorm:"not null;check:entry_fc > 0" json:"entry_fc"`

	RequireStream   bool `gorm:"default:false" json:"require_stream"`
	IsPrivateServer bool `gorm:"default:false" json:"is_private_server"`

	State MatchState `gorm:"type:varchar(16);not null;index" json:"state"`

	HostReady bool `gorm:"default:false" json:"host_ready"`
	OppReady  bool `gorm:"default:false" json:"opp_ready"`

	// Self-reported results; each side may overwrite only its own report
	// while the match is ACTIVE.
	HostResult *MatchResult `gorm:"type:varchar(8)" json:"host_result,omitempty"`
	OppResult  *MatchResult `gorm:"type:varchar(8)" json:"opp_result,omitempty"`
	HostScore  int          `gorm:"default:0" json:"host_score"`
	OppScore   int          `gorm:"default:0" json:"opp_score"`

	WinnerID *string `gorm:"index" json:"winner_id,omitempty"`

	// CancelReason / CompleteReason carry the human-readable audit string
	// for forfeits, timeouts and admin resolutions.
	Reason string `gorm:"type:text" json:"reason,omitempty"`

	StartAt    *time.Time `json:"start_at,omitempty"`
	CompleteAt *time.Time `json:"complete_at,omitempty"`

	Timestamps
}

// IsTerminal reports whether no further transitions may leave the state.
func (m *Match) IsTerminal() bool {
	switch m.State {
	case MatchStateComplete, MatchStateCancelled:
		return true
	}
	return false
}

// IsParticipant reports whether userID is the host or the opponent.
func (m *Match) IsParticipant(userID string) bool {
	if userID == m.HostID {
		return true
	}
	return m.OppID != nil && *m.OppID == userID
}

// Opponent returns the other participant's id, or "" if the match has no
// opponent yet or userID is not a participant.
func (m *Match) Opponent(userID string) string {
	if m.OppID == nil {
		return ""
	}
	switch userID {
	case m.HostID:
		return *m.OppID
	case *m.OppID:
		return m.HostID
	}
	return ""
}

// Participants returns the ids of everyone with a stake in the match.
func (m *Match) Participants() []string {
	if m.OppID == nil {
		return []string{m.HostID}
	}
	return []string{m.HostID, *m.OppID}
}

// ResultsAgree reports whether two present reports describe the same
// outcome: one win + one loss, or a double draw.
func ResultsAgree(host, opp MatchResult) bool {
	if host == ResultDraw && opp == ResultDraw {
		return true
	}
	return (host == ResultWin && opp == ResultLoss) ||
		(host == ResultLoss && opp == ResultWin)
}
