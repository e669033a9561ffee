package models

import "time"

// HoldStatus tracks a single escrow hold. A hold leaves LOCKED at most once.
type HoldStatus string

const (
	HoldStatusLocked      HoldStatus = "LOCKED"
	HoldStatusReleased    HoldStatus = "RELEASED"
	HoldStatusTransferred HoldStatus = "TRANSFERRED"
)

// EscrowHold is funds reserved against a specific match, one row per
// (match, user, scope). The hold id is derived deterministically so a
// retried lock is a no-op on the wallet ledger.
type EscrowHold struct {
	ID      string     `gorm:"primaryKey;type:uuid;not null" json:"id"`
	MatchID string     `gorm:"index;not null" json:"match_id"`
	UserID  string     `gorm:"index;not null" json:"user_id"`
	Scope   string     `gorm:"type:varchar(32);not null;default:'entry'" json:"scope"` // entry | side:<sideId>
	Amount  int64      `gorm:"not null" json:"amount"`
	Status  HoldStatus `gorm:"type:varchar(16);not null" json:"status"`

	Timestamps
}

// MatchSettlement is the per-match "already settled" guard. The unique
// match_id constraint makes the check-and-set atomic: the first writer wins,
// every later settle attempt sees a duplicate and becomes a no-op.
type MatchSettlement struct {
	ID       string  `gorm:"primaryKey;type:uuid;not null" json:"id"`
	MatchID  string  `gorm:"uniqueIndex;not null" json:"match_id"`
	WinnerID *string `json:"winner_id,omitempty"` // nil = draw / refund policy
	PotFC    int64   `gorm:"not null" json:"pot_fc"`
	FeeFC    int64   `gorm:"not null" json:"fee_fc"`

	SettledAt time.Time `gorm:"not null" json:"settled_at"`
}

// FeeCharge records a flat, non-refundable fee taken from a player, e.g. the
// private-server usage fee at go-live. Unique per (match, user, tag) so a
// retried charge is idempotent.
type FeeCharge struct {
	ID      string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	MatchID string `gorm:"not null;uniqueIndex:idx_fee_charge_once,priority:1" json:"match_id"`
	UserID  string `gorm:"not null;uniqueIndex:idx_fee_charge_once,priority:2" json:"user_id"`
	Tag     string `gorm:"type:varchar(32);not null;uniqueIndex:idx_fee_charge_once,priority:3" json:"tag"`
	Amount  int64  `gorm:"not null" json:"amount"`

	Timestamps
}

// FeeTagPrivateServer is charged per player at the COUNTDOWN -> ACTIVE
// boundary of a private-server match.
const FeeTagPrivateServer = "private_server"
