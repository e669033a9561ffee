package models

import "time"

// DisputeStatus — a dispute is OPEN until an admin resolves it. Disputes
// never expire on their own.
type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "OPEN"
	DisputeStatusResolved DisputeStatus = "RESOLVED"
)

// ResolutionRefund is the admin resolution that cancels the match and
// releases both entry holds instead of naming a winner.
const ResolutionRefund = "REFUND"

// Dispute is the administrative override path for conflicting self-reported
// results. At most one OPEN dispute exists per match.
type Dispute struct {
	ID       string `gorm:"primaryKey;type:uuid;not null" json:"id"`
	MatchID  string `gorm:"index;not null" json:"match_id"`
	RaisedBy string `gorm:"not null" json:"raised_by"`
	Reason   string `gorm:"type:text;not null" json:"reason"`
	Notes    string `gorm:"type:text" json:"notes,omitempty"`

	Status DisputeStatus `gorm:"type:varchar(16);not null;index" json:"status"`

	// Resolution is a winner's user id, or ResolutionRefund.
	Resolution *string    `json:"resolution,omitempty"`
	ResolvedBy *string    `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	Timestamps
}
