package models

// ChecklistStatus is the tri-state value of a single gating check.
type ChecklistStatus string

const (
	ChecklistPending ChecklistStatus = "PENDING"
	ChecklistPass    ChecklistStatus = "PASS"
	ChecklistFail    ChecklistStatus = "FAIL"
)

// Checklist keys. Which keys a match requires depends on its mode; the
// checklist gate initialises the required set when the opponent joins.
const (
	ChecklistStreamsLinked        = "streamsLinked"
	ChecklistP1StreamLive         = "p1StreamLive"
	ChecklistP2StreamLive         = "p2StreamLive"
	ChecklistTitlesContainMatchID = "titlesContainMatchId"
	ChecklistBitrateOK            = "bitrateOk"
	ChecklistFPSOK                = "fpsOk"
	ChecklistPrivateServerFeePaid = "privateServerFeePaid"
)

// ChecklistEntry is one named pre-condition gating a match's progression
// past READY_CHECK. One row per (match, key); written only by the
// checklist gate.
type ChecklistEntry struct {
	ID      string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	MatchID string          `gorm:"not null;uniqueIndex:idx_checklist_key,priority:1" json:"match_id"`
	Key     string          `gorm:"type:varchar(32);not null;uniqueIndex:idx_checklist_key,priority:2" json:"key"`
	Value   ChecklistStatus `gorm:"type:varchar(8);not null;default:'PENDING'" json:"value"`

	Timestamps
}

// RequiredChecklistKeys returns the keys a match of the given mode must have
// at PASS before it may advance past READY_CHECK.
func RequiredChecklistKeys(requireStream, isPrivateServer bool) []string {
	var keys []string
	if requireStream {
		keys = append(keys,
			ChecklistStreamsLinked,
			ChecklistP1StreamLive,
			ChecklistP2StreamLive,
			ChecklistTitlesContainMatchID,
			ChecklistBitrateOK,
			ChecklistFPSOK,
		)
	}
	if isPrivateServer {
		keys = append(keys, ChecklistPrivateServerFeePaid)
	}
	return keys
}
