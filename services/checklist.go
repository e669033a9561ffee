package services

import (
	"fmt"
	"log"
	"sync"

	"match-wager-system/models"

	"github.com/google/uuid"
)

// ChecklistService owns the named pre-conditions gating a match past
// READY_CHECK. It is the sole writer of checklist values. It never
// transitions match state itself: when a key flips to PASS it notifies the
// lifecycle controller, which re-evaluates its own gating.
type ChecklistService struct {
	store Store

	mu sync.Mutex
	// sideChecks holds the latest raw per-side stream probe, keyed by match
	// then side index (1 or 2), so match-level flags can be aggregated.
	sideChecks map[string]map[int]StreamCheck

	onPass func(matchID string)
}

func NewChecklistService(store Store) *ChecklistService {
	return &ChecklistService{
		store:      store,
		sideChecks: make(map[string]map[int]StreamCheck),
	}
}

// SetOnPass registers the controller hook invoked when a key reaches PASS.
func (s *ChecklistService) SetOnPass(fn func(matchID string)) {
	s.onPass = fn
}

// InitForMatch creates the PENDING entries required by the match's mode.
// Called when the opponent joins; matches with no required keys get none.
func (s *ChecklistService) InitForMatch(m *models.Match) error {
	for _, key := range models.RequiredChecklistKeys(m.RequireStream, m.IsPrivateServer) {
		entry := &models.ChecklistEntry{
			ID:      uuid.NewString(),
			MatchID: m.ID,
			Key:     key,
			Value:   models.ChecklistPending,
		}
		if err := s.store.SaveChecklistEntry(entry); err != nil {
			return fmt.Errorf("failed to init checklist key %s: %w", key, err)
		}
	}
	return nil
}

// SetResult writes one checklist value and notifies the controller when the
// key newly reaches PASS.
func (s *ChecklistService) SetResult(matchID, key string, value models.ChecklistStatus) error {
	entries, err := s.store.GetChecklist(matchID)
	if err != nil {
		return err
	}
	var prev models.ChecklistStatus = models.ChecklistPending
	for _, e := range entries {
		if e.Key == key {
			prev = e.Value
			break
		}
	}

	entry := &models.ChecklistEntry{
		ID:      uuid.NewString(),
		MatchID: matchID,
		Key:     key,
		Value:   value,
	}
	if err := s.store.SaveChecklistEntry(entry); err != nil {
		return err
	}

	if value == models.ChecklistPass && prev != models.ChecklistPass && s.onPass != nil {
		// Async so a caller already inside the controller's per-match section
		// is never re-entered; the hook re-checks state under its own lock.
		go s.onPass(matchID)
	}
	return nil
}

// AllRequiredPass reports whether every required key for the match's mode is
// PASS. Matches with no required keys trivially pass.
func (s *ChecklistService) AllRequiredPass(m *models.Match) (bool, error) {
	required := models.RequiredChecklistKeys(m.RequireStream, m.IsPrivateServer)
	if len(required) == 0 {
		return true, nil
	}
	entries, err := s.store.GetChecklist(m.ID)
	if err != nil {
		return false, err
	}
	values := make(map[string]models.ChecklistStatus, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}
	for _, key := range required {
		if values[key] != models.ChecklistPass {
			return false, nil
		}
	}
	return true, nil
}

// Get returns the match's checklist entries.
func (s *ChecklistService) Get(matchID string) ([]*models.ChecklistEntry, error) {
	return s.store.GetChecklist(matchID)
}

func toStatus(ok bool) models.ChecklistStatus {
	if ok {
		return models.ChecklistPass
	}
	return models.ChecklistFail
}

// ApplyStreamChecks records one side's stream probe (side is 1 for host,
// 2 for opponent) and re-aggregates the match-level flags. Combined flags
// (titles, bitrate, fps) stay PENDING until both sides have been probed.
func (s *ChecklistService) ApplyStreamChecks(matchID string, side int, check StreamCheck) {
	s.mu.Lock()
	if s.sideChecks[matchID] == nil {
		s.sideChecks[matchID] = make(map[int]StreamCheck)
	}
	s.sideChecks[matchID][side] = check
	c1, have1 := s.sideChecks[matchID][1]
	c2, have2 := s.sideChecks[matchID][2]
	s.mu.Unlock()

	liveKey := models.ChecklistP1StreamLive
	if side == 2 {
		liveKey = models.ChecklistP2StreamLive
	}
	if err := s.SetResult(matchID, liveKey, toStatus(check.Live)); err != nil {
		log.Printf("[CHECKLIST] Failed to set %s for %s: %v", liveKey, matchID, err)
	}

	if !have1 || !have2 {
		return
	}
	combined := map[string]bool{
		models.ChecklistTitlesContainMatchID: c1.TitleContainsMatchID && c2.TitleContainsMatchID,
		models.ChecklistBitrateOK:            c1.BitrateOK && c2.BitrateOK,
		models.ChecklistFPSOK:                c1.FPSOK && c2.FPSOK,
	}
	for key, ok := range combined {
		if err := s.SetResult(matchID, key, toStatus(ok)); err != nil {
			log.Printf("[CHECKLIST] Failed to set %s for %s: %v", key, matchID, err)
		}
	}
}

// Forget drops cached per-side probes once a match leaves READY_CHECK.
func (s *ChecklistService) Forget(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sideChecks, matchID)
}
