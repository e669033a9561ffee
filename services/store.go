package services

import (
	"sort"
	"sync"
	"time"

	"match-wager-system/models"
)

// Store persists the match, escrow, checklist, dispute and side-challenge
// records. The lifecycle controller keeps the live copy of each match in
// memory and writes through; the store is the source of truth across
// restarts and for read accessors.
type Store interface {
	CreateMatch(m *models.Match) error
	SaveMatch(m *models.Match) error
	GetMatch(id string) (*models.Match, error)
	ListMatchesByState(state models.MatchState) ([]*models.Match, error)
	ListMatchesByUser(userID string) ([]*models.Match, error)

	SaveHold(h *models.EscrowHold) error
	ListHoldsByMatch(matchID string) ([]*models.EscrowHold, error)

	// CreateSettlement returns models.ErrAlreadySettled when a settlement
	// row already exists for the match. This is the exactly-once guard.
	CreateSettlement(s *models.MatchSettlement) error
	GetSettlement(matchID string) (*models.MatchSettlement, error)

	// CreateFeeCharge reports created=false when an identical
	// (match, user, tag) charge already exists.
	CreateFeeCharge(f *models.FeeCharge) (created bool, err error)
	HasFeeCharge(matchID, userID, tag string) (bool, error)

	SaveChecklistEntry(e *models.ChecklistEntry) error
	GetChecklist(matchID string) ([]*models.ChecklistEntry, error)

	// CreateDispute returns models.ErrDisputeAlreadyOpen when the match
	// already has an OPEN dispute.
	CreateDispute(d *models.Dispute) error
	GetDispute(id string) (*models.Dispute, error)
	// GetOpenDispute returns the match's OPEN dispute, or
	// models.ErrDisputeNotFound.
	GetOpenDispute(matchID string) (*models.Dispute, error)
	SaveDispute(d *models.Dispute) error

	CreateSide(s *models.SideChallenge) error
	GetSide(id string) (*models.SideChallenge, error)
	ListSidesByMatch(matchID string) ([]*models.SideChallenge, error)
	SaveSide(s *models.SideChallenge) error

	SaveStreamLink(l *models.StreamLink) error
	ListStreamLinks(matchID string) ([]*models.StreamLink, error)

	AppendMatchEvent(e *models.MatchEvent) error
	ListMatchEvents(matchID string) ([]*models.MatchEvent, error)
}

// MemoryStore is the in-memory Store used by tests and local development.
type MemoryStore struct {
	mu          sync.RWMutex
	matches     map[string]*models.Match
	holds       map[string]*models.EscrowHold
	settlements map[string]*models.MatchSettlement // keyed by match id
	fees        map[string]*models.FeeCharge       // keyed by match|user|tag
	checklist   map[string]*models.ChecklistEntry  // keyed by match|key
	disputes    map[string]*models.Dispute
	sides       map[string]*models.SideChallenge
	links       map[string]*models.StreamLink // keyed by match|user
	events      map[string][]*models.MatchEvent
	nextEventID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches:     make(map[string]*models.Match),
		holds:       make(map[string]*models.EscrowHold),
		settlements: make(map[string]*models.MatchSettlement),
		fees:        make(map[string]*models.FeeCharge),
		checklist:   make(map[string]*models.ChecklistEntry),
		disputes:    make(map[string]*models.Dispute),
		sides:       make(map[string]*models.SideChallenge),
		links:       make(map[string]*models.StreamLink),
		events:      make(map[string][]*models.MatchEvent),
	}
}

func (s *MemoryStore) CreateMatch(m *models.Match) error {
	return s.SaveMatch(m)
}

func (s *MemoryStore) SaveMatch(m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.matches[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMatch(id string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, models.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMatchesByState(state models.MatchState) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Match
	for _, m := range s.matches {
		if m.State == state {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListMatchesByUser(userID string) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Match
	for _, m := range s.matches {
		if m.IsParticipant(userID) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) SaveHold(h *models.EscrowHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *h
	s.holds[h.ID] = &cp
	return nil
}

func (s *MemoryStore) ListHoldsByMatch(matchID string) ([]*models.EscrowHold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.EscrowHold
	for _, h := range s.holds {
		if h.MatchID == matchID {
			cp := *h
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateSettlement(st *models.MatchSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settlements[st.MatchID]; ok {
		return models.ErrAlreadySettled
	}
	cp := *st
	s.settlements[st.MatchID] = &cp
	return nil
}

func (s *MemoryStore) GetSettlement(matchID string) (*models.MatchSettlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.settlements[matchID]
	if !ok {
		return nil, models.ErrMatchNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *MemoryStore) CreateFeeCharge(f *models.FeeCharge) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := f.MatchID + "|" + f.UserID + "|" + f.Tag
	if _, ok := s.fees[key]; ok {
		return false, nil
	}
	cp := *f
	s.fees[key] = &cp
	return true, nil
}

func (s *MemoryStore) HasFeeCharge(matchID, userID, tag string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fees[matchID+"|"+userID+"|"+tag]
	return ok, nil
}

func (s *MemoryStore) SaveChecklistEntry(e *models.ChecklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.checklist[e.MatchID+"|"+e.Key] = &cp
	return nil
}

func (s *MemoryStore) GetChecklist(matchID string) ([]*models.ChecklistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.ChecklistEntry
	for _, e := range s.checklist {
		if e.MatchID == matchID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) CreateDispute(d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.disputes {
		if existing.MatchID == d.MatchID && existing.Status == models.DisputeStatusOpen {
			return models.ErrDisputeAlreadyOpen
		}
	}
	cp := *d
	s.disputes[d.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDispute(id string) (*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.disputes[id]
	if !ok {
		return nil, models.ErrDisputeNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) GetOpenDispute(matchID string) (*models.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.disputes {
		if d.MatchID == matchID && d.Status == models.DisputeStatusOpen {
			cp := *d
			return &cp, nil
		}
	}
	return nil, models.ErrDisputeNotFound
}

func (s *MemoryStore) SaveDispute(d *models.Dispute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.disputes[d.ID] = &cp
	return nil
}

func (s *MemoryStore) CreateSide(sc *models.SideChallenge) error {
	return s.SaveSide(sc)
}

func (s *MemoryStore) GetSide(id string) (*models.SideChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.sides[id]
	if !ok {
		return nil, models.ErrSideNotFound
	}
	cp := *sc
	return &cp, nil
}

func (s *MemoryStore) ListSidesByMatch(matchID string) ([]*models.SideChallenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SideChallenge
	for _, sc := range s.sides {
		if sc.MatchID == matchID {
			cp := *sc
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveSide(sc *models.SideChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sc
	s.sides[sc.ID] = &cp
	return nil
}

func (s *MemoryStore) SaveStreamLink(l *models.StreamLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.links[l.MatchID+"|"+l.UserID] = &cp
	return nil
}

func (s *MemoryStore) ListStreamLinks(matchID string) ([]*models.StreamLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.StreamLink
	for _, l := range s.links {
		if l.MatchID == matchID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) AppendMatchEvent(e *models.MatchEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	cp := *e
	cp.ID = s.nextEventID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.events[e.MatchID] = append(s.events[e.MatchID], &cp)
	return nil
}

func (s *MemoryStore) ListMatchEvents(matchID string) ([]*models.MatchEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.events[matchID]
	out := make([]*models.MatchEvent, 0, len(evs))
	for _, e := range evs {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}
