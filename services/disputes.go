package services

import (
	"context"
	"log"
	"time"

	"match-wager-system/models"

	"github.com/google/uuid"
)

// DisputeFinalizer re-enters the lifecycle once an admin has decided: a
// winner's id awards the pot, nil refunds both stakes. Implemented by the
// match controller; the setter breaks the construction cycle between the
// two services.
type DisputeFinalizer interface {
	FinalizeDispute(ctx context.Context, matchID string, winnerID *string, resolvedBy string) error
}

// DisputeService owns dispute records: opening on conflict or complaint,
// and the admin resolution path. Fund movement is delegated to the
// finalizer, never done here.
type DisputeService struct {
	store     Store
	finalizer DisputeFinalizer
}

func NewDisputeService(store Store) *DisputeService {
	return &DisputeService{store: store}
}

func (s *DisputeService) SetFinalizer(f DisputeFinalizer) {
	s.finalizer = f
}

// Open creates a dispute record for the match. Returns
// models.ErrDisputeAlreadyOpen when one is already OPEN; the existing
// dispute stands.
func (s *DisputeService) Open(matchID, raisedBy, reason, notes string) (*models.Dispute, error) {
	d := &models.Dispute{
		ID:       uuid.NewString(),
		MatchID:  matchID,
		RaisedBy: raisedBy,
		Reason:   reason,
		Notes:    notes,
		Status:   models.DisputeStatusOpen,
	}
	if err := s.store.CreateDispute(d); err != nil {
		return nil, err
	}
	log.Printf("[DISPUTE] Opened dispute %s for match %s by %s: %s", d.ID, matchID, raisedBy, reason)
	return d, nil
}

// Resolve applies an admin decision to an OPEN dispute. resolution is a
// participant's user id (award) or models.ResolutionRefund. The funds move
// through the finalizer first; only then is the dispute marked RESOLVED, so
// a finalizer failure leaves the dispute open for a retry.
func (s *DisputeService) Resolve(ctx context.Context, disputeID, resolution, adminID string) (*models.Dispute, error) {
	d, err := s.store.GetDispute(disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != models.DisputeStatusOpen {
		return nil, models.ErrInvalidState
	}

	var winnerID *string
	if resolution != models.ResolutionRefund {
		w := resolution
		winnerID = &w
	}

	if err := s.finalizer.FinalizeDispute(ctx, d.MatchID, winnerID, adminID); err != nil {
		return nil, err
	}

	d.Status = models.DisputeStatusResolved
	d.Resolution = &resolution
	d.ResolvedBy = &adminID
	now := time.Now()
	d.ResolvedAt = &now
	if err := s.store.SaveDispute(d); err != nil {
		return nil, err
	}
	log.Printf("[DISPUTE] Resolved dispute %s for match %s as %s by %s", d.ID, d.MatchID, resolution, adminID)
	return d, nil
}

// OpenForMatch finds the match's OPEN dispute, if any.
func (s *DisputeService) OpenForMatch(matchID string) (*models.Dispute, error) {
	return s.store.GetOpenDispute(matchID)
}

// Get returns the dispute by id.
func (s *DisputeService) Get(disputeID string) (*models.Dispute, error) {
	return s.store.GetDispute(disputeID)
}
