package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"match-wager-system/models"

	"github.com/google/uuid"
)

// holdNamespace seeds the deterministic hold ids. Locking the same
// (match, user, scope) twice always hits the same ledger hold, which makes
// retries no-ops end to end.
var holdNamespace = uuid.MustParse("8b1f3e52-55a4-4e8e-9c6b-2d9a1f0c4b7e")

// DrawPolicy controls what happens to the pot on an agreed draw.
type DrawPolicy string

const (
	// DrawPolicyRefund releases both entry holds in full, zero fee.
	DrawPolicyRefund DrawPolicy = "refund"
	// DrawPolicySplit transfers each player half the pot minus fee.
	DrawPolicySplit DrawPolicy = "split"
)

// EscrowConfig is the payout policy, read from env in main.
type EscrowConfig struct {
	FeeBps             int64 // platform vig on settled pots, basis points
	Draw               DrawPolicy
	PrivateServerFeeFC int64 // flat per-player go-live fee
}

// EscrowService wraps the wallet ledger with match-scoped semantics: it is
// the sole writer of hold status, and guarantees exactly-once settlement per
// match via the MatchSettlement guard row.
type EscrowService struct {
	store  Store
	ledger WalletLedger
	cfg    EscrowConfig
}

func NewEscrowService(store Store, ledger WalletLedger, cfg EscrowConfig) *EscrowService {
	if cfg.Draw == "" {
		cfg.Draw = DrawPolicyRefund
	}
	return &EscrowService{store: store, ledger: ledger, cfg: cfg}
}

// HoldID derives the deterministic hold id for (matchID, userID, scope).
func HoldID(matchID, userID, scope string) string {
	return uuid.NewSHA1(holdNamespace, []byte(matchID+":"+userID+":"+scope)).String()
}

// LockEntry reserves a player's entry stake. Returns
// models.ErrInsufficientFunds when the player's balance is short; in that
// case nothing is persisted.
func (s *EscrowService) LockEntry(ctx context.Context, matchID, userID string, amount int64) (string, error) {
	return s.lock(ctx, matchID, userID, "entry", amount)
}

// LockSideStake reserves a side-challenge stake under its own hold scope.
func (s *EscrowService) LockSideStake(ctx context.Context, matchID, sideID, userID string, amount int64) (string, error) {
	return s.lock(ctx, matchID, userID, "side:"+sideID, amount)
}

func (s *EscrowService) lock(ctx context.Context, matchID, userID, scope string, amount int64) (string, error) {
	holdID := HoldID(matchID, userID, scope)
	if err := s.ledger.Lock(ctx, userID, amount, holdID); err != nil {
		return "", err
	}
	hold := &models.EscrowHold{
		ID:      holdID,
		MatchID: matchID,
		UserID:  userID,
		Scope:   scope,
		Amount:  amount,
		Status:  models.HoldStatusLocked,
	}
	if err := s.store.SaveHold(hold); err != nil {
		return "", fmt.Errorf("failed to persist hold: %w", err)
	}
	return holdID, nil
}

// ReleaseHold gives one specific hold back to its owner. Used to unwind a
// lock when the follow-up persistence step fails.
func (s *EscrowService) ReleaseHold(ctx context.Context, matchID, userID, scope string) error {
	holdID := HoldID(matchID, userID, scope)
	if err := s.ledger.Release(ctx, holdID); err != nil {
		return err
	}
	s.markHoldsReleased(matchID, holdID)
	return nil
}

// Settle moves the pot for a finished match. winnerID nil means draw; the
// configured draw policy decides between full refund and split.
//
// The settlement guard is a resumable claim, not a one-shot latch: the
// MatchSettlement row records the decision (winner, pot, fee) before the
// ledger moves, and a retry after a mid-flight ledger failure picks the
// decision back up and finishes moving whatever holds are still LOCKED.
// Only when every entry hold has already left LOCKED does a repeat call
// return models.ErrAlreadySettled.
func (s *EscrowService) Settle(ctx context.Context, matchID string, winnerID *string) error {
	holds, err := s.store.ListHoldsByMatch(matchID)
	if err != nil {
		return err
	}

	var entryHolds []*models.EscrowHold
	var pot int64
	anyLocked := false
	for _, h := range holds {
		if h.Scope != "entry" {
			continue
		}
		entryHolds = append(entryHolds, h)
		pot += h.Amount
		if h.Status == models.HoldStatusLocked {
			anyLocked = true
		}
	}

	var fee int64
	st, err := s.store.GetSettlement(matchID)
	switch {
	case err == nil:
		if !anyLocked {
			return models.ErrAlreadySettled
		}
		// A prior settle claimed this match but did not finish paying out.
		// The recorded decision wins; the caller's winnerID is ignored.
		log.Printf("[ESCROW] Resuming interrupted settlement for match %s", matchID)
		winnerID = st.WinnerID
		pot = st.PotFC
		fee = st.FeeFC

	case errors.Is(err, models.ErrMatchNotFound):
		fee = pot * s.cfg.FeeBps / 10000
		if winnerID == nil && s.cfg.Draw == DrawPolicyRefund {
			fee = 0
		}
		// Claim before the ledger moves: the first writer decides the
		// outcome, and a crash mid-transfer leaves a claim a retry resumes.
		if cerr := s.store.CreateSettlement(&models.MatchSettlement{
			ID:        uuid.NewString(),
			MatchID:   matchID,
			WinnerID:  winnerID,
			PotFC:     pot,
			FeeFC:     fee,
			SettledAt: time.Now(),
		}); cerr != nil {
			return cerr
		}

	default:
		return err
	}

	switch {
	case winnerID != nil:
		// Walk every entry hold in stable order so the remaining counter
		// lands the same way on a resume; holds already closed keep the
		// share they moved.
		remaining := pot - fee
		for _, h := range entryHolds {
			amount := h.Amount
			if amount > remaining {
				amount = remaining
			}
			if h.Status == models.HoldStatusLocked {
				if err := s.ledger.Transfer(ctx, h.ID, *winnerID, amount); err != nil {
					return fmt.Errorf("ledger transfer failed for hold %s: %w", h.ID, err)
				}
				h.Status = models.HoldStatusTransferred
				if err := s.store.SaveHold(h); err != nil {
					return err
				}
			}
			remaining -= amount
		}

	case s.cfg.Draw == DrawPolicySplit:
		half := fee / 2
		for _, h := range entryHolds {
			if h.Status != models.HoldStatusLocked {
				continue
			}
			if err := s.ledger.Transfer(ctx, h.ID, h.UserID, h.Amount-half); err != nil {
				return fmt.Errorf("ledger transfer failed for hold %s: %w", h.ID, err)
			}
			h.Status = models.HoldStatusTransferred
			if err := s.store.SaveHold(h); err != nil {
				return err
			}
		}

	default: // draw, refund policy
		for _, h := range entryHolds {
			if h.Status != models.HoldStatusLocked {
				continue
			}
			if err := s.ledger.Release(ctx, h.ID); err != nil {
				return fmt.Errorf("ledger release failed for hold %s: %w", h.ID, err)
			}
			h.Status = models.HoldStatusReleased
			if err := s.store.SaveHold(h); err != nil {
				return err
			}
		}
	}

	return nil
}

// Refund releases every still-LOCKED hold on the match (entry and side
// scopes) back to its owner. Non-LOCKED holds are untouched, so fee charges
// and already-settled transfers survive a refund.
func (s *EscrowService) Refund(ctx context.Context, matchID string) error {
	holds, err := s.store.ListHoldsByMatch(matchID)
	if err != nil {
		return err
	}
	for _, h := range holds {
		if h.Status != models.HoldStatusLocked {
			continue
		}
		if err := s.ledger.Refund(ctx, h.ID); err != nil {
			return fmt.Errorf("ledger refund failed for hold %s: %w", h.ID, err)
		}
		h.Status = models.HoldStatusReleased
		if err := s.store.SaveHold(h); err != nil {
			return err
		}
	}
	return nil
}

// ChargeFlatFee takes a flat, non-refundable fee from userID, idempotent per
// (match, user, tag). The fee is locked under its own deterministic hold and
// immediately transferred to the house, so a later Refund never returns it.
func (s *EscrowService) ChargeFlatFee(ctx context.Context, matchID, userID string, amount int64, feeTag string) error {
	holdID := HoldID(matchID, userID, "fee:"+feeTag)
	if err := s.ledger.Lock(ctx, userID, amount, holdID); err != nil {
		return err
	}
	// Zero to the payer, remainder (the whole hold) to the house.
	if err := s.ledger.Transfer(ctx, holdID, userID, 0); err != nil {
		return fmt.Errorf("ledger fee transfer failed: %w", err)
	}
	created, err := s.store.CreateFeeCharge(&models.FeeCharge{
		ID:      uuid.NewString(),
		MatchID: matchID,
		UserID:  userID,
		Tag:     feeTag,
		Amount:  amount,
	})
	if err != nil {
		return err
	}
	if !created {
		log.Printf("[ESCROW] Duplicate fee charge ignored: match=%s user=%s tag=%s", matchID, userID, feeTag)
	}
	return nil
}

// SettleSides settles every accepted, unsettled side challenge on the match.
// winnerID nil (draw or refund resolution) releases both side stakes. Side
// pots carry no vig.
func (s *EscrowService) SettleSides(ctx context.Context, matchID string, winnerID *string) error {
	sides, err := s.store.ListSidesByMatch(matchID)
	if err != nil {
		return err
	}
	for _, sc := range sides {
		if sc.Settled || !sc.Accepted() {
			continue
		}
		creatorHold := HoldID(matchID, sc.CreatorID, "side:"+sc.ID)
		acceptorHold := HoldID(matchID, *sc.AcceptorID, "side:"+sc.ID)

		if winnerID == nil {
			if err := s.ledger.Release(ctx, creatorHold); err != nil {
				return err
			}
			if err := s.ledger.Release(ctx, acceptorHold); err != nil {
				return err
			}
			s.markHoldsReleased(matchID, creatorHold, acceptorHold)
		} else {
			payee := sc.CreatorID
			if *winnerID != sc.PickID {
				payee = *sc.AcceptorID
			}
			if err := s.ledger.Transfer(ctx, creatorHold, payee, sc.StakeFC); err != nil {
				return err
			}
			if err := s.ledger.Transfer(ctx, acceptorHold, payee, sc.StakeFC); err != nil {
				return err
			}
			s.markHoldsTransferred(matchID, creatorHold, acceptorHold)
		}

		sc.Settled = true
		if err := s.store.SaveSide(sc); err != nil {
			return err
		}
	}
	return nil
}

// LockedEntryTotal returns the sum of LOCKED entry holds for the match —
// the invariant checked by tests: entryFc x participants while the match is
// non-terminal.
func (s *EscrowService) LockedEntryTotal(matchID string) (int64, error) {
	holds, err := s.store.ListHoldsByMatch(matchID)
	if err != nil {
		return 0, err
	}
	var sum int64
	for _, h := range holds {
		if h.Scope == "entry" && h.Status == models.HoldStatusLocked {
			sum += h.Amount
		}
	}
	return sum, nil
}

func (s *EscrowService) markHoldsReleased(matchID string, ids ...string) {
	s.markHolds(matchID, models.HoldStatusReleased, ids...)
}

func (s *EscrowService) markHoldsTransferred(matchID string, ids ...string) {
	s.markHolds(matchID, models.HoldStatusTransferred, ids...)
}

func (s *EscrowService) markHolds(matchID string, status models.HoldStatus, ids ...string) {
	holds, err := s.store.ListHoldsByMatch(matchID)
	if err != nil {
		log.Printf("[ESCROW] Failed to load holds for %s: %v", matchID, err)
		return
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, h := range holds {
		if want[h.ID] && h.Status == models.HoldStatusLocked {
			h.Status = status
			if err := s.store.SaveHold(h); err != nil {
				log.Printf("[ESCROW] Failed to update hold %s: %v", h.ID, err)
			}
		}
	}
}

// IsSettled reports whether the settlement guard exists for the match.
func (s *EscrowService) IsSettled(matchID string) bool {
	_, err := s.store.GetSettlement(matchID)
	return err == nil
}

// AsSettledSuccess collapses the idempotent-duplicate case: a settle that
// hit the guard is a success for the caller.
func AsSettledSuccess(err error) error {
	if errors.Is(err, models.ErrAlreadySettled) {
		return nil
	}
	return err
}
