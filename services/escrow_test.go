package services

import (
	"context"
	"errors"
	"testing"

	"match-wager-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyLedger scripts Transfer outcomes: each call pops the next entry
// (nil delegates to the real ledger), then falls through to delegation.
type flakyLedger struct {
	*MemoryLedger
	transferErrs []error
}

func (f *flakyLedger) Transfer(ctx context.Context, holdID, toUserID string, amount int64) error {
	if len(f.transferErrs) > 0 {
		err := f.transferErrs[0]
		f.transferErrs = f.transferErrs[1:]
		if err != nil {
			return err
		}
	}
	return f.MemoryLedger.Transfer(ctx, holdID, toUserID, amount)
}

func newEscrowRig(cfg EscrowConfig) (*EscrowService, *MemoryStore, *MemoryLedger) {
	store := NewMemoryStore()
	ledger := NewMemoryLedger()
	return NewEscrowService(store, ledger, cfg), store, ledger
}

func TestHoldIDDeterministic(t *testing.T) {
	a := HoldID("m1", "alice", "entry")
	b := HoldID("m1", "alice", "entry")
	c := HoldID("m1", "alice", "side:s1")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestLockEntryIdempotent(t *testing.T) {
	svc, _, ledger := newEscrowRig(EscrowConfig{FeeBps: 500})
	ledger.Credit("alice", 1000)
	ctx := context.Background()

	id1, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	id2, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// Exactly one deduction.
	available, err := ledger.GetAvailableBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(900), available)
	assert.Equal(t, int64(100), ledger.LockedTotal("alice"))
}

func TestLockEntryInsufficientFunds(t *testing.T) {
	svc, store, ledger := newEscrowRig(EscrowConfig{})
	ledger.Credit("alice", 50)

	_, err := svc.LockEntry(context.Background(), "m1", "alice", 100)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)

	holds, err := store.ListHoldsByMatch("m1")
	require.NoError(t, err)
	assert.Empty(t, holds)
}

func TestSettleWinnerTakesPotMinusFee(t *testing.T) {
	svc, _, ledger := newEscrowRig(EscrowConfig{FeeBps: 500})
	ledger.Credit("alice", 100)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	_, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.LockEntry(ctx, "m1", "bob", 100)
	require.NoError(t, err)

	winner := "alice"
	require.NoError(t, svc.Settle(ctx, "m1", &winner))

	// Pot 200, 5% fee = 10, winner nets 190.
	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(190), available)
	bobAvailable, _ := ledger.GetAvailableBalance(ctx, "bob")
	assert.Equal(t, int64(0), bobAvailable)
	assert.Equal(t, int64(10), ledger.HouseBalance())
}

func TestSettleExactlyOnce(t *testing.T) {
	svc, _, ledger := newEscrowRig(EscrowConfig{FeeBps: 0})
	ledger.Credit("alice", 100)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	_, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.LockEntry(ctx, "m1", "bob", 100)
	require.NoError(t, err)

	winner := "alice"
	require.NoError(t, svc.Settle(ctx, "m1", &winner))

	// A second settle, even with a different winner, moves nothing.
	other := "bob"
	err = svc.Settle(ctx, "m1", &other)
	require.ErrorIs(t, err, models.ErrAlreadySettled)
	assert.NoError(t, AsSettledSuccess(err))

	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(200), available)
	bobAvailable, _ := ledger.GetAvailableBalance(ctx, "bob")
	assert.Equal(t, int64(0), bobAvailable)
	assert.True(t, svc.IsSettled("m1"))
}

func TestSettleResumesAfterLedgerFailure(t *testing.T) {
	store := NewMemoryStore()
	ledger := &flakyLedger{
		MemoryLedger: NewMemoryLedger(),
		transferErrs: []error{errors.New("wallet service unavailable")},
	}
	svc := NewEscrowService(store, ledger, EscrowConfig{FeeBps: 500})
	ledger.Credit("alice", 100)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	_, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.LockEntry(ctx, "m1", "bob", 100)
	require.NoError(t, err)

	winner := "alice"
	require.Error(t, svc.Settle(ctx, "m1", &winner))

	// The claim exists but the pot has not moved; a retry finishes the job.
	require.NoError(t, svc.Settle(ctx, "m1", &winner))
	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(190), available)
	assert.Equal(t, int64(10), ledger.HouseBalance())

	locked, err := svc.LockedEntryTotal("m1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), locked)

	// Fully paid out: any later settle is a pure duplicate, and the claimed
	// decision stands even against a different winner.
	other := "bob"
	require.ErrorIs(t, svc.Settle(ctx, "m1", &other), models.ErrAlreadySettled)
	bobAvailable, _ := ledger.GetAvailableBalance(ctx, "bob")
	assert.Equal(t, int64(0), bobAvailable)
}

func TestSettleResumesAfterPartialTransfer(t *testing.T) {
	store := NewMemoryStore()
	ledger := &flakyLedger{
		MemoryLedger: NewMemoryLedger(),
		// First hold pays out, the second hits a ledger outage.
		transferErrs: []error{nil, errors.New("wallet service unavailable")},
	}
	svc := NewEscrowService(store, ledger, EscrowConfig{FeeBps: 500})
	ledger.Credit("alice", 100)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	_, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.LockEntry(ctx, "m1", "bob", 100)
	require.NoError(t, err)

	winner := "alice"
	require.Error(t, svc.Settle(ctx, "m1", &winner))

	// The retry only drives the hold still LOCKED; the one already moved
	// keeps its share, and the fee math comes out the same.
	require.NoError(t, svc.Settle(ctx, "m1", &winner))
	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(190), available)
	assert.Equal(t, int64(10), ledger.HouseBalance())

	locked, err := svc.LockedEntryTotal("m1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), locked)
}

func TestSettleDrawRefundPolicy(t *testing.T) {
	svc, _, ledger := newEscrowRig(EscrowConfig{FeeBps: 500, Draw: DrawPolicyRefund})
	ledger.Credit("alice", 100)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	_, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.LockEntry(ctx, "m1", "bob", 100)
	require.NoError(t, err)

	require.NoError(t, svc.Settle(ctx, "m1", nil))

	// Full refund, zero fee on a refund-policy draw.
	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(100), available)
	bobAvailable, _ := ledger.GetAvailableBalance(ctx, "bob")
	assert.Equal(t, int64(100), bobAvailable)
	assert.Equal(t, int64(0), ledger.HouseBalance())
}

func TestSettleDrawSplitPolicy(t *testing.T) {
	svc, _, ledger := newEscrowRig(EscrowConfig{FeeBps: 1000, Draw: DrawPolicySplit})
	ledger.Credit("alice", 100)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	_, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.LockEntry(ctx, "m1", "bob", 100)
	require.NoError(t, err)

	require.NoError(t, svc.Settle(ctx, "m1", nil))

	// Pot 200, 10% fee = 20; each side gets stake minus half the fee.
	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(90), available)
	bobAvailable, _ := ledger.GetAvailableBalance(ctx, "bob")
	assert.Equal(t, int64(90), bobAvailable)
	assert.Equal(t, int64(20), ledger.HouseBalance())
}

func TestRefundOnlyTouchesLockedHolds(t *testing.T) {
	svc, _, ledger := newEscrowRig(EscrowConfig{FeeBps: 0})
	ledger.Credit("alice", 200)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	_, err := svc.LockEntry(ctx, "m1", "alice", 100)
	require.NoError(t, err)
	_, err = svc.LockEntry(ctx, "m1", "bob", 100)
	require.NoError(t, err)
	require.NoError(t, svc.ChargeFlatFee(ctx, "m1", "alice", 50, models.FeeTagPrivateServer))

	require.NoError(t, svc.Refund(ctx, "m1"))
	// Entry stakes come back; the consumed fee does not.
	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(150), available)
	bobAvailable, _ := ledger.GetAvailableBalance(ctx, "bob")
	assert.Equal(t, int64(100), bobAvailable)
	assert.Equal(t, int64(50), ledger.HouseBalance())

	// Refund after refund is a no-op.
	require.NoError(t, svc.Refund(ctx, "m1"))
	available, _ = ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(150), available)
}

func TestChargeFlatFeeIdempotent(t *testing.T) {
	svc, _, ledger := newEscrowRig(EscrowConfig{})
	ledger.Credit("alice", 100)
	ctx := context.Background()

	require.NoError(t, svc.ChargeFlatFee(ctx, "m1", "alice", 40, models.FeeTagPrivateServer))
	require.NoError(t, svc.ChargeFlatFee(ctx, "m1", "alice", 40, models.FeeTagPrivateServer))

	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(60), available)
	assert.Equal(t, int64(40), ledger.HouseBalance())
}

func TestChargeFlatFeeInsufficientFunds(t *testing.T) {
	svc, _, ledger := newEscrowRig(EscrowConfig{})
	ledger.Credit("alice", 10)

	err := svc.ChargeFlatFee(context.Background(), "m1", "alice", 40, models.FeeTagPrivateServer)
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
}

func TestSettleSidesAwardsBacker(t *testing.T) {
	svc, store, ledger := newEscrowRig(EscrowConfig{FeeBps: 500})
	ledger.Credit("alice", 100)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	bob := "bob"
	side := &models.SideChallenge{
		ID:         "s1",
		MatchID:    "m1",
		CreatorID:  "alice",
		PickID:     "alice",
		StakeFC:    30,
		AcceptorID: &bob,
	}
	require.NoError(t, store.CreateSide(side))
	_, err := svc.LockSideStake(ctx, "m1", "s1", "alice", 30)
	require.NoError(t, err)
	_, err = svc.LockSideStake(ctx, "m1", "s1", "bob", 30)
	require.NoError(t, err)

	winner := "alice"
	require.NoError(t, svc.SettleSides(ctx, "m1", &winner))

	// Creator backed the winner: gets both stakes, no vig on side pots.
	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(130), available)
	bobAvailable, _ := ledger.GetAvailableBalance(ctx, "bob")
	assert.Equal(t, int64(70), bobAvailable)
	assert.Equal(t, int64(0), ledger.HouseBalance())

	got, err := store.GetSide("s1")
	require.NoError(t, err)
	assert.True(t, got.Settled)

	// Settling again moves nothing.
	require.NoError(t, svc.SettleSides(ctx, "m1", &winner))
	available, _ = ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(130), available)
}

func TestSettleSidesReleasesOnDraw(t *testing.T) {
	svc, store, ledger := newEscrowRig(EscrowConfig{})
	ledger.Credit("alice", 100)
	ledger.Credit("bob", 100)
	ctx := context.Background()

	bob := "bob"
	require.NoError(t, store.CreateSide(&models.SideChallenge{
		ID: "s1", MatchID: "m1", CreatorID: "alice", PickID: "bob",
		StakeFC: 25, AcceptorID: &bob,
	}))
	_, err := svc.LockSideStake(ctx, "m1", "s1", "alice", 25)
	require.NoError(t, err)
	_, err = svc.LockSideStake(ctx, "m1", "s1", "bob", 25)
	require.NoError(t, err)

	require.NoError(t, svc.SettleSides(ctx, "m1", nil))

	available, _ := ledger.GetAvailableBalance(ctx, "alice")
	assert.Equal(t, int64(100), available)
	bobAvailable, _ := ledger.GetAvailableBalance(ctx, "bob")
	assert.Equal(t, int64(100), bobAvailable)
}

func TestSettleSidesSkipsUnaccepted(t *testing.T) {
	svc, store, ledger := newEscrowRig(EscrowConfig{})
	ledger.Credit("alice", 100)
	ctx := context.Background()

	require.NoError(t, store.CreateSide(&models.SideChallenge{
		ID: "s1", MatchID: "m1", CreatorID: "alice", PickID: "alice", StakeFC: 25,
	}))
	_, err := svc.LockSideStake(ctx, "m1", "s1", "alice", 25)
	require.NoError(t, err)

	winner := "alice"
	require.NoError(t, svc.SettleSides(ctx, "m1", &winner))

	// Unaccepted challenge is untouched; the stake stays locked for Refund.
	got, err := store.GetSide("s1")
	require.NoError(t, err)
	assert.False(t, got.Settled)
	assert.Equal(t, int64(25), ledger.LockedTotal("alice"))
}
