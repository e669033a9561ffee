package models

import "errors"

// Domain error taxonomy. Handlers map these to HTTP statuses; nothing below
// leaks wallet-ledger internals to callers.
var (
	// ErrInvalidState — the requested transition is illegal for the match's
	// current state. Guaranteed side-effect free.
	ErrInvalidState = errors.New("invalid state for this operation")

	// ErrInsufficientFunds — the escrow lock failed; no state was changed.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotParticipant — the caller is neither host nor opponent.
	ErrNotParticipant = errors.New("caller is not a match participant")

	// ErrAlreadySettled — duplicate settlement attempt. Treated as success
	// by callers; the original settlement stands.
	ErrAlreadySettled = errors.New("match already settled")

	// ErrChecklistNotReady — markReady was recorded but the required
	// checklist is not all-PASS yet; the match stays in READY_CHECK.
	ErrChecklistNotReady = errors.New("checklist not ready")

	// ErrTimerStale — a fired timer no longer matches the match's state.
	// Internal; silently ignored.
	ErrTimerStale = errors.New("stale timer")

	// ErrDisputeAlreadyOpen — one open dispute per match.
	ErrDisputeAlreadyOpen = errors.New("dispute already open for this match")

	// ErrMatchFull — the match already has an opponent.
	ErrMatchFull = errors.New("match already has an opponent")

	// ErrSelfJoin — the host cannot join their own match.
	ErrSelfJoin = errors.New("cannot join your own match")

	ErrMatchNotFound   = errors.New("match not found")
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrSideNotFound    = errors.New("side challenge not found")
	ErrInvalidStake    = errors.New("invalid stake amount")

	// ErrInvalidResult — the reported result is not WIN/LOSS/DRAW. A request
	// problem, not a state conflict.
	ErrInvalidResult = errors.New("invalid result value")
)
