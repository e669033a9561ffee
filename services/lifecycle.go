package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"match-wager-system/models"

	"github.com/google/uuid"
)

// Cancel / complete reasons persisted for audit.
const (
	ReasonReadyTimeout   = "READY_TIMEOUT"
	ReasonResultAgreed   = "RESULT_AGREED"
	ReasonForfeit        = "FORFEIT"
	ReasonDisputeRefund  = "DISPUTE_REFUND"
	ReasonDisputeAwarded = "DISPUTE_AWARDED"
	ReasonFeeUnpaid      = "PRIVATE_SERVER_FEE_UNPAID"
)

// LifecycleConfig holds the time windows and fees driving automatic
// transitions.
type LifecycleConfig struct {
	ReadyCheckWindow   time.Duration
	Countdown          time.Duration
	DisputeSLA         time.Duration // 0 disables the operator page timer
	PrivateServerFeeFC int64
}

// CreateOptions are the optional knobs on match creation.
type CreateOptions struct {
	BestOf          int
	Region          string
	RequireStream   bool
	IsPrivateServer bool
}

// matchEntry is one slot in the controller's arena. Its mutex serializes
// every transition for the match: exactly one in-flight validate-then-mutate
// per match id, while different matches proceed in parallel.
type matchEntry struct {
	mu    sync.Mutex
	match *models.Match
}

// MatchController owns the canonical state of every match. It is the sole
// writer of Match.state; escrow, timers, checklist and disputes are driven
// from inside the per-match serialized section.
type MatchController struct {
	store     Store
	escrow    *EscrowService
	timers    *TimerScheduler
	checklist *ChecklistService
	disputes  *DisputeService
	verifiers *VerifierRegistry
	bus       *EventBus
	cfg       LifecycleConfig

	mu    sync.Mutex
	arena map[string]*matchEntry
}

func NewMatchController(
	store Store,
	escrow *EscrowService,
	timers *TimerScheduler,
	checklist *ChecklistService,
	disputes *DisputeService,
	verifiers *VerifierRegistry,
	bus *EventBus,
	cfg LifecycleConfig,
) *MatchController {
	c := &MatchController{
		store:     store,
		escrow:    escrow,
		timers:    timers,
		checklist: checklist,
		disputes:  disputes,
		verifiers: verifiers,
		bus:       bus,
		cfg:       cfg,
		arena:     make(map[string]*matchEntry),
	}
	checklist.SetOnPass(c.onChecklistPass)
	disputes.SetFinalizer(c)
	return c
}

// entryFor returns the arena slot for a match, loading it from the store on
// first touch (restart recovery).
func (c *MatchController) entryFor(matchID string) (*matchEntry, error) {
	c.mu.Lock()
	if e, ok := c.arena[matchID]; ok {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	m, err := c.store.GetMatch(matchID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.arena[matchID]; ok {
		return e, nil
	}
	e := &matchEntry{match: m}
	c.arena[matchID] = e
	return e, nil
}

// transition moves the match to a new state, persisting and emitting the
// event. The caller holds the entry mutex. A persist failure rolls the
// in-memory state back so state and store never diverge.
func (c *MatchController) transition(m *models.Match, to models.MatchState, reason, actorID string) error {
	from := m.State
	m.State = to
	if err := c.store.SaveMatch(m); err != nil {
		m.State = from
		return err
	}

	now := time.Now()
	if err := c.store.AppendMatchEvent(&models.MatchEvent{
		MatchID:   m.ID,
		FromState: from,
		ToState:   to,
		Reason:    reason,
		ActorID:   actorID,
		CreatedAt: now,
	}); err != nil {
		log.Printf("[LIFECYCLE] Failed to append event for %s: %v", m.ID, err)
	}
	c.bus.Publish(TransitionEvent{
		MatchID:   m.ID,
		FromState: from,
		ToState:   to,
		Reason:    reason,
		Timestamp: now,
	})
	return nil
}

// Create opens a new match in PENDING with the host's entry stake locked.
func (c *MatchController) Create(ctx context.Context, hostID, gameID, platform string, entryFC int64, opts CreateOptions) (*models.Match, error) {
	if entryFC <= 0 {
		return nil, models.ErrInvalidStake
	}

	matchID := uuid.NewString()
	if _, err := c.escrow.LockEntry(ctx, matchID, hostID, entryFC); err != nil {
		return nil, err
	}

	bestOf := opts.BestOf
	if bestOf <= 0 {
		bestOf = 1
	}
	m := &models.Match{
		ID:              matchID,
		HostID:          hostID,
		GameID:          gameID,
		Platform:        platform,
		Region:          opts.Region,
		BestOf:          bestOf,
		EntryFC:         entryFC,
		RequireStream:   opts.RequireStream,
		IsPrivateServer: opts.IsPrivateServer,
		State:           models.MatchStatePending,
	}
	if err := c.store.CreateMatch(m); err != nil {
		// Creation failed after the lock: give the stake back.
		if rerr := c.escrow.ReleaseHold(ctx, matchID, hostID, "entry"); rerr != nil {
			log.Printf("[LIFECYCLE] Failed to release host hold after create error: %v", rerr)
		}
		return nil, err
	}

	c.mu.Lock()
	c.arena[matchID] = &matchEntry{match: m}
	c.mu.Unlock()

	return c.snapshot(m), nil
}

// Join locks the opponent's stake, initialises the checklist for the
// match's mode, and starts the ready-check window.
func (c *MatchController) Join(ctx context.Context, matchID, userID string) (*models.Match, error) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if m.State != models.MatchStatePending {
		return nil, models.ErrInvalidState
	}
	if userID == m.HostID {
		return nil, models.ErrSelfJoin
	}
	if m.OppID != nil {
		return nil, models.ErrMatchFull
	}

	if _, err := c.escrow.LockEntry(ctx, matchID, userID, m.EntryFC); err != nil {
		return nil, err
	}

	opp := userID
	m.OppID = &opp
	if err := c.transition(m, models.MatchStateReadyCheck, "", userID); err != nil {
		m.OppID = nil
		if rerr := c.escrow.ReleaseHold(ctx, matchID, userID, "entry"); rerr != nil {
			log.Printf("[LIFECYCLE] Failed to release opp hold after join error: %v", rerr)
		}
		return nil, err
	}

	if err := c.checklist.InitForMatch(m); err != nil {
		log.Printf("[LIFECYCLE] Failed to init checklist for %s: %v", matchID, err)
	}

	c.timers.Schedule(matchID, TimerReadyCheck, c.cfg.ReadyCheckWindow, func() {
		c.onReadyCheckTimeout(matchID)
	})

	return c.snapshot(m), nil
}

// MarkReady records a participant's readiness. Idempotent per user. When
// both players are ready and every required checklist key is PASS, the
// match advances READY_CHECK -> READY -> COUNTDOWN in one serialized step.
// Returns models.ErrChecklistNotReady (with the readiness persisted) when
// gating is not yet satisfied.
func (c *MatchController) MarkReady(matchID, userID string) (*models.Match, error) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if m.State != models.MatchStateReadyCheck {
		return nil, models.ErrInvalidState
	}
	if !m.IsParticipant(userID) {
		return nil, models.ErrNotParticipant
	}

	switch userID {
	case m.HostID:
		m.HostReady = true
	default:
		m.OppReady = true
	}
	if err := c.store.SaveMatch(m); err != nil {
		return nil, err
	}

	if !m.HostReady || !m.OppReady {
		return c.snapshot(m), nil
	}

	pass, err := c.checklist.AllRequiredPass(m)
	if err != nil {
		return nil, err
	}
	if !pass {
		return c.snapshot(m), models.ErrChecklistNotReady
	}

	if err := c.advanceToCountdown(m, userID); err != nil {
		return nil, err
	}
	return c.snapshot(m), nil
}

// advanceToCountdown runs the READY_CHECK -> READY -> COUNTDOWN sequence.
// Caller holds the entry mutex and has verified readiness + checklist.
func (c *MatchController) advanceToCountdown(m *models.Match, actorID string) error {
	c.timers.Cancel(m.ID, TimerReadyCheck)
	c.checklist.Forget(m.ID)

	if err := c.transition(m, models.MatchStateReady, "", actorID); err != nil {
		return err
	}
	if err := c.transition(m, models.MatchStateCountdown, "", ""); err != nil {
		return err
	}
	matchID := m.ID
	c.timers.Schedule(matchID, TimerCountdown, c.cfg.Countdown, func() {
		c.onCountdownElapsed(matchID)
	})
	return nil
}

// onChecklistPass re-evaluates gating whenever a checklist key flips to
// PASS. Both players may already be ready and only waiting on the gate.
func (c *MatchController) onChecklistPass(matchID string) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if m.State != models.MatchStateReadyCheck || !m.HostReady || !m.OppReady {
		return
	}
	pass, err := c.checklist.AllRequiredPass(m)
	if err != nil || !pass {
		return
	}
	if err := c.advanceToCountdown(m, ""); err != nil {
		log.Printf("[LIFECYCLE] Failed to advance %s after checklist pass: %v", matchID, err)
	}
}

// onReadyCheckTimeout fires when the ready-check window elapses. A stale
// fire (the match already advanced) is a no-op.
func (c *MatchController) onReadyCheckTimeout(matchID string) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if m.State != models.MatchStateReadyCheck {
		log.Printf("[TIMER] Stale ready-check timeout for %s in %s", matchID, m.State)
		return
	}

	ctx := context.Background()
	if err := c.escrow.SettleSides(ctx, matchID, nil); err != nil {
		log.Printf("[LIFECYCLE] Failed to release sides for %s: %v", matchID, err)
	}
	if err := c.escrow.Refund(ctx, matchID); err != nil {
		// Ledger trouble: keep the match open and retry shortly rather than
		// leaving funds ambiguous.
		log.Printf("[LIFECYCLE] Refund failed for %s, retrying: %v", matchID, err)
		c.timers.Schedule(matchID, TimerReadyCheck, 5*time.Second, func() {
			c.onReadyCheckTimeout(matchID)
		})
		return
	}
	m.Reason = ReasonReadyTimeout
	if err := c.transition(m, models.MatchStateCancelled, ReasonReadyTimeout, ""); err != nil {
		log.Printf("[LIFECYCLE] Failed to cancel %s after ready timeout: %v", matchID, err)
	}
	c.checklist.Forget(matchID)
}

// onCountdownElapsed moves COUNTDOWN -> ACTIVE. For private-server matches
// the flat per-player usage fee is charged at this exact boundary and is
// never refunded afterwards.
func (c *MatchController) onCountdownElapsed(matchID string) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if m.State != models.MatchStateCountdown {
		log.Printf("[TIMER] Stale countdown for %s in %s", matchID, m.State)
		return
	}

	ctx := context.Background()
	if m.IsPrivateServer && c.cfg.PrivateServerFeeFC > 0 {
		for _, uid := range m.Participants() {
			err := c.escrow.ChargeFlatFee(ctx, matchID, uid, c.cfg.PrivateServerFeeFC, models.FeeTagPrivateServer)
			if errors.Is(err, models.ErrInsufficientFunds) {
				// A player who cannot cover the usage fee scrubs the match;
				// entry stakes go back, any fee already taken stays taken.
				log.Printf("[LIFECYCLE] %s cannot pay private-server fee for %s, cancelling", uid, matchID)
				if rerr := c.escrow.SettleSides(ctx, matchID, nil); rerr != nil {
					log.Printf("[LIFECYCLE] Failed to release sides for %s: %v", matchID, rerr)
				}
				if rerr := c.escrow.Refund(ctx, matchID); rerr != nil {
					log.Printf("[LIFECYCLE] Refund failed for %s: %v", matchID, rerr)
				}
				m.Reason = ReasonFeeUnpaid
				if terr := c.transition(m, models.MatchStateCancelled, ReasonFeeUnpaid, ""); terr != nil {
					log.Printf("[LIFECYCLE] Failed to cancel %s: %v", matchID, terr)
				}
				return
			}
			if err != nil {
				log.Printf("[LIFECYCLE] Fee charge failed for %s, retrying countdown: %v", matchID, err)
				c.timers.Schedule(matchID, TimerCountdown, 5*time.Second, func() {
					c.onCountdownElapsed(matchID)
				})
				return
			}
		}
	}

	now := time.Now()
	m.StartAt = &now
	if err := c.transition(m, models.MatchStateActive, "", ""); err != nil {
		log.Printf("[LIFECYCLE] Failed to activate %s: %v", matchID, err)
	}
}

// ReportResult records one participant's self-reported outcome. A repeat
// report from the same user overwrites their own pending report only. Once
// both reports are present the match either completes (agreement) or opens
// a dispute (conflict).
func (c *MatchController) ReportResult(ctx context.Context, matchID, userID string, result models.MatchResult, score int) (*models.Match, error) {
	switch result {
	case models.ResultWin, models.ResultLoss, models.ResultDraw:
	default:
		return nil, models.ErrInvalidResult
	}

	e, err := c.entryFor(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if m.State != models.MatchStateActive {
		return nil, models.ErrInvalidState
	}
	if !m.IsParticipant(userID) {
		return nil, models.ErrNotParticipant
	}

	r := result
	if userID == m.HostID {
		m.HostResult = &r
		m.HostScore = score
	} else {
		m.OppResult = &r
		m.OppScore = score
	}
	if err := c.store.SaveMatch(m); err != nil {
		return nil, err
	}

	if m.HostResult == nil || m.OppResult == nil {
		return c.snapshot(m), nil
	}

	if models.ResultsAgree(*m.HostResult, *m.OppResult) {
		var winnerID *string
		if *m.HostResult == models.ResultWin {
			w := m.HostID
			winnerID = &w
		} else if *m.OppResult == models.ResultWin {
			w := *m.OppID
			winnerID = &w
		}
		if err := c.complete(ctx, m, winnerID, ReasonResultAgreed, userID); err != nil {
			return nil, err
		}
		return c.snapshot(m), nil
	}

	// Conflicting reports: freeze the match behind a dispute.
	if _, err := c.disputes.Open(matchID, userID, "conflicting self-reported results", ""); err != nil && !errors.Is(err, models.ErrDisputeAlreadyOpen) {
		return nil, err
	}
	if err := c.transition(m, models.MatchStateDisputed, "result conflict", userID); err != nil {
		return nil, err
	}
	c.scheduleDisputeSLA(matchID)
	return c.snapshot(m), nil
}

// Forfeit concedes the match to the other participant. Legal from
// READY_CHECK through ACTIVE; the full pot minus fee goes to the opponent.
func (c *MatchController) Forfeit(ctx context.Context, matchID, userID, reason string) (*models.Match, error) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	switch m.State {
	case models.MatchStateReadyCheck, models.MatchStateReady,
		models.MatchStateCountdown, models.MatchStateActive:
	default:
		return nil, models.ErrInvalidState
	}
	if !m.IsParticipant(userID) {
		return nil, models.ErrNotParticipant
	}

	winner := m.Opponent(userID)
	if reason == "" {
		reason = ReasonForfeit
	}

	c.timers.Cancel(matchID, TimerReadyCheck)
	c.timers.Cancel(matchID, TimerCountdown)
	c.checklist.Forget(matchID)

	if err := c.complete(ctx, m, &winner, reason, userID); err != nil {
		return nil, err
	}
	return c.snapshot(m), nil
}

// OpenDispute lets a participant contest an ACTIVE match directly.
func (c *MatchController) OpenDispute(matchID, userID, reason, notes string) (*models.Dispute, error) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if m.State != models.MatchStateActive {
		return nil, models.ErrInvalidState
	}
	if !m.IsParticipant(userID) {
		return nil, models.ErrNotParticipant
	}

	d, err := c.disputes.Open(matchID, userID, reason, notes)
	if err != nil {
		return nil, err
	}
	if err := c.transition(m, models.MatchStateDisputed, reason, userID); err != nil {
		return nil, err
	}
	c.scheduleDisputeSLA(matchID)
	return d, nil
}

// FinalizeDispute re-enters the lifecycle from the dispute resolver:
// winnerID names the awarded participant, nil refunds both entry stakes.
// Fees already consumed (private-server usage) are not returned.
func (c *MatchController) FinalizeDispute(ctx context.Context, matchID string, winnerID *string, resolvedBy string) error {
	e, err := c.entryFor(matchID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if m.State != models.MatchStateDisputed {
		return models.ErrInvalidState
	}
	if winnerID != nil && !m.IsParticipant(*winnerID) {
		return models.ErrNotParticipant
	}

	c.timers.Cancel(matchID, TimerDisputeSLA)

	if winnerID != nil {
		return c.complete(ctx, m, winnerID, ReasonDisputeAwarded, resolvedBy)
	}

	if err := c.escrow.SettleSides(ctx, matchID, nil); err != nil {
		return err
	}
	if err := c.escrow.Refund(ctx, matchID); err != nil {
		return err
	}
	m.Reason = ReasonDisputeRefund
	return c.transition(m, models.MatchStateCancelled, ReasonDisputeRefund, resolvedBy)
}

// complete settles the pot (and side challenges) and moves the match to
// COMPLETE. Settlement happens before the state write: a ledger failure
// leaves the match in its prior state. A duplicate settle is success.
func (c *MatchController) complete(ctx context.Context, m *models.Match, winnerID *string, reason, actorID string) error {
	if err := AsSettledSuccess(c.escrow.Settle(ctx, m.ID, winnerID)); err != nil {
		return err
	}
	if err := c.escrow.SettleSides(ctx, m.ID, winnerID); err != nil {
		log.Printf("[LIFECYCLE] Side settlement failed for %s: %v", m.ID, err)
	}

	now := time.Now()
	m.WinnerID = winnerID
	m.CompleteAt = &now
	m.Reason = reason
	return c.transition(m, models.MatchStateComplete, reason, actorID)
}

func (c *MatchController) scheduleDisputeSLA(matchID string) {
	if c.cfg.DisputeSLA <= 0 {
		return
	}
	// The SLA timer only pages operators through the event bus; it never
	// finalizes funds.
	c.timers.Schedule(matchID, TimerDisputeSLA, c.cfg.DisputeSLA, func() {
		log.Printf("[LIFECYCLE] Dispute SLA elapsed for %s", matchID)
		c.bus.Publish(TransitionEvent{
			MatchID:   matchID,
			FromState: models.MatchStateDisputed,
			ToState:   models.MatchStateDisputed,
			Reason:    "dispute SLA elapsed",
			Timestamp: time.Now(),
		})
	})
}

// CreateSideChallenge opens a prop wager on a private-server match before it
// goes live, locking the creator's stake.
func (c *MatchController) CreateSideChallenge(ctx context.Context, matchID, creatorID, pickID string, stakeFC int64) (*models.SideChallenge, error) {
	if stakeFC < models.MinSideStakeFC {
		return nil, models.ErrInvalidStake
	}

	e, err := c.entryFor(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if !m.IsPrivateServer {
		return nil, models.ErrInvalidState
	}
	switch m.State {
	case models.MatchStateReadyCheck, models.MatchStateReady, models.MatchStateCountdown:
	default:
		return nil, models.ErrInvalidState
	}
	if !m.IsParticipant(creatorID) || !m.IsParticipant(pickID) {
		return nil, models.ErrNotParticipant
	}

	side := &models.SideChallenge{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		CreatorID: creatorID,
		PickID:    pickID,
		StakeFC:   stakeFC,
	}
	if _, err := c.escrow.LockSideStake(ctx, matchID, side.ID, creatorID, stakeFC); err != nil {
		return nil, err
	}
	if err := c.store.CreateSide(side); err != nil {
		if rerr := c.escrow.ReleaseHold(ctx, matchID, creatorID, "side:"+side.ID); rerr != nil {
			log.Printf("[LIFECYCLE] Failed to release side hold: %v", rerr)
		}
		return nil, err
	}
	return side, nil
}

// AcceptSideChallenge takes the opposite side of an open challenge.
func (c *MatchController) AcceptSideChallenge(ctx context.Context, matchID, sideID, userID string) (*models.SideChallenge, error) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	switch m.State {
	case models.MatchStateReadyCheck, models.MatchStateReady, models.MatchStateCountdown:
	default:
		return nil, models.ErrInvalidState
	}
	if !m.IsParticipant(userID) {
		return nil, models.ErrNotParticipant
	}

	side, err := c.store.GetSide(sideID)
	if err != nil {
		return nil, err
	}
	if side.MatchID != matchID || side.CreatorID == userID || side.Accepted() {
		return nil, models.ErrInvalidState
	}

	if _, err := c.escrow.LockSideStake(ctx, matchID, sideID, userID, side.StakeFC); err != nil {
		return nil, err
	}
	side.AcceptorID = &userID
	if err := c.store.SaveSide(side); err != nil {
		return nil, err
	}
	return side, nil
}

// LinkStream binds a participant's channel to the match. Once both sides
// are linked the streamsLinked key passes.
func (c *MatchController) LinkStream(matchID, userID string, provider models.StreamProvider, channelID string) error {
	e, err := c.entryFor(matchID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if !m.IsParticipant(userID) {
		return models.ErrNotParticipant
	}
	switch m.State {
	case models.MatchStatePending, models.MatchStateReadyCheck:
	default:
		return models.ErrInvalidState
	}

	if err := c.store.SaveStreamLink(&models.StreamLink{
		ID:        uuid.NewString(),
		MatchID:   matchID,
		UserID:    userID,
		Provider:  provider,
		ChannelID: channelID,
	}); err != nil {
		return err
	}

	links, err := c.store.ListStreamLinks(matchID)
	if err != nil {
		return err
	}
	if m.RequireStream && len(links) >= len(m.Participants()) && m.OppID != nil {
		return c.checklist.SetResult(matchID, models.ChecklistStreamsLinked, models.ChecklistPass)
	}
	return nil
}

// CheckStreams runs a verification pass over both linked channels and feeds
// the results to the checklist gate. Probe errors are logged and retried on
// the next poll; they never fail a match by themselves.
func (c *MatchController) CheckStreams(ctx context.Context, matchID string) error {
	m, err := c.GetMatch(matchID)
	if err != nil {
		return err
	}
	if !m.RequireStream || m.State != models.MatchStateReadyCheck {
		return models.ErrInvalidState
	}

	links, err := c.store.ListStreamLinks(matchID)
	if err != nil {
		return err
	}
	for _, link := range links {
		verifier, ok := c.verifiers.Get(link.Provider)
		if !ok {
			log.Printf("[STREAMS] No verifier for provider %s", link.Provider)
			continue
		}
		check, err := verifier.CheckChannel(ctx, link.ChannelID, matchID)
		if err != nil {
			log.Printf("[STREAMS] Probe failed for %s/%s: %v", link.Provider, link.ChannelID, err)
			continue
		}
		side := 1
		if link.UserID != m.HostID {
			side = 2
		}
		c.checklist.ApplyStreamChecks(matchID, side, check)
	}
	return nil
}

// PayPrivateServerFee charges the caller's flat lobby fee up front. The
// checklist key passes once every participant has paid. Paying here makes the
// countdown-boundary charge a replay no-op for that player.
func (c *MatchController) PayPrivateServerFee(ctx context.Context, matchID, userID string) error {
	e, err := c.entryFor(matchID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.match

	if !m.IsPrivateServer {
		return models.ErrInvalidState
	}
	if m.State != models.MatchStateReadyCheck {
		return models.ErrInvalidState
	}
	if !m.IsParticipant(userID) {
		return models.ErrNotParticipant
	}

	if err := c.escrow.ChargeFlatFee(ctx, matchID, userID, c.cfg.PrivateServerFeeFC, models.FeeTagPrivateServer); err != nil {
		return err
	}

	for _, uid := range m.Participants() {
		paid, err := c.store.HasFeeCharge(matchID, uid, models.FeeTagPrivateServer)
		if err != nil {
			return err
		}
		if !paid {
			return nil
		}
	}
	return c.checklist.SetResult(matchID, models.ChecklistPrivateServerFeePaid, models.ChecklistPass)
}

// snapshot copies the match so callers never alias controller-owned state.
func (c *MatchController) snapshot(m *models.Match) *models.Match {
	cp := *m
	return &cp
}

// GetMatch returns the live copy of the match.
func (c *MatchController) GetMatch(matchID string) (*models.Match, error) {
	e, err := c.entryFor(matchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.snapshot(e.match), nil
}

// GetChecklist returns the match's checklist entries.
func (c *MatchController) GetChecklist(matchID string) ([]*models.ChecklistEntry, error) {
	return c.checklist.Get(matchID)
}

// ListOpenMatches lists PENDING matches for the lobby view.
func (c *MatchController) ListOpenMatches() ([]*models.Match, error) {
	return c.store.ListMatchesByState(models.MatchStatePending)
}

// ListUserMatches lists matches the user participates in.
func (c *MatchController) ListUserMatches(userID string) ([]*models.Match, error) {
	return c.store.ListMatchesByUser(userID)
}

// ListReadyCheckStreamMatches returns the stream-verified matches currently
// gated in READY_CHECK; the stream poll worker probes these.
func (c *MatchController) ListReadyCheckStreamMatches() ([]*models.Match, error) {
	matches, err := c.store.ListMatchesByState(models.MatchStateReadyCheck)
	if err != nil {
		return nil, err
	}
	var out []*models.Match
	for _, m := range matches {
		if m.RequireStream {
			out = append(out, m)
		}
	}
	return out, nil
}

// stateEnteredAt returns when the match entered its current state, taken
// from the audit trail; UpdatedAt is the fallback for a trail gap.
func (c *MatchController) stateEnteredAt(m *models.Match) time.Time {
	events, err := c.store.ListMatchEvents(m.ID)
	if err == nil {
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].ToState == m.State {
				return events[i].CreatedAt
			}
		}
	}
	return m.UpdatedAt
}

// ReconcileTimers re-arms the time-driven transitions for every match
// sitting in a timed state without a live timer — after a restart the arena
// is empty and nothing else would ever fire the timeout. A window that
// lapsed while the process was down fires immediately; the handlers'
// stale-state checks make a double arm harmless.
func (c *MatchController) ReconcileTimers() {
	c.reconcileState(models.MatchStateReadyCheck, TimerReadyCheck, c.cfg.ReadyCheckWindow, c.onReadyCheckTimeout)
	c.reconcileState(models.MatchStateCountdown, TimerCountdown, c.cfg.Countdown, c.onCountdownElapsed)
}

func (c *MatchController) reconcileState(state models.MatchState, purpose TimerPurpose, window time.Duration, fire func(string)) {
	matches, err := c.store.ListMatchesByState(state)
	if err != nil {
		log.Printf("[LIFECYCLE] Reconcile list failed for %s: %v", state, err)
		return
	}
	for _, m := range matches {
		if c.timers.Armed(m.ID, purpose) {
			continue
		}
		remaining := window - time.Since(c.stateEnteredAt(m))
		if remaining <= 0 {
			remaining = time.Millisecond
		}
		matchID := m.ID
		log.Printf("[LIFECYCLE] Re-arming %s timer for %s (fires in %s)", purpose, matchID, remaining)
		c.timers.Schedule(matchID, purpose, remaining, func() { fire(matchID) })
	}
}

// SweepArena drops terminal matches from the in-memory arena so it tracks
// only live matches; a terminal match reloads from the store on demand.
// Returns the number of entries removed.
func (c *MatchController) SweepArena() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.arena {
		e.mu.Lock()
		terminal := e.match.IsTerminal()
		e.mu.Unlock()
		if terminal {
			delete(c.arena, id)
			removed++
		}
	}
	return removed
}

// ListSideChallenges lists the match's side challenges.
func (c *MatchController) ListSideChallenges(matchID string) ([]*models.SideChallenge, error) {
	return c.store.ListSidesByMatch(matchID)
}

// ListMatchEvents returns the match's transition audit trail.
func (c *MatchController) ListMatchEvents(matchID string) ([]*models.MatchEvent, error) {
	return c.store.ListMatchEvents(matchID)
}
