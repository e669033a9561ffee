package services

import (
	"errors"

	"match-wager-system/models"

	"github.com/gofiber/fiber/v2"
)

// MatchAPI exposes the lifecycle, escrow and dispute operations over HTTP.
// Identity comes from the gateway headers via the user-context middleware.
type MatchAPI struct {
	Controller *MatchController
	Disputes   *DisputeService
	Escrow     *EscrowService
	Ledger     WalletLedger
}

func NewMatchAPI(controller *MatchController, disputes *DisputeService, escrow *EscrowService, ledger WalletLedger) *MatchAPI {
	return &MatchAPI{
		Controller: controller,
		Disputes:   disputes,
		Escrow:     escrow,
		Ledger:     ledger,
	}
}

func userID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}

// statusFor maps domain errors to HTTP statuses. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrMatchNotFound),
		errors.Is(err, models.ErrDisputeNotFound),
		errors.Is(err, models.ErrSideNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInvalidStake),
		errors.Is(err, models.ErrInvalidResult):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, models.ErrNotParticipant),
		errors.Is(err, models.ErrSelfJoin):
		return fiber.StatusForbidden
	case errors.Is(err, models.ErrChecklistNotReady):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, models.ErrInvalidState),
		errors.Is(err, models.ErrMatchFull),
		errors.Is(err, models.ErrDisputeAlreadyOpen),
		errors.Is(err, models.ErrAlreadySettled),
		errors.Is(err, models.ErrTimerStale):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{"error": err.Error()})
}

type createMatchRequest struct {
	GameID          string `json:"game_id"`
	Platform        string `json:"platform"`
	Region          string `json:"region"`
	EntryFC         int64  `json:"entry_fc"`
	BestOf          int    `json:"best_of"`
	RequireStream   bool   `json:"require_stream"`
	IsPrivateServer bool   `json:"is_private_server"`
}

// CreateMatch opens a new match with the caller as host.
func (a *MatchAPI) CreateMatch(c *fiber.Ctx) error {
	var req createMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.GameID == "" || req.Platform == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "game_id and platform are required"})
	}

	m, err := a.Controller.Create(c.Context(), userID(c), req.GameID, req.Platform, req.EntryFC, CreateOptions{
		BestOf:          req.BestOf,
		Region:          req.Region,
		RequireStream:   req.RequireStream,
		IsPrivateServer: req.IsPrivateServer,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// ListOpenMatches returns the PENDING lobby list.
func (a *MatchAPI) ListOpenMatches(c *fiber.Ctx) error {
	matches, err := a.Controller.ListOpenMatches()
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"matches": matches})
}

// ListMyMatches returns the caller's matches.
func (a *MatchAPI) ListMyMatches(c *fiber.Ctx) error {
	matches, err := a.Controller.ListUserMatches(userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"matches": matches})
}

// GetMatch returns one match.
func (a *MatchAPI) GetMatch(c *fiber.Ctx) error {
	m, err := a.Controller.GetMatch(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(m)
}

// GetChecklist returns the match's gating checklist.
func (a *MatchAPI) GetChecklist(c *fiber.Ctx) error {
	entries, err := a.Controller.GetChecklist(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"checklist": entries})
}

// GetMatchEvents returns the transition audit trail.
func (a *MatchAPI) GetMatchEvents(c *fiber.Ctx) error {
	events, err := a.Controller.ListMatchEvents(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

// JoinMatch locks the caller in as opponent.
func (a *MatchAPI) JoinMatch(c *fiber.Ctx) error {
	m, err := a.Controller.Join(c.Context(), c.Params("id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(m)
}

// MarkReady records the caller's ready flag.
func (a *MatchAPI) MarkReady(c *fiber.Ctx) error {
	m, err := a.Controller.MarkReady(c.Params("id"), userID(c))
	if err != nil {
		if errors.Is(err, models.ErrChecklistNotReady) {
			return c.Status(fiber.StatusPreconditionFailed).JSON(fiber.Map{
				"match": m,
				"error": "checklist not satisfied",
			})
		}
		return fail(c, err)
	}
	return c.JSON(m)
}

type reportResultRequest struct {
	Result models.MatchResult `json:"result"`
	Score  int                `json:"score"`
}

// ReportResult records the caller's self-reported outcome.
func (a *MatchAPI) ReportResult(c *fiber.Ctx) error {
	var req reportResultRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	m, err := a.Controller.ReportResult(c.Context(), c.Params("id"), userID(c), req.Result, req.Score)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(m)
}

// Forfeit concedes the match to the opponent.
func (a *MatchAPI) Forfeit(c *fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.BodyParser(&req)
	m, err := a.Controller.Forfeit(c.Context(), c.Params("id"), userID(c), req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(m)
}

// OpenDispute contests an active match.
func (a *MatchAPI) OpenDispute(c *fiber.Ctx) error {
	var req struct {
		Reason string `json:"reason"`
		Notes  string `json:"notes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Reason == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
	}
	d, err := a.Controller.OpenDispute(c.Params("id"), userID(c), req.Reason, req.Notes)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// GetDispute returns the match's open dispute.
func (a *MatchAPI) GetDispute(c *fiber.Ctx) error {
	d, err := a.Disputes.OpenForMatch(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(d)
}

// ResolveDispute applies an admin decision: a participant's user id awards
// the pot, "REFUND" returns both stakes.
func (a *MatchAPI) ResolveDispute(c *fiber.Ctx) error {
	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Resolution == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "resolution is required"})
	}
	d, err := a.Disputes.Resolve(c.Context(), c.Params("id"), req.Resolution, userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(d)
}

// LinkStream binds the caller's channel to the match.
func (a *MatchAPI) LinkStream(c *fiber.Ctx) error {
	var req struct {
		Provider  models.StreamProvider `json:"provider"`
		ChannelID string                `json:"channel_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Provider == "" || req.ChannelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "provider and channel_id are required"})
	}
	if err := a.Controller.LinkStream(c.Params("id"), userID(c), req.Provider, req.ChannelID); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RunStreamChecks triggers an immediate verification pass instead of waiting
// for the next poll tick.
func (a *MatchAPI) RunStreamChecks(c *fiber.Ctx) error {
	if err := a.Controller.CheckStreams(c.Context(), c.Params("id")); err != nil {
		return fail(c, err)
	}
	entries, err := a.Controller.GetChecklist(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"checklist": entries})
}

// PayPrivateServerFee charges the caller's lobby fee up front.
func (a *MatchAPI) PayPrivateServerFee(c *fiber.Ctx) error {
	if err := a.Controller.PayPrivateServerFee(c.Context(), c.Params("id"), userID(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type createSideRequest struct {
	PickID  string `json:"pick_id"`
	StakeFC int64  `json:"stake_fc"`
}

// CreateSideChallenge opens a prop wager on a private-server match.
func (a *MatchAPI) CreateSideChallenge(c *fiber.Ctx) error {
	var req createSideRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	side, err := a.Controller.CreateSideChallenge(c.Context(), c.Params("id"), userID(c), req.PickID, req.StakeFC)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(side)
}

// AcceptSideChallenge takes the other side of an open challenge.
func (a *MatchAPI) AcceptSideChallenge(c *fiber.Ctx) error {
	side, err := a.Controller.AcceptSideChallenge(c.Context(), c.Params("id"), c.Params("side_id"), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(side)
}

// ListSideChallenges lists the match's side challenges.
func (a *MatchAPI) ListSideChallenges(c *fiber.Ctx) error {
	sides, err := a.Controller.ListSideChallenges(c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"sides": sides})
}

// GetBalance is the stake preflight: the client checks the caller can cover
// an entry before showing the join button.
func (a *MatchAPI) GetBalance(c *fiber.Ctx) error {
	available, err := a.Ledger.GetAvailableBalance(c.Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"available": available})
}
