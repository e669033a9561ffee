package handlers

import (
	"match-wager-system/middleware"
	"match-wager-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMatchRoutes(app *fiber.App, api *services.MatchAPI) {
	// 🔓 Public routes — lobby browsing only, **still behind Gateway auth**
	app.Get("/matches", api.ListOpenMatches)
	app.Get("/matches/:id", api.GetMatch)
	app.Get("/matches/:id/checklist", api.GetChecklist)
	app.Get("/matches/:id/events", api.GetMatchEvents)
	app.Get("/matches/:id/sides", api.ListSideChallenges)

	// 🔐 Secured routes — require user context (userID, roles) from Gateway
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/me/matches", api.ListMyMatches)
	secured.Get("/me/balance", api.GetBalance)

	secured.Post("/matches", api.CreateMatch)
	secured.Post("/matches/:id/join", api.JoinMatch)
	secured.Post("/matches/:id/ready", api.MarkReady)
	secured.Post("/matches/:id/report", api.ReportResult)
	secured.Post("/matches/:id/forfeit", api.Forfeit)

	// Stream verification
	secured.Post("/matches/:id/streams", api.LinkStream)
	secured.Post("/matches/:id/streams/check", api.RunStreamChecks)

	// Private-server lobby fee
	secured.Post("/matches/:id/fee", api.PayPrivateServerFee)

	// Side challenges
	secured.Post("/matches/:id/sides", api.CreateSideChallenge)
	secured.Post("/matches/:id/sides/:side_id/accept", api.AcceptSideChallenge)

	// Disputes
	secured.Post("/matches/:id/dispute", api.OpenDispute)
	secured.Get("/matches/:id/dispute", api.GetDispute)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireAdmin())
	admin.Post("/disputes/:id/resolve", api.ResolveDispute)
}
