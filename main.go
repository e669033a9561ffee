package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"match-wager-system/handlers"
	"match-wager-system/middleware"
	"match-wager-system/models"
	"match-wager-system/services"
	"match-wager-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func envInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("⚠️  Invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func envSeconds(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("⚠️  Invalid %s=%q, using default %s", key, v, def)
		return def
	}
	return time.Duration(n) * time.Second
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Match{},
		&models.EscrowHold{},
		&models.MatchSettlement{},
		&models.FeeCharge{},
		&models.ChecklistEntry{},
		&models.Dispute{},
		&models.SideChallenge{},
		&models.StreamLink{},
		&models.MatchEvent{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	store := services.NewGormStore(db)

	// Wallet ledger: the platform wallet service in production, in-process
	// ledger for local runs without one.
	var ledger services.WalletLedger
	walletURL := os.Getenv("WALLET_SERVICE_URL")
	walletToken := os.Getenv("WALLET_SERVICE_TOKEN")
	if walletURL != "" {
		if walletToken == "" {
			log.Fatal("WALLET_SERVICE_TOKEN environment variable not set")
		}
		ledger = services.NewWalletClient(walletURL, walletToken)
	} else {
		log.Println("⚠️  WALLET_SERVICE_URL not set — using in-memory ledger (dev only)")
		ledger = services.NewMemoryLedger()
	}

	privateServerFeeFC := envInt64("PRIVATE_SERVER_FEE_FC", 100)

	escrow := services.NewEscrowService(store, ledger, services.EscrowConfig{
		FeeBps:             envInt64("FEE_BPS", 500),
		Draw:               services.DrawPolicy(os.Getenv("DRAW_POLICY")),
		PrivateServerFeeFC: privateServerFeeFC,
	})

	timers, err := services.NewTimerScheduler()
	if err != nil {
		log.Fatal("failed to start timer scheduler:", err)
	}

	bus := services.NewEventBus()
	checklist := services.NewChecklistService(store)
	disputes := services.NewDisputeService(store)

	registry := services.NewVerifierRegistry()
	streamURL := os.Getenv("STREAM_GATEWAY_URL")
	streamToken := os.Getenv("STREAM_GATEWAY_TOKEN")
	if streamURL != "" {
		registry.Register(services.NewTwitchVerifier(streamURL, streamToken))
		registry.Register(services.NewYouTubeVerifier(streamURL, streamToken))
		registry.Register(services.NewKickVerifier(streamURL, streamToken))
	} else {
		log.Println("⚠️  STREAM_GATEWAY_URL not set — stream verification disabled")
	}

	controller := services.NewMatchController(store, escrow, timers, checklist, disputes, registry, bus, services.LifecycleConfig{
		ReadyCheckWindow:   envSeconds("READY_CHECK_SECONDS", 120*time.Second),
		Countdown:          envSeconds("COUNTDOWN_SECONDS", 10*time.Second),
		DisputeSLA:         envSeconds("DISPUTE_SLA_SECONDS", 24*time.Hour),
		PrivateServerFeeFC: privateServerFeeFC,
	})

	api := services.NewMatchAPI(controller, disputes, escrow, ledger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollWorker := workers.NewStreamPollWorker(controller, envSeconds("STREAM_POLL_SECONDS", 15*time.Second))
	pollWorker.Start(ctx)

	reconcileWorker := workers.NewReconcileWorker(controller, envSeconds("RECONCILE_SECONDS", 60*time.Second))
	reconcileWorker.Start(ctx)

	handlers.SetupMatchRoutes(app, api)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Stream Poll Worker running")
	log.Println("✅ Reconcile Worker running")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := timers.Shutdown(); err != nil {
		log.Printf("Timer scheduler shutdown error: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
}
