package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/allowance-token-system/internal/cache"
	"github.com/fairyhunter13/allowance-token-system/internal/clock"
	"github.com/fairyhunter13/allowance-token-system/internal/config"
	"github.com/fairyhunter13/allowance-token-system/internal/handler"
	"github.com/fairyhunter13/allowance-token-system/internal/notify"
	"github.com/fairyhunter13/allowance-token-system/internal/repository"
	"github.com/fairyhunter13/allowance-token-system/internal/service"
	appvalidator "github.com/fairyhunter13/allowance-token-system/internal/validator"
	"github.com/fairyhunter13/allowance-token-system/pkg/database"
)

// store bundles the repositories of the selected backend.
type store struct {
	tokens service.TokenRepositoryInterface
	log    service.RedemptionLogRepositoryInterface
	pinger handler.Pinger
	close  func()
}

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	initLogger(cfg)

	ctx := context.Background()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Store.Backend).Msg("failed to open token store")
	}

	loc, err := cfg.Token.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load token timezone")
	}

	clk := clock.NewRealClock()

	listings, err := cache.NewListingCache(
		service.ListingSource{Tokens: st.tokens, Log: st.log},
		cfg.Cache.TTLDuration(),
		cfg.Cache.Size,
		clk,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create listing cache")
	}

	// Services
	issuer := service.NewIssuanceService(st.tokens, service.NewUUIDGenerator(cfg.Token.IDLength), clk, listings)
	redeemer := service.NewRedemptionService(st.tokens, st.log, clk, listings, service.RedemptionOptions{
		CompareAndSet: cfg.Token.CompareAndSet,
		VerifyPayload: cfg.Token.VerifyPayload,
		Location:      loc,
	})
	query := service.NewTokenQueryService(st.tokens, listings)

	// Rendering and delivery
	renderer := notify.NewQRRenderer(cfg.Notify.QRSize)
	sender := notify.NewResendSender(notify.ResendConfig{
		APIKey:  cfg.Notify.ResendAPIKey,
		BaseURL: cfg.Notify.ResendBaseURL,
		From:    cfg.Notify.From,
		Timeout: time.Duration(cfg.Notify.Timeout) * time.Second,
	})
	if !sender.Enabled() {
		log.Warn().Msg("RESEND_API_KEY not set, e-mail delivery disabled")
	}
	dispatcher := notify.NewDispatcher(renderer, sender)

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "Allowance Token System",
		ReadTimeout:  30 * time.Second,  // Max time to read request
		WriteTimeout: 30 * time.Second,  // Max time to write response
		IdleTimeout:  120 * time.Second, // Max time for keep-alive connections
		BodyLimit:    1 * 1024 * 1024,   // 1MB body limit
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	validate := appvalidator.New()

	healthHandler := handler.NewHealthHandler(st.pinger, cfg.Store.Backend)
	tokenHandler := handler.NewTokenHandler(issuer, query, renderer, dispatcher, validate)
	redemptionHandler := handler.NewRedemptionHandler(redeemer, query, validate)

	app.Get("/health", healthHandler.Check)

	// Token routes; static segments before :id
	app.Post("/api/tokens", tokenHandler.IssueToken)
	app.Get("/api/tokens", tokenHandler.ListTokens)
	app.Get("/api/tokens/summary", tokenHandler.Summary)
	app.Get("/api/tokens/:id", tokenHandler.GetToken)
	app.Get("/api/tokens/:id/qr", tokenHandler.TokenQR)
	app.Post("/api/tokens/:id/deliver", tokenHandler.DeliverToken)
	app.Get("/api/tokens/:id/redemptions", tokenHandler.TokenRedemptions)

	// Redemption routes
	app.Post("/api/redemptions", redemptionHandler.Redeem)
	app.Get("/api/redemptions", redemptionHandler.ListRedemptions)

	// Start server with graceful shutdown
	go func() {
		log.Info().
			Str("port", cfg.Server.Port).
			Str("backend", cfg.Store.Backend).
			Str("timezone", loc.String()).
			Bool("compare_and_set", cfg.Token.CompareAndSet).
			Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	// Close the store AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing token store...")
	st.close()
	log.Info().Msg("server stopped")
}

// openStore connects the configured backend. PostgreSQL gets its schema
// created on first use.
func openStore(ctx context.Context, cfg *config.Config) (*store, error) {
	timeout := cfg.Store.TimeoutDuration()

	if cfg.Store.Backend == config.BackendMemory {
		mem := repository.NewMemoryStore()
		log.Warn().Msg("using in-memory token store, data is lost on restart")
		return &store{
			tokens: mem.Tokens(),
			log:    mem.RedemptionLog(),
			pinger: mem,
			close:  func() {},
		}, nil
	}

	pool, err := database.NewPool(ctx, cfg.DB.DSN(), cfg.DB.MaxRetries)
	if err != nil {
		return nil, err
	}

	schemaCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := database.EnsureSchema(schemaCtx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &store{
		tokens: repository.NewTokenRepository(pool, timeout),
		log:    repository.NewRedemptionLogRepository(pool, timeout),
		pinger: pool,
		close:  pool.Close,
	}, nil
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
