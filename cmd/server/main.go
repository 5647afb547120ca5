package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairguard/backend/config"
	"github.com/fairguard/backend/internal/arbitration"
	"github.com/fairguard/backend/internal/auth"
	"github.com/fairguard/backend/internal/cache"
	"github.com/fairguard/backend/internal/classifier"
	"github.com/fairguard/backend/internal/database"
	"github.com/fairguard/backend/internal/handlers"
	"github.com/fairguard/backend/internal/jobs/cleanup"
	"github.com/fairguard/backend/internal/ledger"
	"github.com/fairguard/backend/internal/logging"
	"github.com/fairguard/backend/internal/middleware"
	"github.com/fairguard/backend/internal/moderation"
	"github.com/fairguard/backend/internal/moderator"
	"github.com/fairguard/backend/internal/platform"
	"github.com/fairguard/backend/internal/platform/bridge"
	"github.com/fairguard/backend/internal/ratelimit"
	"github.com/fairguard/backend/internal/repository"
	"github.com/fairguard/backend/internal/settings"
	"github.com/fairguard/backend/internal/websocket"
	"github.com/fairguard/backend/internal/wordlist"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logging.Init(logging.Config{
		Level:       cfg.Server.LogLevel,
		Environment: cfg.Server.Env,
		Secrets:     cfg.Secrets(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	// Connect to database
	db, err := database.Open(cfg.Database.Driver, cfg.GetDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	log.Info().Str("driver", cfg.Database.Driver).Msg("running database migrations")
	if err := database.RunMigrations(db.DB); err != nil {
		return err
	}

	// Redis carries ingested messages and operator alerts. Without it the
	// engine only moderates through the HTTP API.
	redis, err := cache.NewRedisClient(ctx, cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn().Err(err).Msg("failed to connect to Redis, running without message ingestion")
		redis = nil
	} else {
		defer redis.Close()
	}

	httpClient := cleanhttp.DefaultPooledClient()
	bridgeClient := bridge.New(cfg.Platform.BridgeURL, cfg.Platform.BridgeToken, bridge.WithHTTPClient(httpClient))
	admins := platform.NewAdmins(bridgeClient, cfg.Platform.AdminUserIDs, cfg.Platform.AdminRoleIDs)

	var cipher *settings.SecretCipher
	if len(cfg.Security.EncryptionKey) > 0 {
		if cipher, err = settings.NewSecretCipher(cfg.Security.EncryptionKey); err != nil {
			return err
		}
	}
	store := settings.New(db, cipher)

	gateway := classifier.New(nil,
		classifier.WithTimeout(cfg.AI.Timeout),
		classifier.WithMaxAttempts(cfg.AI.MaxRetries),
		classifier.WithBackoff(cfg.AI.BackoffBase, 0),
		classifier.WithRateLimit(cfg.AI.RateLimit),
		classifier.WithTemperature(cfg.AI.Temperature),
	)
	configureProvider(ctx, store, cfg.AI, gateway, httpClient)

	l := ledger.New(db, ledger.WithExpiry(cfg.Moderation.WarningExpiry))
	words := wordlist.New(db)
	if err := words.Reload(ctx); err != nil {
		return err
	}
	trust := moderation.NewTrustScorer(db, l, moderation.TrustConfig{
		Min:          cfg.Trust.Min,
		Max:          cfg.Trust.Max,
		Default:      cfg.Trust.Default,
		LowThreshold: cfg.Trust.LowThreshold,
	})
	defer trust.Wait()

	hub := websocket.NewHub(redis)
	alerter := platform.MultiAlerter{
		hub,
		platform.ChannelAlerter{Client: bridgeClient, ChannelID: cfg.Platform.AlertChannelID},
	}

	pipeline := moderation.New(moderation.Deps{
		DB:         db,
		Ledger:     l,
		Words:      words,
		Classifier: gateway,
		Platform:   bridgeClient,
		Alerter:    alerter,
		Admins:     admins,
		Trust:      trust,
	}, moderation.Config{
		WarnThreshold:        cfg.Moderation.WarnThreshold,
		MaxMessageLength:     cfg.Moderation.MaxMessageLength,
		SpamMessageCount:     cfg.Moderation.SpamMessageCount,
		SpamWindow:           cfg.Moderation.SpamTimeWindow,
		ConfirmationRequired: cfg.Moderation.ConfirmationRequired,
		ConfirmationTTL:      cfg.Moderation.PendingConfirmationTTL,
		BotUserID:            cfg.Platform.BotUserID,
		LogChannelID:         cfg.Platform.LogChannelID,
	})

	arbiter := arbitration.New(arbitration.Deps{
		DB:         db,
		Ledger:     l,
		Classifier: gateway,
		Platform:   bridgeClient,
		Alerter:    alerter,
		Admins:     admins,
	}, arbitration.Config{
		WarnThreshold:        cfg.Moderation.WarnThreshold,
		AppealDeadline:       cfg.Moderation.AppealDeadline,
		AbuseLookback:        cfg.Moderation.AbuseLookback,
		AbuseRepeatThreshold: cfg.Moderation.AbuseRepeatThreshold,
		PendingWarnTTL:       cfg.Moderation.PendingWarnTTL,
		TimeoutDuration:      cfg.Moderation.TimeoutDuration,
		LogChannelID:         cfg.Platform.LogChannelID,
	})

	fetcher := &platform.WindowFetcher{
		Client: bridgeClient,
		Before: cfg.Moderation.ContextBefore,
		After:  cfg.Moderation.ContextAfter,
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpiryHours)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}
	router := gin.Default()
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))

	routes := handlers.Routes{
		JWT:        jwtService,
		Admins:     admins,
		Limiter:    newLimiter(cfg, db, redis),
		Moderation: handlers.NewModerationHandler(pipeline, fetcher),
		Warns:      handlers.NewWarnHandler(arbiter, fetcher),
		Words:      handlers.NewWordHandler(words),
		Users:      handlers.NewUserHandler(db, l, trust),
		Analytics:  handlers.NewAnalyticsHandler(db),
		Settings:   handlers.NewSettingsHandler(store, cfg.AI, gateway, httpClient),
		Alerts:     websocket.NewHandler(hub, jwtService, admins, cfg.Server.AllowedOrigins).HandleWebSocket,
	}
	routes.Register(router)

	job := cleanup.NewJob(db, l, cfg.Moderation.TrackingRetention)
	job.AddCache("ai_confirmation", pipeline.Pending())
	job.AddCache("pending_warn", arbiter.Pending())

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(ctx) })
	g.Go(func() error {
		job.Start(ctx, cfg.Moderation.CleanupInterval)
		return nil
	})
	if redis != nil {
		bot := moderator.NewBot(redis, cfg.Redis.MessageChannel, pipeline, fetcher, 0)
		g.Go(func() error { return bot.Run(ctx) })
	}
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Server.Env).Msg("starting FairGuard server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// configureProvider builds the classifier provider from the environment plus
// any stored overrides. A missing key leaves the gateway without a provider,
// so every judgment reports unavailable until an operator configures one.
func configureProvider(ctx context.Context, store *settings.Store, base config.AIConfig, gw *classifier.Gateway, client *http.Client) {
	ai, err := store.ApplyClassifierOverrides(ctx, base)
	if err != nil {
		log.Warn().Err(err).Msg("failed to apply stored classifier settings, using environment")
		ai = base
	}
	pc, _ := ai.ProviderSettings(ai.Provider)
	p, err := classifier.NewProvider(ai.Provider, pc, client)
	if err != nil {
		log.Warn().Err(err).Str("provider", ai.Provider).Msg("classifier provider not configured")
		return
	}
	gw.SetProvider(p)
}

func newLimiter(cfg *config.Config, db *database.DB, redis *cache.RedisClient) *ratelimit.Limiter {
	var store ratelimit.Store = repository.NewRateLimitRepository(db)
	if cfg.RateLimit.Backend == "redis" {
		if redis != nil {
			store = ratelimit.NewRedisStore(redis.GetClient())
		} else {
			log.Warn().Msg("rate limit backend is redis but Redis is unavailable, using the database")
		}
	}
	return ratelimit.New(store, cfg.RateLimit.Commands, cfg.RateLimit.Window)
}
