package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tradepilot/internal/bot"
	"tradepilot/internal/cache"
	"tradepilot/internal/config"
	"tradepilot/internal/credentials"
	"tradepilot/internal/db"
	"tradepilot/internal/dispatch"
	"tradepilot/internal/domain"
	"tradepilot/internal/exchange"
	"tradepilot/internal/handler"
	"tradepilot/internal/job"
	"tradepilot/internal/provider"
	"tradepilot/internal/regime"
	"tradepilot/internal/repository"
	"tradepilot/internal/risk"
	signalsvc "tradepilot/internal/signal"
	"tradepilot/pkg/tracing"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "tradepilot/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initPostgresFunc       = db.InitPostgres
	initRedisFunc          = cache.InitRedis
	initTracerFunc         = tracing.InitTracer
	startRegimeJobFunc     = func(j *job.RegimeJob, ctx context.Context) { go j.Start(ctx) }
	startDispatcherFunc    = func(o *dispatch.Orchestrator, ctx context.Context) { go o.Run(ctx) }
	startTelegramBotFunc   = bot.StartTelegramBot
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           TradePilot API
// @version         1.0
// @description     Multi-tenant trading signal dispatch engine.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Postgres and Redis
	os.Setenv("DATABASE_URL", cfg.DatabaseURL)
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initPostgresFunc(ctx)
	initRedisFunc(ctx)

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Repositories
	signalRepo := repository.NewSignalRepository(db.Pool, tracer)
	operationRepo := repository.NewOperationRepository(db.Pool, tracer)
	credentialRepo := repository.NewCredentialRepository(db.Pool, tracer)
	subscriberRepo := repository.NewSubscriberRepository(db.Pool, tracer)
	riskRepo := repository.NewRiskRepository(db.Pool, tracer)
	regimeRepo := repository.NewRegimeRepository(db.Pool, tracer)

	// Credential resolution: encrypted per-subscriber sets with the
	// process-wide fallback from deployment config.
	var cipher *credentials.Cipher
	if cfg.CredentialKeyHex != "" {
		cipher, err = credentials.NewCipher(cfg.CredentialKeyHex)
		if err != nil {
			log.Fatalf("invalid CREDENTIAL_KEY: %v", err)
		}
	}
	fallbackEnv := domain.EnvironmentLive
	if cfg.FallbackTestnet {
		fallbackEnv = domain.EnvironmentTest
	}
	resolver := credentials.NewResolver(tracer, credentialRepo, cipher, credentials.Fallback{
		Exchange:    cfg.FallbackExchange,
		APIKey:      cfg.FallbackAPIKey,
		APISecret:   cfg.FallbackAPISecret,
		Environment: fallbackEnv,
	})

	// Market regime: poll sentiment, commit immutable snapshots
	var regimeStore regime.Store
	if db.Pool != nil {
		regimeStore = regimeRepo
	}
	regimeService := regime.NewService(tracer,
		[]regime.SentimentSource{provider.NewFearGreedProvider(tracer)},
		regimeStore, cache.PublishRegime,
		time.Duration(cfg.RegimeStaleSecs)*time.Second,
	)
	if db.Pool != nil {
		if snapshot, err := regimeRepo.Latest(ctx); err != nil {
			log.Printf("warm regime from audit trail: %v", err)
		} else {
			regimeService.Warm(snapshot)
		}
	}
	regimeJob := job.NewRegimeJob(tracer, regimeService, time.Duration(cfg.RegimePollSecs)*time.Second)
	startRegimeJobFunc(regimeJob, ctx)

	// Telegram ops bot doubles as the dispatch alert channel
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	if cfg.TelegramChatID != 0 {
		os.Setenv("TELEGRAM_CHAT_ID", strconv.FormatInt(cfg.TelegramChatID, 10))
	}
	notifier := startTelegramBotFunc(regimeService, operationRepo)

	// Exchange client and dispatch orchestrator
	exchangeClient := exchange.NewClient(tracer,
		time.Duration(cfg.ExchangeTimeoutSecs)*time.Second,
		cfg.ExchangeRecvWindow,
		exchange.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
	)
	orchestrator := dispatch.NewOrchestrator(tracer, dispatch.Config{
		Subscribers:  subscriberRepo,
		Risks:        riskRepo,
		Operations:   operationRepo,
		Signals:      signalRepo,
		Resolver:     resolver,
		Regime:       regimeService,
		Exchange:     exchangeClient,
		Calculator:   risk.NewCalculator(cfg.RiskUnit),
		Notifier:     notifier,
		ExchangeName: cfg.FallbackExchange,
		Workers:      cfg.DispatchWorkers,
	})
	startDispatcherFunc(orchestrator, ctx)

	// Intake service and HTTP surface
	signalService := signalsvc.NewService(tracer, signalRepo, orchestrator)
	h := handler.New(tracer, signalService, signalRepo, operationRepo, riskRepo, regimeService, resolver, cfg.WebhookToken)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("tradepilot"))
	r.Use(cors.Default())

	h.RegisterRoutes(r, cfg.AdminAPIKey)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)
	waitForSignalFunc(quit)
	log.Println("Shutting down server...")

	// Stops intake first, then the background loops. Exchange calls already
	// submitted run on detached contexts and complete.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	cancel()

	log.Println("Server exiting")
}
