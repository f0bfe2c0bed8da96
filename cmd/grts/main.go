package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"grts/internal/api"
	"grts/internal/api/handlers"
	"grts/internal/repository"
	"grts/internal/service"
	"grts/migrations"
	"grts/pkg/auth"
	"grts/pkg/blobstore"
	"grts/pkg/config"
	"grts/pkg/logger"
	"grts/pkg/postgres"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// @title GRTS API
// @version 1.0
// @description Fuel receipt tracking and WEX card reconciliation

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger.Level, cfg.Logger.Format); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting GRTS service")

	ctx := context.Background()
	db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, migrations.FS, appLogger); err != nil {
		appLogger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db, appLogger)
	cardRepo := repository.NewCardRepository(db, appLogger)
	txRepo := repository.NewTransactionRepository(db, appLogger)
	receiptRepo := repository.NewReceiptRepository(db, appLogger)
	resolutionRepo := repository.NewResolutionRepository(db, appLogger)

	var locker service.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		locker = redislock.New(rdb)
	} else {
		appLogger.Info("REDIS_ADDRESS not set, sweeps run without a lock")
	}

	publisher, closePublisher, err := service.NewEventPublisher(ctx, &cfg.PubSub, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize event publisher", zap.Error(err))
	}
	defer closePublisher()

	blobs, closeBlobs, err := blobstore.New(ctx, cfg.Storage, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize blob store", zap.Error(err))
	}
	defer func() {
		if err := closeBlobs(); err != nil {
			appLogger.Warn("Failed to close blob store", zap.Error(err))
		}
	}()

	var ocrService *service.OCRService
	if cfg.GigaChat.APIKey != "" {
		ocrService, err = service.NewOCRService(ctx, &cfg.GigaChat, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize OCR service", zap.Error(err))
		}
		defer ocrService.Close()
	} else {
		appLogger.Warn("GIGACHAT_API_KEY not set, OCR drafts disabled")
	}

	var source service.TransactionSource
	if client := service.NewWexClient(&cfg.WEX, appLogger); client != nil {
		source = client
	}

	jwtManager := auth.NewJWTManager(cfg.JWT.SecretKey, cfg.JWT.Expiration, cfg.JWT.RefreshExp)
	notifier := service.NewNotifier(&cfg.Email, appLogger)
	dispatcher := service.NewDispatcher(cfg.Email.Timeout, appLogger)
	tolerance := service.Tolerance{Dollars: cfg.Reconcile.TolDollars, Percent: cfg.Reconcile.TolPercent}

	matcher := service.NewMatcher(receiptRepo, txRepo, resolutionRepo, appLogger)
	sweepService := service.NewSweepService(matcher, txRepo, receiptRepo, userRepo, locker, notifier, publisher, cfg.Reconcile, appLogger)
	sweeper := service.NewAsyncSweeper(sweepService, dispatcher, 5*time.Minute, appLogger)
	ingestService := service.NewIngestService(txRepo, cardRepo, source, sweeper, cfg.WEX, appLogger)
	resolutionService := service.NewResolutionService(receiptRepo, txRepo, resolutionRepo, publisher, tolerance, appLogger)
	reportService := service.NewReportService(receiptRepo, txRepo, resolutionRepo, userRepo, tolerance, appLogger)
	exportService := service.NewExportService(reportService, appLogger)
	receiptService := service.NewReceiptService(receiptRepo, userRepo, blobs, ocrService, notifier, cfg.Storage, appLogger)
	authService := service.NewAuthService(userRepo, jwtManager, appLogger)
	userService := service.NewUserService(userRepo, cardRepo, appLogger)

	h := api.Handlers{
		Auth:      handlers.NewAuthHandler(authService, appLogger),
		Wex:       handlers.NewWexHandler(ingestService, appLogger),
		Receipt:   handlers.NewReceiptHandler(receiptService, ocrService, dispatcher, cfg.Storage.MaxUpload, appLogger),
		Reconcile: handlers.NewReconcileHandler(sweepService, resolutionService, dispatcher, appLogger),
		Report:    handlers.NewReportHandler(reportService, exportService, appLogger),
		User:      handlers.NewUserHandler(userService, notifier, appLogger),
	}
	if local, ok := blobs.(*blobstore.Local); ok {
		h.Files = handlers.NewFileHandler(local, appLogger)
	}

	// Leave headroom for the multipart envelope around the image.
	bodyLimit := int(cfg.Storage.MaxUpload) + 1<<20
	app := api.SetupRouter(h, jwtManager, api.Secrets{
		ServiceKey: cfg.WEX.ServiceKey,
		CronSecret: cfg.WEX.CronSecret,
	}, bodyLimit, appLogger)

	go func() {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown error", zap.Error(err))
	}
}
