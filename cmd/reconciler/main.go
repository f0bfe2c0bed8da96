// Command reconciler polls WEX and sweeps receipts on a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"grts/internal/repository"
	"grts/internal/repository/memory"
	"grts/internal/service"
	"grts/migrations"
	"grts/pkg/config"
	"grts/pkg/logger"
	"grts/pkg/postgres"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type stores struct {
	users        repository.UserStore
	cards        repository.CardStore
	transactions repository.TransactionStore
	receipts     repository.ReceiptStore
	resolutions  repository.ResolutionStore
}

func main() {
	once := flag.Bool("once", false, "run a single poll and sweep, then exit")
	inMemory := flag.Bool("memory", false, "use an in-memory store instead of Postgres (dry run)")
	flag.Parse()

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

	appLogger := logger.Named("reconciler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st stores
	if *inMemory {
		mem := memory.New()
		st = stores{mem.Users, mem.Cards, mem.Transactions, mem.Receipts, mem.Resolutions}
		appLogger.Info("Using in-memory store")
	} else {
		db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db, migrations.FS, appLogger); err != nil {
			appLogger.Fatal("Failed to apply migrations", zap.Error(err))
		}
		st = stores{
			users:        repository.NewUserRepository(db, appLogger),
			cards:        repository.NewCardRepository(db, appLogger),
			transactions: repository.NewTransactionRepository(db, appLogger),
			receipts:     repository.NewReceiptRepository(db, appLogger),
			resolutions:  repository.NewResolutionRepository(db, appLogger),
		}
	}

	var locker service.Locker
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		locker = redislock.New(rdb)
	}

	publisher, closePublisher, err := service.NewEventPublisher(ctx, &cfg.PubSub, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize event publisher", zap.Error(err))
	}
	defer closePublisher()

	var source service.TransactionSource
	if client := service.NewWexClient(&cfg.WEX, appLogger); client != nil {
		source = client
	}

	notifier := service.NewNotifier(&cfg.Email, appLogger)
	matcher := service.NewMatcher(st.receipts, st.transactions, st.resolutions, appLogger)
	sweep := service.NewSweepService(matcher, st.transactions, st.receipts, st.users, locker, notifier, publisher, cfg.Reconcile, appLogger)

	w := &worker{
		ingest:     service.NewIngestService(st.transactions, st.cards, source, nil, cfg.WEX, appLogger),
		sweep:      sweep,
		dispatcher: service.NewDispatcher(cfg.Email.Timeout, appLogger),
		pollDays:   cfg.WEX.PollDays,
		timeout:    cfg.Reconcile.Interval,
		logger:     appLogger,
	}

	if *once {
		if _, err := w.tick(ctx); err != nil {
			appLogger.Fatal("Reconciliation failed", zap.Error(err))
		}
		return
	}

	appLogger.Info("Reconciler started", zap.Duration("interval", cfg.Reconcile.Interval))
	w.loop(ctx, cfg.Reconcile.Interval)
	appLogger.Info("Reconciler stopped")
}
