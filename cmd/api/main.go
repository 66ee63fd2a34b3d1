package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradearena/internal/config"
	"tradearena/internal/contest"
	"tradearena/internal/db"
	"tradearena/internal/health"
	"tradearena/internal/httpserver"
	"tradearena/internal/notify"
	"tradearena/internal/position"
	"tradearena/internal/pricing"
	"tradearena/internal/queue"
	"tradearena/internal/risk"
	"tradearena/internal/store"
	"tradearena/internal/wallet"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("database connect", zap.Error(err))
	}
	defer pool.Close()

	st := store.NewPostgres(pool)

	var prices pricing.Source
	var quoteCache *pricing.CachedSource
	primary := pricing.NewStoreSource(st, 30*time.Second)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		quoteCache = pricing.NewCachedSource(primary, rdb, cfg.QuoteCacheTTL)
		prices = quoteCache
	} else {
		prices = primary
	}

	notifier := notify.NewLog(logger.Named("notify"))
	positionSvc := position.NewService(st, prices, logger.Named("position"))
	orderSvc := queue.NewService(st, logger.Named("queue"))
	walletSvc := wallet.NewService(st, logger.Named("wallet"))
	riskExec := risk.NewExecutor(st, positionSvc, prices, notifier, logger.Named("risk"))
	queueProc := queue.NewProcessor(st, positionSvc, prices, logger.Named("queue"))
	finalizer := contest.NewFinalizer(st, positionSvc, prices, logger.Named("contest"))

	startedAt := time.Now().UTC()
	router := httpserver.NewRouter(httpserver.RouterDeps{
		PositionHandler: position.NewHandler(positionSvc, st),
		OrderHandler:    queue.NewHandler(orderSvc, st),
		WalletHandler:   wallet.NewHandler(walletSvc),
		ContestHandler:  contest.NewHandler(finalizer, st),
		RiskHandler:     risk.NewHandler(riskExec, st),
		HealthHandler:   health.NewHandler(pool, startedAt, cfg.HTTPAddr),
		RiskExecutor:    riskExec,
		QueueProcessor:  queueProc,
		Finalizer:       finalizer,
		Store:           st,
		JWTSecret:       cfg.JWTSecret,
		InternalToken:   cfg.InternalToken,
		EventsWS:        httpserver.NewEventsWSHandler(positionSvc, st, cfg.JWTSecret, cfg.WebSocketOrigin),
		QuoteCache:      quoteCache,
	})
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server", zap.Error(err))
	}
}
