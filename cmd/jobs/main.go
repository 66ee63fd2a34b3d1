// The jobs process runs the periodic sweeps: margin evaluation, queued
// order and trigger processing, and contest settlement. It shares no
// memory with the api process; the two coordinate only through the
// database's conditional updates.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradearena/internal/config"
	"tradearena/internal/contest"
	"tradearena/internal/db"
	"tradearena/internal/notify"
	"tradearena/internal/position"
	"tradearena/internal/pricing"
	"tradearena/internal/queue"
	"tradearena/internal/risk"
	"tradearena/internal/scheduler"
	"tradearena/internal/store"

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("database connect", zap.Error(err))
	}
	defer pool.Close()

	st := store.NewPostgres(pool)

	var prices pricing.Source = pricing.NewStoreSource(st, 30*time.Second)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		prices = pricing.NewCachedSource(prices, rdb, cfg.QuoteCacheTTL)
	}

	positionSvc := position.NewService(st, prices, logger.Named("position"))
	riskExec := risk.NewExecutor(st, positionSvc, prices, notify.NewLog(logger.Named("notify")), logger.Named("risk"))
	queueProc := queue.NewProcessor(st, positionSvc, prices, logger.Named("queue"))
	finalizer := contest.NewFinalizer(st, positionSvc, prices, logger.Named("contest"))

	sched := scheduler.New(logger.Named("scheduler"),
		scheduler.Job{
			Name:     "margin-sweep",
			Interval: cfg.MarginInterval,
			Run: func(ctx context.Context) error {
				_, err := riskExec.SweepAll(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     "order-queue",
			Interval: cfg.QueueInterval,
			Run: func(ctx context.Context) error {
				_, err := queueProc.Process(ctx)
				return err
			},
		},
		scheduler.Job{
			Name:     "contest-settlement",
			Interval: cfg.ContestInterval,
			Run: func(ctx context.Context) error {
				if _, err := finalizer.ExpireUnfilled(ctx); err != nil {
					return err
				}
				_, err := finalizer.FinalizeDue(ctx)
				return err
			},
		},
	)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	logger.Info("jobs running",
		zap.Duration("margin_interval", cfg.MarginInterval),
		zap.Duration("queue_interval", cfg.QueueInterval),
		zap.Duration("contest_interval", cfg.ContestInterval),
	)
	sched.Start(ctx)
}
