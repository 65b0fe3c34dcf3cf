// Command worker consumes recalculation commands from RabbitMQ and runs them
// against the same store the API server uses.
//
// It shares the server's configuration; rabbitmq.dsn must be set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/logger"
	"github.com/warp/attendance-engine/queue"
	"github.com/warp/attendance-engine/recalc"
	"github.com/warp/attendance-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !cfg.RabbitMQ.Enabled() {
		return fmt.Errorf("rabbitmq.dsn is required")
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	loc, err := cfg.Engine.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	store, err := sqlite.New(cfg.Database.Path, log.Named("store"))
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	driver := recalc.NewDriver(store, recalc.Config{
		Location:      loc,
		Workers:       cfg.Sweep.Workers,
		RetryAttempts: cfg.Recalc.RetryAttempts,
		RetryBackoff:  cfg.Recalc.RetryBackoff,
	}, log.Named("recalc"))

	conn, err := queue.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("worker starting", zap.String("queue", cfg.RabbitMQ.Queue), zap.String("db", cfg.Database.Path))
	if err := queue.NewConsumer(conn, driver, log.Named("consumer")).Run(ctx); err != nil {
		return err
	}
	log.Info("worker stopped")
	return nil
}
