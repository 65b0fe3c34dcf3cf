/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the attendance engine API server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, config file, ATTENDANCE_* env)
  2. Build the zap logger
  3. Open and migrate the SQLite store
  4. Create the recalculation driver and, when enabled, the sweep scheduler
     (with a Redis lock) and the RabbitMQ publisher
  5. Configure HTTP router and start the server

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional)
  -demo    Load a demo scenario on startup (office, night-rotation, broken-catalog)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (cancels an in-flight sweep)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close queue, lock and database connections
  5. Exit

EXAMPLES:
  # Run with file database
  ATTENDANCE_DB_PATH=./data/attendance.db ./server

  # Run in memory with demo data
  ATTENDANCE_DB_PATH=":memory:" ./server -demo=office

  # Run on different port
  ATTENDANCE_SERVER_PORT=3000 ./server

SEE ALSO:
  - config/config.go: All settings and their defaults
  - api/server.go: Router configuration
  - cmd/worker/main.go: Consumer for asynchronous recalculation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/config"
	"github.com/warp/attendance-engine/lock"
	"github.com/warp/attendance-engine/logger"
	"github.com/warp/attendance-engine/queue"
	"github.com/warp/attendance-engine/recalc"
	"github.com/warp/attendance-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	demo := flag.String("demo", "", "Demo scenario to load on startup")
	flag.Parse()

	if err := run(*configPath, *demo); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, demo string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
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

	// Initialize store
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

	handler := api.NewHandler(store, driver, log.Named("api"))

	if cfg.RabbitMQ.Enabled() {
		conn, err := queue.Dial(cfg.RabbitMQ)
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher, err := queue.NewPublisher(conn, cfg.RabbitMQ.PublishTimeout, log.Named("queue"))
		if err != nil {
			return err
		}
		handler.Publisher = publisher
		log.Info("asynchronous recalculation enabled", zap.String("queue", cfg.RabbitMQ.Queue))
	}

	// A disabled scheduler still serves manual runs of the lookback sweep.
	scheduler := recalc.NewScheduler(driver, log)
	scheduler.Enabled = cfg.Sweep.Enabled
	scheduler.Interval = cfg.Sweep.Interval
	scheduler.LookbackDays = cfg.Sweep.LookbackDays
	scheduler.LockTTL = cfg.Sweep.LockTTL
	if cfg.Redis.Enabled() {
		locker, err := lock.NewRedisLocker(cfg.Redis, log.Named("lock"))
		if err != nil {
			return err
		}
		defer locker.Close()
		scheduler.Locker = locker
	}
	handler.Scheduler = scheduler

	if demo == "" && cfg.Server.LoadDemo {
		demo = "office"
	}
	if demo != "" {
		if _, err := handler.LoadDemo(context.Background(), demo); err != nil {
			return fmt.Errorf("load demo scenario: %w", err)
		}
	}

	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewRouter(handler, cfg.Server.AllowedOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("db", cfg.Database.Path),
			zap.String("timezone", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	log.Info("shutting down server")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
