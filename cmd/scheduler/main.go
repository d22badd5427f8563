package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/antti/imagevault/internal/bus"
	"github.com/antti/imagevault/internal/config"
	"github.com/antti/imagevault/internal/infra/postgres"
	"github.com/antti/imagevault/internal/infra/redisindex"
	"github.com/antti/imagevault/internal/library"
	"github.com/antti/imagevault/internal/scheduler"
)

// Exit codes per the process contract: 0 clean shutdown, 2 unrecoverable
// configuration, 3 broker unreachable after the startup retry budget.
const (
	exitBadConfig         = 2
	exitBrokerUnreachable = 3
)

const brokerRetryBudget = 5

// pingBroker verifies broker reachability on startup, retrying with a
// linear backoff before the process gives up with exit code 3.
func pingBroker(ctx context.Context, opts *redis.Options) error {
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	var err error
	for attempt := 1; attempt <= brokerRetryBudget; attempt++ {
		if err = rdb.Ping(ctx).Err(); err == nil {
			return nil
		}
		log.Printf("Broker ping failed (attempt %d/%d): %v", attempt, brokerRetryBudget, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return err
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		os.Exit(exitBadConfig)
	}

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database successfully")

	redisOpts, err := redis.ParseURL(cfg.BrokerURL)
	if err != nil {
		log.Printf("Failed to parse broker URL: %v", err)
		os.Exit(exitBadConfig)
	}

	if err := pingBroker(ctx, redisOpts); err != nil {
		log.Printf("Broker unreachable after %d attempts: %v", brokerRetryBudget, err)
		os.Exit(exitBrokerUnreachable)
	}

	jobRepo := postgres.NewScheduledJobStore(dbPool)

	sched := scheduler.New(jobRepo, scheduler.Config{
		RedisAddr: redisOpts.Addr,
		Queue:     "scheduler",
		Queues:    map[string]int{"scheduler": 1},
	})

	// LibraryScanHandler publishes onto the library_scan_queue through its
	// own asynq client, independent of the scheduler's cron-entry client.
	publishClient := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr})
	defer publishClient.Close()
	msgBus := bus.New(publishClient, cfg.MessageTimeout())
	sched.RegisterHandler(scheduler.LibraryScanJobType, scheduler.LibraryScanHandler(msgBus))

	indexOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("Failed to parse index store URL: %v", err)
		os.Exit(exitBadConfig)
	}
	indexClient := redis.NewClient(indexOpts)
	defer indexClient.Close()
	index := redisindex.New(indexClient)
	collStore := postgres.NewCollectionStore(dbPool, nil)
	sched.RegisterHandler(scheduler.IndexRebuildJobType, scheduler.IndexRebuildHandler(collStore, index))

	// The scheduler process owns library CRUD: every create/update/delete
	// keeps the paired scan job in step with settings.autoScan.
	libraries := library.NewService(postgres.NewLibraryStore(dbPool), sched)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","scheduler":"running"}`)
	})

	healthServer := &http.Server{
		Addr:    ":8082",
		Handler: healthMux,
	}

	go func() {
		log.Println("Health check server starting on :8082")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Health check server error: %v", err)
		}
	}()

	log.Println("Starting job scheduler...")
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Scheduler error: %v", err)
	}
	log.Println("Job scheduler started successfully")

	if err := libraries.ReconcileJobs(ctx); err != nil {
		log.Printf("Library job reconcile failed: %v", err)
	}

	<-sigChan
	log.Println("Shutdown signal received, stopping scheduler...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	sched.Stop()
	log.Println("Scheduler stopped")
}
