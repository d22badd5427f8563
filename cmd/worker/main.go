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
	"github.com/antti/imagevault/internal/orchestrator"
	"github.com/antti/imagevault/internal/rendition"
	"github.com/antti/imagevault/internal/workers/cache"
	"github.com/antti/imagevault/internal/workers/thumbnail"
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

	redisOpts, err := redis.ParseURL(cfg.BrokerURL)
	if err != nil {
		log.Printf("Failed to parse broker URL: %v", err)
		os.Exit(exitBadConfig)
	}

	if err := pingBroker(ctx, redisOpts); err != nil {
		log.Printf("Broker unreachable after %d attempts: %v", brokerRetryBudget, err)
		os.Exit(exitBrokerUnreachable)
	}

	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisOpts.Addr})
	defer client.Close()
	msgBus := bus.New(client, cfg.MessageTimeout())

	log.Println("Connected to database and broker successfully")

	files, err := rendition.NewLocalStore(cfg.StoragePath)
	if err != nil {
		log.Fatalf("Failed to initialize rendition storage: %v", err)
	}
	store := postgres.NewCollectionStore(dbPool, func(ctx context.Context, path string) bool {
		ok, err := files.Exists(ctx, path)
		return err == nil && ok
	})

	indexOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("Failed to parse index store URL: %v", err)
		os.Exit(exitBadConfig)
	}
	indexClient := redis.NewClient(indexOpts)
	defer indexClient.Close()
	index := redisindex.New(indexClient)

	plan := orchestrator.RenditionPlan{
		ThumbnailWidth:  cfg.ThumbnailWidth,
		ThumbnailHeight: cfg.ThumbnailHeight,
		CacheWidth:      cfg.CacheWidth,
		CacheHeight:     cfg.CacheHeight,
		Quality:         cfg.DefaultQuality,
	}
	orch := orchestrator.New(store, msgBus, index, plan)
	thumbWorker := thumbnail.New(store, files, msgBus, index)
	cacheWorker := cache.New(store, files, msgBus, index)

	mux := asynq.NewServeMux()
	mux.HandleFunc(bus.TypeLibraryScan, unwrap(orch.HandleLibraryScan))
	mux.HandleFunc(bus.TypeImageProcessing, unwrap(orch.HandleImageProcessing))
	mux.HandleFunc(bus.TypeThumbnailGeneration, unwrap(thumbWorker.HandleTask))
	mux.HandleFunc(bus.TypeCacheGeneration, unwrap(cacheWorker.HandleTask))

	server := asynq.NewServer(asynq.RedisClientOpt{Addr: redisOpts.Addr}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      bus.QueuePriorities(),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","worker":"running"}`)
	})

	healthServer := &http.Server{
		Addr:    ":8081",
		Handler: healthMux,
	}

	go func() {
		log.Println("Health check server starting on :8081")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Health check server error: %v", err)
		}
	}()

	log.Println("Worker started, waiting for jobs...")
	if err := server.Start(mux); err != nil {
		log.Fatalf("Worker error: %v", err)
	}

	<-sigChan
	log.Println("Shutdown signal received, stopping worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	server.Shutdown()
	log.Println("Worker stopped")
}

// unwrap adapts a (ctx, body []byte) consumer to asynq's task handler
// signature by stripping the bus.Envelope every published message is
// wrapped in before handing the inner payload to fn.
func unwrap(fn func(ctx context.Context, payload []byte) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		body, err := bus.Body(t.Payload())
		if err != nil {
			return err
		}
		return fn(ctx, body)
	}
}
